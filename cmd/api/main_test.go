package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docvault/internal/config"
	"docvault/internal/logger"
)

func TestOpenRegistry_Memory(t *testing.T) {
	reg, err := openRegistry(context.Background(), config.DatabaseConfig{Driver: "memory"}, logger.Discard())
	require.NoError(t, err)
	defer reg.close()

	assert.NoError(t, reg.pinger.PingContext(context.Background()))
	n, err := reg.users.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpenRegistry_UnknownDriver(t *testing.T) {
	_, err := openRegistry(context.Background(), config.DatabaseConfig{Driver: "mongo"}, logger.Discard())
	assert.ErrorContains(t, err, "unsupported DATABASE_DRIVER")
}

func TestOpenStorage(t *testing.T) {
	st, err := openStorage(config.StorageConfig{Backend: "fs", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.NotNil(t, st)

	_, err = openStorage(config.StorageConfig{Backend: "tape"})
	assert.ErrorContains(t, err, "unsupported STORAGE_BACKEND")

	_, err = openStorage(config.StorageConfig{Backend: "minio"})
	assert.Error(t, err, "minio requires endpoint and credentials")
}

func TestRegisterSwagger_HostFixedAtStartup(t *testing.T) {
	app := fiber.New()
	registerSwagger(app, "vault.example:8080")

	var wg sync.WaitGroup
	for _, host := range []string{"evil.example", "other.example"} {
		wg.Add(1)
		go func(host string) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil)
			req.Host = host
			resp, err := app.Test(req)
			if assert.NoError(t, err) {
				resp.Body.Close()
			}
		}(host)
	}
	wg.Wait()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "vault.example:8080")
	assert.NotContains(t, string(body), "evil.example")
}
