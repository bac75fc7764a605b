package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"docvault/internal/apperr"
	"docvault/internal/auth"
	"docvault/internal/logger"
	"docvault/internal/model"
	"docvault/internal/repository/memory"
	"docvault/internal/storage"
	"docvault/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// env wires both services against the memory store and a temp directory.
type env struct {
	dir   string
	store storage.Storage
	auth  AuthService
	docs  DocumentService
	admin *model.User
	user  *model.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	st, err := storage.NewFS(dir)
	require.NoError(t, err)

	mem := memory.NewStore()
	tokens, err := auth.NewTokenService("test-secret", time.Hour)
	require.NoError(t, err)
	v := validation.New()

	authSvc, err := NewAuthService(mem.Users(), tokens, v, nil, AuthOptions{}, logger.Discard())
	require.NoError(t, err)
	docSvc, _ := newTestDocumentService(t, st, mem.Documents())

	ctx := context.Background()
	a, err := authSvc.Register(ctx, nil, RegisterInput{Username: "root", Password: "secret1"})
	require.NoError(t, err)
	u, err := authSvc.Register(ctx, a, RegisterInput{Username: "reader", Password: "secret2"})
	require.NoError(t, err)

	return &env{dir: dir, store: st, auth: authSvc, docs: docSvc, admin: a, user: u}
}

func (e *env) upload(t *testing.T, title, name, content string, tags *string) *model.Document {
	t.Helper()
	doc, err := e.docs.Upload(context.Background(), e.admin, UploadInput{
		Title:       title,
		Tags:        tags,
		Filename:    name,
		ContentType: "text/plain",
		Size:        int64(len(content)),
		Content:     strings.NewReader(content),
	})
	require.NoError(t, err)
	return doc
}

func readAll(t *testing.T, dl *Download) string {
	t.Helper()
	defer dl.Content.Close()
	b, err := io.ReadAll(dl.Content)
	require.NoError(t, err)
	return string(b)
}

func TestFlow_VersionsAreContiguousUnderConcurrency(t *testing.T) {
	e := newEnv(t)
	const n = 20

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.docs.Upload(context.Background(), e.admin, UploadInput{
				Title:    "Shared",
				Filename: "same.txt",
				Content:  strings.NewReader(fmt.Sprintf("payload-%d", i)),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	docs, err := e.docs.List(context.Background(), e.user, ListQuery{})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	doc := docs[0]
	assert.Equal(t, n, doc.LatestVersion)
	require.Len(t, doc.Versions, n)

	keys := make(map[string]bool, n)
	payloads := make(map[string]bool, n)
	for i, v := range doc.Versions {
		assert.Equal(t, n-i, v.Version)
		keys[v.Filename] = true

		dl, err := e.docs.Download(context.Background(), e.user, doc.ID, v.Version)
		require.NoError(t, err)
		payloads[readAll(t, dl)] = true
	}
	assert.Len(t, keys, n, "storage keys are unique")
	assert.Len(t, payloads, n, "every version keeps its own bytes")

	entries, err := os.ReadDir(e.dir)
	require.NoError(t, err)
	assert.Len(t, entries, n, "no temp files left behind")
}

func TestFlow_RoundTrip(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.upload(t, "Manual", "manual.txt", "first", nil)
	doc := e.upload(t, "Manual", "manual.txt", "second", nil)
	assert.Equal(t, 2, doc.LatestVersion)
	assert.Equal(t, e.admin.ID, doc.OwnerID)

	latest, err := e.docs.Download(ctx, e.user, doc.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, "manual.txt", latest.OriginalName)
	assert.Equal(t, "text/plain", latest.MimeType)
	assert.Equal(t, "second", readAll(t, latest))

	first, err := e.docs.Download(ctx, e.user, doc.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "first", readAll(t, first))

	versions, err := e.docs.ListVersions(ctx, e.user, doc.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].Version)
}

func TestFlow_Authorization(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.docs.Upload(ctx, e.user, UploadInput{Title: "X", Filename: "x.txt", Content: strings.NewReader("x")})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = e.docs.Upload(ctx, nil, UploadInput{Title: "X", Filename: "x.txt", Content: strings.NewReader("x")})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = e.docs.List(ctx, nil, ListQuery{})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = e.docs.Download(ctx, nil, 1, 0)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	entries, err := os.ReadDir(e.dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected uploads write nothing")
}

func TestFlow_Filtering(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	policyTags, safetyTags := "policy,root", "safety"
	e.upload(t, "Quality Policy", "q.txt", "q", &policyTags)
	e.upload(t, "Safety Form", "s.txt", "s", &safetyTags)

	byTitle, err := e.docs.List(ctx, e.user, ListQuery{Q: "quality"})
	require.NoError(t, err)
	require.Len(t, byTitle, 1)
	assert.Equal(t, "Quality Policy", byTitle[0].Title)

	byTag, err := e.docs.List(ctx, e.user, ListQuery{Tag: "safety"})
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, "Safety Form", byTag[0].Title)
}

func TestFlow_NotFound(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	doc := e.upload(t, "Doc", "d.txt", "d", nil)

	_, err := e.docs.Download(ctx, e.user, 9999, 0)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = e.docs.Download(ctx, e.user, doc.ID, 7)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, os.Remove(filepath.Join(e.dir, doc.Versions[0].Filename)))
	_, err = e.docs.Download(ctx, e.user, doc.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFlow_StorageFailureLeavesNoMetadata(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.docs.Upload(ctx, e.admin, UploadInput{
		Title:    "Broken",
		Filename: "b.txt",
		Content:  io.MultiReader(strings.NewReader("partial"), failingReader{}),
	})
	assert.ErrorIs(t, err, apperr.ErrStorageFailure)

	docs, err := e.docs.List(ctx, e.user, ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, docs)

	entries, err := os.ReadDir(e.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFlow_DeleteCascades(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.upload(t, "Doc", "d.txt", "1", nil)
	doc := e.upload(t, "Doc", "d.txt", "2", nil)

	require.NoError(t, e.docs.Delete(ctx, e.admin, doc.ID))

	_, err := e.docs.Get(ctx, e.user, doc.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	entries, err := os.ReadDir(e.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, fmt.Errorf("device unplugged") }
