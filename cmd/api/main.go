package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docvault/docs"
	"docvault/internal/auth"
	"docvault/internal/config"
	"docvault/internal/database"
	"docvault/internal/database/migration"
	handlers "docvault/internal/http/handler"
	"docvault/internal/http/middleware"
	"docvault/internal/logger"
	"docvault/internal/otel"
	"docvault/internal/ratelimit"
	"docvault/internal/repository"
	"docvault/internal/repository/memory"
	"docvault/internal/repository/postgres"
	"docvault/internal/service"
	"docvault/internal/storage"
	"docvault/internal/validation"
)

// @title Document Vault API
// @version 1.0
// @description Versioned document repository with bearer-token authentication.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	log := logger.New(logger.Config{
		Format:      cfg.Log.Format,
		Environment: cfg.Env,
		Level:       logger.ParseLevel(cfg.Log.Level),
		Location:    cfg.Log.Location,
	})
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "event", "server_failed", "error", err)
		os.Exit(1)
	}
}

// registry bundles the metadata store chosen by DATABASE_DRIVER.
type registry struct {
	users  repository.UserRepository
	docs   repository.DocumentRepository
	pinger handlers.Pinger
	close  func() error
}

func run(cfg *config.AppConfig, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	reg, err := openRegistry(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer reg.close()

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	log.Info("storage ready", "event", "storage_ready", "backend", cfg.Storage.Backend)

	if cfg.Auth.SecretKey == config.DefaultSecretKey {
		log.Warn("SECRET_KEY is not set; tokens are signed with the development default", "event", "insecure_secret_key")
	}
	tokens, err := auth.NewTokenService(cfg.Auth.SecretKey, cfg.Auth.TokenTTL())
	if err != nil {
		return fmt.Errorf("init tokens: %w", err)
	}

	limiter := ratelimit.New(float64(cfg.Auth.LoginRatePerMin), cfg.Auth.LoginRateBurst)
	defer limiter.Stop()

	v := validation.New()
	authSvc, err := service.NewAuthService(reg.users, tokens, v, limiter, service.AuthOptions{
		AllowUserSignup:   cfg.Auth.AllowUserSignup,
		BootstrapUsername: cfg.Auth.BootstrapUsername,
		BootstrapPassword: cfg.Auth.BootstrapPassword,
	}, log)
	if err != nil {
		return err
	}
	if err := authSvc.EnsureBootstrapAdmin(ctx); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	metrics, err := service.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register domain metrics: %w", err)
	}
	docSvc := service.NewDocumentService(store, reg.docs, v, metrics, log)

	promMiddleware, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(log),
		BodyLimit:    cfg.MaxUploadMB * 1024 * 1024,
	})

	// RequestID runs first so the traced user context carries the id.
	app.Use(middleware.RequestID())
	app.Use(otelfiber.Middleware(otelfiber.WithNext(func(c *fiber.Ctx) bool {
		return c.Path() == "/metrics"
	})))
	app.Use(middleware.Logger(log))
	app.Use(promMiddleware.Handler())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	registerSwagger(app, cfg.AppHost)

	handlers.RegisterRoutes(app, handlers.Deps{
		DB:        reg.pinger,
		Auth:      authSvc,
		Documents: docSvc,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("server listening", "event", "server_started", "addr", addr, "env", cfg.Env)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down", "event", "server_stopping")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// registerSwagger serves the API docs. The host is fixed at startup; an empty scheme list
// lets the UI reuse the scheme the page was loaded with.
func registerSwagger(app *fiber.App, host string) {
	docs.SwaggerInfo.Host = host
	docs.SwaggerInfo.Schemes = nil
	app.Get("/swagger/*", swagger.HandlerDefault)
}

func openRegistry(ctx context.Context, c config.DatabaseConfig, log *slog.Logger) (*registry, error) {
	switch c.Driver {
	case "memory":
		log.Warn("using in-memory metadata store; data is lost on restart", "event", "db_memory")
		mem := memory.NewStore()
		return &registry{
			users:  mem.Users(),
			docs:   mem.Documents(),
			pinger: mem,
			close:  func() error { return nil },
		}, nil
	case "postgres", "":
		// Initialize PostgreSQL connection (with pooling via database/sql)
		db, err := database.NewPostgres(c)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := migration.EnsureMigrated(ctx, db, log, database.Host(c)); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return postgresRegistry(db), nil
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", c.Driver)
	}
}

func postgresRegistry(db *sql.DB) *registry {
	return &registry{
		users:  postgres.NewUserPostgres(db),
		docs:   postgres.NewDocumentPostgres(db),
		pinger: db,
		close:  db.Close,
	}
}

func openStorage(c config.StorageConfig) (storage.Storage, error) {
	switch c.Backend {
	case "minio":
		// S3-compatible object storage client (MinIO-supported)
		return storage.NewMinIO(c.MinIO)
	case "fs", "":
		return storage.NewFS(c.Dir)
	default:
		return nil, errors.New("unsupported STORAGE_BACKEND " + c.Backend)
	}
}
