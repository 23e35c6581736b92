package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/devxworld/erx/internal/config"
	"github.com/devxworld/erx/internal/domain/auditlog"
	"github.com/devxworld/erx/internal/domain/identity"
	"github.com/devxworld/erx/internal/domain/insight"
	"github.com/devxworld/erx/internal/domain/labreferral"
	"github.com/devxworld/erx/internal/domain/ledger"
	"github.com/devxworld/erx/internal/domain/pharmacy"
	"github.com/devxworld/erx/internal/domain/prescription"
	"github.com/devxworld/erx/internal/platform/auth"
	"github.com/devxworld/erx/internal/platform/blobstore"
	"github.com/devxworld/erx/internal/platform/db"
	"github.com/devxworld/erx/internal/platform/middleware"
	"github.com/devxworld/erx/internal/platform/sqlite"
	"github.com/devxworld/erx/internal/store"
	"github.com/devxworld/erx/internal/store/pgstore"
	"github.com/devxworld/erx/internal/store/sqlitestore"
)

// uploadTimeout bounds public report uploads, which may carry a 5 MB body.
const uploadTimeout = 60 * time.Second

// openBackend connects the configured storage driver and applies its schema.
// The pool is returned for health reporting and is nil for other drivers.
func openBackend(ctx context.Context, cfg *config.Config) (store.Backend, *pgxpool.Pool, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, err
		}
		if _, err := db.NewMigrator(pool, db.Migrations()).Up(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return pgstore.New(pool), pool, nil
	case config.DriverSQLite:
		conn, err := sqlite.Connect(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if _, err := sqlite.Migrate(ctx, conn); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return sqlitestore.New(conn), nil, nil
	case config.DriverMemory:
		return store.NewMemory(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// migrate applies the schema without building the rest of the server.
func migrate(ctx context.Context, cfg *config.Config) (int, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return 0, err
		}
		defer pool.Close()
		return db.NewMigrator(pool, db.Migrations()).Up(ctx)
	case config.DriverSQLite:
		conn, err := sqlite.Connect(cfg.SQLitePath)
		if err != nil {
			return 0, err
		}
		defer conn.Close()
		return sqlite.Migrate(ctx, conn)
	default:
		return 0, nil
	}
}

func openCache(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.Cache, error) {
	if cfg.RedisURL == "" {
		return store.NewMemoryCache(), nil
	}
	rdb, err := store.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("last-known-good cache backed by redis")
	return store.NewRedisCache(rdb, 24*time.Hour), nil
}

func openBlobs(cfg *config.Config) (blobstore.BlobStore, error) {
	if cfg.StorageDriver == config.DriverMemory {
		return blobstore.NewInMemoryBlobStore(), nil
	}
	return blobstore.NewFileSystemBlobStore(cfg.BlobDir)
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{Issuer: cfg.JWTIssuer, SigningKey: cfg.SigningKey()}
}

type serverDeps struct {
	Logger  zerolog.Logger
	Cache   store.Cache
	Blobs   blobstore.BlobStore
	Pool    *pgxpool.Pool
	Advisor insight.Advisor
}

type server struct {
	echo     *echo.Echo
	identity *identity.Service
	ledger   *ledger.Service
}

// newServer wires every service over backend and mounts the HTTP routes.
func newServer(cfg *config.Config, backend store.Backend, deps serverDeps) (*server, error) {
	logger := deps.Logger
	if deps.Blobs == nil {
		deps.Blobs = blobstore.NewInMemoryBlobStore()
	}
	if deps.Advisor == nil {
		deps.Advisor = insight.New(cfg.InsightURL)
	}

	docs := store.NewResilient(backend, deps.Cache, store.Options{
		Timeout:      cfg.StoreTimeout,
		ReadAttempts: cfg.StoreReadRetries,
		Backoff:      store.DefaultOptions().Backoff,
	}, logger)
	// Units of work read through the strict view so that a stale cached
	// copy is never written back.
	writer := store.NewWriter(docs.Strict(), logger)

	auditSvc := auditlog.NewService(backend, docs, writer, logger)
	identitySvc := identity.NewService(docs, writer, auditSvc, logger)
	ledgerSvc := ledger.NewService(docs, writer, auditSvc)
	pharmacySvc := pharmacy.NewService(docs, writer, auditSvc, logger)
	rxSvc := prescription.NewService(docs, writer, auditSvc, logger)
	rxSvc.SetAllocator(pharmacySvc)
	pharmacySvc.SetRxLinker(rxSvc)
	labSvc := labreferral.NewService(docs, writer, auditSvc)

	publicLimiter, err := middleware.NewRateLimiter(cfg.PublicRateLimit)
	if err != nil {
		return nil, fmt.Errorf("public rate limit: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, uploadTimeout))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtConfig(cfg)))
	} else {
		e.Use(auth.JWTMiddleware(jwtConfig(cfg)))
	}

	// Access audit middleware
	e.Use(middleware.Audit(logger))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(cfg.StorageDriver, backend, deps.Pool))

	blobstore.NewBlobHandler(deps.Blobs).RegisterRoutes(e)

	apiV1 := e.Group("/api/v1")
	public := e.Group("/public")

	identity.NewHandler(identitySvc, jwtConfig(cfg)).RegisterRoutes(apiV1, public)
	ledger.NewHandler(ledgerSvc).RegisterRoutes(apiV1)
	pharmacy.NewHandler(pharmacySvc, pharmacy.NewCartStore(), deps.Advisor).RegisterRoutes(apiV1)
	prescription.NewHandler(rxSvc).RegisterRoutes(apiV1)
	auditlog.NewHandler(auditSvc).RegisterRoutes(apiV1)
	labreferral.NewHandler(labSvc, deps.Blobs, cfg.PublicBaseURL).
		RegisterRoutes(apiV1, public, middleware.RateLimit(publicLimiter, logger))

	return &server{echo: e, identity: identitySvc, ledger: ledgerSvc}, nil
}

// seed creates the root administrator and the default suppliers when their
// collections are empty.
func (s *server) seed(ctx context.Context, adminPassword string) (bool, bool, error) {
	admin, err := s.identity.Seed(ctx, adminPassword)
	if err != nil {
		return false, false, fmt.Errorf("seed users: %w", err)
	}
	suppliers, err := s.ledger.Seed(ctx)
	if err != nil {
		return admin, false, fmt.Errorf("seed suppliers: %w", err)
	}
	return admin, suppliers, nil
}
