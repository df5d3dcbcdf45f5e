// siteopt server
//
// Entry point: wires all components together and manages graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/mtiwari1/siteopt/internal/archive"
	"github.com/mtiwari1/siteopt/internal/artifact"
	"github.com/mtiwari1/siteopt/internal/cache"
	"github.com/mtiwari1/siteopt/internal/config"
	"github.com/mtiwari1/siteopt/internal/grpcserver"
	"github.com/mtiwari1/siteopt/internal/ingest"
	"github.com/mtiwari1/siteopt/internal/metrics"
	"github.com/mtiwari1/siteopt/internal/optimizer"
	"github.com/mtiwari1/siteopt/internal/pipeline"
	"github.com/mtiwari1/siteopt/internal/repository"
	"github.com/mtiwari1/siteopt/internal/restapi"
	"github.com/mtiwari1/siteopt/internal/transformer"
	pb "github.com/mtiwari1/siteopt/proto"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// ── Structured logger ──
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	logger.Info("starting siteopt")

	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		logger.Error("create temp dir", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()
	m := metrics.New()

	// ── Transformer: one shared handle, cached ──
	svc, closeCache, err := newTransformer(ctx, cfg, logger, m)
	if err != nil {
		logger.Error("init transformer", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeCache()

	// ── Run history ──
	repo, closeDB, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("init repository", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeDB()

	// ── Archive publication (optional) ──
	var publisher artifact.Publisher
	if cfg.S3.Enabled() {
		store, err := artifact.NewS3Store(cfg.S3)
		if err != nil {
			logger.Error("init artifact store", slog.String("error", err.Error()))
			os.Exit(1)
		}
		publisher = store
		logger.Info("archive publication enabled", slog.String("bucket", cfg.S3.Bucket))
	}

	// ── Pipeline ──
	dispatcher := optimizer.NewDispatcher(svc, optimizer.NewMinifier(), logger)
	pipe := pipeline.New(dispatcher, svc, pipeline.Config{
		Workers: cfg.Workers,
		Limits:  archive.Limits{MaxBytes: cfg.MaxExtractBytes},
		TempDir: cfg.TempDir,
	}, logger, m)
	fetcher := ingest.NewFetcher(ingest.FetcherConfig{
		BaseURL:  cfg.SourceBaseURL,
		Branch:   cfg.SourceBranch,
		MaxBytes: cfg.MaxUploadBytes,
	}, logger)

	// ── gRPC server ──
	grpcSrv := grpc.NewServer()
	grpcImpl := grpcserver.NewServer(repo, logger)
	pb.RegisterRunServiceServer(grpcSrv, grpcImpl)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Error("listen gRPC", slog.String("error", err.Error()))
		os.Exit(1)
	}

	go func() {
		logger.Info("gRPC server listening", slog.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("gRPC serve", slog.String("error", err.Error()))
		}
	}()

	// ── REST API ──
	handler := restapi.NewHandler(restapi.Deps{
		Pipeline:       pipe,
		Transformer:    svc,
		Runs:           grpcImpl,
		Repo:           repo,
		Fetcher:        fetcher,
		Publisher:      publisher,
		Metrics:        m,
		MaxUploadBytes: cfg.MaxUploadBytes,
		TempDir:        cfg.TempDir,
		Logger:         logger,
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", slog.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP serve", slog.String("error", err.Error()))
		}
	}()

	// ── Graceful shutdown (SIGINT / SIGTERM) ──
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// 1. Stop accepting new HTTP requests; in-flight runs finish or are cancelled
	// with their request context.
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()

	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown", slog.String("error", err.Error()))
	}
	logger.Info("HTTP server stopped")

	// 2. Stop gRPC server gracefully.
	grpcSrv.GracefulStop()
	logger.Info("gRPC server stopped")

	logger.Info("siteopt shutdown complete")
}

// newTransformer builds the process-wide provider handle behind the result cache.
func newTransformer(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (transformer.Service, func(), error) {
	base, err := transformer.New(ctx, transformer.GeminiConfig{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		Timeout: cfg.TransformerTimeout,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	closer := func() {}
	var backend cache.Backend
	if cfg.RedisAddr != "" {
		store := cache.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			logger.Warn("redis unreachable, using in-process cache only", slog.String("error", err.Error()))
			store.Close()
		} else {
			backend = store
			closer = func() { store.Close() }
			logger.Info("redis cache connected", slog.String("addr", cfg.RedisAddr))
		}
	}

	c, err := cache.New(cfg.CacheEntries, cfg.CacheTTL, backend, logger)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return transformer.NewCached(base, c, m), closer, nil
}

// openRepository connects the configured SQL store, or keeps history in memory when
// no DSN is set.
func openRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Repository, func(), error) {
	if cfg.DBDSN == "" {
		logger.Warn("DB_DSN not set, run history is kept in memory")
		return repository.NewMemoryRepo(), func() {}, nil
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := openDB(initCtx, cfg)
	if err != nil {
		return nil, nil, err
	}
	var repo *repository.SQLRepo
	switch cfg.DBDriver {
	case "postgres":
		repo, err = repository.NewPostgresRepo(initCtx, db)
	default:
		repo, err = repository.NewMySQLRepo(initCtx, db)
	}
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	logger.Info("database connected", slog.String("driver", cfg.DBDriver))
	return repo, func() {
		repo.Close()
		db.Close()
	}, nil
}

// openDB opens and pings the pool for the configured driver.
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.DBDriver {
	case "postgres":
		db, err = repository.OpenPostgres(ctx, cfg.DBDSN)
	default:
		db, err = repository.OpenMySQL(cfg.DBDSN)
	}
	if err != nil {
		return nil, err
	}

	// Connection pool tuning.
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
