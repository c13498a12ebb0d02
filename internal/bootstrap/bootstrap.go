// Package bootstrap wires config into the concrete adapters shared by the
// api server and the cli.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	appai "github.com/bryanwahyu/maestro-analyzer/internal/application/ai"
	appanalysis "github.com/bryanwahyu/maestro-analyzer/internal/application/analysis"
	"github.com/bryanwahyu/maestro-analyzer/internal/config"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/ai"
	domain "github.com/bryanwahyu/maestro-analyzer/internal/domain/analysis"
	"github.com/bryanwahyu/maestro-analyzer/internal/domain/runerrors"
	"github.com/bryanwahyu/maestro-analyzer/internal/infra/ai/openai"
	"github.com/bryanwahyu/maestro-analyzer/internal/infra/db/badger"
	mysqlp "github.com/bryanwahyu/maestro-analyzer/internal/infra/db/mysql"
	"github.com/bryanwahyu/maestro-analyzer/internal/infra/db/postgres"
	"github.com/bryanwahyu/maestro-analyzer/internal/infra/report"
	"github.com/bryanwahyu/maestro-analyzer/internal/infra/storage"
	"github.com/bryanwahyu/maestro-analyzer/internal/middleware"
)

// NewLogger builds the process logger from log.level and log.format.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Log.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// NewAI builds the provider client wrapped with retries and metrics.
func NewAI(cfg *config.Config, metrics appai.Metrics, logger *slog.Logger) (*appai.Service, error) {
	client, err := openai.NewClient(openai.Config{
		Provider:     cfg.LLM.Provider,
		APIKey:       cfg.LLM.APIKey,
		Model:        cfg.LLM.Model,
		BaseURL:      cfg.LLM.BaseURL,
		OllamaServer: cfg.LLM.OllamaServer,
		Timeout:      cfg.LLM.Timeout,
		MaxTokens:    cfg.LLM.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	if cfg.LLM.APIKey == "" && cfg.LLM.Provider != openai.ProviderOllama {
		logger.Warn("no llm api key configured, calls will fail", "provider", cfg.LLM.Provider)
	}
	logger.Info("llm client ready", "provider", cfg.LLM.Provider, "model", client.Model)
	return appai.NewService(client,
		appai.WithRetryConfig(cfg.Retry),
		appai.WithMetrics(metrics),
		appai.WithLogger(logger),
	), nil
}

// Storage holds the optional persistence adapters.
type Storage struct {
	Runs    domain.Repository
	Errors  runerrors.Repository
	Reports domain.ReportStore
	Health  map[string]middleware.HealthChecker

	closers []func() error
}

// Close releases every opened backend.
func (s *Storage) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// OpenStorage connects the configured run store and report bucket.
func OpenStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Storage, error) {
	st := &Storage{Health: map[string]middleware.HealthChecker{}}
	if err := st.openRuns(ctx, cfg, logger); err != nil {
		_ = st.Close()
		return nil, err
	}
	if cfg.Minio.Enabled {
		ms, err := storage.New(ctx, storage.Config{
			Endpoint:   cfg.Minio.Endpoint,
			Region:     cfg.Minio.Region,
			Bucket:     cfg.Minio.BucketName,
			AccessKey:  cfg.Minio.AccessKey,
			SecretKey:  cfg.Minio.SecretKey,
			UseSSL:     cfg.Minio.UseSSL,
			PresignTTL: cfg.Minio.PresignTTL,
		})
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("minio init: %w", err)
		}
		st.Reports = ms
		st.Health["minio"] = middleware.CheckerFunc(ms.Ping)
	}
	return st, nil
}

func (st *Storage) openRuns(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	switch cfg.Storage.Driver {
	case "none":
		logger.Info("run storage disabled, runs live in memory only")
		return nil
	case "badger":
		store, err := badger.Open(badger.Config{
			Path:       cfg.Badger.Path,
			InMemory:   cfg.Badger.InMemory,
			SyncWrites: cfg.Badger.SyncWrites,
			Logger:     logger,
			GCInterval: cfg.Badger.GCInterval,
		})
		if err != nil {
			return fmt.Errorf("badger open: %w", err)
		}
		st.closers = append(st.closers, store.Close)
		st.Runs, st.Errors = store, store.Errors()
		st.Health["badger"] = middleware.CheckerFunc(store.Ping)
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN(), mysqlp.Pool{
			MaxOpen:     cfg.Database.MaxOpen,
			MaxIdle:     cfg.Database.MaxIdle,
			MaxLifetime: cfg.Database.MaxLifetime,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		if err := st.sql(ctx, db, mysqlp.Migrate); err != nil {
			return err
		}
		st.Runs, st.Errors = mysqlp.NewRunRepository(db), mysqlp.NewRunErrorRepository(db)
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN(), cfg.Database.MaxOpen)
		if err != nil {
			return fmt.Errorf("postgres connect: %w", err)
		}
		if err := st.sql(ctx, db, postgres.Migrate); err != nil {
			return err
		}
		st.Runs, st.Errors = postgres.NewRunRepository(db), postgres.NewRunErrorRepository(db)
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	logger.Info("run storage ready", "driver", cfg.Storage.Driver)
	return nil
}

func (st *Storage) sql(ctx context.Context, db *sql.DB, migrate func(context.Context, *sql.DB) error) error {
	st.closers = append(st.closers, db.Close)
	st.Health["database"] = &middleware.DatabaseHealthChecker{DB: db}
	if err := migrate(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// NewAssembler builds the PDF assembler with the configured author.
func NewAssembler(cfg *config.Config, logger *slog.Logger) *report.Assembler {
	a := report.NewAssembler(logger)
	if cfg.Report.Author != "" {
		a.Author = cfg.Report.Author
	}
	return a
}

// NewAnalysis wires the analysis service on top of the adapters.
func NewAnalysis(client ai.Client, st *Storage, assembler appanalysis.ReportAssembler, metrics appanalysis.Metrics, logger *slog.Logger) *appanalysis.Service {
	svc := &appanalysis.Service{
		AI:        client,
		Assembler: assembler,
		Metrics:   metrics,
		Logger:    logger,
	}
	if st != nil {
		svc.Repo, svc.Errors, svc.Reports = st.Runs, st.Errors, st.Reports
	}
	return svc
}
