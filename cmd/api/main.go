package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanwahyu/maestro-analyzer/internal/bootstrap"
	"github.com/bryanwahyu/maestro-analyzer/internal/config"
	"github.com/bryanwahyu/maestro-analyzer/internal/infra/httpserver"
	"github.com/bryanwahyu/maestro-analyzer/internal/middleware"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	logger := bootstrap.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	ctx := context.Background()
	metrics := middleware.NewMetrics()

	// init storage
	st, err := bootstrap.OpenStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	// init ai client
	aiSvc, err := bootstrap.NewAI(cfg, metrics, logger)
	if err != nil {
		return fmt.Errorf("llm init: %w", err)
	}

	// init service
	svc := bootstrap.NewAnalysis(aiSvc, st, bootstrap.NewAssembler(cfg, logger), metrics, logger)

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit.PerSecond, cfg.Server.RateLimit.Burst)
	defer limiter.Close()

	// init router
	handler := httpserver.NewRouter(svc, httpserver.Options{
		APIKeys:        cfg.Server.APIKeys,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimiter:    limiter,
		Metrics:        metrics,
		Health:         st.Health,
		Logger:         logger,
	})
	if len(cfg.Server.APIKeys) == 0 {
		logger.Warn("no api keys configured, tenant auth is disabled")
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-stop:
	}
	logger.Info("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	// running analyses get a stop request and the rest of the window
	if err := svc.Close(ctx2); err != nil {
		logger.Warn("analysis runs did not finish before shutdown", "err", err)
	}
	return nil
}
