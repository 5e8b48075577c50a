package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jcmexdev/order-confirmation/internal/confirmation-gateway/app"
	"github.com/jcmexdev/order-confirmation/internal/confirmation-gateway/infra/httpx"
	"github.com/jcmexdev/order-confirmation/internal/confirmation/bootstrap"
	"github.com/jcmexdev/order-confirmation/internal/pkg/config"
	"github.com/jcmexdev/order-confirmation/internal/pkg/telemetry"
)

type gatewayConfig struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	ViewTTL         time.Duration `env:"VIEW_TTL" envDefault:"15m"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	Confirmation bootstrap.Config
	Telemetry    config.Telemetry
}

func main() {
	var cfg gatewayConfig
	if err := config.ParseEnv(&cfg); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := telemetry.InitLogger(cfg.Telemetry.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupTracer(ctx, cfg.Telemetry.TracerConfig("confirmation-gateway"))
	if err != nil {
		slog.Error("failed to initialise tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	stack, err := bootstrap.New(cfg.Confirmation, logger)
	if err != nil {
		slog.Error("failed to build confirmation engine", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := stack.Close(); err != nil {
			slog.Error("confirmation stack close error", "error", err)
		}
	}()

	// Views outlive the request that opened them but not the process.
	viewsCtx, stopViews := context.WithCancel(context.Background())
	defer stopViews()
	views := app.NewRegistry(viewsCtx, stack.Engine, app.RegistryConfig{
		TTL:         cfg.ViewTTL,
		MaxAttempts: cfg.Confirmation.Retry.MaxAttempts,
		Logger:      logger,
	})
	go views.Run(viewsCtx)

	health := httpx.NewHealth()
	handler := httpx.NewHandler(views, stack.Engine, logger)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.NewRouter(handler, health),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("confirmation gateway running", "addr", cfg.HTTPAddr, "store_driver", cfg.Confirmation.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("http server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down confirmation gateway", "open_views", views.Len())
	health.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
	stopViews()
	views.Close()
}
