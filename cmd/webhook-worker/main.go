package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	restate "github.com/restatedev/sdk-go"
	"github.com/restatedev/sdk-go/server"

	"github.com/jcmexdev/order-confirmation/internal/confirmation/bootstrap"
	"github.com/jcmexdev/order-confirmation/internal/pkg/config"
	"github.com/jcmexdev/order-confirmation/internal/pkg/telemetry"
	"github.com/jcmexdev/order-confirmation/internal/webhook"
)

type workerConfig struct {
	Addr string `env:"RESTATE_LISTEN_ADDR" envDefault:":9080"`

	Confirmation bootstrap.Config
	Telemetry    config.Telemetry
}

func main() {
	var cfg workerConfig
	if err := config.ParseEnv(&cfg); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := telemetry.InitLogger(cfg.Telemetry.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupTracer(ctx, cfg.Telemetry.TracerConfig("webhook-worker"))
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

	srv := server.NewRestate().
		Bind(restate.Reflect(webhook.NewPaymentWebhook(stack.Engine)))

	slog.Info("payment webhook worker running", "addr", cfg.Addr, "store_driver", cfg.Confirmation.Store.Driver)

	if err := srv.Start(ctx, cfg.Addr); err != nil && ctx.Err() == nil {
		slog.Error("restate server failed", "error", err)
		os.Exit(1)
	}
}
