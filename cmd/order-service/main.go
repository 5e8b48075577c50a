package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/jcmexdev/order-confirmation/internal/order-service/adapters/grpc/orderstore"
	"github.com/jcmexdev/order-confirmation/internal/order-service/app"
	"github.com/jcmexdev/order-confirmation/internal/order-service/storage/driver"
	"github.com/jcmexdev/order-confirmation/internal/pkg/config"
	"github.com/jcmexdev/order-confirmation/internal/pkg/interceptors"
	"github.com/jcmexdev/order-confirmation/internal/pkg/telemetry"
)

type serviceConfig struct {
	Port string `env:"PORT" envDefault:"9090"`
	// Backend is the store this process serves; the grpc driver is only
	// meaningful for clients.
	Backend string `env:"ORDER_STORE_BACKEND" envDefault:"sqlite"`
	DBPath  string `env:"ORDER_DB_PATH" envDefault:"./data/orders.db"`

	Telemetry config.Telemetry
}

func main() {
	var cfg serviceConfig
	if err := config.ParseEnv(&cfg); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := telemetry.InitLogger(cfg.Telemetry.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.SetupTracer(ctx, cfg.Telemetry.TracerConfig("order-service"))
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

	if cfg.Backend == driver.GRPC {
		slog.Error("order service cannot serve the grpc driver", "backend", cfg.Backend)
		os.Exit(1)
	}
	repo, closeRepo, err := driver.Open(driver.Config{Driver: cfg.Backend, DBPath: cfg.DBPath})
	if err != nil {
		slog.Error("failed to open order store", "backend", cfg.Backend, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := closeRepo(); err != nil {
			slog.Error("order store close error", "error", err)
		}
	}()

	addr := ":" + cfg.Port
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		slog.Error("failed to listen", "addr", addr, "error", err)
		os.Exit(1)
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.UnaryInterceptor(interceptors.TraceServerInterceptor(logger)),
	)
	orderstore.RegisterServer(grpcServer, app.NewOrderStoreServer(repo, logger))

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(orderstore.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)

	go func() {
		<-ctx.Done()
		slog.Info("shutting down order service")
		healthSrv.Shutdown()
		grpcServer.GracefulStop()
	}()

	slog.Info("order service gRPC running", "addr", addr, "backend", cfg.Backend)

	if err := grpcServer.Serve(lis); err != nil {
		slog.Error("failed to serve", "error", err)
		os.Exit(1)
	}
}
