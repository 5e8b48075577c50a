package main

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/jcmexdev/order-confirmation/internal/confirmation/bootstrap"
	"github.com/jcmexdev/order-confirmation/internal/order-service/storage/driver"
	"github.com/jcmexdev/order-confirmation/internal/pkg/config"
	"github.com/jcmexdev/order-confirmation/internal/pkg/retry"
)

var flagStoreDriver = &cli.StringFlag{
	Name:    "store-driver",
	Value:   driver.SQLite,
	Usage:   "Order store driver: grpc, sqlite or memory",
	EnvVars: []string{"ORDER_STORE_DRIVER"},
}

var flagServiceAddr = &cli.StringFlag{
	Name:    "order-service-addr",
	Value:   "localhost:9090",
	Usage:   "Order service gRPC address (grpc driver)",
	EnvVars: []string{"ORDER_SERVICE_ADDR"},
}

var flagDBPath = &cli.StringFlag{
	Name:    "order-db",
	Value:   "./data/orders.db",
	Usage:   "Path to the orders SQLite database (sqlite driver)",
	EnvVars: []string{"ORDER_DB_PATH"},
}

var flagJournalPath = &cli.StringFlag{
	Name:    "journal-db",
	Usage:   "Path to the confirmation journal SQLite database; empty disables it",
	EnvVars: []string{"JOURNAL_DB_PATH"},
}

var flagRedisAddr = &cli.StringFlag{
	Name:    "redis-addr",
	Usage:   "Redis address for the order snapshot cache; empty disables it",
	EnvVars: []string{"REDIS_ADDR"},
}

var flagMaxAttempts = &cli.IntFlag{
	Name:    "max-attempts",
	Value:   retry.DefaultMaxAttempts,
	Usage:   "Attempts per store call",
	EnvVars: []string{"CONFIRM_MAX_ATTEMPTS"},
}

var flagBaseDelay = &cli.DurationFlag{
	Name:    "retry-base-delay",
	Value:   retry.DefaultBaseDelay,
	EnvVars: []string{"CONFIRM_RETRY_BASE_DELAY"},
}

var flagMaxDelay = &cli.DurationFlag{
	Name:    "retry-max-delay",
	Value:   retry.DefaultMaxDelay,
	EnvVars: []string{"CONFIRM_RETRY_MAX_DELAY"},
}

var flagMaxConflicts = &cli.IntFlag{
	Name:    "max-conflicts",
	Value:   5,
	Usage:   "Version conflicts tolerated before giving up",
	EnvVars: []string{"CONFIRM_MAX_CONFLICTS"},
}

var flagLogLevel = &cli.StringFlag{
	Name:    "log-level",
	Value:   "warn",
	EnvVars: []string{"LOG_LEVEL"},
}

var flagOrderID = &cli.StringFlag{
	Name:     "order-id",
	Aliases:  []string{"o"},
	Required: true,
}

var globalFlags = []cli.Flag{
	flagStoreDriver,
	flagServiceAddr,
	flagDBPath,
	flagJournalPath,
	flagRedisAddr,
	flagMaxAttempts,
	flagBaseDelay,
	flagMaxDelay,
	flagMaxConflicts,
	flagLogLevel,
}

func stackConfig(cCtx *cli.Context) bootstrap.Config {
	return bootstrap.Config{
		Store: driver.Config{
			Driver:      cCtx.String(flagStoreDriver.Name),
			ServiceAddr: cCtx.String(flagServiceAddr.Name),
			DBPath:      cCtx.String(flagDBPath.Name),
		},
		Retry: config.Retry{
			MaxAttempts:  cCtx.Int(flagMaxAttempts.Name),
			BaseDelay:    cCtx.Duration(flagBaseDelay.Name),
			MaxDelay:     cCtx.Duration(flagMaxDelay.Name),
			MaxConflicts: cCtx.Int(flagMaxConflicts.Name),
		},
		JournalPath: cCtx.String(flagJournalPath.Name),
		RedisAddr:   cCtx.String(flagRedisAddr.Name),
		CacheTTL:    10 * time.Minute,
	}
}
