// Package driver opens the storage.Repository selected by ORDER_STORE_DRIVER.
package driver

import (
	"fmt"
	"strings"

	"github.com/jcmexdev/order-confirmation/internal/order-service/adapters/grpc/orderstore"
	"github.com/jcmexdev/order-confirmation/internal/order-service/storage"
	"github.com/jcmexdev/order-confirmation/internal/order-service/storage/memory"
	"github.com/jcmexdev/order-confirmation/internal/order-service/storage/sqlite"
)

const (
	GRPC   = "grpc"
	SQLite = "sqlite"
	Memory = "memory"
)

type Config struct {
	Driver      string `env:"ORDER_STORE_DRIVER" envDefault:"grpc"`
	ServiceAddr string `env:"ORDER_SERVICE_ADDR" envDefault:"localhost:9090"`
	DBPath      string `env:"ORDER_DB_PATH" envDefault:"./data/orders.db"`
}

// Open returns the repository and a function releasing its connection.
func Open(cfg Config) (storage.Repository, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case GRPC, "":
		conn, err := orderstore.Dial(cfg.ServiceAddr)
		if err != nil {
			return nil, nil, err
		}
		return orderstore.NewClient(conn), conn.Close, nil
	case SQLite:
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case Memory:
		return memory.NewStore(), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("driver: unknown order store driver %q", cfg.Driver)
}
