// Package bootstrap assembles a confirmation Engine from environment
// configuration: the order store driver, the optional Redis snapshot cache and
// the optional SQLite journal.
package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jcmexdev/order-confirmation/internal/confirmation"
	journalsqlite "github.com/jcmexdev/order-confirmation/internal/confirmation/journal/sqlite"
	"github.com/jcmexdev/order-confirmation/internal/order-service/storage"
	"github.com/jcmexdev/order-confirmation/internal/order-service/storage/driver"
	"github.com/jcmexdev/order-confirmation/internal/pkg/cache"
	"github.com/jcmexdev/order-confirmation/internal/pkg/config"
)

type Config struct {
	Store driver.Config
	Retry config.Retry

	// JournalPath is empty to disable the journal.
	JournalPath string `env:"JOURNAL_DB_PATH"`
	// RedisAddr is empty to disable the snapshot cache.
	RedisAddr string        `env:"REDIS_ADDR"`
	CacheTTL  time.Duration `env:"ORDER_CACHE_TTL" envDefault:"10m"`
}

func (c Config) EngineConfig() confirmation.Config {
	policy := c.Retry.Policy()
	return confirmation.Config{
		Read:         policy,
		Write:        policy,
		MaxConflicts: c.Retry.MaxConflicts,
	}
}

// Stack is an assembled engine plus the resources it holds open.
type Stack struct {
	Engine  *confirmation.Engine
	Store   storage.Repository
	Journal *journalsqlite.Repository

	closers []func() error
}

// Close releases the journal and the store connection.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

func New(cfg Config, logger *slog.Logger) (*Stack, error) {
	if logger == nil {
		logger = slog.Default()
	}

	repo, closeRepo, err := driver.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open order store: %w", err)
	}
	s := &Stack{Store: repo, closers: []func() error{closeRepo}}

	var store storage.OrderStore = repo
	if cfg.RedisAddr != "" {
		store = confirmation.NewCachedStore(repo, cache.NewRedisCache(cfg.RedisAddr, "confirmation"), cfg.CacheTTL, logger)
		logger.Info("order snapshot cache enabled", "redis_addr", cfg.RedisAddr, "ttl", cfg.CacheTTL)
	}

	opts := []confirmation.Option{confirmation.WithLogger(logger)}
	if cfg.JournalPath != "" {
		j, err := journalsqlite.Open(cfg.JournalPath)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("bootstrap: open journal: %w", err)
		}
		s.Journal = j
		s.closers = append(s.closers, j.Close)
		opts = append(opts, confirmation.WithJournal(j))
		logger.Info("confirmation journal enabled", "path", cfg.JournalPath)
	}

	s.Engine = confirmation.NewEngine(store, cfg.EngineConfig(), opts...)
	return s, nil
}
