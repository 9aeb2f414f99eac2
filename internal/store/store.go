// Package store persists the ledger balance across restarts.
package store

import (
	"context"
	"fmt"

	"github.com/smsledger/smsledger/internal/config"
	"github.com/smsledger/smsledger/internal/ledger"
)

// Store loads and persists a balance. Every Store is a ledger.Persister.
type Store interface {
	ledger.Persister
	Load(ctx context.Context) (ledger.Balance, error)
	Close() error
}

// Backend names accepted in configuration.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Open returns the Store selected by cfg.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case BackendFile, "":
		return NewFileStore(cfg.Path), nil
	case BackendSQLite:
		return NewSQLiteStore(cfg.Path)
	case BackendRedis:
		return NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Key)
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}
