package core

import (
	"context"
	"fmt"

	"fedaidash/internal/infra/persistence/memory"
	"fedaidash/internal/infra/persistence/postgres"
	"fedaidash/internal/infra/persistence/sqlite"
	"fedaidash/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

var (
	_ Refresher = (*sqlite.Store)(nil)
	_ Refresher = (*postgres.Store)(nil)
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// Refresher is implemented by stores that share their database with other
// processes. Refresh reloads state committed elsewhere and reports whether
// anything changed.
type Refresher interface {
	Refresh(ctx context.Context) (bool, error)
}

// StorageConfig selects and configures a backend. An empty driver means sqlite.
type StorageConfig struct {
	Driver      StorageDriver `yaml:"driver" validate:"omitempty,oneof=memory sqlite postgres"`
	SQLitePath  string        `yaml:"sqlite_path"`
	PostgresDSN string        `yaml:"postgres_dsn"`
}

// OpenPersistentStore opens the configured backend. The returned close
// function releases database handles and is safe to call for memory stores.
func OpenPersistentStore(ctx context.Context, cfg StorageConfig, engine *RulesEngine) (PersistentStore, func() error, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	switch driver := cfg.Driver; driver {
	case StorageMemory:
		return memory.NewStore(engine), func() error { return nil }, nil
	case "", StorageSQLite:
		store, err := sqlite.NewStore(cfg.SQLitePath, engine)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, store.Close, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN, engine)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
