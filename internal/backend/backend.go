// Package backend selects and wires the persistence backend the
// binaries run against.
package backend

import (
	"fmt"
	"log/slog"

	"github.com/hiwllc/tracker/internal/config"
	"github.com/hiwllc/tracker/internal/services"
	"github.com/hiwllc/tracker/internal/storage"
	"github.com/hiwllc/tracker/internal/storage/memory"
)

// Type represents the persistence backend
type Type string

const (
	SQLiteBackend Type = "sqlite"
	MemoryBackend Type = "memory"
)

// String implements fmt.Stringer
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is valid
func (t Type) IsValid() bool {
	switch t {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Stores bundles the three persistence ports one backend serves plus
// its cleanup hook.
type Stores struct {
	Transactions services.TransactionStore
	Categories   services.CategoryStore
	Balances     services.BalanceStore
	Cleanup      CleanupFunc
}

// Config holds configuration for backend creation
type Config struct {
	Type         Type
	SQLiteDBPath string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := Type(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:         backendType,
		SQLiteDBPath: appConfig.SQLiteDBPath,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Type == SQLiteBackend && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite backend")
	}
	return nil
}

// Factory creates store bundles based on configuration
type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// CreateBackend opens the configured backend and returns its stores.
func (f *Factory) CreateBackend(cfg Config) (*Stores, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(cfg)
	case MemoryBackend:
		return f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
	}
}

func (f *Factory) createSQLiteBackend(cfg Config) (*Stores, error) {
	store, err := storage.NewSQLiteStore(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize SQLite store: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)

	return &Stores{
		Transactions: store,
		Categories:   store,
		Balances:     store,
		Cleanup:      store.Close,
	}, nil
}

func (f *Factory) createMemoryBackend() (*Stores, error) {
	store := memory.NewWithSystemCategories()

	f.logger.Info("Initialized memory backend")

	return &Stores{
		Transactions: store,
		Categories:   store,
		Balances:     store,
	}, nil
}
