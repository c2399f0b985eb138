package app

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/clicklone/clicklone/internal/app/storage"
	"github.com/clicklone/clicklone/internal/app/storage/memory"
	"github.com/clicklone/clicklone/internal/app/storage/postgres"
	supabasestore "github.com/clicklone/clicklone/internal/app/storage/supabase"
	"github.com/clicklone/clicklone/internal/config"
	sb "github.com/clicklone/clicklone/internal/supabase"
)

// Backend is the storage selected by STORAGE_DRIVER.
type Backend struct {
	Store storage.Store
	// DB is set for the postgres driver.
	DB *sqlx.DB
	// Supabase is set for the supabase driver.
	Supabase *sb.Client
}

// MemoryBackend returns a process-local backend.
func MemoryBackend() *Backend {
	return &Backend{Store: memory.New()}
}

// OpenBackend connects the configured storage driver.
func OpenBackend(ctx context.Context, cfg *config.Config) (*Backend, error) {
	switch cfg.StorageDriver {
	case config.DriverMemory, "":
		return MemoryBackend(), nil
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &Backend{Store: postgres.New(db), DB: db}, nil
	case config.DriverSupabase:
		retry := sb.DefaultRetryConfig()
		client, err := sb.New(sb.Config{
			URL:    cfg.SupabaseURL,
			APIKey: cfg.SupabaseServiceKey,
			Retry:  &retry,
		})
		if err != nil {
			return nil, fmt.Errorf("configure supabase: %w", err)
		}
		return &Backend{Store: supabasestore.New(client), Supabase: client}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// Close releases database connections.
func (b *Backend) Close() error {
	if b == nil || b.DB == nil {
		return nil
	}
	return b.DB.Close()
}
