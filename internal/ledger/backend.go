package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finledger/internal/backends"
	"finledger/internal/backends/local"
	"finledger/internal/backends/memory"
	"finledger/internal/backends/mysql"
	"finledger/internal/backends/postgres"
	"finledger/internal/config"
	"finledger/internal/live"
	"finledger/internal/storage"
)

// OpenBackend creates the backend cfg.Backend.Kind selects. store is required
// for the local backend and supplies the schema registry for the others.
func OpenBackend(ctx context.Context, cfg *config.Config, store *storage.Store, logger *slog.Logger) (backends.Backend, error) {
	liveOpts := live.Options{Coalesce: time.Duration(cfg.Live.CoalesceMs) * time.Millisecond}
	registry := store.Registry()

	switch cfg.Backend.Kind {
	case config.BackendLocal, "":
		return local.New(store, logger, liveOpts), nil
	case config.BackendMemory:
		return memory.New(nil, registry, cfg.Backend.UserID, logger, liveOpts), nil
	case config.BackendPostgres:
		return postgres.New(ctx, postgres.Options{
			DSN:      cfg.Backend.DSN,
			UserID:   cfg.Backend.UserID,
			MaxConns: cfg.Backend.MaxConns,
			Registry: registry,
			Logger:   logger,
			Live:     liveOpts,
		})
	case config.BackendMySQL:
		return mysql.New(ctx, mysql.Options{
			DSN:      cfg.Backend.DSN,
			UserID:   cfg.Backend.UserID,
			MaxConns: cfg.Backend.MaxConns,
			Registry: registry,
			Logger:   logger,
			Live:     liveOpts,
		})
	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Backend.Kind)
	}
}
