// Package postgres keeps ledger documents in a PostgreSQL JSONB table.
//
// All tables share finledger_records, partitioned by user id. Queries fetch
// one user's rows of one table and filter them with storage.Apply so results
// match the embedded store exactly.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"finledger/internal/backends"
	ferrors "finledger/internal/errors"
	"finledger/internal/live"
	"finledger/internal/schema"
	"finledger/internal/slogutil"
	"finledger/internal/storage"
)

const createTable = `
	CREATE TABLE IF NOT EXISTS finledger_records (
		tbl        TEXT        NOT NULL,
		id         TEXT        NOT NULL,
		user_id    TEXT        NOT NULL,
		doc        JSONB       NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, tbl, id)
	)`

// uniqueViolation is the SQLSTATE for a duplicate key
const uniqueViolation = "23505"

// Options configure the adapter.
type Options struct {
	DSN      string
	UserID   string
	MaxConns int
	Registry *schema.Registry
	Logger   *slog.Logger
	Live     live.Options
}

// Adapter is one user's view of the shared records table.
type Adapter struct {
	pool     *pgxpool.Pool
	registry *schema.Registry
	userID   string
	hub      *live.Hub
	logger   *slog.Logger

	closeOnce sync.Once
}

// New connects, creates the records table if needed and returns the adapter.
func New(ctx context.Context, opts Options) (*Adapter, error) {
	cfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, ferrors.New(ferrors.ValidationFailed, "invalid postgres dsn", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = int32(opts.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, backends.Unavailable(backends.BackendPostgres, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, backends.Unavailable(backends.BackendPostgres, err)
	}
	if _, err := pool.Exec(ctx, createTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create %s: %w", backends.RecordsTable, err)
	}

	registry := opts.Registry
	if registry == nil {
		registry = schema.Default()
	}
	a := &Adapter{
		pool:     pool,
		registry: registry,
		userID:   opts.UserID,
		logger:   slogutil.OrDiscard(opts.Logger),
	}
	a.hub = live.NewHub(a, a.logger, opts.Live)
	a.logger.Info("Connected to PostgreSQL backend", "user", a.userID)
	return a, nil
}

// ID implements backends.Backend.
func (a *Adapter) ID() backends.BackendID {
	return backends.BackendPostgres
}

func (a *Adapter) Get(ctx context.Context, table, id string) (storage.Record, error) {
	if err := backends.CheckTable(a.registry, table); err != nil {
		return nil, err
	}
	var doc string
	err := a.pool.QueryRow(ctx,
		`SELECT doc::text FROM finledger_records WHERE user_id = $1 AND tbl = $2 AND id = $3`,
		a.userID, table, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s/%s: %w", table, id, err)
	}
	return storage.DecodeRecord([]byte(doc))
}

// Find implements live.Querier.
func (a *Adapter) Find(ctx context.Context, q storage.Query) ([]storage.Record, error) {
	if err := backends.CheckTable(a.registry, q.Table); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	rows, err := a.pool.Query(ctx,
		`SELECT doc::text FROM finledger_records WHERE user_id = $1 AND tbl = $2`,
		a.userID, q.Table)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.Table, err)
	}
	defer rows.Close()

	var recs []storage.Record
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		rec, err := storage.DecodeRecord([]byte(doc))
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return storage.Apply(q, recs), nil
}

func (a *Adapter) List(ctx context.Context, q storage.Query) ([]storage.Record, error) {
	return a.Find(ctx, q)
}

func (a *Adapter) Add(ctx context.Context, table string, rec storage.Record) (string, error) {
	doc, id, err := backends.PrepareAdd(a.registry, table, rec)
	if err != nil {
		return "", err
	}
	data, err := encode(doc)
	if err != nil {
		return "", err
	}

	_, err = a.pool.Exec(ctx,
		`INSERT INTO finledger_records (tbl, id, user_id, doc) VALUES ($1, $2, $3, $4::jsonb)`,
		table, id, a.userID, data)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", backends.Duplicate(table, id, err)
		}
		return "", fmt.Errorf("failed to insert %s/%s: %w", table, id, err)
	}

	a.hub.TablesChanged([]string{table})
	return id, nil
}

func (a *Adapter) Update(ctx context.Context, table, id string, fields map[string]any) (storage.Record, error) {
	if err := backends.CheckTable(a.registry, table); err != nil {
		return nil, err
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return nil, ferrors.New(ferrors.TransactionFailed, "failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	var doc string
	err = tx.QueryRow(ctx,
		`SELECT doc::text FROM finledger_records WHERE user_id = $1 AND tbl = $2 AND id = $3 FOR UPDATE`,
		a.userID, table, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, backends.Missing(table, id)
		}
		return nil, fmt.Errorf("failed to read %s/%s: %w", table, id, err)
	}

	rec, err := storage.DecodeRecord([]byte(doc))
	if err != nil {
		return nil, err
	}
	if err := storage.Merge(rec, fields); err != nil {
		return nil, err
	}
	data, err := encode(rec)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE finledger_records SET doc = $4::jsonb, updated_at = now() WHERE user_id = $1 AND tbl = $2 AND id = $3`,
		a.userID, table, id, data); err != nil {
		return nil, fmt.Errorf("failed to update %s/%s: %w", table, id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, ferrors.New(ferrors.TransactionFailed, "failed to commit transaction", err)
	}

	a.hub.TablesChanged([]string{table})
	return rec, nil
}

func (a *Adapter) Delete(ctx context.Context, table, id string) (bool, error) {
	if err := backends.CheckTable(a.registry, table); err != nil {
		return false, err
	}
	tag, err := a.pool.Exec(ctx,
		`DELETE FROM finledger_records WHERE user_id = $1 AND tbl = $2 AND id = $3`,
		a.userID, table, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s/%s: %w", table, id, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	a.hub.TablesChanged([]string{table})
	return true, nil
}

// Subscribe sees writes made through this adapter. Writes by other processes
// show up on the next change this adapter makes to the same table.
func (a *Adapter) Subscribe(q storage.Query, fn func(live.Result)) *live.Subscription {
	return a.hub.Subscribe(q, fn)
}

func (a *Adapter) Close() error {
	a.closeOnce.Do(func() {
		a.hub.Close()
		a.pool.Close()
	})
	return nil
}

func encode(rec storage.Record) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to encode record %q: %w", rec.ID(), err)
	}
	return string(data), nil
}
