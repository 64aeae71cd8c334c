// Package mysql keeps ledger documents in a MySQL (or MariaDB) JSON table.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	driver "github.com/go-sql-driver/mysql"

	"finledger/internal/backends"
	ferrors "finledger/internal/errors"
	"finledger/internal/live"
	"finledger/internal/schema"
	"finledger/internal/slogutil"
	"finledger/internal/storage"
)

const createTable = `
	CREATE TABLE IF NOT EXISTS finledger_records (
		tbl        VARCHAR(64)  NOT NULL,
		id         VARCHAR(64)  NOT NULL,
		user_id    VARCHAR(128) NOT NULL,
		doc        JSON         NOT NULL,
		updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
		PRIMARY KEY (user_id, tbl, id)
	)`

// duplicateEntry is ER_DUP_ENTRY
const duplicateEntry = 1062

// Options configure the adapter.
type Options struct {
	// DSN in go-sql-driver form, e.g. user:pass@tcp(host:3306)/finledger
	DSN      string
	UserID   string
	MaxConns int
	Registry *schema.Registry
	Logger   *slog.Logger
	Live     live.Options
}

// Adapter is one user's view of the shared records table.
type Adapter struct {
	db       *sql.DB
	registry *schema.Registry
	userID   string
	hub      *live.Hub
	logger   *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// New opens the connection pool, creates the records table if needed and
// returns the adapter.
func New(ctx context.Context, opts Options) (*Adapter, error) {
	cfg, err := driver.ParseDSN(opts.DSN)
	if err != nil {
		return nil, ferrors.New(ferrors.ValidationFailed, "invalid mysql dsn", err)
	}
	cfg.ParseTime = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open DB connection: %w", err)
	}
	if opts.MaxConns > 0 {
		db.SetMaxOpenConns(opts.MaxConns)
		db.SetMaxIdleConns(opts.MaxConns)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, backends.Unavailable(backends.BackendMySQL, err)
	}
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create %s: %w", backends.RecordsTable, err)
	}

	registry := opts.Registry
	if registry == nil {
		registry = schema.Default()
	}
	a := &Adapter{
		db:       db,
		registry: registry,
		userID:   opts.UserID,
		logger:   slogutil.OrDiscard(opts.Logger),
	}
	a.hub = live.NewHub(a, a.logger, opts.Live)
	a.logger.Info("Connected to MySQL backend", "addr", cfg.Addr, "user", a.userID)
	return a, nil
}

// ID implements backends.Backend.
func (a *Adapter) ID() backends.BackendID {
	return backends.BackendMySQL
}

func (a *Adapter) Get(ctx context.Context, table, id string) (storage.Record, error) {
	if err := backends.CheckTable(a.registry, table); err != nil {
		return nil, err
	}
	var doc []byte
	err := a.db.QueryRowContext(ctx,
		`SELECT doc FROM finledger_records WHERE user_id = ? AND tbl = ? AND id = ?`,
		a.userID, table, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s/%s: %w", table, id, err)
	}
	return storage.DecodeRecord(doc)
}

// Find implements live.Querier.
func (a *Adapter) Find(ctx context.Context, q storage.Query) ([]storage.Record, error) {
	if err := backends.CheckTable(a.registry, q.Table); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT doc FROM finledger_records WHERE user_id = ? AND tbl = ?`,
		a.userID, q.Table)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.Table, err)
	}
	defer rows.Close()

	var recs []storage.Record
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		rec, err := storage.DecodeRecord(doc)
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
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode record %q: %w", id, err)
	}

	_, err = a.db.ExecContext(ctx,
		`INSERT INTO finledger_records (tbl, id, user_id, doc) VALUES (?, ?, ?, ?)`,
		table, id, a.userID, string(data))
	if err != nil {
		var myErr *driver.MySQLError
		if errors.As(err, &myErr) && myErr.Number == duplicateEntry {
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

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, ferrors.New(ferrors.TransactionFailed, "failed to begin transaction", err)
	}

	rec, err := a.updateTx(ctx, tx, table, id, fields)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, ferrors.New(ferrors.TransactionFailed, "failed to commit transaction", err)
	}

	a.hub.TablesChanged([]string{table})
	return rec, nil
}

func (a *Adapter) updateTx(ctx context.Context, tx *sql.Tx, table, id string, fields map[string]any) (storage.Record, error) {
	var doc []byte
	err := tx.QueryRowContext(ctx,
		`SELECT doc FROM finledger_records WHERE user_id = ? AND tbl = ? AND id = ? FOR UPDATE`,
		a.userID, table, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, backends.Missing(table, id)
		}
		return nil, fmt.Errorf("failed to read %s/%s: %w", table, id, err)
	}

	rec, err := storage.DecodeRecord(doc)
	if err != nil {
		return nil, err
	}
	if err := storage.Merge(rec, fields); err != nil {
		return nil, err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record %q: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE finledger_records SET doc = ? WHERE user_id = ? AND tbl = ? AND id = ?`,
		string(data), a.userID, table, id); err != nil {
		return nil, fmt.Errorf("failed to update %s/%s: %w", table, id, err)
	}
	return rec, nil
}

func (a *Adapter) Delete(ctx context.Context, table, id string) (bool, error) {
	if err := backends.CheckTable(a.registry, table); err != nil {
		return false, err
	}
	res, err := a.db.ExecContext(ctx,
		`DELETE FROM finledger_records WHERE user_id = ? AND tbl = ? AND id = ?`,
		a.userID, table, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s/%s: %w", table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	a.hub.TablesChanged([]string{table})
	return true, nil
}

// Subscribe sees writes made through this adapter only.
func (a *Adapter) Subscribe(q storage.Query, fn func(live.Result)) *live.Subscription {
	return a.hub.Subscribe(q, fn)
}

func (a *Adapter) Close() error {
	a.closeOnce.Do(func() {
		a.hub.Close()
		a.closeErr = a.db.Close()
	})
	return a.closeErr
}
