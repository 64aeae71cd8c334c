package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	ferrors "finledger/internal/errors"
)

// Tx is a write transaction over a declared set of tables.
// It is only valid inside the function passed to RunTransaction.
type Tx struct {
	ctx   context.Context
	store *Store
	tx    *sql.Tx
	// scope is nil for migration transactions, which may touch any table
	scope   map[string]bool
	changed map[string]bool
}

// RunTransaction runs fn in a single SQLite transaction covering tables.
// Either every write fn makes commits, or none does: an error returned by fn,
// a failed statement, or a panic rolls everything back. Touching a table not
// listed fails with TABLE_NOT_IN_SCOPE. After a successful commit, listeners
// are told which tables changed.
func (s *Store) RunTransaction(ctx context.Context, tables []string, fn func(tx *Tx) error) error {
	if err := s.checkTables(tables...); err != nil {
		return err
	}
	conn, err := s.db()
	if err != nil {
		return err
	}

	scope := make(map[string]bool, len(tables))
	for _, t := range tables {
		scope[t] = true
	}

	changed, err := s.runSerialized(ctx, conn, scope, fn)
	if err != nil {
		return err
	}

	s.notify(changed)
	return nil
}

func (s *Store) runSerialized(ctx context.Context, conn *sql.DB, scope map[string]bool, fn func(tx *Tx) error) (map[string]bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sqlTx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, ferrors.New(ferrors.TransactionFailed, "failed to begin transaction", err)
	}

	tx := &Tx{ctx: ctx, store: s, tx: sqlTx, scope: scope, changed: make(map[string]bool)}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p) // Re-throw panic after rollback
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to roll back transaction",
				"error", err,
				"rollback_error", rbErr,
			)
		}
		return nil, wrapTxError(err)
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, ferrors.New(ferrors.TransactionFailed, "failed to commit transaction", err)
	}
	return tx.changed, nil
}

// wrapTxError marks err as a rolled-back transaction, keeping codes callers
// branch on (scope, validation, not found) visible through errors.Is and CodeOf.
func wrapTxError(err error) error {
	var le *ferrors.LedgerError
	if errors.As(err, &le) && le.Code == ferrors.TransactionFailed {
		return err
	}
	return ferrors.New(ferrors.TransactionFailed, "transaction rolled back", err)
}

func (t *Tx) use(table string) error {
	if t.scope == nil {
		return nil
	}
	if !t.scope[table] {
		return ferrors.Newf(ferrors.TableNotInScope, "table %q is not part of this transaction", table)
	}
	return nil
}

// Get returns the record with id, or nil when it does not exist.
func (t *Tx) Get(table, id string) (Record, error) {
	if err := t.use(table); err != nil {
		return nil, err
	}
	return getRecord(t.ctx, t.tx, table, id)
}

// Put inserts or replaces rec. A record without an id is given a new one.
func (t *Tx) Put(table string, rec Record) (string, error) {
	if err := t.use(table); err != nil {
		return "", err
	}
	return t.write(table, rec, "INSERT OR REPLACE")
}

// Add inserts rec and fails if its id already exists.
func (t *Tx) Add(table string, rec Record) (string, error) {
	if err := t.use(table); err != nil {
		return "", err
	}
	return t.write(table, rec, "INSERT")
}

func (t *Tx) write(table string, rec Record, verb string) (string, error) {
	if rec == nil {
		return "", ferrors.Newf(ferrors.ValidationFailed, "nil record for table %q", table)
	}
	id := rec.ID()
	if id == "" {
		if v, present := rec["id"]; present && v != nil && v != "" {
			return "", ferrors.Newf(ferrors.ValidationFailed, "record id in %q must be a string", table)
		}
		id = NewID()
		rec["id"] = id
	}
	doc, err := marshalDoc(rec)
	if err != nil {
		return "", err
	}
	stmt := fmt.Sprintf("%s INTO %s (id, doc) VALUES (?, ?)", verb, quoteIdent(table))
	if _, err := t.tx.ExecContext(t.ctx, stmt, id, doc); err != nil {
		return "", fmt.Errorf("failed to write %s/%s: %w", table, id, err)
	}
	t.changed[table] = true
	return id, nil
}

// Update merges fields into the existing record. A nil value removes the field.
// The id cannot be changed. Returns NOT_FOUND when the record does not exist.
func (t *Tx) Update(table, id string, fields map[string]any) (Record, error) {
	if err := t.use(table); err != nil {
		return nil, err
	}
	rec, err := getRecord(t.ctx, t.tx, table, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ferrors.Newf(ferrors.NotFound, "%s/%s not found", table, id)
	}
	if err := Merge(rec, fields); err != nil {
		return nil, err
	}
	if _, err := t.write(table, rec, "INSERT OR REPLACE"); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes the record with id. Deleting a missing record is not an error.
func (t *Tx) Delete(table, id string) (bool, error) {
	if err := t.use(table); err != nil {
		return false, err
	}
	res, err := t.tx.ExecContext(t.ctx, "DELETE FROM "+quoteIdent(table)+" WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s/%s: %w", table, id, err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		t.changed[table] = true
	}
	return n > 0, nil
}

// Clear removes every record in table.
func (t *Tx) Clear(table string) (int, error) {
	if err := t.use(table); err != nil {
		return 0, err
	}
	res, err := t.tx.ExecContext(t.ctx, "DELETE FROM "+quoteIdent(table))
	if err != nil {
		return 0, fmt.Errorf("failed to clear %s: %w", table, err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		t.changed[table] = true
	}
	return int(n), nil
}

// BulkAdd inserts every record; a duplicate id fails the whole transaction.
func (t *Tx) BulkAdd(table string, recs []Record) ([]string, error) {
	return t.bulk(table, recs, t.Add)
}

// BulkPut inserts or replaces every record.
func (t *Tx) BulkPut(table string, recs []Record) ([]string, error) {
	return t.bulk(table, recs, t.Put)
}

func (t *Tx) bulk(table string, recs []Record, one func(string, Record) (string, error)) ([]string, error) {
	ids := make([]string, 0, len(recs))
	for i, rec := range recs {
		id, err := one(table, rec)
		if err != nil {
			return ids, fmt.Errorf("%s[%d]: %w", table, i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Find runs q inside the transaction and sees its uncommitted writes.
func (t *Tx) Find(q Query) ([]Record, error) {
	if err := t.use(q.Table); err != nil {
		return nil, err
	}
	return findRecords(t.ctx, t.tx, q)
}

// Count returns how many records match q.
func (t *Tx) Count(q Query) (int, error) {
	if err := t.use(q.Table); err != nil {
		return 0, err
	}
	return countRecords(t.ctx, t.tx, q)
}

// DeleteWhere removes every record matching q's conditions. Order and limit are ignored.
func (t *Tx) DeleteWhere(q Query) (int, error) {
	if err := t.use(q.Table); err != nil {
		return 0, err
	}
	if err := q.Validate(); err != nil {
		return 0, err
	}
	where, args := whereSQL(q.Conditions())
	res, err := t.tx.ExecContext(t.ctx, "DELETE FROM "+quoteIdent(q.Table)+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", q.Table, err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		t.changed[q.Table] = true
	}
	return int(n), nil
}

// Rewrite calls fn on every record of table and stores those fn reports changed.
// A table that does not exist in the file is skipped.
func (t *Tx) Rewrite(ctx context.Context, table string, fn func(doc map[string]any) (bool, error)) (int, error) {
	if err := t.use(table); err != nil {
		return 0, err
	}
	exists, err := tableExists(ctx, t.tx, table)
	if err != nil || !exists {
		return 0, err
	}

	recs, err := findRecords(ctx, t.tx, Query{Table: table})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range recs {
		id := rec.ID()
		changed, err := fn(rec)
		if err != nil {
			return n, fmt.Errorf("rewrite %s/%s: %w", table, id, err)
		}
		if !changed {
			continue
		}
		rec["id"] = id
		if _, err := t.write(table, rec, "INSERT OR REPLACE"); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// CopyTable upserts every row of from into to. A missing source copies nothing.
func (t *Tx) CopyTable(ctx context.Context, from, to string) (int, error) {
	if err := t.use(from); err != nil {
		return 0, err
	}
	if err := t.use(to); err != nil {
		return 0, err
	}
	exists, err := tableExists(ctx, t.tx, from)
	if err != nil || !exists {
		return 0, err
	}
	res, err := t.tx.ExecContext(ctx, fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (id, doc) SELECT id, doc FROM %s", quoteIdent(to), quoteIdent(from)))
	if err != nil {
		return 0, fmt.Errorf("failed to copy %s into %s: %w", from, to, err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		t.changed[to] = true
	}
	return int(n), nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRecord(ctx context.Context, q queryer, table, id string) (Record, error) {
	var doc string
	err := q.QueryRowContext(ctx, "SELECT doc FROM "+quoteIdent(table)+" WHERE id = ?", id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", table, id, err)
	}
	return DecodeRecord([]byte(doc))
}

func findRecords(ctx context.Context, q queryer, query Query) ([]Record, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	stmt, args := buildSQL(query, false)
	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", query.Table, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		rec, err := DecodeRecord([]byte(doc))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func countRecords(ctx context.Context, q queryer, query Query) (int, error) {
	if err := query.Validate(); err != nil {
		return 0, err
	}
	stmt, args := buildSQL(query, true)
	var n int
	if err := q.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", query.Table, err)
	}
	return n, nil
}
