package storage

import (
	"context"
)

// Get reads one committed record. Returns nil, nil when it does not exist.
func (s *Store) Get(ctx context.Context, table, id string) (Record, error) {
	if err := s.checkTables(table); err != nil {
		return nil, err
	}
	conn, err := s.db()
	if err != nil {
		return nil, err
	}
	return getRecord(ctx, conn, table, id)
}

// Find runs q against committed data.
func (s *Store) Find(ctx context.Context, q Query) ([]Record, error) {
	if err := s.checkTables(q.Table); err != nil {
		return nil, err
	}
	conn, err := s.db()
	if err != nil {
		return nil, err
	}
	return findRecords(ctx, conn, q)
}

// Count returns how many committed records match q.
func (s *Store) Count(ctx context.Context, q Query) (int, error) {
	if err := s.checkTables(q.Table); err != nil {
		return 0, err
	}
	conn, err := s.db()
	if err != nil {
		return 0, err
	}
	return countRecords(ctx, conn, q)
}

// All returns every record of table ordered by id.
func (s *Store) All(ctx context.Context, table string) ([]Record, error) {
	return s.Find(ctx, From(table))
}

// Table is a handle running each operation as its own transaction.
type Table struct {
	store *Store
	name  string
}

// Table returns a handle for name. The name is checked on first use.
func (s *Store) Table(name string) *Table {
	return &Table{store: s, name: name}
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// Get reads one record.
func (t *Table) Get(ctx context.Context, id string) (Record, error) {
	return t.store.Get(ctx, t.name, id)
}

// Find runs q with its table forced to this one.
func (t *Table) Find(ctx context.Context, q Query) ([]Record, error) {
	q.Table = t.name
	return t.store.Find(ctx, q)
}

// Count returns how many records match q.
func (t *Table) Count(ctx context.Context, q Query) (int, error) {
	q.Table = t.name
	return t.store.Count(ctx, q)
}

// Add inserts rec and returns its id.
func (t *Table) Add(ctx context.Context, rec Record) (string, error) {
	var id string
	err := t.store.RunTransaction(ctx, []string{t.name}, func(tx *Tx) error {
		var err error
		id, err = tx.Add(t.name, rec)
		return err
	})
	return id, err
}

// Put inserts or replaces rec and returns its id.
func (t *Table) Put(ctx context.Context, rec Record) (string, error) {
	var id string
	err := t.store.RunTransaction(ctx, []string{t.name}, func(tx *Tx) error {
		var err error
		id, err = tx.Put(t.name, rec)
		return err
	})
	return id, err
}

// Update merges fields into the record with id.
func (t *Table) Update(ctx context.Context, id string, fields map[string]any) (Record, error) {
	var rec Record
	err := t.store.RunTransaction(ctx, []string{t.name}, func(tx *Tx) error {
		var err error
		rec, err = tx.Update(t.name, id, fields)
		return err
	})
	return rec, err
}

// Delete removes the record with id.
func (t *Table) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := t.store.RunTransaction(ctx, []string{t.name}, func(tx *Tx) error {
		var err error
		deleted, err = tx.Delete(t.name, id)
		return err
	})
	return deleted, err
}

// Clear removes every record.
func (t *Table) Clear(ctx context.Context) (int, error) {
	var n int
	err := t.store.RunTransaction(ctx, []string{t.name}, func(tx *Tx) error {
		var err error
		n, err = tx.Clear(t.name)
		return err
	})
	return n, err
}
