package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	ferrors "finledger/internal/errors"
	"finledger/internal/schema"
)

// migrate brings conn to the registry's latest version, one transaction per version.
func (s *Store) migrate(ctx context.Context, conn *sql.DB) error {
	if _, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`); err != nil {
		return upgradeError("failed to create schema_version table", err)
	}

	current, err := readSchemaVersion(ctx, conn)
	if err != nil {
		return upgradeError("failed to read schema version", err)
	}

	latest := s.registry.Latest().Number
	if current > latest {
		return ferrors.Newf(ferrors.SchemaUpgradeFailed,
			"store is at schema version %d but this build only knows up to %d", current, latest).
			WithDetails(map[string]int{"stored": current, "latest": latest})
	}
	if current == latest {
		s.logger.Debug("Store schema is up to date", "version", current)
		return nil
	}

	s.logger.Info("Running store migrations",
		"from_version", current,
		"to_version", latest,
	)

	for _, v := range s.registry.Versions() {
		if v.Number <= current {
			continue
		}
		if err := s.applyStep(ctx, conn, v, nil); err != nil {
			return err
		}
	}
	return nil
}

// ApplyVersion re-runs the migration step of version n against the open store.
// Every step is idempotent, so applying an already-applied version changes nothing.
func (s *Store) ApplyVersion(ctx context.Context, n int) error {
	var target *schema.Version
	for _, v := range s.registry.Versions() {
		if v.Number == n {
			v := v
			target = &v
			break
		}
	}
	if target == nil {
		return ferrors.Newf(ferrors.SchemaUpgradeFailed, "schema version %d is not declared", n)
	}

	conn, err := s.db()
	if err != nil {
		return err
	}

	if err := s.reapply(ctx, conn, *target); err != nil {
		return err
	}

	changed := make(map[string]bool, len(target.Tables))
	for _, t := range target.Tables {
		if _, ok := s.registry.Table(t.Name); ok {
			changed[t.Name] = true
		}
	}
	s.notify(changed)
	return nil
}

// SchemaVersion returns the version recorded in the store.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	conn, err := s.db()
	if err != nil {
		return 0, err
	}
	return readSchemaVersion(ctx, conn)
}

// reapply runs step v without resurrecting tables that later applied versions dropped.
func (s *Store) reapply(ctx context.Context, conn *sql.DB, v schema.Version) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := readSchemaVersion(ctx, conn)
	if err != nil {
		return upgradeError("failed to read schema version", err)
	}
	skip := make(map[string]bool)
	for _, later := range s.registry.Versions() {
		if later.Number > v.Number && later.Number <= current {
			for _, d := range later.Dropped {
				skip[d] = true
			}
		}
	}
	return s.applyStep(ctx, conn, v, skip)
}

func (s *Store) applyStep(ctx context.Context, conn *sql.DB, v schema.Version, skip map[string]bool) error {
	sqlTx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return upgradeError(fmt.Sprintf("failed to begin migration to version %d", v.Number), err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	fail := func(msg string, cause error) error {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to roll back migration",
				"version", v.Number,
				"error", cause,
				"rollback_error", rbErr,
			)
		}
		return upgradeError(fmt.Sprintf("version %d: %s", v.Number, msg), cause)
	}

	for _, t := range v.Tables {
		if skip[t.Name] {
			continue
		}
		for _, stmt := range tableDDL(t) {
			if _, err := sqlTx.ExecContext(ctx, stmt); err != nil {
				return fail("failed to create table "+t.Name, err)
			}
		}
	}

	if v.Upgrade != nil {
		tx := &Tx{ctx: ctx, store: s, tx: sqlTx, changed: make(map[string]bool)}
		if err := v.Upgrade(ctx, tx); err != nil {
			return fail("upgrade hook failed", err)
		}
	}

	for _, d := range v.Dropped {
		if _, err := sqlTx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(d)); err != nil {
			return fail("failed to drop table "+d, err)
		}
	}

	// Never move the recorded version backwards when re-applying an old step
	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM schema_version WHERE version < ?", v.Number); err != nil {
		return fail("failed to record schema version", err)
	}
	if _, err := sqlTx.ExecContext(ctx,
		"INSERT INTO schema_version (version) SELECT ? WHERE NOT EXISTS (SELECT 1 FROM schema_version)", v.Number); err != nil {
		return fail("failed to record schema version", err)
	}

	if err := sqlTx.Commit(); err != nil {
		return upgradeError(fmt.Sprintf("failed to commit migration to version %d", v.Number), err)
	}

	s.logger.Debug("Applied schema version", "version", v.Number, "tables", len(v.Tables))
	return nil
}

// tableDDL returns the idempotent statements creating t and its indexes.
func tableDDL(t schema.TableDef) []string {
	stmts := []string{fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, doc TEXT NOT NULL)",
		quoteIdent(t.Name))}
	for _, field := range t.Indexes {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s (json_extract(doc, %s))",
			quoteIdent(indexName(t.Name, field)), quoteIdent(t.Name), jsonPath(field)))
	}
	return stmts
}

func indexName(table, field string) string {
	return "idx_" + table + "_" + strings.ReplaceAll(field, ".", "_")
}

func readSchemaVersion(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}) (int, error) {
	var version int
	err := q.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func tableExists(ctx context.Context, tx *sql.Tx, name string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	return n > 0, err
}

func upgradeError(msg string, cause error) error {
	return ferrors.New(ferrors.SchemaUpgradeFailed, msg, cause)
}
