// Package testutil provides store fixtures and golden-file helpers for tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"

	"finledger/internal/storage"
)

// OpenStore opens a migrated store in a temporary directory, closed when the
// test ends.
func OpenStore(t *testing.T) *storage.Store {
	t.Helper()

	s := storage.New(storage.Options{Path: filepath.Join(t.TempDir(), "finledger.db")})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Seed writes rows into their tables in one transaction, replacing records
// with the same id.
func Seed(t *testing.T, s *storage.Store, rows map[string][]storage.Record) {
	t.Helper()

	tables := make([]string, 0, len(rows))
	for name := range rows {
		tables = append(tables, name)
	}
	sort.Strings(tables)

	err := s.RunTransaction(context.Background(), tables, func(tx *storage.Tx) error {
		for _, name := range tables {
			if _, err := tx.BulkPut(name, rows[name]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}
}

// IDs returns the ids of every record in table, in id order.
func IDs(t *testing.T, s *storage.Store, table string) []string {
	t.Helper()

	recs, err := s.All(context.Background(), table)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", table, err)
	}
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID()
	}
	return ids
}

// projectRoot returns the repository root, located from this source file.
func projectRoot(t *testing.T) string {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get caller information")
	}
	// internal/testutil -> root
	return filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
}

// FixturePath returns the path of a file under testdata/fixtures/.
func FixturePath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(projectRoot(t), "testdata", "fixtures", name)
}

// ReadFixture returns the contents of testdata/fixtures/<name>.
func ReadFixture(t *testing.T, name string) []byte {
	t.Helper()

	data, err := os.ReadFile(FixturePath(t, name))
	if err != nil {
		t.Fatalf("Failed to read fixture %s: %v", name, err)
	}
	return data
}
