package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"finledger/internal/models"
	"finledger/internal/schema"
	"finledger/internal/storage"
)

func setupTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s := storage.New(storage.Options{Path: filepath.Join(t.TempDir(), "finledger.db")})
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWriteAndRecent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	err := s.RunTransaction(ctx, []string{schema.AuditLogs}, func(tx *storage.Tx) error {
		for i, action := range []string{models.AuditImport, models.AuditSettingsUpdate, models.AuditImport} {
			if err := Log(tx, base.Add(time.Duration(i)*time.Hour), action, schema.Txns, "", map[string]any{"n": i}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	all, err := Recent(ctx, s, "", 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Recent() returned %d entries, want 3", len(all))
	}
	if all[0].At != "2026-10-01T11:00:00Z" {
		t.Errorf("newest entry at %s, want 2026-10-01T11:00:00Z", all[0].At)
	}
	if all[0].ID == "" {
		t.Error("entry was not given an id")
	}

	imports, err := Recent(ctx, s, models.AuditImport, 10)
	if err != nil {
		t.Fatalf("Recent(import) error = %v", err)
	}
	if len(imports) != 2 {
		t.Errorf("Recent(import) = %d entries, want 2", len(imports))
	}

	limited, _ := Recent(ctx, s, "", 1)
	if len(limited) != 1 {
		t.Errorf("Recent(limit 1) = %d entries", len(limited))
	}
}

func TestWriteRollsBackWithCaller(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_ = s.RunTransaction(ctx, []string{schema.AuditLogs}, func(tx *storage.Tx) error {
		if err := Log(tx, time.Now(), models.AuditPreload, "", "", nil); err != nil {
			return err
		}
		return errors.New("caller failed")
	})
	if n, _ := s.Count(ctx, storage.From(schema.AuditLogs)); n != 0 {
		t.Errorf("audit rows after rollback = %d, want 0", n)
	}

	err := s.RunTransaction(ctx, []string{schema.AuditLogs}, func(tx *storage.Tx) error {
		_, err := Write(tx, models.AuditLog{})
		return err
	})
	if err == nil {
		t.Error("entry without action should be rejected")
	}
}
