package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"finledger/internal/audit"
	ferrors "finledger/internal/errors"
	"finledger/internal/models"
	"finledger/internal/schema"
	"finledger/internal/storage"
	"finledger/internal/testutil"
)

func newTestService(s *storage.Store) *Service {
	svc := NewService(s, nil)
	svc.now = func() time.Time { return time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC) }
	return svc
}

func seedSample(t *testing.T, s *storage.Store) {
	t.Helper()
	ctx := context.Background()
	err := s.RunTransaction(ctx, []string{schema.Txns, schema.Goals, schema.Settings}, func(tx *storage.Tx) error {
		if _, err := tx.BulkAdd(schema.Txns, []storage.Record{
			{"id": "t1", "date": "2026-10-01", "amount": json.Number("250.50"), "type": "expense", "tags": []any{"food"}},
			{"id": "t2", "date": "2026-10-02", "amount": json.Number("1000"), "type": "income"},
		}); err != nil {
			return err
		}
		if _, err := tx.Add(schema.Goals, storage.Record{"id": "g1", "name": "Car", "targetAmount": json.Number("500000")}); err != nil {
			return err
		}
		_, err := tx.Add(schema.Settings, storage.Record{"id": schema.SettingsID, "autoLockMinutes": json.Number("3")})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src := testutil.OpenStore(t)
	seedSample(t, src)
	ctx := context.Background()

	doc, err := newTestService(src).Export(ctx)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if doc.Version != FormatVersion || doc.ExportedAt != "2026-10-16T08:00:00Z" {
		t.Errorf("header = %q / %q", doc.Version, doc.ExportedAt)
	}
	if len(doc.Tables) != len(Tables) {
		t.Errorf("exported %d tables, want %d", len(doc.Tables), len(Tables))
	}

	var buf bytes.Buffer
	if err := Write(&buf, doc); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"goals": [`) || !strings.Contains(buf.String(), `"wallets": []`) {
		t.Errorf("unexpected document layout:\n%s", buf.String())
	}

	parsed, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	dst := testutil.OpenStore(t)
	res, err := newTestService(dst).Import(ctx, parsed)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if res.Counts[schema.Txns] != 2 || res.Counts[schema.Goals] != 1 || res.Total != 4 {
		t.Errorf("ImportResult = %+v", res)
	}

	for _, name := range Tables {
		got, err := dst.All(ctx, name)
		if err != nil {
			t.Fatalf("All(%s) error = %v", name, err)
		}
		if len(got) != len(doc.Tables[name]) {
			t.Errorf("table %s: exported %d rows, after import %d", name, len(doc.Tables[name]), len(got))
		}
		want, _ := src.All(ctx, name)
		wantJSON, _ := json.Marshal(want)
		gotJSON, _ := json.Marshal(got)
		if string(wantJSON) != string(gotJSON) {
			t.Errorf("%s differs after round trip:\n got %s\nwant %s", name, gotJSON, wantJSON)
		}
	}
}

func TestExportImportRoundTripWithAuditHistory(t *testing.T) {
	src := testutil.OpenStore(t)
	seedSample(t, src)
	ctx := context.Background()
	err := src.RunTransaction(ctx, []string{schema.AuditLogs}, func(tx *storage.Tx) error {
		return audit.Log(tx, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), models.AuditSettingsUpdate, "", "", nil)
	})
	if err != nil {
		t.Fatal(err)
	}

	doc, err := newTestService(src).Export(ctx)
	if err != nil {
		t.Fatal(err)
	}
	dst := testutil.OpenStore(t)
	if _, err := newTestService(dst).Import(ctx, doc); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	got, _ := dst.All(ctx, schema.AuditLogs)
	if len(got) != 1 || len(doc.Tables[schema.AuditLogs]) != 1 {
		t.Fatalf("auditLogs after import = %d rows, exported %d", len(got), len(doc.Tables[schema.AuditLogs]))
	}
	if entries, _ := audit.Recent(ctx, dst, models.AuditImport, 5); len(entries) != 0 {
		t.Errorf("restored audit log gained %d import entries", len(entries))
	}
}

func TestImportLeavesAbsentTablesAlone(t *testing.T) {
	s := testutil.OpenStore(t)
	seedSample(t, s)
	ctx := context.Background()

	doc, err := Parse(strings.NewReader(`{"version":"1.0","exportedAt":"2026-01-01T00:00:00Z","goals":[{"id":"g9","name":"Trip","targetAmount":1}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := newTestService(s).Import(ctx, doc); err != nil {
		t.Fatal(err)
	}

	goals, _ := s.All(ctx, schema.Goals)
	if len(goals) != 1 || goals[0].ID() != "g9" {
		t.Errorf("goals = %v", goals)
	}
	if n, _ := s.Count(ctx, storage.From(schema.Txns)); n != 2 {
		t.Errorf("txns count = %d, want untouched 2", n)
	}
	entries, err := audit.Recent(ctx, s, models.AuditImport, 5)
	if err != nil || len(entries) != 1 {
		t.Fatalf("import audit entries = %v, %v", entries, err)
	}
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name  string
		input string
		path  string
	}{
		{"unknown key", `{"version":"1.0","bitcoin":[]}`, "bitcoin"},
		{"wrong version", `{"version":"2.0","txns":[]}`, "version"},
		{"missing version", `{"txns":[]}`, "version"},
		{"not an array", `{"version":"1.0","txns":{}}`, "txns"},
		{"row not object", `{"version":"1.0","txns":[1]}`, "txns[0]"},
		{"missing id", `{"version":"1.0","goals":[{"name":"x"}]}`, "goals[0].id"},
		{"numeric id", `{"version":"1.0","goals":[{"id":7}]}`, "goals[0].id"},
		{"empty id", `{"version":"1.0","goals":[{"id":""}]}`, "goals[0].id"},
		{"duplicate id", `{"version":"1.0","goals":[{"id":"a"},{"id":"a"}]}`, "goals[1].id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			if !ferrors.Is(err, ferrors.ValidationFailed) {
				t.Fatalf("Parse() error = %v, want VALIDATION_FAILED", err)
			}
			issues := ferrors.Issues(err)
			if len(issues) != 1 || issues[0].Path != tt.path {
				t.Errorf("issues = %+v, want path %q", issues, tt.path)
			}
		})
	}

	if _, err := Parse(strings.NewReader(`[`)); !ferrors.Is(err, ferrors.ValidationFailed) {
		t.Errorf("malformed JSON error = %v", err)
	}
}

func TestImportIsAtomic(t *testing.T) {
	s := testutil.OpenStore(t)
	seedSample(t, s)
	ctx := context.Background()

	// built directly so the duplicate goal reaches the store
	doc := &Document{
		Version: FormatVersion,
		Tables: map[string][]storage.Record{
			schema.Txns:    {{"id": "n1", "date": "2026-01-01", "amount": json.Number("1"), "type": "expense"}},
			schema.Goals:   {{"id": "dup"}, {"id": "dup"}},
			schema.Tenants: {},
		},
	}
	_, err := newTestService(s).Import(ctx, doc)
	if err == nil {
		t.Fatal("Import() with duplicate rows should fail")
	}

	txns, _ := s.All(ctx, schema.Txns)
	if len(txns) != 2 || txns[0].ID() != "t1" {
		t.Errorf("txns changed by failed import: %v", txns)
	}
	if n, _ := s.Count(ctx, storage.From(schema.AuditLogs)); n != 0 {
		t.Errorf("failed import left %d audit entries", n)
	}
}

func TestFileRoundTrip(t *testing.T) {
	s := testutil.OpenStore(t)
	seedSample(t, s)
	ctx := context.Background()
	doc, err := newTestService(s).Export(ctx)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	for _, name := range []string{"backup.json", "backup.json.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := WriteFile(path, doc); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}
			raw, _ := os.ReadFile(path)
			isJSON := len(raw) > 0 && raw[0] == '{'
			if isJSON == Compressed(path) {
				t.Errorf("%s: compressed=%v but starts with %q", name, Compressed(path), raw[:1])
			}

			got, err := ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile() error = %v", err)
			}
			if len(got.Tables[schema.Txns]) != 2 || got.ExportedAt != doc.ExportedAt {
				t.Errorf("ReadFile() = %+v", got)
			}
			amount, _ := got.Tables[schema.Txns][0]["amount"].(json.Number)
			if amount.String() != "250.50" {
				t.Errorf("amount = %v, want exact 250.50", got.Tables[schema.Txns][0]["amount"])
			}
		})
	}
}
