package retention

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"finledger/internal/audit"
	"finledger/internal/config"
	"finledger/internal/models"
	"finledger/internal/schema"
	"finledger/internal/storage"
	"finledger/internal/testutil"
)

var fixedNow = time.Date(2026, 10, 16, 14, 30, 0, 0, time.UTC)

func seed(t *testing.T, s *storage.Store, table string, recs ...storage.Record) {
	t.Helper()
	testutil.Seed(t, s, map[string][]storage.Record{table: recs})
}

func newTestEngine(s *storage.Store, policies ...Policy) *Engine {
	e := NewEngine(s, policies, nil)
	e.now = func() time.Time { return fixedNow }
	return e
}

func TestCutoff(t *testing.T) {
	tests := []struct {
		now    time.Time
		months int
		want   string
	}{
		{fixedNow, 12, "2025-10-16"},
		{fixedNow, 1, "2026-09-16"},
		{time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC), 1, "2026-03-03"},
	}
	for _, tt := range tests {
		if got := Cutoff(tt.now, tt.months).Format(models.DateLayout); got != tt.want {
			t.Errorf("Cutoff(%s, %d) = %s, want %s", tt.now.Format(time.RFC3339), tt.months, got, tt.want)
		}
	}
}

func TestRetentionBoundary(t *testing.T) {
	s := testutil.OpenStore(t)
	seed(t, s, schema.Txns,
		storage.Record{"id": "on-cutoff", "date": "2025-10-16"},
		storage.Record{"id": "day-before", "date": "2025-10-15"},
		storage.Record{"id": "recent", "date": "2026-10-01"},
		storage.Record{"id": "undated"},
	)
	seed(t, s, schema.AuditLogs,
		storage.Record{"id": "a-cutoff-midnight", "action": "x", "at": "2025-10-16T00:00:00Z"},
		storage.Record{"id": "a-late-before", "action": "x", "at": "2025-10-15T23:59:59Z"},
	)
	seed(t, s, schema.TaxRecords,
		storage.Record{"id": "fy2024", "financialYear": 2024},
		storage.Record{"id": "fy2025", "financialYear": 2025},
	)

	e := newTestEngine(s,
		Policy{Table: schema.Txns, RetentionMonths: 12, Enabled: true},
		Policy{Table: schema.AuditLogs, RetentionMonths: 12, Enabled: true},
		Policy{Table: schema.TaxRecords, RetentionMonths: 12, Enabled: true},
	)
	ctx := context.Background()

	stats, err := e.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	eligible := map[string]int{}
	for _, st := range stats {
		eligible[st.Table] = st.EligibleForDeletion
		if st.Cutoff != "2025-10-16" {
			t.Errorf("%s cutoff = %s", st.Table, st.Cutoff)
		}
	}

	results := e.Execute(ctx)
	if len(results) != 3 {
		t.Fatalf("Execute() returned %d results", len(results))
	}
	for _, r := range results {
		if r.Error != "" {
			t.Errorf("%s failed: %s", r.Table, r.Error)
		}
		if r.Deleted != eligible[r.Table] {
			t.Errorf("%s deleted %d, Stats predicted %d", r.Table, r.Deleted, eligible[r.Table])
		}
	}

	if got := testutil.IDs(t, s, schema.Txns); !reflect.DeepEqual(got, []string{"on-cutoff", "recent", "undated"}) {
		t.Errorf("txns left = %v", got)
	}
	if got := testutil.IDs(t, s, schema.TaxRecords); !reflect.DeepEqual(got, []string{"fy2025"}) {
		t.Errorf("taxRecords left = %v", got)
	}

	logs, err := audit.Recent(ctx, s, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]string, 0, len(logs))
	for _, l := range logs {
		ids = append(ids, l.ID)
		if l.Action == models.AuditRetention && l.At != "2026-10-16T14:30:00Z" {
			t.Errorf("retention audit at %s", l.At)
		}
	}
	if len(logs) != 2 || !strings.Contains(strings.Join(ids, ","), "a-cutoff-midnight") {
		t.Errorf("audit logs left = %v", ids)
	}
}

func TestRetentionBoundaryOffsetZone(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+30*60)
	now := time.Date(2026, 10, 16, 10, 0, 0, 0, ist)

	tests := []struct {
		name    string
		at      string
		deleted int
	}{
		{"early on cutoff day", "2025-10-15T20:00:00Z", 0},
		{"local midnight", "2025-10-15T18:30:00Z", 0},
		{"last second of previous day", "2025-10-15T18:29:59Z", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testutil.OpenStore(t)
			seed(t, s, schema.AuditLogs, storage.Record{"id": "a1", "action": "x", "at": tt.at})
			e := NewEngine(s, []Policy{{Table: schema.AuditLogs, RetentionMonths: 12, Enabled: true}}, nil)
			e.now = func() time.Time { return now }

			results := e.Execute(context.Background())
			if len(results) != 1 || results[0].Error != "" {
				t.Fatalf("Execute() = %+v", results)
			}
			if results[0].Cutoff != "2025-10-16" {
				t.Errorf("cutoff = %s, want 2025-10-16", results[0].Cutoff)
			}
			if results[0].Deleted != tt.deleted {
				t.Errorf("deleted = %d, want %d", results[0].Deleted, tt.deleted)
			}
		})
	}
}

func TestExecuteIsolatesFailures(t *testing.T) {
	s := testutil.OpenStore(t)
	seed(t, s, schema.Txns, storage.Record{"id": "old", "date": "2000-01-01"})

	e := newTestEngine(s,
		Policy{Table: "nope", RetentionMonths: 12, Enabled: true},
		Policy{Table: schema.Goals, RetentionMonths: 12, Enabled: true},
		Policy{Table: schema.Txns, RetentionMonths: 12, Enabled: true},
		Policy{Table: schema.Medicines, RetentionMonths: 12, Enabled: false},
	)
	results := e.Execute(context.Background())
	if len(results) != 3 {
		t.Fatalf("results = %+v", results)
	}
	if results[0].Error == "" || results[1].Error == "" {
		t.Errorf("bad policies should fail: %+v", results[:2])
	}
	if results[2].Error != "" || results[2].Deleted != 1 {
		t.Errorf("txns result = %+v", results[2])
	}
}

func TestPolicySources(t *testing.T) {
	if got := DefaultPolicies(); len(got) == 0 || got[0].Table != schema.AuditLogs || !got[0].Enabled {
		t.Errorf("DefaultPolicies() = %+v", got)
	}
	if err := Validate(DefaultPolicies(), schema.Default()); err != nil {
		t.Errorf("default policies invalid: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "retention.toml")
	want := []Policy{
		{Table: schema.Txns, RetentionMonths: 60, Enabled: true},
		{Table: schema.AuditLogs, RetentionMonths: 6, Enabled: false},
	}
	if err := WritePolicies(path, want); err != nil {
		t.Fatal(err)
	}
	got, err := LoadPolicies(path)
	if err != nil {
		t.Fatalf("LoadPolicies() error = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LoadPolicies() = %+v, want %+v", got, want)
	}

	cfg := config.DefaultConfig().Retention
	cfg.PoliciesFile = "retention.toml"
	resolved, err := Resolve(cfg, dir)
	if err != nil || !reflect.DeepEqual(resolved, want) {
		t.Errorf("Resolve() = %+v, %v", resolved, err)
	}

	bad := filepath.Join(dir, "bad.toml")
	os.WriteFile(bad, []byte("[[policy]]\ntable = \"txns\"\nmonths = 3\n"), 0644)
	if _, err := LoadPolicies(bad); err == nil {
		t.Error("unknown key should be rejected")
	}

	tests := []struct {
		name   string
		policy Policy
	}{
		{"unknown table", Policy{Table: "nope", RetentionMonths: 1}},
		{"no date field", Policy{Table: schema.Goals, RetentionMonths: 1}},
		{"zero months", Policy{Table: schema.Txns}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate([]Policy{tt.policy}, schema.Default()); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}

func TestStatsReadOnly(t *testing.T) {
	s := testutil.OpenStore(t)
	seed(t, s, schema.Txns, storage.Record{"id": "old", "date": "2000-01-01"})
	e := newTestEngine(s, Policy{Table: schema.Txns, RetentionMonths: 1, Enabled: true})

	stats, err := e.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	testutil.CompareGolden(t, "retention/stats", stats)
	if n, _ := s.Count(context.Background(), storage.From(schema.Txns)); n != 1 {
		t.Error("Stats() deleted records")
	}
}

func TestScheduler(t *testing.T) {
	if _, err := NewScheduler(nil, "every tuesday", nil); err == nil {
		t.Error("invalid cron spec should be rejected")
	}

	s := testutil.OpenStore(t)
	seed(t, s, schema.Txns, storage.Record{"id": "old", "date": "2000-01-01"})
	e := newTestEngine(s, Policy{Table: schema.Txns, RetentionMonths: 1, Enabled: true})

	sched, err := NewScheduler(e, "@every 1s", nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	if err := sched.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := sched.Start(); err == nil {
		t.Error("second Start() should fail")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if runs, _ := sched.Runs(); runs > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("scheduled retention never ran")
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err := sched.Stop(5 * time.Second); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if n, _ := s.Count(context.Background(), storage.From(schema.Txns)); n != 0 {
		t.Errorf("old record survived the scheduled run")
	}

	results := sched.RunNow(context.Background())
	if len(results) != 1 || results[0].Deleted != 0 {
		t.Errorf("RunNow() = %+v", results)
	}
}
