package integrity

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"testing"
	"time"

	"finledger/internal/audit"
	"finledger/internal/models"
	"finledger/internal/schema"
	"finledger/internal/storage"
	"finledger/internal/testutil"
)

func txn(id, date string, amount any, category string) storage.Record {
	return storage.Record{
		"id": id, "date": date, "amount": amount, "category": category, "type": "expense",
		"tags": []any{}, "paymentMix": []any{}, "splitWith": []any{},
		"isSplit": false, "isPartialRent": false,
	}
}

func TestDuplicateDetectionDeterministic(t *testing.T) {
	s := testutil.OpenStore(t)
	testutil.Seed(t, s, map[string][]storage.Record{
		schema.Txns: {
			txn("t1", "2026-10-01", json.Number("1000"), "Food"),
			txn("t2", "2026-10-01", json.Number("1000.00"), "Food"),
			txn("t3", "2026-10-01", json.Number("1000"), "Transport"),
			txn("t4", "2026-10-02", json.Number("1000"), "Food"),
		},
	})
	c := NewChecker(s, nil)
	ctx := context.Background()

	first, err := c.PerformIntegrityCheck(ctx)
	if err != nil {
		t.Fatalf("PerformIntegrityCheck() error = %v", err)
	}
	want := []DuplicateGroup{{Date: "2026-10-01", Amount: "1000", Category: "Food", RecordIDs: []string{"t1", "t2"}}}
	if !reflect.DeepEqual(first.DuplicateRecords, want) {
		t.Errorf("DuplicateRecords = %+v, want %+v", first.DuplicateRecords, want)
	}

	for i := 0; i < 3; i++ {
		again, err := c.PerformIntegrityCheck(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs:\n%+v\n%+v", i, first, again)
		}
	}
	if first.RecordsChecked != 4 || first.TablesChecked != len(s.Registry().TableNames()) {
		t.Errorf("checked %d tables / %d records", first.TablesChecked, first.RecordsChecked)
	}
	testutil.CompareGolden(t, "integrity/duplicates", first)
}

func TestCheckFindings(t *testing.T) {
	s := testutil.OpenStore(t)
	split := txn("t-split", "2026-10-03", json.Number("900"), "Dinner")
	split["isSplit"] = true
	split["splitWith"] = []any{map[string]any{"person": "A", "amount": json.Number("300"), "settled": false}}
	rent := txn("t-rent", "2026-10-04", json.Number("15000"), "Rent")
	rent["isPartialRent"] = true
	rent["propertyId"] = "p1"
	noAmount := txn("t-bad", "2026-10-05", nil, "Misc")
	delete(noAmount, "amount")

	testutil.Seed(t, s, map[string][]storage.Record{
		schema.Txns:             {split, rent, noAmount},
		schema.Goals:            {{"id": "g1", "name": "House", "targetAmount": json.Number("100")}},
		schema.Investments:      {{"id": "i1", "name": "Index", "type": "mf", "investedAmount": 10, "goalId": "g-gone"}, {"id": "i2", "name": "Bond", "type": "bond", "investedAmount": 5, "goalId": "g1"}},
		schema.RentalProperties: {{"id": "p1", "name": "Flat"}},
	})

	report, err := NewChecker(s, nil).PerformIntegrityCheck(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	wantMissing := []MissingField{{Table: schema.Txns, RecordID: "t-bad", Field: "amount"}}
	if !reflect.DeepEqual(report.MissingRequiredFields, wantMissing) {
		t.Errorf("MissingRequiredFields = %+v", report.MissingRequiredFields)
	}
	wantOrphans := []Orphan{{Table: schema.Investments, RecordID: "i1", Field: "goalId", References: schema.Goals, MissingID: "g-gone"}}
	if !reflect.DeepEqual(report.OrphanedRecords, wantOrphans) {
		t.Errorf("OrphanedRecords = %+v", report.OrphanedRecords)
	}

	rules := map[string]string{}
	for _, v := range report.InvariantViolations {
		rules[v.RecordID] = v.Rule
	}
	if rules["t-split"] != RuleSplitSum || rules["t-rent"] != RulePartialRentLink {
		t.Errorf("InvariantViolations = %+v", report.InvariantViolations)
	}
	if report.Clean() {
		t.Error("report should not be clean")
	}
}

func TestCheckIsReadOnly(t *testing.T) {
	s := testutil.OpenStore(t)
	bad := txn("t1", "2026-10-01", json.Number("5"), "Food")
	delete(bad, "tags")
	testutil.Seed(t, s, map[string][]storage.Record{schema.Txns: {bad}})

	changes := 0
	remove := s.AddListener(storage.ChangeFunc(func([]string) { changes++ }))
	defer remove()

	if _, err := NewChecker(s, nil).PerformIntegrityCheck(context.Background()); err != nil {
		t.Fatal(err)
	}
	rec, _ := s.Get(context.Background(), schema.Txns, "t1")
	if _, has := rec["tags"]; has || changes != 0 {
		t.Error("integrity check wrote to the store")
	}
}

func TestCheckReadsOneSnapshot(t *testing.T) {
	s := testutil.OpenStore(t)
	ctx := context.Background()

	// the writer swaps a goal and its investment in one transaction, so a
	// consistent read never sees the investment without its goal
	done := make(chan struct{})
	writerErr := make(chan error, 1)
	go func() {
		defer close(writerErr)
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			goalID := fmt.Sprintf("g%d", i)
			err := s.RunTransaction(ctx, []string{schema.Goals, schema.Investments}, func(tx *storage.Tx) error {
				if i > 0 {
					prev := fmt.Sprintf("g%d", i-1)
					if _, err := tx.Delete(schema.Investments, "i-"+prev); err != nil {
						return err
					}
					if _, err := tx.Delete(schema.Goals, prev); err != nil {
						return err
					}
				}
				if _, err := tx.Add(schema.Goals, storage.Record{"id": goalID, "name": "G", "targetAmount": 1}); err != nil {
					return err
				}
				_, err := tx.Add(schema.Investments, storage.Record{
					"id": "i-" + goalID, "name": "I", "type": "mf", "investedAmount": 1, "goalId": goalID,
				})
				return err
			})
			if err != nil {
				writerErr <- err
				return
			}
		}
	}()

	c := NewChecker(s, nil)
	for i := 0; i < 25; i++ {
		report, err := c.PerformIntegrityCheck(ctx)
		if err != nil {
			close(done)
			t.Fatal(err)
		}
		if len(report.OrphanedRecords) != 0 {
			close(done)
			t.Fatalf("run %d reported orphans %+v", i, report.OrphanedRecords)
		}
	}
	close(done)
	if err := <-writerErr; err != nil {
		t.Fatalf("writer error = %v", err)
	}
}

func TestAutoFixSafety(t *testing.T) {
	s := testutil.OpenStore(t)
	nullTags := txn("t1", "2026-10-01", json.Number("5"), "Food")
	nullTags["tags"] = nil
	delete(nullTags, "isSplit")
	missingAmount := txn("t2", "2026-10-01", nil, "Food")
	delete(missingAmount, "amount")
	missingAmount["paymentMix"] = nil
	wrongType := txn("t3", "2026-10-01", json.Number("7"), "Food")
	wrongType["tags"] = "groceries"
	wrongType["splitWith"] = nil
	clean := txn("t4", "2026-10-01", json.Number("9"), "Food")

	testutil.Seed(t, s, map[string][]storage.Record{
		schema.Txns:     {nullTags, missingAmount, wrongType, clean},
		schema.Vehicles: {{"id": "v1", "name": "Scooter"}},
	})

	c := NewChecker(s, nil)
	c.now = func() time.Time { return time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	res, err := c.PerformAutoFix(ctx)
	if err != nil {
		t.Fatalf("PerformAutoFix() error = %v", err)
	}
	if res.Fixed != 3 || res.ByTable[schema.Txns] != 2 || res.ByTable[schema.Vehicles] != 1 {
		t.Errorf("FixResult = %+v", res)
	}
	if len(res.Errors) != 1 {
		t.Errorf("Errors = %v, want the wrong-typed tags", res.Errors)
	}

	got, _ := s.Get(ctx, schema.Txns, "t1")
	if tags, ok := got["tags"].([]any); !ok || len(tags) != 0 || got["isSplit"] != false {
		t.Errorf("t1 after fix = %v", got)
	}
	got, _ = s.Get(ctx, schema.Txns, "t2")
	if _, has := got["amount"]; has {
		t.Error("auto-fix invented an amount")
	}
	got, _ = s.Get(ctx, schema.Txns, "t3")
	if got["tags"] != "groceries" || got["splitWith"] != nil {
		t.Errorf("record with a wrong-typed field was modified: %v", got)
	}
	got, _ = s.Get(ctx, schema.Vehicles, "v1")
	if sh, ok := got["serviceHistory"].([]any); !ok || len(sh) != 0 {
		t.Errorf("vehicle after fix = %v", got)
	}

	entries, err := audit.Recent(ctx, s, models.AuditAutoFix, 5)
	if err != nil || len(entries) != 1 {
		t.Fatalf("audit entries = %v, %v", entries, err)
	}

	again, err := c.PerformAutoFix(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if again.Fixed != 0 {
		t.Errorf("second pass fixed %d records, want 0", again.Fixed)
	}
}
