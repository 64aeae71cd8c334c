// Package backendtest holds the behavior every backends.Backend must share.
// Adapter packages call Run from their own tests.
package backendtest

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"finledger/internal/backends"
	ferrors "finledger/internal/errors"
	"finledger/internal/live"
	"finledger/internal/schema"
	"finledger/internal/storage"
)

// Factory returns a fresh, empty backend. Run closes it.
type Factory func(t *testing.T) backends.Backend

// Run exercises b's contract in subtests.
func Run(t *testing.T, newBackend Factory) {
	t.Run("AddGet", func(t *testing.T) { testAddGet(t, newBackend(t)) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, newBackend(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newBackend(t)) })
	t.Run("List", func(t *testing.T) { testList(t, newBackend(t)) })
	t.Run("UnknownTable", func(t *testing.T) { testUnknownTable(t, newBackend(t)) })
	t.Run("Subscribe", func(t *testing.T) { testSubscribe(t, newBackend(t)) })
}

func txn(id, date, category string, amount int) storage.Record {
	rec := storage.Record{
		"date":     date,
		"category": category,
		"type":     "expense",
		"amount":   json.Number(fmt.Sprint(amount)),
		"tags":     []any{},
	}
	if id != "" {
		rec["id"] = id
	}
	return rec
}

func testAddGet(t *testing.T, b backends.Backend) {
	defer b.Close()
	ctx := context.Background()

	in := txn("", "2026-10-01", "Food", 250)
	id, err := b.Add(ctx, schema.Txns, in)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if id == "" {
		t.Fatal("Add() returned an empty id")
	}
	if _, has := in["id"]; has {
		t.Error("Add() modified the caller's record")
	}

	got, err := b.Get(ctx, schema.Txns, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || got["category"] != "Food" || got.ID() != id {
		t.Errorf("Get() = %v", got)
	}

	missing, err := b.Get(ctx, schema.Txns, "nope")
	if err != nil || missing != nil {
		t.Errorf("Get(missing) = %v, %v; want nil, nil", missing, err)
	}

	_, err = b.Add(ctx, schema.Txns, txn(id, "2026-10-02", "Rent", 1))
	if !ferrors.Is(err, ferrors.TransactionFailed) {
		t.Errorf("duplicate Add() error = %v, want TRANSACTION_FAILED", err)
	}
}

func testUpdate(t *testing.T, b backends.Backend) {
	defer b.Close()
	ctx := context.Background()

	id, err := b.Add(ctx, schema.Txns, txn("t1", "2026-10-01", "Food", 250))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	rec, err := b.Update(ctx, schema.Txns, id, map[string]any{"category": "Groceries", "tags": nil, "id": "other"})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if rec["category"] != "Groceries" || rec.ID() != "t1" {
		t.Errorf("Update() = %v", rec)
	}
	if _, has := rec["tags"]; has {
		t.Error("nil field was not removed")
	}

	stored, _ := b.Get(ctx, schema.Txns, id)
	if stored["category"] != "Groceries" || stored["date"] != "2026-10-01" {
		t.Errorf("stored after Update() = %v", stored)
	}

	_, err = b.Update(ctx, schema.Txns, "missing", map[string]any{"note": "x"})
	if !ferrors.Is(err, ferrors.NotFound) {
		t.Errorf("Update(missing) error = %v, want NOT_FOUND", err)
	}
}

func testDelete(t *testing.T, b backends.Backend) {
	defer b.Close()
	ctx := context.Background()

	id, _ := b.Add(ctx, schema.Txns, txn("", "2026-10-01", "Food", 1))
	deleted, err := b.Delete(ctx, schema.Txns, id)
	if err != nil || !deleted {
		t.Fatalf("Delete() = %v, %v", deleted, err)
	}
	deleted, err = b.Delete(ctx, schema.Txns, id)
	if err != nil || deleted {
		t.Errorf("second Delete() = %v, %v; want false, nil", deleted, err)
	}
	if rec, _ := b.Get(ctx, schema.Txns, id); rec != nil {
		t.Errorf("record still present: %v", rec)
	}
}

func testList(t *testing.T, b backends.Backend) {
	defer b.Close()
	ctx := context.Background()

	for _, r := range []storage.Record{
		txn("a", "2026-10-03", "Food", 300),
		txn("b", "2026-10-01", "Food", 100),
		txn("c", "2026-10-02", "Transport", 200),
		txn("d", "2026-09-30", "Food", 50),
	} {
		if _, err := b.Add(ctx, schema.Txns, r); err != nil {
			t.Fatalf("Add(%s) error = %v", r.ID(), err)
		}
	}

	tests := []struct {
		name string
		q    storage.Query
		want []string
	}{
		{"all by id", storage.From(schema.Txns), []string{"a", "b", "c", "d"}},
		{"category", storage.From(schema.Txns).Filter("category", storage.OpEq, "Food").Sort("date", false), []string{"d", "b", "a"}},
		{"range", storage.From(schema.Txns).Filter("date", storage.OpGte, "2026-10-01").Filter("date", storage.OpLte, "2026-10-02"), []string{"b", "c"}},
		{"amount desc limit", storage.From(schema.Txns).Sort("amount", true).Take(2), []string{"a", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := b.List(ctx, tt.q)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			got := make([]string, len(recs))
			for i, r := range recs {
				got[i] = r.ID()
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("List() = %v, want %v", got, tt.want)
			}
		})
	}
}

func testUnknownTable(t *testing.T, b backends.Backend) {
	defer b.Close()
	ctx := context.Background()

	if _, err := b.Add(ctx, "nope", storage.Record{}); !ferrors.Is(err, ferrors.UnknownTable) {
		t.Errorf("Add() error = %v, want UNKNOWN_TABLE", err)
	}
	if _, err := b.List(ctx, storage.From("nope")); !ferrors.Is(err, ferrors.UnknownTable) {
		t.Errorf("List() error = %v, want UNKNOWN_TABLE", err)
	}
}

func testSubscribe(t *testing.T, b backends.Backend) {
	defer b.Close()
	ctx := context.Background()

	results := make(chan live.Result, 8)
	sub := b.Subscribe(storage.From(schema.Txns).Filter("category", storage.OpEq, "Food"), func(r live.Result) {
		results <- r
	})
	defer sub.Unsubscribe()

	first := Next(t, results)
	if first.State != live.Empty {
		t.Fatalf("initial state = %s, want empty", first.State)
	}

	if _, err := b.Add(ctx, schema.Txns, txn("x", "2026-10-01", "Transport", 10)); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Add(ctx, schema.Txns, txn("y", "2026-10-01", "Food", 10)); err != nil {
		t.Fatal(err)
	}
	got := Next(t, results)
	if got.State != live.Populated || len(got.Records) != 1 || got.Records[0].ID() != "y" {
		t.Errorf("after add = %s %v", got.State, got.Records)
	}
}

// Next waits for one result or fails the test.
func Next(t *testing.T, ch <-chan live.Result) live.Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for live result")
		return live.Result{}
	}
}
