package local

import (
	"context"
	"path/filepath"
	"testing"

	"finledger/internal/backends"
	"finledger/internal/backends/backendtest"
	"finledger/internal/live"
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

func TestConformance(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backends.Backend {
		return New(setupTestStore(t), nil, live.Options{})
	})
}

func TestSubscribersSeeDirectStoreWrites(t *testing.T) {
	s := setupTestStore(t)
	a := New(s, nil, live.Options{})
	defer a.Close()

	results := make(chan live.Result, 4)
	sub := a.Subscribe(storage.From(schema.Goals), func(r live.Result) { results <- r })
	defer sub.Unsubscribe()
	backendtest.Next(t, results)

	err := s.RunTransaction(context.Background(), []string{schema.Goals}, func(tx *storage.Tx) error {
		_, err := tx.Add(schema.Goals, storage.Record{"name": "House", "targetAmount": 100})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if r := backendtest.Next(t, results); r.State != live.Populated {
		t.Errorf("state = %s, want populated", r.State)
	}
}
