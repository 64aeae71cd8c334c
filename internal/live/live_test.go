package live

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"finledger/internal/schema"
	"finledger/internal/slogutil"
	"finledger/internal/storage"
)

const waitTimeout = 5 * time.Second

func setupTestHub(t *testing.T, opts Options) (*storage.Store, *Hub) {
	t.Helper()
	store := storage.New(storage.Options{
		Path:   filepath.Join(t.TempDir(), "finledger.db"),
		Logger: slogutil.NewDiscardLogger(),
	})
	if err := store.Open(context.Background()); err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	hub := NewHub(store, slogutil.NewDiscardLogger(), opts)
	hub.Attach(store)
	t.Cleanup(func() {
		hub.Close()
		if err := store.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})
	return store, hub
}

// recorder collects callback results and lets tests wait for them.
type recorder struct {
	mu      sync.Mutex
	results []Result
	ch      chan Result
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Result, 64)}
}

func (r *recorder) fn(res Result) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
	r.ch <- res
}

func (r *recorder) next(t *testing.T) Result {
	t.Helper()
	select {
	case res := <-r.ch:
		return res
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for callback")
		return Result{}
	}
}

func (r *recorder) none(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case res := <-r.ch:
		t.Fatalf("unexpected callback: %+v", res)
	case <-time.After(d):
	}
}

func amounts(recs []storage.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, fmt.Sprint(r["amount"]))
	}
	return out
}

func TestReactiveConsistency(t *testing.T) {
	store, hub := setupTestHub(t, Options{})
	ctx := context.Background()

	if _, err := store.Table(schema.Txns).Add(ctx, storage.Record{"id": "t1", "amount": 1000, "category": "Food"}); err != nil {
		t.Fatal(err)
	}

	rec := newRecorder()
	sub := hub.Subscribe(storage.From(schema.Txns).Filter("category", storage.OpEq, "Food").Sort("amount", true), rec.fn)
	defer sub.Unsubscribe()

	first := rec.next(t)
	if first.State != Populated || len(first.Records) != 1 {
		t.Fatalf("initial result = %+v, want one Food record", first)
	}

	err := store.RunTransaction(ctx, []string{schema.Txns}, func(tx *storage.Tx) error {
		if _, err := tx.Add(schema.Txns, storage.Record{"id": "t2", "amount": 500, "category": "Food"}); err != nil {
			return err
		}
		_, err := tx.Add(schema.Txns, storage.Record{"id": "t3", "amount": 200, "category": "Transport"})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	second := rec.next(t)
	got := amounts(second.Records)
	if len(got) != 2 || got[0] != "1000" || got[1] != "500" {
		t.Fatalf("after transaction got amounts %v, want [1000 500]", got)
	}
	rec.none(t, 200*time.Millisecond)

	if cur := sub.Current(); len(cur.Records) != 2 {
		t.Errorf("Current() has %d records, want 2", len(cur.Records))
	}
}

func TestInitialStates(t *testing.T) {
	_, hub := setupTestHub(t, Options{})

	blocked := make(chan struct{})
	gate := &gatedQuerier{release: blocked}
	slowHub := NewHub(gate, nil, Options{})
	defer slowHub.Close()

	rec := newRecorder()
	sub := slowHub.Subscribe(storage.From(schema.Goals), rec.fn)
	if cur := sub.Current(); cur.State != Loading {
		t.Errorf("Current() before first evaluation = %v, want loading", cur.State)
	}
	close(blocked)
	if res := rec.next(t); res.State != Empty {
		t.Errorf("first result state = %v, want empty", res.State)
	}

	emptyRec := newRecorder()
	hub.Subscribe(storage.From(schema.Goals), emptyRec.fn)
	if res := emptyRec.next(t); res.State != Empty || res.Records != nil {
		t.Errorf("empty table result = %+v", res)
	}
}

type gatedQuerier struct {
	release chan struct{}
}

func (g *gatedQuerier) Find(ctx context.Context, _ storage.Query) ([]storage.Record, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return nil, nil
}

func TestUnrelatedWritesDoNotFire(t *testing.T) {
	store, hub := setupTestHub(t, Options{})
	ctx := context.Background()

	rec := newRecorder()
	sub := hub.Subscribe(storage.From(schema.Txns).Filter("category", storage.OpEq, "Food"), rec.fn)
	defer sub.Unsubscribe()
	rec.next(t)

	// Other table
	if _, err := store.Table(schema.Goals).Add(ctx, storage.Record{"name": "Car"}); err != nil {
		t.Fatal(err)
	}
	// Same table, result unchanged
	if _, err := store.Table(schema.Txns).Add(ctx, storage.Record{"category": "Rent"}); err != nil {
		t.Fatal(err)
	}
	// Rolled back
	_ = store.RunTransaction(ctx, []string{schema.Txns}, func(tx *storage.Tx) error {
		_, _ = tx.Add(schema.Txns, storage.Record{"category": "Food"})
		return errors.New("abort")
	})

	rec.none(t, 200*time.Millisecond)
}

func TestIndependentSubscriptions(t *testing.T) {
	store, hub := setupTestHub(t, Options{})
	ctx := context.Background()
	q := storage.From(schema.Wallets)

	a, b := newRecorder(), newRecorder()
	subA := hub.Subscribe(q, a.fn)
	subB := hub.Subscribe(q, b.fn)
	a.next(t)
	b.next(t)

	subA.Unsubscribe()
	subA.Unsubscribe()
	if hub.Len() != 1 {
		t.Errorf("Len() = %d, want 1", hub.Len())
	}

	if _, err := store.Table(schema.Wallets).Add(ctx, storage.Record{"name": "Cash", "balance": 100}); err != nil {
		t.Fatal(err)
	}

	if res := b.next(t); res.State != Populated {
		t.Errorf("subscriber B state = %v, want populated", res.State)
	}
	a.none(t, 100*time.Millisecond)
	subB.Unsubscribe()
}

func TestUnsubscribeFromCallback(t *testing.T) {
	store, hub := setupTestHub(t, Options{})
	ctx := context.Background()

	var sub *Subscription
	calls := make(chan struct{}, 8)
	ready := make(chan struct{})
	sub = hub.Subscribe(storage.From(schema.Gold), func(Result) {
		<-ready
		calls <- struct{}{}
		sub.Unsubscribe()
	})
	close(ready)
	<-calls

	if _, err := store.Table(schema.Gold).Add(ctx, storage.Record{"weightGrams": 10}); err != nil {
		t.Fatal(err)
	}
	select {
	case <-calls:
		t.Error("callback fired after unsubscribing")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCoalescing(t *testing.T) {
	store, hub := setupTestHub(t, Options{Coalesce: 100 * time.Millisecond})
	ctx := context.Background()

	rec := newRecorder()
	sub := hub.Subscribe(storage.From(schema.Loans), rec.fn)
	defer sub.Unsubscribe()
	rec.next(t)

	for i := 0; i < 5; i++ {
		if _, err := store.Table(schema.Loans).Add(ctx, storage.Record{"name": "loan", "principal": i}); err != nil {
			t.Fatal(err)
		}
	}

	res := rec.next(t)
	if len(res.Records) != 5 {
		// A late commit may land after the window; the final state must still arrive
		deadline := time.After(waitTimeout)
		for len(res.Records) != 5 {
			select {
			case res = <-rec.ch:
			case <-deadline:
				t.Fatalf("never observed all 5 loans, last %d", len(res.Records))
			}
		}
	}
	rec.none(t, 250*time.Millisecond)
}

type failingQuerier struct {
	mu  sync.Mutex
	err error
}

func (f *failingQuerier) Find(context.Context, storage.Query) ([]storage.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []storage.Record{{"id": "x"}}, nil
}

func TestEvaluationErrorKeepsLastResult(t *testing.T) {
	src := &failingQuerier{}
	hub := NewHub(src, nil, Options{})
	defer hub.Close()

	rec := newRecorder()
	hub.Subscribe(storage.From(schema.Txns), rec.fn)
	rec.next(t)

	src.mu.Lock()
	src.err = errors.New("disk gone")
	src.mu.Unlock()
	hub.TablesChanged([]string{schema.Txns})

	res := rec.next(t)
	if res.Err == nil || res.State != Populated || len(res.Records) != 1 {
		t.Errorf("error result = %+v", res)
	}

	// Same error again is not redelivered
	hub.TablesChanged([]string{schema.Txns})
	rec.none(t, 100*time.Millisecond)
}

func TestClosedHub(t *testing.T) {
	_, hub := setupTestHub(t, Options{})
	hub.Close()
	hub.Close()

	rec := newRecorder()
	sub := hub.Subscribe(storage.From(schema.Txns), rec.fn)
	rec.none(t, 50*time.Millisecond)
	sub.Unsubscribe()
	if sub.Current().State != Loading {
		t.Error("subscription on a closed hub should stay loading")
	}
}

func TestStateJSON(t *testing.T) {
	for state, want := range map[State]string{Loading: `"loading"`, Empty: `"empty"`, Populated: `"populated"`} {
		data, err := state.MarshalJSON()
		if err != nil || string(data) != want {
			t.Errorf("MarshalJSON(%d) = %s, %v; want %s", state, data, err, want)
		}
	}
}
