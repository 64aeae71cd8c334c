// Package live keeps query results current as the underlying tables change.
//
// A Hub is told which tables each committed transaction modified. Every
// subscription whose query reads one of those tables is marked dirty and
// re-evaluated on its own goroutine. Signals coalesce: a subscription that is
// already dirty stays dirty once, so a burst of commits costs one query. The
// callback only fires when the result differs from the last one delivered.
//
// Evaluation runs after commit against committed data, so a subscriber sees
// either the state before a transaction or the state after it, never a mix.
package live

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"finledger/internal/slogutil"
	"finledger/internal/storage"
)

// State distinguishes "not evaluated yet" from "evaluated and empty".
type State int

const (
	Loading State = iota
	Empty
	Populated
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Empty:
		return "empty"
	case Populated:
		return "populated"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the state name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Result is one delivered query result. Err is set when the last evaluation
// failed; State and Records then keep the previous good result.
type Result struct {
	State   State            `json:"state"`
	Records []storage.Record `json:"records,omitempty"`
	Err     error            `json:"-"`
}

// Querier evaluates a query. storage.Store and every backend adapter implement it.
type Querier interface {
	Find(ctx context.Context, q storage.Query) ([]storage.Record, error)
}

// ChangeSource publishes committed table changes.
type ChangeSource interface {
	AddListener(l storage.ChangeListener) (remove func())
}

// Options tune a Hub.
type Options struct {
	// Coalesce delays re-evaluation after a change so closely spaced commits share one query
	Coalesce time.Duration
}

// Hub owns every live subscription over one Querier.
type Hub struct {
	src      Querier
	logger   *slog.Logger
	coalesce time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	subs    map[uint64]*Subscription
	nextID  uint64
	closed  bool
	detachs []func()
}

// NewHub creates a hub evaluating queries against src.
func NewHub(src Querier, logger *slog.Logger, opts Options) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		src:      src,
		logger:   slogutil.OrDiscard(logger),
		coalesce: opts.Coalesce,
		ctx:      ctx,
		cancel:   cancel,
		subs:     make(map[uint64]*Subscription),
	}
}

// Attach subscribes the hub to a change source. Close detaches it again.
func (h *Hub) Attach(src ChangeSource) {
	remove := src.AddListener(h)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		remove()
		return
	}
	h.detachs = append(h.detachs, remove)
}

// TablesChanged implements storage.ChangeListener.
func (h *Hub) TablesChanged(tables []string) {
	changed := make(map[string]bool, len(tables))
	for _, t := range tables {
		changed[t] = true
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if changed[sub.query.Table] {
			sub.markDirty()
		}
	}
}

// Subscribe starts a live query. fn is called from the subscription's own
// goroutine, first with the initial result and then after every change that
// alters the result. A closed hub returns a subscription that never fires.
func (h *Hub) Subscribe(q storage.Query, fn func(Result)) *Subscription {
	sub := &Subscription{
		hub:   h,
		query: q,
		fn:    fn,
		dirty: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.stopOnce.Do(func() { close(sub.done) })
		return sub
	}
	sub.id = h.nextID
	h.nextID++
	h.subs[sub.id] = sub
	h.wg.Add(1)
	h.mu.Unlock()

	go sub.run()
	return sub
}

// Len returns the number of active subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close stops every subscription and waits for their goroutines to exit.
// It must not be called from inside a subscription callback.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	detachs := h.detachs
	h.detachs = nil
	h.mu.Unlock()

	for _, d := range detachs {
		d()
	}
	for _, s := range subs {
		s.Unsubscribe()
	}
	h.cancel()
	h.wg.Wait()
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Subscription is one live query.
type Subscription struct {
	hub   *Hub
	id    uint64
	query storage.Query
	fn    func(Result)

	dirty    chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu        sync.Mutex
	current   Result
	lastKey   []byte
	delivered bool
}

// Query returns the subscribed query.
func (s *Subscription) Query() storage.Query {
	return s.query
}

// Current returns the last evaluated result; Loading until the first evaluation.
func (s *Subscription) Current() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Unsubscribe stops future callbacks. Other subscriptions are unaffected.
// Safe to call more than once and from inside the callback.
func (s *Subscription) Unsubscribe() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.hub != nil {
			s.hub.remove(s.id)
		}
	})
}

func (s *Subscription) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
		// already pending
	}
}

func (s *Subscription) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Subscription) run() {
	defer s.hub.wg.Done()

	s.evaluate()
	for {
		select {
		case <-s.done:
			return
		case <-s.dirty:
		}

		if d := s.hub.coalesce; d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-s.done:
				timer.Stop()
				return
			case <-timer.C:
			}
			// signals that arrived during the delay are covered by this evaluation
			select {
			case <-s.dirty:
			default:
			}
		}
		s.evaluate()
	}
}

func (s *Subscription) evaluate() {
	if s.stopped() {
		return
	}
	recs, err := s.hub.src.Find(s.hub.ctx, s.query)

	s.mu.Lock()
	var next Result
	if err != nil {
		if s.stopped() {
			s.mu.Unlock()
			return
		}
		s.hub.logger.Warn("Live query evaluation failed",
			"table", s.query.Table,
			"error", err,
		)
		next = Result{State: s.current.State, Records: s.current.Records, Err: err}
	} else {
		next = Result{State: Empty, Records: recs}
		if len(recs) > 0 {
			next.State = Populated
		}
	}

	key := resultKey(next)
	if s.delivered && bytes.Equal(key, s.lastKey) {
		s.mu.Unlock()
		return
	}
	s.current = next
	s.lastKey = key
	s.delivered = true
	s.mu.Unlock()

	if s.fn != nil && !s.stopped() {
		s.fn(next)
	}
}

// resultKey is the comparable form of a result used to suppress repeats.
func resultKey(r Result) []byte {
	var buf bytes.Buffer
	buf.WriteString(r.State.String())
	if r.Err != nil {
		buf.WriteString("|err:")
		buf.WriteString(r.Err.Error())
	}
	buf.WriteByte('|')
	data, _ := json.Marshal(r.Records)
	buf.Write(data)
	return buf.Bytes()
}
