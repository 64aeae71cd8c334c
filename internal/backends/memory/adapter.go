// Package memory is an in-process stand-in for a remote record service.
//
// A Server holds documents for any number of users. Each Adapter is one
// user's client connection to it; writes from any client reach every client's
// live subscriptions.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"finledger/internal/backends"
	ferrors "finledger/internal/errors"
	"finledger/internal/live"
	"finledger/internal/schema"
	"finledger/internal/slogutil"
	"finledger/internal/storage"
)

type rowKey struct {
	user  string
	table string
	id    string
}

// Server is the shared document space.
type Server struct {
	mu   sync.RWMutex
	rows map[rowKey]storage.Record

	listenersMu sync.Mutex
	listeners   map[int]storage.ChangeListener
	nextID      int
}

// NewServer creates an empty server.
func NewServer() *Server {
	return &Server{
		rows:      make(map[rowKey]storage.Record),
		listeners: make(map[int]storage.ChangeListener),
	}
}

// AddListener implements live.ChangeSource.
func (s *Server) AddListener(l storage.ChangeListener) (remove func()) {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *Server) notify(table string) {
	s.listenersMu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	ls := make([]storage.ChangeListener, 0, len(ids))
	for _, id := range ids {
		ls = append(ls, s.listeners[id])
	}
	s.listenersMu.Unlock()

	for _, l := range ls {
		l.TablesChanged([]string{table})
	}
}

// Len returns the number of documents held for all users.
func (s *Server) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Adapter is one user's connection to a Server.
type Adapter struct {
	server   *Server
	registry *schema.Registry
	userID   string
	hub      *live.Hub
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

// New connects userID to server. A nil server gets a private one.
func New(server *Server, registry *schema.Registry, userID string, logger *slog.Logger, opts live.Options) *Adapter {
	if server == nil {
		server = NewServer()
	}
	if registry == nil {
		registry = schema.Default()
	}
	a := &Adapter{
		server:   server,
		registry: registry,
		userID:   userID,
		logger:   slogutil.OrDiscard(logger),
	}
	a.hub = live.NewHub(a, a.logger, opts)
	a.hub.Attach(server)
	return a
}

// ID implements backends.Backend.
func (a *Adapter) ID() backends.BackendID {
	return backends.BackendMemory
}

func (a *Adapter) check() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ferrors.Newf(ferrors.StoreClosed, "memory backend for %q is closed", a.userID)
	}
	return nil
}

func (a *Adapter) key(table, id string) rowKey {
	return rowKey{user: a.userID, table: table, id: id}
}

func (a *Adapter) Get(ctx context.Context, table, id string) (storage.Record, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	if err := backends.CheckTable(a.registry, table); err != nil {
		return nil, err
	}
	a.server.mu.RLock()
	defer a.server.mu.RUnlock()
	rec, ok := a.server.rows[a.key(table, id)]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

// Find implements live.Querier.
func (a *Adapter) Find(ctx context.Context, q storage.Query) ([]storage.Record, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	if err := backends.CheckTable(a.registry, q.Table); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	a.server.mu.RLock()
	recs := make([]storage.Record, 0)
	for k, rec := range a.server.rows {
		if k.user == a.userID && k.table == q.Table {
			recs = append(recs, rec.Clone())
		}
	}
	a.server.mu.RUnlock()

	return storage.Apply(q, recs), nil
}

func (a *Adapter) List(ctx context.Context, q storage.Query) ([]storage.Record, error) {
	return a.Find(ctx, q)
}

func (a *Adapter) Add(ctx context.Context, table string, rec storage.Record) (string, error) {
	if err := a.check(); err != nil {
		return "", err
	}
	doc, id, err := backends.PrepareAdd(a.registry, table, rec)
	if err != nil {
		return "", err
	}

	a.server.mu.Lock()
	k := a.key(table, id)
	if _, exists := a.server.rows[k]; exists {
		a.server.mu.Unlock()
		return "", backends.Duplicate(table, id, nil)
	}
	a.server.rows[k] = doc
	a.server.mu.Unlock()

	a.server.notify(table)
	return id, nil
}

func (a *Adapter) Update(ctx context.Context, table, id string, fields map[string]any) (storage.Record, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	if err := backends.CheckTable(a.registry, table); err != nil {
		return nil, err
	}

	a.server.mu.Lock()
	k := a.key(table, id)
	cur, ok := a.server.rows[k]
	if !ok {
		a.server.mu.Unlock()
		return nil, backends.Missing(table, id)
	}
	next := cur.Clone()
	if err := storage.Merge(next, fields); err != nil {
		a.server.mu.Unlock()
		return nil, err
	}
	a.server.rows[k] = next
	a.server.mu.Unlock()

	a.server.notify(table)
	return next.Clone(), nil
}

func (a *Adapter) Delete(ctx context.Context, table, id string) (bool, error) {
	if err := a.check(); err != nil {
		return false, err
	}
	if err := backends.CheckTable(a.registry, table); err != nil {
		return false, err
	}

	a.server.mu.Lock()
	k := a.key(table, id)
	_, ok := a.server.rows[k]
	delete(a.server.rows, k)
	a.server.mu.Unlock()

	if ok {
		a.server.notify(table)
	}
	return ok, nil
}

func (a *Adapter) Subscribe(q storage.Query, fn func(live.Result)) *live.Subscription {
	return a.hub.Subscribe(q, fn)
}

// Close disconnects the client. The server keeps its data.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.hub.Close()
	return nil
}
