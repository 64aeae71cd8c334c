// Package local adapts the embedded store to the backends.Backend interface.
package local

import (
	"context"
	"log/slog"

	"finledger/internal/backends"
	"finledger/internal/live"
	"finledger/internal/slogutil"
	"finledger/internal/storage"
)

// Adapter serves records from an open storage.Store.
type Adapter struct {
	store  *storage.Store
	hub    *live.Hub
	logger *slog.Logger
}

// New wraps store. The caller keeps ownership of the store and closes it
// after the adapter.
func New(store *storage.Store, logger *slog.Logger, opts live.Options) *Adapter {
	logger = slogutil.OrDiscard(logger)
	hub := live.NewHub(store, logger, opts)
	hub.Attach(store)
	return &Adapter{store: store, hub: hub, logger: logger}
}

// ID implements backends.Backend.
func (a *Adapter) ID() backends.BackendID {
	return backends.BackendLocal
}

// Store returns the wrapped store.
func (a *Adapter) Store() *storage.Store {
	return a.store
}

func (a *Adapter) Get(ctx context.Context, table, id string) (storage.Record, error) {
	return a.store.Get(ctx, table, id)
}

func (a *Adapter) List(ctx context.Context, q storage.Query) ([]storage.Record, error) {
	return a.store.Find(ctx, q)
}

func (a *Adapter) Add(ctx context.Context, table string, rec storage.Record) (string, error) {
	return a.store.Table(table).Add(ctx, rec.Clone())
}

func (a *Adapter) Update(ctx context.Context, table, id string, fields map[string]any) (storage.Record, error) {
	return a.store.Table(table).Update(ctx, id, fields)
}

func (a *Adapter) Delete(ctx context.Context, table, id string) (bool, error) {
	return a.store.Table(table).Delete(ctx, id)
}

func (a *Adapter) Subscribe(q storage.Query, fn func(live.Result)) *live.Subscription {
	return a.hub.Subscribe(q, fn)
}

// Close stops every subscription. The store stays open.
func (a *Adapter) Close() error {
	a.hub.Close()
	a.logger.Debug("Local backend closed", "path", a.store.Path())
	return nil
}
