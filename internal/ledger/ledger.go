// Package ledger is the transaction service: validated, normalized writes of
// the universal transaction through whichever backend is configured.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finledger/internal/backends"
	ferrors "finledger/internal/errors"
	"finledger/internal/live"
	"finledger/internal/models"
	"finledger/internal/schema"
	"finledger/internal/slogutil"
	"finledger/internal/storage"
)

// Filter selects transactions. Zero fields match everything.
type Filter struct {
	From     string // inclusive YYYY-MM-DD
	To       string // inclusive YYYY-MM-DD
	Category string
	Type     models.TxnType
	Limit    int
}

// Query converts the filter into a store query ordered newest first.
func (f Filter) Query() storage.Query {
	q := storage.From(schema.Txns).Sort("date", true)
	if f.From != "" {
		q = q.Filter("date", storage.OpGte, f.From)
	}
	if f.To != "" {
		q = q.Filter("date", storage.OpLte, f.To)
	}
	if f.Category != "" {
		q = q.Filter("category", storage.OpEq, f.Category)
	}
	if f.Type != "" {
		q = q.Filter("type", storage.OpEq, string(f.Type))
	}
	return q.Take(f.Limit)
}

// Validate checks the date bounds.
func (f Filter) Validate() error {
	var issues []ferrors.ValidationIssue
	if f.From != "" && !models.ValidDate(f.From) {
		issues = append(issues, ferrors.ValidationIssue{Path: "from", Message: "must be a YYYY-MM-DD date"})
	}
	if f.To != "" && !models.ValidDate(f.To) {
		issues = append(issues, ferrors.ValidationIssue{Path: "to", Message: "must be a YYYY-MM-DD date"})
	}
	if len(issues) > 0 {
		return ferrors.Validation("invalid filter", issues)
	}
	return nil
}

// Service reads and writes transactions.
type Service struct {
	backend backends.Backend
	userID  string
	now     func() time.Time
	logger  *slog.Logger
}

// NewService creates a service over backend. New transactions are stamped with userID.
func NewService(backend backends.Backend, userID string, logger *slog.Logger) *Service {
	return &Service{
		backend: backend,
		userID:  userID,
		now:     time.Now,
		logger:  slogutil.OrDiscard(logger),
	}
}

// Backend returns the underlying backend.
func (s *Service) Backend() backends.Backend {
	return s.backend
}

// Add validates and stores a new transaction and returns it as stored.
func (s *Service) Add(ctx context.Context, txn models.Transaction) (models.Transaction, error) {
	if err := models.Validate("transaction", txn); err != nil {
		return models.Transaction{}, err
	}
	txn.Normalize(s.now())
	if txn.UserID == "" {
		txn.UserID = s.userID
	}
	if txn.Source == "" {
		txn.Source = models.SourceManual
	}

	rec, err := storage.EncodeRecord(txn)
	if err != nil {
		return models.Transaction{}, err
	}
	id, err := s.backend.Add(ctx, schema.Txns, rec)
	if err != nil {
		return models.Transaction{}, err
	}
	txn.ID = id

	s.logger.Debug("Transaction added",
		"id", id,
		"type", txn.Type,
		"category", txn.Category,
	)
	return txn, nil
}

// Get returns one transaction, or NOT_FOUND.
func (s *Service) Get(ctx context.Context, id string) (models.Transaction, error) {
	rec, err := s.backend.Get(ctx, schema.Txns, id)
	if err != nil {
		return models.Transaction{}, err
	}
	if rec == nil {
		return models.Transaction{}, ferrors.Newf(ferrors.NotFound, "transaction %s not found", id)
	}
	return decode(rec)
}

// List returns the transactions matching f, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]models.Transaction, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	recs, err := s.backend.List(ctx, f.Query())
	if err != nil {
		return nil, err
	}
	return decodeAll(recs)
}

// Update applies patch to a stored transaction. The merged result must still
// validate; a nil value in patch clears that field.
func (s *Service) Update(ctx context.Context, id string, patch map[string]any) (models.Transaction, error) {
	rec, err := s.backend.Get(ctx, schema.Txns, id)
	if err != nil {
		return models.Transaction{}, err
	}
	if rec == nil {
		return models.Transaction{}, ferrors.Newf(ferrors.NotFound, "transaction %s not found", id)
	}
	if err := storage.Merge(rec, patch); err != nil {
		return models.Transaction{}, err
	}
	txn, err := decode(rec)
	if err != nil {
		return models.Transaction{}, err
	}
	if err := models.Validate("transaction", txn); err != nil {
		return models.Transaction{}, err
	}
	txn.Normalize(s.now())

	fields, err := storage.EncodeRecord(txn)
	if err != nil {
		return models.Transaction{}, err
	}
	for k, v := range patch {
		if v == nil {
			fields[k] = nil
		}
	}
	if _, err := s.backend.Update(ctx, schema.Txns, id, fields); err != nil {
		return models.Transaction{}, err
	}
	return txn, nil
}

// Delete removes a transaction. Deleting a missing one returns NOT_FOUND.
func (s *Service) Delete(ctx context.Context, id string) error {
	deleted, err := s.backend.Delete(ctx, schema.Txns, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ferrors.Newf(ferrors.NotFound, "transaction %s not found", id)
	}
	return nil
}

// WatchResult is one delivery of a watched transaction list.
type WatchResult struct {
	State        live.State
	Transactions []models.Transaction
	Err          error
}

// Watch delivers the transactions matching f now and after every change to them.
func (s *Service) Watch(f Filter, fn func(WatchResult)) (*live.Subscription, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return s.backend.Subscribe(f.Query(), func(r live.Result) {
		u := WatchResult{State: r.State, Err: r.Err}
		txns, err := decodeAll(r.Records)
		if err != nil && u.Err == nil {
			u.Err = err
		}
		u.Transactions = txns
		fn(u)
	}), nil
}

func decode(rec storage.Record) (models.Transaction, error) {
	var txn models.Transaction
	if err := rec.Decode(&txn); err != nil {
		return models.Transaction{}, fmt.Errorf("decode transaction %s: %w", rec.ID(), err)
	}
	return txn, nil
}

func decodeAll(recs []storage.Record) ([]models.Transaction, error) {
	out := make([]models.Transaction, 0, len(recs))
	for _, r := range recs {
		txn, err := decode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, nil
}
