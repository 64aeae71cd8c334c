// Package retention deletes records that have aged out of their table's
// retention window.
//
// A record is eligible when its date field is strictly older than the cutoff
// (now minus the window in months). Dates compare at day granularity, so a
// record dated on the cutoff day is kept and one dated the day before is not.
// Timestamps compare against local midnight of the cutoff day. Year fields
// compare by calendar year.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finledger/internal/audit"
	"finledger/internal/models"
	"finledger/internal/schema"
	"finledger/internal/slogutil"
	"finledger/internal/storage"
)

// TableResult is the outcome of one policy in an Execute run.
type TableResult struct {
	Table   string `json:"table"`
	Cutoff  string `json:"cutoff"`
	Deleted int    `json:"deleted"`
	Error   string `json:"error,omitempty"`
}

// TableStats is the dry-run view of one policy.
type TableStats struct {
	Table               string `json:"table"`
	RetentionMonths     int    `json:"retentionMonths"`
	Cutoff              string `json:"cutoff"`
	TotalRecords        int    `json:"totalRecords"`
	EligibleForDeletion int    `json:"eligibleForDeletion"`
}

// Engine applies retention policies to a store.
type Engine struct {
	store    *storage.Store
	policies []Policy
	now      func() time.Time
	logger   *slog.Logger
}

// NewEngine creates an engine for policies. Disabled policies are ignored.
func NewEngine(store *storage.Store, policies []Policy, logger *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		policies: policies,
		now:      time.Now,
		logger:   slogutil.OrDiscard(logger),
	}
}

// Policies returns the engine's policy list.
func (e *Engine) Policies() []Policy {
	out := make([]Policy, len(e.policies))
	copy(out, e.policies)
	return out
}

// Cutoff returns the oldest date still retained under a window of months.
func Cutoff(now time.Time, months int) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, -months, 0)
}

// eligible builds the query matching records older than cutoff.
func eligible(def schema.TableDef, cutoff time.Time) (storage.Query, error) {
	q := storage.From(def.Name)
	switch def.DateKind {
	case schema.DateISO:
		return q.Filter(def.DateField, storage.OpLt, cutoff.Format(models.DateLayout)), nil
	case schema.DateTimestamp:
		// timestamps are stored in UTC; the cutoff is local midnight
		return q.Filter(def.DateField, storage.OpLt, cutoff.UTC().Format(time.RFC3339)), nil
	case schema.DateYear:
		return q.Filter(def.DateField, storage.OpLt, cutoff.Year()), nil
	default:
		return q, fmt.Errorf("table %q has no date field", def.Name)
	}
}

func (e *Engine) resolve(p Policy) (schema.TableDef, time.Time, storage.Query, error) {
	def, ok := e.store.Registry().Table(p.Table)
	if !ok {
		return def, time.Time{}, storage.Query{}, fmt.Errorf("unknown table %q", p.Table)
	}
	if p.RetentionMonths <= 0 {
		return def, time.Time{}, storage.Query{}, fmt.Errorf("retention for %q must be at least one month", p.Table)
	}
	cutoff := Cutoff(e.now(), p.RetentionMonths)
	q, err := eligible(def, cutoff)
	return def, cutoff, q, err
}

// Execute runs every enabled policy. Each table is deleted from in its own
// transaction; a failing table is logged, reported in its result and skipped.
func (e *Engine) Execute(ctx context.Context) []TableResult {
	var results []TableResult
	total := 0

	for _, p := range e.policies {
		if !p.Enabled {
			continue
		}
		res := TableResult{Table: p.Table}
		_, cutoff, q, err := e.resolve(p)
		if err == nil {
			res.Cutoff = cutoff.Format(models.DateLayout)
			err = e.store.RunTransaction(ctx, []string{p.Table}, func(tx *storage.Tx) error {
				n, err := tx.DeleteWhere(q)
				res.Deleted = n
				return err
			})
		}
		if err != nil {
			res.Deleted = 0
			res.Error = err.Error()
			e.logger.Error("Retention policy failed",
				"table", p.Table,
				"error", err,
			)
		} else {
			total += res.Deleted
			e.logger.Info("Retention policy applied",
				"table", p.Table,
				"cutoff", res.Cutoff,
				"deleted", res.Deleted,
			)
		}
		results = append(results, res)
	}

	if total > 0 {
		details := make(map[string]any, len(results))
		for _, r := range results {
			if r.Error == "" {
				details[r.Table] = r.Deleted
			}
		}
		err := e.store.RunTransaction(ctx, []string{schema.AuditLogs}, func(tx *storage.Tx) error {
			return audit.Log(tx, e.now(), models.AuditRetention, "", "", details)
		})
		if err != nil {
			e.logger.Warn("Failed to audit retention run", "error", err)
		}
	}
	return results
}

// Stats reports, per enabled policy, how many records exist and how many
// Execute would delete right now. It never writes.
func (e *Engine) Stats(ctx context.Context) ([]TableStats, error) {
	var out []TableStats
	for _, p := range e.policies {
		if !p.Enabled {
			continue
		}
		_, cutoff, q, err := e.resolve(p)
		if err != nil {
			return nil, err
		}
		total, err := e.store.Count(ctx, storage.From(p.Table))
		if err != nil {
			return nil, err
		}
		eligible, err := e.store.Count(ctx, q)
		if err != nil {
			return nil, err
		}
		out = append(out, TableStats{
			Table:               p.Table,
			RetentionMonths:     p.RetentionMonths,
			Cutoff:              cutoff.Format(models.DateLayout),
			TotalRecords:        total,
			EligibleForDeletion: eligible,
		})
	}
	return out, nil
}
