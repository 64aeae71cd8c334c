// Package integrity sweeps the store for defects the write path does not
// prevent: missing required fields, likely duplicate transactions, dangling
// weak references and broken transaction invariants. Findings are data, never
// errors. PerformAutoFix repairs only the defects with one obvious answer.
package integrity

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finledger/internal/audit"
	"finledger/internal/models"
	"finledger/internal/schema"
	"finledger/internal/slogutil"
	"finledger/internal/storage"
)

// Invariant rule names
const (
	RuleSplitSum        = "split_sum"
	RulePartialRentLink = "partial_rent_link"
	RulePaymentMixSum   = "payment_mix_sum"
	RuleUndecodable     = "undecodable"
)

// MissingField is a record lacking a field its table requires.
type MissingField struct {
	Table    string `json:"table"`
	RecordID string `json:"recordId"`
	Field    string `json:"field"`
}

// DuplicateGroup is a set of transactions sharing date, amount and category.
type DuplicateGroup struct {
	Date      string   `json:"date"`
	Amount    string   `json:"amount"`
	Category  string   `json:"category"`
	RecordIDs []string `json:"recordIds"`
}

// Orphan is a weak reference to a record that does not exist.
type Orphan struct {
	Table      string `json:"table"`
	RecordID   string `json:"recordId"`
	Field      string `json:"field"`
	References string `json:"references"`
	MissingID  string `json:"missingId"`
}

// Violation is a transaction breaking an advisory invariant.
type Violation struct {
	Table    string `json:"table"`
	RecordID string `json:"recordId"`
	Rule     string `json:"rule"`
	Message  string `json:"message"`
}

// Report is the result of a full sweep. Every list is sorted, so two sweeps
// over the same data produce equal reports.
type Report struct {
	TablesChecked         int              `json:"tablesChecked"`
	RecordsChecked        int              `json:"recordsChecked"`
	MissingRequiredFields []MissingField   `json:"missingRequiredFields"`
	DuplicateRecords      []DuplicateGroup `json:"duplicateRecords"`
	OrphanedRecords       []Orphan         `json:"orphanedRecords"`
	InvariantViolations   []Violation      `json:"invariantViolations"`
}

// IssueCount returns the number of findings.
func (r *Report) IssueCount() int {
	return len(r.MissingRequiredFields) + len(r.DuplicateRecords) + len(r.OrphanedRecords) + len(r.InvariantViolations)
}

// Clean reports whether the sweep found nothing.
func (r *Report) Clean() bool {
	return r.IssueCount() == 0
}

// FixResult summarizes an auto-fix pass.
type FixResult struct {
	Fixed   int            `json:"fixed"`
	ByTable map[string]int `json:"byTable"`
	Errors  []string       `json:"errors"`
}

// Checker runs integrity sweeps over a store.
type Checker struct {
	store  *storage.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewChecker creates a checker.
func NewChecker(store *storage.Store, logger *slog.Logger) *Checker {
	return &Checker{store: store, logger: slogutil.OrDiscard(logger), now: time.Now}
}

// PerformIntegrityCheck reads every table and reports what it finds. It never writes.
func (c *Checker) PerformIntegrityCheck(ctx context.Context) (*Report, error) {
	report := &Report{
		MissingRequiredFields: []MissingField{},
		DuplicateRecords:      []DuplicateGroup{},
		OrphanedRecords:       []Orphan{},
		InvariantViolations:   []Violation{},
	}

	tables := c.store.Registry().Latest().Tables
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		names = append(names, t.Name)
	}

	// one transaction so orphans are judged against a single snapshot
	data := make(map[string][]storage.Record, len(tables))
	err := c.store.RunTransaction(ctx, names, func(tx *storage.Tx) error {
		for _, name := range names {
			recs, err := tx.Find(storage.From(name))
			if err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}
			data[name] = recs
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		report.TablesChecked++
		report.RecordsChecked += len(data[name])
	}

	ids := make(map[string]map[string]bool, len(tables))
	idsOf := func(table string) map[string]bool {
		if set, ok := ids[table]; ok {
			return set
		}
		set := make(map[string]bool, len(data[table]))
		for _, r := range data[table] {
			set[r.ID()] = true
		}
		ids[table] = set
		return set
	}

	for _, t := range tables {
		for _, rec := range data[t.Name] {
			for _, f := range t.Required {
				if missing(rec, f) {
					report.MissingRequiredFields = append(report.MissingRequiredFields, MissingField{
						Table: t.Name, RecordID: rec.ID(), Field: f,
					})
				}
			}
			for _, fk := range t.ForeignKeys {
				if _, known := c.store.Registry().Table(fk.Table); !known {
					continue
				}
				ref, ok := refValue(rec, fk.Field)
				if !ok || idsOf(fk.Table)[ref] {
					continue
				}
				report.OrphanedRecords = append(report.OrphanedRecords, Orphan{
					Table: t.Name, RecordID: rec.ID(), Field: fk.Field, References: fk.Table, MissingID: ref,
				})
			}
		}
	}

	report.DuplicateRecords = duplicates(data[schema.Txns])
	report.InvariantViolations = violations(data[schema.Txns])

	sort.SliceStable(report.MissingRequiredFields, func(i, j int) bool {
		a, b := report.MissingRequiredFields[i], report.MissingRequiredFields[j]
		if a.Table != b.Table {
			return a.Table < b.Table
		}
		if a.RecordID != b.RecordID {
			return a.RecordID < b.RecordID
		}
		return a.Field < b.Field
	})
	sort.SliceStable(report.OrphanedRecords, func(i, j int) bool {
		a, b := report.OrphanedRecords[i], report.OrphanedRecords[j]
		if a.Table != b.Table {
			return a.Table < b.Table
		}
		if a.RecordID != b.RecordID {
			return a.RecordID < b.RecordID
		}
		return a.Field < b.Field
	})

	c.logger.Info("Integrity check complete",
		"tables", report.TablesChecked,
		"records", report.RecordsChecked,
		"issues", report.IssueCount(),
	)
	return report, nil
}

// missing treats absent, null and empty-string values as missing.
func missing(rec storage.Record, field string) bool {
	v, ok := rec.Field(field)
	if !ok || v == nil {
		return true
	}
	if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
		return true
	}
	return false
}

func refValue(rec storage.Record, field string) (string, bool) {
	v, ok := rec.Field(field)
	if !ok {
		return "", false
	}
	s, isStr := v.(string)
	if !isStr || s == "" {
		return "", false
	}
	return s, true
}

// amountKey renders an amount so 100, 100.0 and "100.00" compare equal.
func amountKey(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	d, err := decimal.NewFromString(fmt.Sprint(v))
	if err != nil {
		return "", false
	}
	return d.String(), true
}

func duplicates(txns []storage.Record) []DuplicateGroup {
	type key struct{ date, amount, category string }
	groups := make(map[key][]string)
	for _, rec := range txns {
		date, _ := rec["date"].(string)
		amount, ok := amountKey(rec["amount"])
		if date == "" || !ok {
			continue
		}
		category, _ := rec["category"].(string)
		k := key{date, amount, category}
		groups[k] = append(groups[k], rec.ID())
	}

	out := []DuplicateGroup{}
	for k, ids := range groups {
		if len(ids) < 2 {
			continue
		}
		sort.Strings(ids)
		out = append(out, DuplicateGroup{Date: k.date, Amount: k.amount, Category: k.category, RecordIDs: ids})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Amount != b.Amount {
			return a.Amount < b.Amount
		}
		return a.RecordIDs[0] < b.RecordIDs[0]
	})
	return out
}

func violations(txns []storage.Record) []Violation {
	out := []Violation{}
	for _, rec := range txns {
		var t models.Transaction
		if err := rec.Decode(&t); err != nil {
			out = append(out, Violation{Table: schema.Txns, RecordID: rec.ID(), Rule: RuleUndecodable, Message: err.Error()})
			continue
		}
		if t.SplitMismatch() {
			out = append(out, Violation{Table: schema.Txns, RecordID: rec.ID(), Rule: RuleSplitSum,
				Message: "split shares do not add up to " + t.Amount.String()})
		}
		if t.PartialRentUnlinked() {
			out = append(out, Violation{Table: schema.Txns, RecordID: rec.ID(), Rule: RulePartialRentLink,
				Message: "partial rent needs both propertyId and tenantId"})
		}
		if t.PaymentMixMismatch() {
			out = append(out, Violation{Table: schema.Txns, RecordID: rec.ID(), Rule: RulePaymentMixSum,
				Message: "payment mix does not add up to " + t.Amount.String()})
		}
	}
	return out
}

// PerformAutoFix sets null or absent collection fields to [] and null or
// absent boolean flags to false. Nothing else is touched. Each table is fixed
// in its own transaction; a value of the wrong type is reported in Errors and
// its record left as it is.
func (c *Checker) PerformAutoFix(ctx context.Context) (*FixResult, error) {
	result := &FixResult{ByTable: make(map[string]int), Errors: []string{}}

	for _, t := range c.store.Registry().Latest().Tables {
		if len(t.Collections) == 0 && len(t.Booleans) == 0 {
			continue
		}
		def := t
		var skipped []string
		var n int
		err := c.store.RunTransaction(ctx, []string{def.Name}, func(tx *storage.Tx) error {
			skipped = skipped[:0]
			var err error
			n, err = tx.Rewrite(ctx, def.Name, func(doc map[string]any) (bool, error) {
				changed, problems := fixRecord(def, doc)
				if len(problems) > 0 {
					id, _ := doc["id"].(string)
					for _, p := range problems {
						skipped = append(skipped, fmt.Sprintf("%s/%s: %s", def.Name, id, p))
					}
					return false, nil
				}
				return changed, nil
			})
			return err
		})
		if err != nil {
			c.logger.Error("Auto-fix failed for table", "table", def.Name, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", def.Name, err))
			continue
		}
		result.Errors = append(result.Errors, skipped...)
		if n > 0 {
			result.ByTable[def.Name] = n
			result.Fixed += n
		}
	}

	if result.Fixed > 0 {
		err := c.store.RunTransaction(ctx, []string{schema.AuditLogs}, func(tx *storage.Tx) error {
			return audit.Log(tx, c.now(), models.AuditAutoFix, "", "", map[string]any{
				"fixed":   result.Fixed,
				"byTable": result.ByTable,
			})
		})
		if err != nil {
			return result, err
		}
	}

	c.logger.Info("Auto-fix complete", "fixed", result.Fixed, "errors", len(result.Errors))
	return result, nil
}

// fixRecord applies the safe defaults to doc. A record with any field of the
// wrong type is reported and must not be written.
func fixRecord(t schema.TableDef, doc map[string]any) (bool, []string) {
	var problems []string
	changes := make(map[string]any)

	for _, f := range t.Collections {
		v, ok := doc[f]
		switch {
		case !ok || v == nil:
			changes[f] = []any{}
		default:
			if _, isList := v.([]any); !isList {
				problems = append(problems, fmt.Sprintf("%s is %T, not a list", f, v))
			}
		}
	}
	for _, f := range t.Booleans {
		v, ok := doc[f]
		switch {
		case !ok || v == nil:
			changes[f] = false
		default:
			if _, isBool := v.(bool); !isBool {
				problems = append(problems, fmt.Sprintf("%s is %T, not a boolean", f, v))
			}
		}
	}

	if len(problems) > 0 {
		return false, problems
	}
	for k, v := range changes {
		doc[k] = v
	}
	return len(changes) > 0, nil
}
