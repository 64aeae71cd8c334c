// Package models defines the typed documents stored in each finledger table.
//
// Money is shopspring/decimal and is written as a bare JSON number so the
// store can compare and index amounts. Dates are YYYY-MM-DD strings and
// timestamps RFC3339 strings, matching what the retention engine compares.
package models

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finledger/internal/schema"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// DateLayout is the on-disk date format.
const DateLayout = "2006-01-02"

// TxnType is the direction of a transaction.
type TxnType string

const (
	Expense  TxnType = "expense"
	Income   TxnType = "income"
	Transfer TxnType = "transfer"
)

// Transaction sources
const (
	SourceManual        = "manual"
	SourceBankStatement = "bank_statement"
	SourceCreditCard    = "credit_card"
	SourceUPI           = "upi"
	SourceImport        = "import"
	// SourceOtherPrefix marks a free-text source, e.g. "other:cash register"
	SourceOtherPrefix = "other:"
)

// PaymentPart is one leg of a transaction paid through several modes.
type PaymentPart struct {
	Mode   string          `json:"mode" validate:"required"`
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
	Ref    string          `json:"ref,omitempty"`
}

// SplitShare is one person's share of a split transaction.
type SplitShare struct {
	Person  string          `json:"person" validate:"required"`
	Amount  decimal.Decimal `json:"amount" validate:"gte=0"`
	Settled bool            `json:"settled"`
}

// Transaction is the universal transaction row in txns.
type Transaction struct {
	ID            string          `json:"id"`
	Amount        decimal.Decimal `json:"amount" validate:"gt=0"`
	Type          TxnType         `json:"type" validate:"oneof=expense income transfer"`
	Date          string          `json:"date" validate:"required,isodate"`
	Currency      string          `json:"currency,omitempty"`
	Category      string          `json:"category,omitempty"`
	Note          string          `json:"note,omitempty"`
	Description   string          `json:"description,omitempty"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`
	Tags          []string        `json:"tags"`

	GoalID     string `json:"goalId,omitempty"`
	CardID     string `json:"cardId,omitempty"`
	VehicleID  string `json:"vehicleId,omitempty"`
	TenantID   string `json:"tenantId,omitempty"`
	PropertyID string `json:"propertyId,omitempty"`

	PaymentMix    []PaymentPart `json:"paymentMix" validate:"dive"`
	IsSplit       bool          `json:"isSplit"`
	SplitWith     []SplitShare  `json:"splitWith" validate:"dive"`
	IsPartialRent bool          `json:"isPartialRent"`

	Source    string `json:"source,omitempty" validate:"omitempty,txnsource"`
	UserID    string `json:"userId,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// Normalize fills defaults before a write: currency, empty collections,
// a deduplicated sorted tag set and timestamps. The id is left to the store.
func (t *Transaction) Normalize(now time.Time) {
	t.Currency = schema.DefaultCurrency
	t.Tags = NormalizeTags(t.Tags)
	if t.PaymentMix == nil {
		t.PaymentMix = []PaymentPart{}
	}
	if t.SplitWith == nil {
		t.SplitWith = []SplitShare{}
	}
	stamp := now.UTC().Format(time.RFC3339)
	if t.CreatedAt == "" {
		t.CreatedAt = stamp
	}
	t.UpdatedAt = stamp
}

// NormalizeTags trims, deduplicates and sorts a tag set. Never returns nil.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// SplitMismatch reports a split transaction whose shares do not add up to the amount.
func (t Transaction) SplitMismatch() bool {
	if !t.IsSplit {
		return false
	}
	sum := decimal.Zero
	for _, s := range t.SplitWith {
		sum = sum.Add(s.Amount)
	}
	return !sum.Equal(t.Amount)
}

// PartialRentUnlinked reports a partial-rent transaction without both rental links.
func (t Transaction) PartialRentUnlinked() bool {
	return t.IsPartialRent && (t.PropertyID == "" || t.TenantID == "")
}

// PaymentMixMismatch reports a payment mix whose legs do not add up to the amount.
// An empty mix means a single payment and always matches.
func (t Transaction) PaymentMixMismatch() bool {
	if len(t.PaymentMix) == 0 {
		return false
	}
	sum := decimal.Zero
	for _, p := range t.PaymentMix {
		sum = sum.Add(p.Amount)
	}
	return !sum.Equal(t.Amount)
}

// ValidSource reports whether s is a known source or an "other:" free-text source.
func ValidSource(s string) bool {
	switch s {
	case SourceManual, SourceBankStatement, SourceCreditCard, SourceUPI, SourceImport:
		return true
	}
	return strings.HasPrefix(s, SourceOtherPrefix) && len(strings.TrimSpace(s[len(SourceOtherPrefix):])) > 0
}

// ValidDate reports whether s is a real YYYY-MM-DD calendar date.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}
