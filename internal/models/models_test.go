package models

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	ferrors "finledger/internal/errors"
	"finledger/internal/schema"
)

func validTxn() Transaction {
	return Transaction{
		Amount:   decimal.NewFromInt(1000),
		Type:     Expense,
		Date:     "2026-10-16",
		Category: "Food",
	}
}

func TestTransactionValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Transaction)
		wantPath string
	}{
		{"valid", func(*Transaction) {}, ""},
		{"zero amount", func(tx *Transaction) { tx.Amount = decimal.Zero }, "amount"},
		{"negative amount", func(tx *Transaction) { tx.Amount = decimal.NewFromInt(-5) }, "amount"},
		{"bad date", func(tx *Transaction) { tx.Date = "16/10/2026" }, "date"},
		{"impossible date", func(tx *Transaction) { tx.Date = "2026-02-30" }, "date"},
		{"missing date", func(tx *Transaction) { tx.Date = "" }, "date"},
		{"bad type", func(tx *Transaction) { tx.Type = "gift" }, "type"},
		{"bad source", func(tx *Transaction) { tx.Source = "cash" }, "source"},
		{"other source", func(tx *Transaction) { tx.Source = "other:cash box" }, ""},
		{"empty other source", func(tx *Transaction) { tx.Source = "other: " }, "source"},
		{"bad split share", func(tx *Transaction) {
			tx.SplitWith = []SplitShare{{Person: "", Amount: decimal.NewFromInt(1)}}
		}, "splitWith[0].person"},
		{"bad payment leg", func(tx *Transaction) {
			tx.PaymentMix = []PaymentPart{{Mode: "upi", Amount: decimal.Zero}}
		}, "paymentMix[0].amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := validTxn()
			tt.mutate(&txn)
			issues := Check("", txn)
			if tt.wantPath == "" {
				if len(issues) != 0 {
					t.Errorf("unexpected issues %v", issues)
				}
				return
			}
			if len(issues) != 1 || issues[0].Path != tt.wantPath {
				t.Errorf("issues = %v, want one at %s", issues, tt.wantPath)
			}
		})
	}
}

func TestCheckPrefix(t *testing.T) {
	txn := validTxn()
	txn.Amount = decimal.Zero
	issues := Check("expense_transactions.transactions[3]", txn)
	if len(issues) != 1 || issues[0].Path != "expense_transactions.transactions[3].amount" {
		t.Errorf("issues = %v", issues)
	}
	if !strings.Contains(issues[0].Message, "greater than 0") {
		t.Errorf("message = %q", issues[0].Message)
	}

	err := Validate("transaction", txn)
	if !ferrors.Is(err, ferrors.ValidationFailed) {
		t.Fatalf("Validate() error = %v, want VALIDATION_FAILED", err)
	}
	if got := ferrors.Issues(err); len(got) != 1 {
		t.Errorf("Issues() = %v", got)
	}
}

func TestNormalize(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	txn := validTxn()
	txn.Currency = "USD"
	txn.Tags = []string{"b", " a", "b", "", "a"}
	txn.Normalize(now)

	if txn.Currency != schema.DefaultCurrency {
		t.Errorf("Currency = %s", txn.Currency)
	}
	if !reflect.DeepEqual(txn.Tags, []string{"a", "b"}) {
		t.Errorf("Tags = %v", txn.Tags)
	}
	if txn.PaymentMix == nil || txn.SplitWith == nil {
		t.Error("collections should be empty, not nil")
	}
	if txn.CreatedAt != "2026-10-16T12:00:00Z" || txn.UpdatedAt != txn.CreatedAt {
		t.Errorf("timestamps = %s / %s", txn.CreatedAt, txn.UpdatedAt)
	}

	later := now.Add(time.Hour)
	txn.Normalize(later)
	if txn.CreatedAt != "2026-10-16T12:00:00Z" || txn.UpdatedAt != "2026-10-16T13:00:00Z" {
		t.Errorf("second Normalize timestamps = %s / %s", txn.CreatedAt, txn.UpdatedAt)
	}
}

func TestAdvisoryInvariants(t *testing.T) {
	txn := validTxn()
	if txn.SplitMismatch() || txn.PartialRentUnlinked() || txn.PaymentMixMismatch() {
		t.Error("plain transaction flagged")
	}

	txn.IsSplit = true
	txn.SplitWith = []SplitShare{{Person: "A", Amount: decimal.NewFromInt(600)}, {Person: "B", Amount: decimal.NewFromInt(400)}}
	if txn.SplitMismatch() {
		t.Error("balanced split flagged")
	}
	txn.SplitWith[1].Amount = decimal.NewFromInt(300)
	if !txn.SplitMismatch() {
		t.Error("unbalanced split not flagged")
	}

	txn.IsPartialRent = true
	txn.PropertyID = "p1"
	if !txn.PartialRentUnlinked() {
		t.Error("partial rent without tenant not flagged")
	}
	txn.TenantID = "t1"
	if txn.PartialRentUnlinked() {
		t.Error("linked partial rent flagged")
	}

	txn.PaymentMix = []PaymentPart{{Mode: "upi", Amount: decimal.RequireFromString("999.99")}}
	if !txn.PaymentMixMismatch() {
		t.Error("short payment mix not flagged")
	}
}

func TestDecimalMarshalsAsNumber(t *testing.T) {
	data, err := json.Marshal(PaymentPart{Mode: "cash", Amount: decimal.RequireFromString("12.50")})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"amount":12.5`) {
		t.Errorf("amount not a bare number: %s", data)
	}

	var back PaymentPart
	if err := json.Unmarshal([]byte(`{"mode":"cash","amount":"7.25"}`), &back); err != nil {
		t.Fatal(err)
	}
	if !back.Amount.Equal(decimal.RequireFromString("7.25")) {
		t.Errorf("quoted amount decoded as %s", back.Amount)
	}
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings(time.Now())
	if s.ID != schema.SettingsID {
		t.Errorf("ID = %s", s.ID)
	}
	if s.AutoLockMinutes != 5 || s.MaxFailedAttempts != 5 || s.TaxRegime != TaxRegimeNew {
		t.Errorf("defaults = %+v", s)
	}
	if !s.InflationRate.Equal(decimal.NewFromInt(6)) || !s.EducationInflationRate.Equal(decimal.NewFromInt(10)) {
		t.Errorf("inflation defaults = %s / %s", s.InflationRate, s.EducationInflationRate)
	}
	if issues := Check("", s); len(issues) != 0 {
		t.Errorf("default settings invalid: %v", issues)
	}

	s.AutoLockMinutes = 11
	if issues := Check("", s); len(issues) != 1 || issues[0].Path != "autoLockMinutes" {
		t.Errorf("issues = %v", issues)
	}
}
