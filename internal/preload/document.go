// Package preload ingests a one-shot JSON document describing a household's
// finances: profile, expenses, income, vehicles, mutual funds, loans and
// credit cards.
package preload

import (
	"encoding/json"
	"io"

	"github.com/shopspring/decimal"

	ferrors "finledger/internal/errors"
	"finledger/internal/models"
)

// Document is the preload file. Every section is optional.
type Document struct {
	PersonalProfile      *PersonalProfile `json:"personal_profile,omitempty"`
	ExpenseTransactions  ExpenseSection   `json:"expense_transactions"`
	IncomeCashFlows      []IncomeFlow     `json:"income_cash_flows" validate:"dive"`
	Assets               Assets           `json:"assets"`
	Liabilities          []Liability      `json:"liabilities" validate:"dive"`
	CreditCardManagement CardSection      `json:"credit_card_management"`
}

// PersonalProfile becomes the profile on the settings row.
type PersonalProfile struct {
	Name        string `json:"name" validate:"required"`
	Age         int    `json:"age,omitempty" validate:"gte=0,lte=150"`
	City        string `json:"city,omitempty"`
	Occupation  string `json:"occupation,omitempty"`
	RiskProfile string `json:"risk_profile,omitempty"`
}

// ExpenseSection wraps the spending rows.
type ExpenseSection struct {
	Transactions []Expense `json:"transactions" validate:"dive"`
}

// Expense is one spending row. Source defaults to "import".
type Expense struct {
	Date          string          `json:"date" validate:"required,isodate"`
	Amount        decimal.Decimal `json:"amount" validate:"gt=0"`
	Description   string          `json:"description" validate:"required"`
	Category      string          `json:"category" validate:"required"`
	PaymentMethod string          `json:"payment_method" validate:"required"`
	Source        string          `json:"source,omitempty" validate:"omitempty,txnsource"`
	Tags          []string        `json:"tags,omitempty"`
	Note          string          `json:"note,omitempty"`
}

// IncomeFlow is one income receipt, stored as an income transaction.
type IncomeFlow struct {
	Date        string          `json:"date" validate:"required,isodate"`
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	Description string          `json:"description" validate:"required"`
	Category    string          `json:"category,omitempty"`
	Source      string          `json:"source,omitempty" validate:"omitempty,txnsource"`
}

// Assets groups owned vehicles and investments.
type Assets struct {
	Vehicles    []Vehicle         `json:"vehicles" validate:"dive"`
	Investments InvestmentSection `json:"investments"`
}

// Vehicle is stored in the vehicles table.
type Vehicle struct {
	Name               string          `json:"name" validate:"required"`
	Type               string          `json:"type,omitempty"`
	RegistrationNumber string          `json:"registration_number,omitempty"`
	PurchaseDate       string          `json:"purchase_date,omitempty" validate:"omitempty,isodate"`
	PurchasePrice      decimal.Decimal `json:"purchase_price" validate:"gte=0"`
	FuelType           string          `json:"fuel_type,omitempty"`
}

// InvestmentSection wraps the mutual fund holdings.
type InvestmentSection struct {
	MutualFunds []MutualFund `json:"mutual_funds_breakdown" validate:"dive"`
}

// MutualFund is stored as an investment of type "mutual_fund".
type MutualFund struct {
	FundName       string          `json:"fund_name" validate:"required"`
	InvestedAmount decimal.Decimal `json:"invested_amount" validate:"gte=0"`
	CurrentValue   decimal.Decimal `json:"current_value" validate:"gte=0"`
	Units          decimal.Decimal `json:"units" validate:"gte=0"`
	StartDate      string          `json:"start_date,omitempty" validate:"omitempty,isodate"`
}

// Liability is a loan. Outstanding defaults to Principal when zero.
type Liability struct {
	Name         string          `json:"name" validate:"required"`
	Type         string          `json:"type,omitempty"`
	Lender       string          `json:"lender,omitempty"`
	Principal    decimal.Decimal `json:"principal" validate:"gt=0"`
	Outstanding  decimal.Decimal `json:"outstanding" validate:"gte=0"`
	InterestRate decimal.Decimal `json:"interest_rate" validate:"gte=0,lte=100"`
	EMI          decimal.Decimal `json:"emi" validate:"gte=0"`
	StartDate    string          `json:"start_date,omitempty" validate:"omitempty,isodate"`
}

// CardSection wraps the credit cards.
type CardSection struct {
	Cards []Card `json:"cards" validate:"dive"`
}

// Card is stored in the creditCards table.
type Card struct {
	Name           string          `json:"name" validate:"required"`
	Bank           string          `json:"bank,omitempty"`
	Limit          decimal.Decimal `json:"limit" validate:"gte=0"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	BillingCycle   string          `json:"billing_cycle,omitempty"`
	DueDate        string          `json:"due_date,omitempty"`
}

// Parse decodes a preload document. It does not validate.
func Parse(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, ferrors.New(ferrors.ValidationFailed, "preload document is not valid JSON", err)
	}
	return &doc, nil
}

// Validate returns every problem in doc, with paths in the document's own
// key names (for example "expense_transactions.transactions[2].amount").
// An empty result means the document can be applied.
func Validate(doc *Document) []ferrors.ValidationIssue {
	if doc == nil {
		return []ferrors.ValidationIssue{{Path: "", Message: "document is empty"}}
	}
	return models.Check("", doc)
}
