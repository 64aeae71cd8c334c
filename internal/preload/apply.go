package preload

import (
	"context"
	"time"

	"finledger/internal/audit"
	ferrors "finledger/internal/errors"
	"finledger/internal/models"
	"finledger/internal/schema"
	"finledger/internal/settings"
	"finledger/internal/storage"
)

// Result counts the records Apply inserted.
type Result struct {
	Expenses       int  `json:"expenses"`
	Income         int  `json:"income"`
	Vehicles       int  `json:"vehicles"`
	Investments    int  `json:"investments"`
	Loans          int  `json:"loans"`
	CreditCards    int  `json:"creditCards"`
	ProfileUpdated bool `json:"profileUpdated"`
}

// Total is the number of inserted records.
func (r Result) Total() int {
	return r.Expenses + r.Income + r.Vehicles + r.Investments + r.Loans + r.CreditCards
}

var applyScope = []string{
	schema.Txns,
	schema.Vehicles,
	schema.Investments,
	schema.Loans,
	schema.CreditCards,
	schema.Settings,
	schema.AuditLogs,
}

// Apply validates doc and inserts all of it in one transaction. An invalid
// document fails with VALIDATION_FAILED listing every issue and writes
// nothing.
func Apply(ctx context.Context, store *storage.Store, doc *Document) (*Result, error) {
	return apply(ctx, store, doc, time.Now())
}

func apply(ctx context.Context, store *storage.Store, doc *Document, now time.Time) (*Result, error) {
	if issues := Validate(doc); len(issues) > 0 {
		return nil, ferrors.Validation("invalid preload document", issues)
	}

	res := &Result{}
	err := store.RunTransaction(ctx, applyScope, func(tx *storage.Tx) error {
		for _, e := range doc.ExpenseTransactions.Transactions {
			if err := addTxn(tx, now, expenseTxn(e)); err != nil {
				return err
			}
			res.Expenses++
		}
		for _, in := range doc.IncomeCashFlows {
			if err := addTxn(tx, now, incomeTxn(in)); err != nil {
				return err
			}
			res.Income++
		}
		for _, v := range doc.Assets.Vehicles {
			if err := add(tx, schema.Vehicles, models.Vehicle{
				Name:               v.Name,
				Type:               v.Type,
				RegistrationNumber: v.RegistrationNumber,
				PurchaseDate:       v.PurchaseDate,
				PurchasePrice:      v.PurchasePrice,
				FuelType:           v.FuelType,
				ServiceHistory:     []models.ServiceRecord{},
			}); err != nil {
				return err
			}
			res.Vehicles++
		}
		for _, f := range doc.Assets.Investments.MutualFunds {
			if err := add(tx, schema.Investments, models.Investment{
				Name:           f.FundName,
				Type:           "mutual_fund",
				InvestedAmount: f.InvestedAmount,
				CurrentValue:   f.CurrentValue,
				Units:          f.Units,
				StartDate:      f.StartDate,
			}); err != nil {
				return err
			}
			res.Investments++
		}
		for _, l := range doc.Liabilities {
			outstanding := l.Outstanding
			if outstanding.IsZero() {
				outstanding = l.Principal
			}
			if err := add(tx, schema.Loans, models.Loan{
				Name:         l.Name,
				Type:         l.Type,
				Lender:       l.Lender,
				Principal:    l.Principal,
				Outstanding:  outstanding,
				InterestRate: l.InterestRate,
				EMI:          l.EMI,
				StartDate:    l.StartDate,
			}); err != nil {
				return err
			}
			res.Loans++
		}
		for _, c := range doc.CreditCardManagement.Cards {
			if err := add(tx, schema.CreditCards, models.CreditCard{
				Name:           c.Name,
				Bank:           c.Bank,
				Limit:          c.Limit,
				CurrentBalance: c.CurrentBalance,
				BillingCycle:   c.BillingCycle,
				DueDate:        c.DueDate,
				IsActive:       true,
			}); err != nil {
				return err
			}
			res.CreditCards++
		}

		if p := doc.PersonalProfile; p != nil {
			g, err := settings.Load(tx, now)
			if err != nil {
				return err
			}
			g.Profile = &models.Profile{
				Name:        p.Name,
				Age:         p.Age,
				City:        p.City,
				Occupation:  p.Occupation,
				RiskProfile: p.RiskProfile,
			}
			g.UpdatedAt = now.UTC().Format(time.RFC3339)
			if err := settings.Save(tx, g); err != nil {
				return err
			}
			res.ProfileUpdated = true
		}

		return audit.Log(tx, now, models.AuditPreload, "", "", map[string]any{
			"expenses":       res.Expenses,
			"income":         res.Income,
			"vehicles":       res.Vehicles,
			"investments":    res.Investments,
			"loans":          res.Loans,
			"creditCards":    res.CreditCards,
			"profileUpdated": res.ProfileUpdated,
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func expenseTxn(e Expense) models.Transaction {
	source := e.Source
	if source == "" {
		source = models.SourceImport
	}
	return models.Transaction{
		Amount:        e.Amount,
		Type:          models.Expense,
		Date:          e.Date,
		Category:      e.Category,
		Description:   e.Description,
		Note:          e.Note,
		PaymentMethod: e.PaymentMethod,
		Tags:          e.Tags,
		Source:        source,
	}
}

func incomeTxn(in IncomeFlow) models.Transaction {
	category := in.Category
	if category == "" {
		category = "Income"
	}
	source := in.Source
	if source == "" {
		source = models.SourceImport
	}
	return models.Transaction{
		Amount:      in.Amount,
		Type:        models.Income,
		Date:        in.Date,
		Category:    category,
		Description: in.Description,
		Source:      source,
	}
}

func addTxn(tx *storage.Tx, now time.Time, txn models.Transaction) error {
	txn.Normalize(now)
	return add(tx, schema.Txns, txn)
}

func add(tx *storage.Tx, table string, v any) error {
	rec, err := storage.EncodeRecord(v)
	if err != nil {
		return err
	}
	_, err = tx.Add(table, rec)
	return err
}
