package models

import (
	"github.com/shopspring/decimal"
)

// Goal is a savings target.
type Goal struct {
	ID            string          `json:"id"`
	Name          string          `json:"name" validate:"required"`
	TargetAmount  decimal.Decimal `json:"targetAmount" validate:"gt=0"`
	CurrentAmount decimal.Decimal `json:"currentAmount"`
	TargetDate    string          `json:"targetDate,omitempty" validate:"omitempty,isodate"`
	IsCompleted   bool            `json:"isCompleted"`
}

// CreditCard is a card whose spends link to transactions by cardId.
type CreditCard struct {
	ID             string          `json:"id"`
	Name           string          `json:"name" validate:"required"`
	Bank           string          `json:"bank,omitempty"`
	Limit          decimal.Decimal `json:"limit" validate:"gte=0"`
	CurrentBalance decimal.Decimal `json:"currentBalance"`
	BillingCycle   string          `json:"billingCycle,omitempty"`
	DueDate        string          `json:"dueDate,omitempty"`
	IsActive       bool            `json:"isActive"`
}

// ServiceRecord is one entry in a vehicle's service history.
type ServiceRecord struct {
	Date     string          `json:"date" validate:"required,isodate"`
	Odometer int             `json:"odometer,omitempty" validate:"gte=0"`
	Cost     decimal.Decimal `json:"cost" validate:"gte=0"`
	Note     string          `json:"note,omitempty"`
}

// Vehicle is an owned vehicle.
type Vehicle struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name" validate:"required"`
	Type               string          `json:"type,omitempty"`
	RegistrationNumber string          `json:"registrationNumber,omitempty"`
	PurchaseDate       string          `json:"purchaseDate,omitempty" validate:"omitempty,isodate"`
	PurchasePrice      decimal.Decimal `json:"purchasePrice"`
	FuelType           string          `json:"fuelType,omitempty"`
	ServiceHistory     []ServiceRecord `json:"serviceHistory" validate:"dive"`
}

// Investment is a holding optionally earmarked for a goal.
type Investment struct {
	ID             string          `json:"id"`
	Name           string          `json:"name" validate:"required"`
	Type           string          `json:"type" validate:"required"`
	InvestedAmount decimal.Decimal `json:"investedAmount" validate:"gte=0"`
	CurrentValue   decimal.Decimal `json:"currentValue"`
	Units          decimal.Decimal `json:"units"`
	StartDate      string          `json:"startDate,omitempty" validate:"omitempty,isodate"`
	GoalID         string          `json:"goalId,omitempty"`
}

// InsurancePolicy is stored in the policies table.
type InsurancePolicy struct {
	ID           string          `json:"id"`
	Name         string          `json:"name" validate:"required"`
	Type         string          `json:"type" validate:"required"`
	Provider     string          `json:"provider,omitempty"`
	Premium      decimal.Decimal `json:"premium" validate:"gte=0"`
	SumAssured   decimal.Decimal `json:"sumAssured"`
	ExpiryDate   string          `json:"expiryDate,omitempty" validate:"omitempty,isodate"`
	VehicleID    string          `json:"vehicleId,omitempty"`
	Nominees     []string        `json:"nominees"`
	AutoRenew    bool            `json:"autoRenew"`
	PolicyNumber string          `json:"policyNumber,omitempty"`
}

// Loan is a liability.
type Loan struct {
	ID           string          `json:"id"`
	Name         string          `json:"name" validate:"required"`
	Type         string          `json:"type,omitempty"`
	Lender       string          `json:"lender,omitempty"`
	Principal    decimal.Decimal `json:"principal" validate:"gt=0"`
	Outstanding  decimal.Decimal `json:"outstanding"`
	InterestRate decimal.Decimal `json:"interestRate"`
	EMI          decimal.Decimal `json:"emi"`
	StartDate    string          `json:"startDate,omitempty" validate:"omitempty,isodate"`
	IsClosed     bool            `json:"isClosed"`
}

// RentalProperty is a property rented out to tenants.
type RentalProperty struct {
	ID          string          `json:"id"`
	Name        string          `json:"name" validate:"required"`
	Address     string          `json:"address,omitempty"`
	MonthlyRent decimal.Decimal `json:"monthlyRent"`
}

// Tenant occupies a rental property.
type Tenant struct {
	ID         string          `json:"id"`
	Name       string          `json:"name" validate:"required"`
	PropertyID string          `json:"propertyId" validate:"required"`
	Rent       decimal.Decimal `json:"rent"`
	Deposit    decimal.Decimal `json:"deposit"`
	StartDate  string          `json:"startDate,omitempty" validate:"omitempty,isodate"`
	IsActive   bool            `json:"isActive"`
}

// GoldHolding is physical or digital gold.
type GoldHolding struct {
	ID            string          `json:"id"`
	Type          string          `json:"type,omitempty"`
	WeightGrams   decimal.Decimal `json:"weightGrams" validate:"gt=0"`
	Purity        string          `json:"purity,omitempty"`
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
	PurchaseDate  string          `json:"purchaseDate,omitempty" validate:"omitempty,isodate"`
}

// Subscription is a recurring charge.
type Subscription struct {
	ID              string          `json:"id"`
	Name            string          `json:"name" validate:"required"`
	Amount          decimal.Decimal `json:"amount" validate:"gt=0"`
	Cycle           string          `json:"cycle,omitempty"`
	NextBillingDate string          `json:"nextBillingDate,omitempty" validate:"omitempty,isodate"`
	CardID          string          `json:"cardId,omitempty"`
	IsActive        bool            `json:"isActive"`
}

// HealthProfile holds one family member's medical summary.
type HealthProfile struct {
	ID         string   `json:"id"`
	Name       string   `json:"name" validate:"required"`
	BloodGroup string   `json:"bloodGroup,omitempty"`
	Conditions []string `json:"conditions"`
	Allergies  []string `json:"allergies"`
}

// Medicine is a prescription tied to a health profile.
type Medicine struct {
	ID        string `json:"id"`
	Name      string `json:"name" validate:"required"`
	ProfileID string `json:"profileId" validate:"required"`
	Dosage    string `json:"dosage,omitempty"`
	StartDate string `json:"startDate,omitempty" validate:"omitempty,isodate"`
	EndDate   string `json:"endDate,omitempty" validate:"omitempty,isodate"`
	IsActive  bool   `json:"isActive"`
}

// Wallet is a cash or prepaid balance.
type Wallet struct {
	ID      string          `json:"id"`
	Name    string          `json:"name" validate:"required"`
	Balance decimal.Decimal `json:"balance"`
}

// FamilyBankAccount is a family member's bank account.
type FamilyBankAccount struct {
	ID            string          `json:"id"`
	Holder        string          `json:"holder" validate:"required"`
	BankName      string          `json:"bankName" validate:"required"`
	AccountNumber string          `json:"accountNumber,omitempty"`
	Balance       decimal.Decimal `json:"balance"`
}

// FamilyTransfer moves money between family accounts.
type FamilyTransfer struct {
	ID            string          `json:"id"`
	FromAccountID string          `json:"fromAccountId,omitempty"`
	ToAccountID   string          `json:"toAccountId,omitempty"`
	Amount        decimal.Decimal `json:"amount" validate:"gt=0"`
	Date          string          `json:"date" validate:"required,isodate"`
	Note          string          `json:"note,omitempty"`
}

// EmergencyFund tracks the emergency corpus, optionally as a goal.
type EmergencyFund struct {
	ID            string          `json:"id"`
	TargetAmount  decimal.Decimal `json:"targetAmount" validate:"gt=0"`
	CurrentAmount decimal.Decimal `json:"currentAmount"`
	GoalID        string          `json:"goalId,omitempty"`
}

// TaxRecord is one financial year's filing summary.
type TaxRecord struct {
	ID            string          `json:"id"`
	FinancialYear int             `json:"financialYear" validate:"gte=1900,lte=9999"`
	Regime        string          `json:"regime,omitempty" validate:"omitempty,oneof=old new"`
	TaxableIncome decimal.Decimal `json:"taxableIncome"`
	TaxPaid       decimal.Decimal `json:"taxPaid"`
}
