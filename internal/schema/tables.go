package schema

import (
	"context"
)

// Table names
const (
	Txns             = "txns"
	Goals            = "goals"
	CreditCards      = "creditCards"
	Vehicles         = "vehicles"
	Investments      = "investments"
	Insurance        = "insurance" // renamed to policies in v4
	Policies         = "policies"
	Loans            = "loans"
	Settings         = "settings"
	RentalProperties = "rentalProperties"
	Tenants          = "tenants"
	Gold             = "gold"
	Subscriptions    = "subscriptions"
	HealthProfiles   = "healthProfiles"
	Medicines        = "medicines"
	Wallets          = "wallets"
	FamilyAccounts   = "familyAccounts"
	FamilyTransfers  = "familyTransfers"
	EmergencyFunds   = "emergencyFunds"
	AuditLogs        = "auditLogs"
	TaxRecords       = "taxRecords"
)

// SettingsID is the key of the GlobalSettings singleton row.
const SettingsID = "global-settings-singleton"

// DefaultCurrency is the only currency transactions are recorded in.
const DefaultCurrency = "INR"

func txnsV1() TableDef {
	return TableDef{
		Name:        Txns,
		Indexes:     []string{"date", "category", "type", "goalId", "cardId", "vehicleId", "userId"},
		Required:    []string{"id", "amount", "date", "type"},
		DateField:   "date",
		DateKind:    DateISO,
		Collections: []string{"tags", "paymentMix", "splitWith"},
		Booleans:    []string{"isSplit", "isPartialRent"},
		ForeignKeys: []ForeignKey{
			{Field: "goalId", Table: Goals},
			{Field: "cardId", Table: CreditCards},
			{Field: "vehicleId", Table: Vehicles},
		},
	}
}

func txnsV2() TableDef {
	t := txnsV1()
	t.Indexes = append(t.Indexes, "tenantId", "propertyId")
	t.ForeignKeys = append(t.ForeignKeys,
		ForeignKey{Field: "tenantId", Table: Tenants},
		ForeignKey{Field: "propertyId", Table: RentalProperties},
	)
	return t
}

func insuranceTable(name string) TableDef {
	return TableDef{
		Name:        name,
		Indexes:     []string{"type", "expiryDate", "vehicleId"},
		Required:    []string{"id", "name", "type", "premium"},
		Collections: []string{"nominees"},
		Booleans:    []string{"autoRenew"},
		ForeignKeys: []ForeignKey{{Field: "vehicleId", Table: Vehicles}},
	}
}

func coreV1() []TableDef {
	return []TableDef{
		{
			Name:     Goals,
			Indexes:  []string{"name", "targetDate"},
			Required: []string{"id", "name", "targetAmount"},
			Booleans: []string{"isCompleted"},
		},
		{
			Name:     CreditCards,
			Indexes:  []string{"bank", "name"},
			Required: []string{"id", "name", "limit"},
			Booleans: []string{"isActive"},
		},
		{
			Name:        Vehicles,
			Indexes:     []string{"registrationNumber", "type"},
			Required:    []string{"id", "name"},
			Collections: []string{"serviceHistory"},
		},
		{
			Name:        Investments,
			Indexes:     []string{"type", "goalId"},
			Required:    []string{"id", "name", "type", "investedAmount"},
			ForeignKeys: []ForeignKey{{Field: "goalId", Table: Goals}},
		},
		{
			Name:     Loans,
			Indexes:  []string{"type", "lender"},
			Required: []string{"id", "name", "principal"},
			Booleans: []string{"isClosed"},
		},
		{
			Name:        Settings,
			Required:    []string{"id"},
			Collections: []string{"emergencyContacts", "dependents"},
			Booleans:    []string{"privacyMask"},
		},
	}
}

func rentalV2() []TableDef {
	return []TableDef{
		{
			Name:     RentalProperties,
			Indexes:  []string{"name"},
			Required: []string{"id", "name"},
		},
		{
			Name:        Tenants,
			Indexes:     []string{"propertyId"},
			Required:    []string{"id", "name", "propertyId"},
			Booleans:    []string{"isActive"},
			ForeignKeys: []ForeignKey{{Field: "propertyId", Table: RentalProperties}},
		},
		{
			Name:      Gold,
			Indexes:   []string{"type", "purchaseDate"},
			Required:  []string{"id", "weightGrams"},
			DateField: "purchaseDate",
			DateKind:  DateISO,
		},
		{
			Name:        Subscriptions,
			Indexes:     []string{"nextBillingDate", "cardId"},
			Required:    []string{"id", "name", "amount"},
			Booleans:    []string{"isActive"},
			ForeignKeys: []ForeignKey{{Field: "cardId", Table: CreditCards}},
		},
	}
}

func householdV3() []TableDef {
	return []TableDef{
		{
			Name:        HealthProfiles,
			Indexes:     []string{"name"},
			Required:    []string{"id", "name"},
			Collections: []string{"conditions", "allergies"},
		},
		{
			Name:        Medicines,
			Indexes:     []string{"profileId", "endDate"},
			Required:    []string{"id", "name", "profileId"},
			DateField:   "endDate",
			DateKind:    DateISO,
			Booleans:    []string{"isActive"},
			ForeignKeys: []ForeignKey{{Field: "profileId", Table: HealthProfiles}},
		},
		{
			Name:     Wallets,
			Indexes:  []string{"name"},
			Required: []string{"id", "name", "balance"},
		},
		{
			Name:     FamilyAccounts,
			Indexes:  []string{"holder", "bankName"},
			Required: []string{"id", "holder", "bankName"},
		},
		{
			Name:      FamilyTransfers,
			Indexes:   []string{"date", "fromAccountId", "toAccountId"},
			Required:  []string{"id", "amount", "date"},
			DateField: "date",
			DateKind:  DateISO,
			ForeignKeys: []ForeignKey{
				{Field: "fromAccountId", Table: FamilyAccounts},
				{Field: "toAccountId", Table: FamilyAccounts},
			},
		},
		{
			Name:        EmergencyFunds,
			Required:    []string{"id", "targetAmount"},
			ForeignKeys: []ForeignKey{{Field: "goalId", Table: Goals}},
		},
		{
			Name:      AuditLogs,
			Indexes:   []string{"at", "action", "table"},
			Required:  []string{"id", "action", "at"},
			DateField: "at",
			DateKind:  DateTimestamp,
		},
	}
}

func taxV4() TableDef {
	return TableDef{
		Name:      TaxRecords,
		Indexes:   []string{"financialYear"},
		Required:  []string{"id", "financialYear"},
		DateField: "financialYear",
		DateKind:  DateYear,
	}
}

// Default returns the finledger schema history.
func Default() *Registry {
	r := NewRegistry()

	v1 := append([]TableDef{txnsV1(), insuranceTable(Insurance)}, coreV1()...)
	r.MustDeclare(Version{Number: 1, Tables: v1})

	v2 := append(append([]TableDef{txnsV2(), insuranceTable(Insurance)}, coreV1()...), rentalV2()...)
	r.MustDeclare(Version{Number: 2, Tables: v2})

	v3 := append(append([]TableDef{}, v2...), householdV3()...)
	r.MustDeclare(Version{
		Number:  3,
		Tables:  v3,
		Upgrade: defaultCurrency,
	})

	v4 := make([]TableDef, 0, len(v3)+1)
	for _, t := range v3 {
		if t.Name == Insurance {
			t = insuranceTable(Policies)
		}
		v4 = append(v4, t)
	}
	v4 = append(v4, taxV4())
	r.MustDeclare(Version{
		Number:  4,
		Tables:  v4,
		Dropped: []string{Insurance},
		Upgrade: func(ctx context.Context, m Migrator) error {
			_, err := m.CopyTable(ctx, Insurance, Policies)
			return err
		},
	})

	return r
}

// defaultCurrency stamps the fixed currency on transactions written before v3.
func defaultCurrency(ctx context.Context, m Migrator) error {
	_, err := m.Rewrite(ctx, Txns, func(doc map[string]any) (bool, error) {
		if c, ok := doc["currency"].(string); ok && c != "" {
			return false, nil
		}
		doc["currency"] = DefaultCurrency
		return true, nil
	})
	return err
}
