package calculation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"SalongDriftSaas/internal/store"
)

func pct(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestEvaluateLoyaltyRule(t *testing.T) {
	supplier := store.Supplier{ID: uuid.New(), Name: "Cutrin"}
	brand := store.Brand{ID: uuid.New(), SupplierID: supplier.ID, Name: "Cutrin"}
	rule := store.BonusRule{
		ID:         uuid.New(),
		SupplierID: supplier.ID,
		BrandID:    &brand.ID,
		Percentage: pct("0.05"),
		RuleType:   store.RuleTypeLoyalty,
		Active:     true,
	}
	salonID := uuid.New()
	lines := []Line{{SalonID: &salonID, Brand: "Cutrin", ProductGroup: "kjemi", Delta: decimal.NewFromInt(10000)}}

	res := Evaluate(supplier, []store.Brand{brand}, lines, []store.BonusRule{rule})

	if !res.LoyaltyBonus.Equal(decimal.NewFromInt(500)) {
		t.Errorf("loyalty bonus %s, want 500", res.LoyaltyBonus)
	}
	if !res.ReturnCommission.IsZero() {
		t.Errorf("return commission %s, want 0", res.ReturnCommission)
	}
	if len(res.AppliedRuleIDs) != 1 || res.AppliedRuleIDs[0] != rule.ID {
		t.Errorf("applied rules %v", res.AppliedRuleIDs)
	}
	if len(res.MissingRules) != 0 {
		t.Errorf("unexpected missing rules: %+v", res.MissingRules)
	}
}

func TestEvaluateBothRuleTypesOnOneLine(t *testing.T) {
	supplier := store.Supplier{ID: uuid.New(), Name: "Headbrands"}
	loyalty := store.BonusRule{
		ID: uuid.New(), SupplierID: supplier.ID,
		Percentage: pct("0.03"), RuleType: store.RuleTypeLoyalty, Active: true,
	}
	commission := store.BonusRule{
		ID: uuid.New(), SupplierID: supplier.ID,
		Percentage: pct("0.02"), RuleType: store.RuleTypeReturnCommission, Active: true,
	}
	salonID := uuid.New()
	lines := []Line{{SalonID: &salonID, Brand: "Wella", ProductGroup: "produkt", Delta: decimal.NewFromInt(1000)}}

	res := Evaluate(supplier, nil, lines, []store.BonusRule{loyalty, commission})

	if !res.LoyaltyBonus.Equal(decimal.NewFromInt(30)) {
		t.Errorf("loyalty %s, want 30", res.LoyaltyBonus)
	}
	if !res.ReturnCommission.Equal(decimal.NewFromInt(20)) {
		t.Errorf("commission %s, want 20", res.ReturnCommission)
	}
	if len(res.Lines) != 1 || len(res.Lines[0].Attributions) != 2 {
		t.Fatalf("expected 2 attributions on one line: %+v", res.Lines)
	}
}

func TestEvaluateMissingRuleWarning(t *testing.T) {
	supplier := store.Supplier{ID: uuid.New(), Name: "Cutrin"}
	ruled := store.Brand{ID: uuid.New(), SupplierID: supplier.ID, Name: "Cutrin"}
	rule := store.BonusRule{
		ID: uuid.New(), SupplierID: supplier.ID, BrandID: &ruled.ID,
		Percentage: pct("0.05"), RuleType: store.RuleTypeLoyalty, Active: true,
	}
	salonID := uuid.New()
	lines := []Line{
		{SalonID: &salonID, Brand: "Cutrin", ProductGroup: "kjemi", Delta: decimal.NewFromInt(1000)},
		{SalonID: &salonID, Brand: "Sim", ProductGroup: "kjemi", Delta: decimal.NewFromInt(400)},
		{SalonID: &salonID, Brand: "Sim", ProductGroup: "produkt", Delta: decimal.NewFromInt(200)},
	}

	res := Evaluate(supplier, []store.Brand{ruled}, lines, []store.BonusRule{rule})

	// Unruled turnover still counts in totals but yields no bonus.
	if !res.Turnover.Equal(decimal.NewFromInt(1600)) {
		t.Errorf("turnover %s, want 1600", res.Turnover)
	}
	if !res.LoyaltyBonus.Equal(decimal.NewFromInt(50)) {
		t.Errorf("loyalty %s, want 50", res.LoyaltyBonus)
	}
	if len(res.MissingRules) != 1 {
		t.Fatalf("missing rules: %+v", res.MissingRules)
	}
	if res.MissingRules[0].Brand != "Sim" || !res.MissingRules[0].Turnover.Equal(decimal.NewFromInt(600)) {
		t.Errorf("missing rule entry: %+v", res.MissingRules[0])
	}
}

func TestEvaluateInactiveRulesIgnored(t *testing.T) {
	supplier := store.Supplier{ID: uuid.New(), Name: "Tendenz"}
	rule := store.BonusRule{
		ID: uuid.New(), SupplierID: supplier.ID,
		Percentage: pct("0.10"), RuleType: store.RuleTypeLoyalty, Active: false,
	}
	salonID := uuid.New()
	lines := []Line{{SalonID: &salonID, Brand: "Tendenz", Delta: decimal.NewFromInt(100)}}

	res := Evaluate(supplier, nil, lines, []store.BonusRule{rule})
	if !res.LoyaltyBonus.IsZero() {
		t.Errorf("inactive rule applied: %s", res.LoyaltyBonus)
	}
	if len(res.MissingRules) != 1 {
		t.Errorf("brand without active rule not flagged")
	}
}
