package calculation

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"SalongDriftSaas/internal/store"
)

// RuleAttribution records one rule applied to one line.
type RuleAttribution struct {
	RuleID     uuid.UUID       `json:"rule_id"`
	RuleType   string          `json:"rule_type"`
	Percentage decimal.Decimal `json:"percentage"`
	Amount     decimal.Decimal `json:"amount"`
}

// LineResult is one brand/product-group line after rule evaluation.
type LineResult struct {
	Brand            string            `json:"brand"`
	ProductGroup     string            `json:"product_group"`
	Turnover         decimal.Decimal   `json:"turnover"`
	LoyaltyBonus     decimal.Decimal   `json:"loyalty_bonus"`
	ReturnCommission decimal.Decimal   `json:"return_commission"`
	Attributions     []RuleAttribution `json:"attributions,omitempty"`
}

// MissingRule is a brand that produced turnover but had no active rule of
// any type. Its turnover yields zero bonus and is surfaced as a warning.
type MissingRule struct {
	SupplierID uuid.UUID       `json:"supplier_id"`
	Brand      string          `json:"brand"`
	Turnover   decimal.Decimal `json:"turnover"`
}

// EvalResult is the rule evaluation of one salon/supplier/period.
type EvalResult struct {
	Lines            []LineResult
	Turnover         decimal.Decimal
	LoyaltyBonus     decimal.Decimal
	ReturnCommission decimal.Decimal
	AppliedRuleIDs   []uuid.UUID
	MissingRules     []MissingRule
}

// Evaluate applies the supplier's active rules to a salon's delta turnover
// lines. A rule matches a line when its brand is unset, applying to the
// whole supplier, or when it names the line's brand. Loyalty and return
// commission rules can both hit the same line.
func Evaluate(supplier store.Supplier, brands []store.Brand, lines []Line, rules []store.BonusRule) EvalResult {
	brandIDByName := make(map[string]uuid.UUID, len(brands))
	for _, b := range brands {
		brandIDByName[strings.ToLower(strings.TrimSpace(b.Name))] = b.ID
	}

	res := EvalResult{}
	missingByBrand := make(map[string]*MissingRule)
	appliedSeen := make(map[uuid.UUID]bool)
	var missingOrder []string

	for _, line := range lines {
		lr := LineResult{
			Brand:        line.Brand,
			ProductGroup: line.ProductGroup,
			Turnover:     line.Delta,
		}

		var lineBrandID *uuid.UUID
		if id, ok := brandIDByName[strings.ToLower(strings.TrimSpace(line.Brand))]; ok {
			lineBrandID = &id
		}

		matchedAny := false
		for _, rule := range rules {
			if !rule.Active || rule.SupplierID != supplier.ID {
				continue
			}
			if rule.BrandID != nil && (lineBrandID == nil || *rule.BrandID != *lineBrandID) {
				continue
			}
			matchedAny = true
			amount := line.Delta.Mul(rule.Percentage)
			lr.Attributions = append(lr.Attributions, RuleAttribution{
				RuleID:     rule.ID,
				RuleType:   rule.RuleType,
				Percentage: rule.Percentage,
				Amount:     amount,
			})
			switch rule.RuleType {
			case store.RuleTypeLoyalty:
				lr.LoyaltyBonus = lr.LoyaltyBonus.Add(amount)
			case store.RuleTypeReturnCommission:
				lr.ReturnCommission = lr.ReturnCommission.Add(amount)
			}
			if !appliedSeen[rule.ID] {
				appliedSeen[rule.ID] = true
				res.AppliedRuleIDs = append(res.AppliedRuleIDs, rule.ID)
			}
		}

		if !matchedAny && line.Delta.IsPositive() {
			key := strings.ToLower(strings.TrimSpace(line.Brand))
			m, ok := missingByBrand[key]
			if !ok {
				m = &MissingRule{SupplierID: supplier.ID, Brand: line.Brand}
				missingByBrand[key] = m
				missingOrder = append(missingOrder, key)
			}
			m.Turnover = m.Turnover.Add(line.Delta)
		}

		res.Lines = append(res.Lines, lr)
		res.Turnover = res.Turnover.Add(lr.Turnover)
		res.LoyaltyBonus = res.LoyaltyBonus.Add(lr.LoyaltyBonus)
		res.ReturnCommission = res.ReturnCommission.Add(lr.ReturnCommission)
	}

	for _, key := range missingOrder {
		res.MissingRules = append(res.MissingRules, *missingByBrand[key])
	}
	return res
}
