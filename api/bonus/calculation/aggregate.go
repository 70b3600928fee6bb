package calculation

import (
	"encoding/json"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"SalongDriftSaas/internal/store"
)

// Detail is the per-brand breakdown stored on every calculation record so
// an operator can see how a total came about without re-running anything.
type Detail struct {
	Lines        []LineResult  `json:"lines"`
	MissingRules []MissingRule `json:"missing_rules,omitempty"`
}

func marshalDetail(res EvalResult) (json.RawMessage, error) {
	return json.Marshal(Detail{Lines: res.Lines, MissingRules: res.MissingRules})
}

// SupplierBreakdown is one supplier's contribution to a salon report row.
type SupplierBreakdown struct {
	SupplierID       uuid.UUID       `json:"supplier_id"`
	SupplierName     string          `json:"supplier_name,omitempty"`
	Turnover         decimal.Decimal `json:"turnover"`
	LoyaltyBonus     decimal.Decimal `json:"loyalty_bonus"`
	ReturnCommission decimal.Decimal `json:"return_commission"`
	Periods          []string        `json:"periods"`
	Status           Status          `json:"status"`
}

// ReportRow aggregates every calculation for one salon across the queried
// range. SalonID nil is the unmatched bucket.
type ReportRow struct {
	SalonID          *uuid.UUID          `json:"salon_id,omitempty"`
	SalonName        string              `json:"salon_name"`
	Turnover         decimal.Decimal     `json:"turnover"`
	LoyaltyBonus     decimal.Decimal     `json:"loyalty_bonus"`
	ReturnCommission decimal.Decimal     `json:"return_commission"`
	Periods          []string            `json:"periods"`
	Suppliers        []SupplierBreakdown `json:"suppliers"`
	WorstStatus      Status              `json:"worst_status"`
}

// FoldReport groups stored calculations by salon and sums their totals.
// It is a pure read: nothing is mutated and nothing is recomputed. The
// names maps translate ids for display and may be incomplete.
func FoldReport(calcs []store.BonusCalculation, salonNames map[uuid.UUID]string, supplierNames map[uuid.UUID]string) []ReportRow {
	type groupKey struct {
		salon uuid.UUID
		named bool
	}
	groups := make(map[groupKey]*ReportRow)
	supOf := make(map[groupKey]map[uuid.UUID]*SupplierBreakdown)
	var order []groupKey

	for _, c := range calcs {
		k := groupKey{}
		if c.SalonID != nil {
			k = groupKey{salon: *c.SalonID, named: true}
		}
		row, ok := groups[k]
		if !ok {
			row = &ReportRow{WorstStatus: StatusPaid}
			if c.SalonID != nil {
				id := *c.SalonID
				row.SalonID = &id
				row.SalonName = salonNames[id]
			} else {
				row.SalonName = "Umatchet"
			}
			groups[k] = row
			supOf[k] = make(map[uuid.UUID]*SupplierBreakdown)
			order = append(order, k)
		}

		row.Turnover = row.Turnover.Add(c.TotalTurnover)
		row.LoyaltyBonus = row.LoyaltyBonus.Add(c.LoyaltyBonus)
		row.ReturnCommission = row.ReturnCommission.Add(c.ReturnCommission)
		row.Periods = appendUnique(row.Periods, c.Period)
		row.WorstStatus = WorstStatus([]Status{row.WorstStatus, Status(c.Status)})

		sb, ok := supOf[k][c.SupplierID]
		if !ok {
			sb = &SupplierBreakdown{
				SupplierID:   c.SupplierID,
				SupplierName: supplierNames[c.SupplierID],
				Status:       StatusPaid,
			}
			supOf[k][c.SupplierID] = sb
		}
		sb.Turnover = sb.Turnover.Add(c.TotalTurnover)
		sb.LoyaltyBonus = sb.LoyaltyBonus.Add(c.LoyaltyBonus)
		sb.ReturnCommission = sb.ReturnCommission.Add(c.ReturnCommission)
		sb.Periods = appendUnique(sb.Periods, c.Period)
		sb.Status = WorstStatus([]Status{sb.Status, Status(c.Status)})
	}

	out := make([]ReportRow, 0, len(order))
	for _, k := range order {
		row := groups[k]
		sort.Strings(row.Periods)
		for _, sb := range supOf[k] {
			sort.Strings(sb.Periods)
			row.Suppliers = append(row.Suppliers, *sb)
		}
		sort.Slice(row.Suppliers, func(i, j int) bool {
			return row.Suppliers[i].SupplierID.String() < row.Suppliers[j].SupplierID.String()
		})
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		// Unmatched bucket sorts last.
		if (out[i].SalonID == nil) != (out[j].SalonID == nil) {
			return out[j].SalonID == nil
		}
		return out[i].SalonName < out[j].SalonName
	})
	return out
}

func appendUnique(periods []string, p string) []string {
	for _, v := range periods {
		if v == p {
			return periods
		}
	}
	return append(periods, p)
}
