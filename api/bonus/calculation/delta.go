package calculation

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"SalongDriftSaas/api/bonus/period"
	"SalongDriftSaas/internal/store"
)

// Line is one sales observation with its bonus-eligible delta turnover.
// SalonID nil means the row never matched a salon and belongs to the
// synthetic unmatched bucket of its supplier.
type Line struct {
	SalonID       *uuid.UUID
	RawIdentifier string
	RawName       string
	Brand         string
	ProductGroup  string
	Reported      decimal.Decimal
	Delta         decimal.Decimal
}

// bucketKey aggregates rows that share a cumulative baseline: suppliers
// report year-to-date totals per brand and product group, not per salon.
func bucketKey(brand, group string) string {
	return strings.ToLower(strings.TrimSpace(brand)) + "|" + strings.ToLower(strings.TrimSpace(group))
}

// unmatchedKey keys unmatched rows by their raw identifier so their
// year-over-year progression is tracked per identifier, not blended into
// the matched aggregates.
func unmatchedKey(identifier, brand, group string) string {
	return "?" + strings.TrimSpace(identifier) + "|" + bucketKey(brand, group)
}

func rowKey(r store.ImportedRow) string {
	if r.SalonID != nil {
		return bucketKey(r.Brand, r.ProductGroup)
	}
	return unmatchedKey(r.RawIdentifier, r.Brand, r.ProductGroup)
}

// ComputeDeltas attributes a bonus-eligible delta turnover to every current
// row. For non-cumulative suppliers the reported value is the delta. For
// cumulative suppliers the aggregate delta of a (brand, product group)
// bucket is current total minus previous total, January resets to the
// current total, and each row receives its proportional share of the
// bucket delta. A baseline for (salon, supplier) at the previous period
// replaces the salon's whole previous figure: it is applied once against
// the salon's summed reported value and the salon delta is shared across
// the salon's rows.
//
// When a bucket's current total is zero every share is zero, so a row with
// a positive reported value can end up with a zero delta. That is a known
// property of the proportional method and is left as is.
func ComputeDeltas(supplier store.Supplier, p period.Period, current, previous []store.ImportedRow, baselines map[uuid.UUID]decimal.Decimal) []Line {
	lines := make([]Line, 0, len(current))

	if !supplier.CumulativeReporting {
		for _, r := range current {
			lines = append(lines, lineFromRow(r, r.Value))
		}
		return lines
	}

	currentTotal := make(map[string]decimal.Decimal)
	for _, r := range current {
		k := rowKey(r)
		currentTotal[k] = currentTotal[k].Add(r.Value)
	}

	previousTotal := make(map[string]decimal.Decimal)
	if !p.IsJanuary() {
		for _, r := range previous {
			k := rowKey(r)
			previousTotal[k] = previousTotal[k].Add(r.Value)
		}
	}

	// A baseline stands in for the whole previous-period figure of its
	// salon, so it is applied once against the salon's summed reported
	// value and the resulting delta is shared across the salon's rows.
	salonReported := make(map[uuid.UUID]decimal.Decimal)
	for _, r := range current {
		if r.SalonID == nil {
			continue
		}
		if _, ok := baselines[*r.SalonID]; ok {
			salonReported[*r.SalonID] = salonReported[*r.SalonID].Add(r.Value)
		}
	}

	for _, r := range current {
		if r.SalonID != nil {
			if baseline, ok := baselines[*r.SalonID]; ok {
				salonTotal := salonReported[*r.SalonID]
				var d decimal.Decimal
				if p.IsJanuary() {
					d = r.Value
				} else if !salonTotal.IsZero() {
					share := r.Value.Div(salonTotal)
					d = salonTotal.Sub(baseline).Mul(share)
				}
				lines = append(lines, lineFromRow(r, d))
				continue
			}
		}

		k := rowKey(r)
		total := currentTotal[k]
		aggregateDelta := total
		if !p.IsJanuary() {
			aggregateDelta = total.Sub(previousTotal[k])
		}

		var d decimal.Decimal
		if !total.IsZero() {
			share := r.Value.Div(total)
			d = aggregateDelta.Mul(share)
		}
		lines = append(lines, lineFromRow(r, d))
	}
	return lines
}

func lineFromRow(r store.ImportedRow, delta decimal.Decimal) Line {
	return Line{
		SalonID:       r.SalonID,
		RawIdentifier: r.RawIdentifier,
		RawName:       r.RawName,
		Brand:         r.Brand,
		ProductGroup:  r.ProductGroup,
		Reported:      r.Value,
		Delta:         delta,
	}
}
