package calculation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"SalongDriftSaas/api/bonus/importer"
	"SalongDriftSaas/api/bonus/period"
	"SalongDriftSaas/internal/store"
	"SalongDriftSaas/pkg/keylock"
)

// Runner drives full calculation runs: delta computation, rule evaluation
// and persistence, one period at a time. Periods are processed strictly in
// ascending order because each period's delta depends on the previous
// period's totals.
type Runner struct {
	st    store.Store
	locks *keylock.KeyLock
}

func NewRunner(st store.Store, locks *keylock.KeyLock) *Runner {
	return &Runner{st: st, locks: locks}
}

// PeriodResult reports one period of a run.
type PeriodResult struct {
	Period     string   `json:"period"`
	Calculated int      `json:"calculated"`
	Unmatched  int      `json:"unmatched"`
	Failed     int      `json:"failed"`
	Warnings   []string `json:"warnings,omitempty"`
}

// RunReport is the counted summary of a whole run.
type RunReport struct {
	Periods    []PeriodResult `json:"periods"`
	Calculated int            `json:"calculated"`
	Failed     int            `json:"failed"`
}

// Run calculates bonuses for every period in [from, to], optionally for a
// single supplier. A supplier without active rules aborts the run when it
// was explicitly requested; in an all-suppliers run it is counted as a
// failure and the run continues. Storage failures are fatal only for their
// own salon/supplier/period unit.
func (r *Runner) Run(ctx context.Context, from, to period.Period, supplierID *uuid.UUID, actor string) (*RunReport, error) {
	periods, err := period.Range(from, to)
	if err != nil {
		return nil, err
	}

	var suppliers []store.Supplier
	if supplierID != nil {
		s, err := r.st.SupplierByID(ctx, *supplierID)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, fmt.Errorf("supplier %s not found", supplierID)
		}
		suppliers = []store.Supplier{*s}
	} else {
		suppliers, err = r.st.Suppliers(ctx, true)
		if err != nil {
			return nil, err
		}
	}

	report := &RunReport{}
	for _, p := range periods {
		pr := PeriodResult{Period: p.String()}
		for _, supplier := range suppliers {
			if err := r.runUnit(ctx, supplier, p, supplierID != nil, actor, &pr); err != nil {
				return nil, err
			}
		}
		report.Calculated += pr.Calculated
		report.Failed += pr.Failed
		report.Periods = append(report.Periods, pr)
	}
	return report, nil
}

// runUnit calculates one supplier for one period. A returned error aborts
// the whole run; recoverable failures are counted on pr instead.
func (r *Runner) runUnit(ctx context.Context, supplier store.Supplier, p period.Period, explicit bool, actor string, pr *PeriodResult) error {
	unlock := r.locks.Lock(importer.LockKey(supplier.ID, p))
	defer unlock()

	rules, err := r.st.ActiveRules(ctx, &supplier.ID)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		if explicit {
			return fmt.Errorf("supplier %s has no active bonus rules", supplier.Name)
		}
		pr.Failed++
		pr.Warnings = append(pr.Warnings, fmt.Sprintf("%s: no active bonus rules", supplier.Name))
		return nil
	}

	current, err := r.st.RowsByPeriod(ctx, supplier.ID, p.String(), nil)
	if err != nil {
		return err
	}
	if len(current) == 0 {
		// A re-import can leave a period without rows; any calculation
		// still stored for it is stale.
		return r.st.PruneCalculations(ctx, supplier.ID, p.String(), nil, false)
	}

	var previous []store.ImportedRow
	baselines := make(map[uuid.UUID]decimal.Decimal)
	if supplier.CumulativeReporting {
		if !p.IsJanuary() {
			// Error rows never feed the previous-period totals.
			previous, err = r.st.RowsByPeriod(ctx, supplier.ID, p.Prev().String(),
				[]string{store.MatchStatusMatched, store.MatchStatusManualOverride, store.MatchStatusUnmatched})
			if err != nil {
				return err
			}
		}
		bs, err := r.st.BaselinesForPeriod(ctx, supplier.ID, p.Prev().String())
		if err != nil {
			return err
		}
		for _, b := range bs {
			baselines[b.SalonID] = b.Value
		}
	}

	lines := ComputeDeltas(supplier, p, current, previous, baselines)
	bySalon := make(map[uuid.UUID][]Line)
	var salonOrder []uuid.UUID
	var unmatched []Line
	for _, line := range lines {
		if line.SalonID == nil {
			unmatched = append(unmatched, line)
			continue
		}
		id := *line.SalonID
		if _, ok := bySalon[id]; !ok {
			salonOrder = append(salonOrder, id)
		}
		bySalon[id] = append(bySalon[id], line)
	}

	brands, err := r.st.BrandsBySupplier(ctx, supplier.ID)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, salonID := range salonOrder {
		res := Evaluate(supplier, brands, bySalon[salonID], rules)
		detail, err := marshalDetail(res)
		if err != nil {
			return err
		}
		id := salonID
		calc := store.BonusCalculation{
			ID:               uuid.New(),
			SalonID:          &id,
			SupplierID:       supplier.ID,
			Period:           p.String(),
			TotalTurnover:    res.Turnover,
			LoyaltyBonus:     res.LoyaltyBonus,
			ReturnCommission: res.ReturnCommission,
			AppliedRuleIDs:   res.AppliedRuleIDs,
			Detail:           detail,
			Status:           string(StatusCalculated),
			CalculatedAt:     now,
			CalculatedBy:     actor,
		}
		if err := r.st.UpsertCalculation(ctx, calc); err != nil {
			log.Printf("[ERROR] calculation upsert %s/%s/%s: %v", salonID, supplier.Name, p, err)
			pr.Failed++
			continue
		}
		pr.Calculated++
		for _, m := range res.MissingRules {
			pr.Warnings = append(pr.Warnings, fmt.Sprintf("%s: no rule for brand %q, turnover %s", supplier.Name, m.Brand, m.Turnover.StringFixed(2)))
		}
	}

	if len(unmatched) > 0 {
		if err := r.upsertUnmatched(ctx, supplier, p, unmatched, actor, now, pr); err != nil {
			return err
		}
	}

	// Drop records whose key this recomputation did not produce: salons
	// whose rows disappeared after a re-import, and the unmatched bucket
	// once every row has found its salon. Without this the period carries
	// the same turnover twice.
	return r.st.PruneCalculations(ctx, supplier.ID, p.String(), salonOrder, len(unmatched) > 0)
}

// upsertUnmatched records the turnover of rows that never matched a salon
// in a synthetic nil-salon bucket so it is not silently lost. No bonus is
// computed; there is nobody to pay it to.
func (r *Runner) upsertUnmatched(ctx context.Context, supplier store.Supplier, p period.Period, lines []Line, actor string, now time.Time, pr *PeriodResult) error {
	detailLines := make([]LineResult, 0, len(lines))
	total := decimal.Zero
	for _, line := range lines {
		detailLines = append(detailLines, LineResult{
			Brand:        line.Brand,
			ProductGroup: line.ProductGroup,
			Turnover:     line.Delta,
		})
		total = total.Add(line.Delta)
	}
	detail, err := marshalDetail(EvalResult{Lines: detailLines})
	if err != nil {
		return err
	}
	calc := store.BonusCalculation{
		ID:            uuid.New(),
		SupplierID:    supplier.ID,
		Period:        p.String(),
		TotalTurnover: total,
		Detail:        detail,
		Status:        string(StatusUnmatched),
		CalculatedAt:  now,
		CalculatedBy:  actor,
	}
	if err := r.st.UpsertCalculation(ctx, calc); err != nil {
		log.Printf("[ERROR] unmatched bucket upsert %s/%s: %v", supplier.Name, p, err)
		pr.Failed++
		return nil
	}
	pr.Unmatched += len(lines)
	return nil
}

// Approve moves one calculation from calculated to approved and stamps the
// approver. Any other starting state is rejected.
func (r *Runner) Approve(ctx context.Context, id uuid.UUID, actor string) (*store.BonusCalculation, error) {
	calc, err := r.st.CalculationByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if calc == nil {
		return nil, fmt.Errorf("calculation %s not found", id)
	}
	if err := CheckTransition(Status(calc.Status), StatusApproved); err != nil {
		return nil, err
	}
	ok, err := r.st.TransitionCalculation(ctx, id, string(StatusCalculated), string(StatusApproved), actor, time.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("calculation %s changed concurrently", id)
	}
	return r.st.CalculationByID(ctx, id)
}
