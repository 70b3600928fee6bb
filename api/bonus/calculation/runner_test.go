package calculation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"SalongDriftSaas/api/bonus/period"
	"SalongDriftSaas/internal/store"
	"SalongDriftSaas/internal/store/memory"
	"SalongDriftSaas/pkg/keylock"
)

func seedBatch(t *testing.T, st *memory.Store, supplier store.Supplier, p period.Period, rows []store.ImportedRow) {
	t.Helper()
	batch := store.ImportBatch{
		ID:         uuid.New(),
		SupplierID: supplier.ID,
		Period:     p.String(),
		Status:     store.BatchStatusCompleted,
		CreatedAt:  time.Now(),
	}
	for i := range rows {
		rows[i].ID = uuid.New()
		rows[i].BatchID = batch.ID
		rows[i].SupplierID = supplier.ID
		rows[i].Period = p.String()
	}
	if err := st.ReplaceBatch(context.Background(), batch, rows); err != nil {
		t.Fatal(err)
	}
}

func TestRunCalculatesAndBucketsUnmatched(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	salon := store.Salon{ID: uuid.New(), Name: "Klipp AS", MemberNumber: "1001", Active: true}
	st.AddSalon(salon)
	supplier := store.Supplier{ID: uuid.New(), Name: "Headbrands", Active: true}
	st.AddSupplier(supplier)
	rule := store.BonusRule{
		ID: uuid.New(), SupplierID: supplier.ID,
		Percentage: pct("0.05"), RuleType: store.RuleTypeLoyalty, Active: true,
	}
	st.AddRule(rule)

	p := period.Period("2025-03")
	seedBatch(t, st, supplier, p, []store.ImportedRow{
		{
			Value: decimal.NewFromInt(10000), Brand: "Wella", ProductGroup: "kjemi",
			SalonID: &salon.ID, MatchStatus: store.MatchStatusMatched,
		},
		{
			Value: decimal.NewFromInt(2500), Brand: "Wella", ProductGroup: "produkt",
			RawIdentifier: "UKJENT-9", MatchStatus: store.MatchStatusUnmatched,
		},
	})

	runner := NewRunner(st, keylock.New())
	report, err := runner.Run(ctx, p, p, nil, "styret")
	if err != nil {
		t.Fatal(err)
	}
	if report.Calculated != 1 || report.Failed != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	calcs, err := st.CalculationsForPeriod(ctx, p.String(), &supplier.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(calcs) != 2 {
		t.Fatalf("expected salon calc plus unmatched bucket, got %d", len(calcs))
	}

	var salonCalc, unmatchedCalc *store.BonusCalculation
	for i := range calcs {
		if calcs[i].SalonID != nil {
			salonCalc = &calcs[i]
		} else {
			unmatchedCalc = &calcs[i]
		}
	}
	if salonCalc == nil || unmatchedCalc == nil {
		t.Fatalf("missing calc kind: %+v", calcs)
	}
	if !salonCalc.LoyaltyBonus.Equal(decimal.NewFromInt(500)) {
		t.Errorf("loyalty bonus %s, want 500", salonCalc.LoyaltyBonus)
	}
	if salonCalc.Status != string(StatusCalculated) {
		t.Errorf("salon calc status %s", salonCalc.Status)
	}
	if !unmatchedCalc.TotalTurnover.Equal(decimal.NewFromInt(2500)) {
		t.Errorf("unmatched turnover %s, want 2500", unmatchedCalc.TotalTurnover)
	}
	if unmatchedCalc.Status != string(StatusUnmatched) || !unmatchedCalc.LoyaltyBonus.IsZero() {
		t.Errorf("unmatched bucket: %+v", unmatchedCalc)
	}
}

func TestRunIsIdempotentPerKey(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	salon := store.Salon{ID: uuid.New(), Name: "Saks AS", MemberNumber: "2002", Active: true}
	st.AddSalon(salon)
	supplier := store.Supplier{ID: uuid.New(), Name: "Cutrin", Active: true}
	st.AddSupplier(supplier)
	st.AddRule(store.BonusRule{
		ID: uuid.New(), SupplierID: supplier.ID,
		Percentage: pct("0.04"), RuleType: store.RuleTypeLoyalty, Active: true,
	})

	p := period.Period("2025-05")
	seedBatch(t, st, supplier, p, []store.ImportedRow{{
		Value: decimal.NewFromInt(8000), Brand: "Cutrin", ProductGroup: "kjemi",
		SalonID: &salon.ID, MatchStatus: store.MatchStatusMatched,
	}})

	runner := NewRunner(st, keylock.New())
	for i := 0; i < 2; i++ {
		if _, err := runner.Run(ctx, p, p, &supplier.ID, "styret"); err != nil {
			t.Fatal(err)
		}
	}
	calcs, err := st.CalculationsForPeriod(ctx, p.String(), &supplier.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(calcs) != 1 {
		t.Fatalf("recalculation duplicated records: %d", len(calcs))
	}
}

func TestRecalculationDropsStaleUnmatchedBucket(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	salon := store.Salon{ID: uuid.New(), Name: "Frisørloftet AS", MemberNumber: "3003", Active: true}
	st.AddSalon(salon)
	supplier := store.Supplier{ID: uuid.New(), Name: "Headbrands", Active: true}
	st.AddSupplier(supplier)
	st.AddRule(store.BonusRule{
		ID: uuid.New(), SupplierID: supplier.ID,
		Percentage: pct("0.05"), RuleType: store.RuleTypeLoyalty, Active: true,
	})

	p := period.Period("2025-04")
	seedBatch(t, st, supplier, p, []store.ImportedRow{{
		Value: decimal.NewFromInt(2500), Brand: "Wella", ProductGroup: "produkt",
		RawIdentifier: "UKJENT-3", MatchStatus: store.MatchStatusUnmatched,
	}})

	runner := NewRunner(st, keylock.New())
	if _, err := runner.Run(ctx, p, p, &supplier.ID, "styret"); err != nil {
		t.Fatal(err)
	}

	// Operator matches the only unmatched row, then recalculates.
	rows, err := st.RowsByPeriod(ctx, supplier.ID, p.String(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.UpdateRowMatch(ctx, rows[0].ID, &salon.ID, store.MatchStatusManualOverride, 100, store.MatchMethodManual); err != nil {
		t.Fatal(err)
	}
	if _, err := runner.Run(ctx, p, p, &supplier.ID, "styret"); err != nil {
		t.Fatal(err)
	}

	calcs, err := st.CalculationsForPeriod(ctx, p.String(), &supplier.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(calcs) != 1 {
		t.Fatalf("stale record survived recalculation: %d calcs", len(calcs))
	}
	if calcs[0].SalonID == nil || *calcs[0].SalonID != salon.ID {
		t.Fatalf("expected the salon record, got %+v", calcs[0])
	}
	if !calcs[0].TotalTurnover.Equal(decimal.NewFromInt(2500)) {
		t.Errorf("period turnover %s, want 2500", calcs[0].TotalTurnover)
	}
}

func TestRecalculationDropsSalonsWithoutRows(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	a := store.Salon{ID: uuid.New(), Name: "Klipp AS", MemberNumber: "1001", Active: true}
	b := store.Salon{ID: uuid.New(), Name: "Saks AS", MemberNumber: "2002", Active: true}
	st.AddSalon(a)
	st.AddSalon(b)
	supplier := store.Supplier{ID: uuid.New(), Name: "Cutrin", Active: true}
	st.AddSupplier(supplier)
	st.AddRule(store.BonusRule{
		ID: uuid.New(), SupplierID: supplier.ID,
		Percentage: pct("0.04"), RuleType: store.RuleTypeLoyalty, Active: true,
	})

	p := period.Period("2025-06")
	seedBatch(t, st, supplier, p, []store.ImportedRow{
		{Value: decimal.NewFromInt(1000), Brand: "Cutrin", ProductGroup: "kjemi",
			SalonID: &a.ID, MatchStatus: store.MatchStatusMatched},
		{Value: decimal.NewFromInt(500), Brand: "Cutrin", ProductGroup: "kjemi",
			SalonID: &b.ID, MatchStatus: store.MatchStatusMatched},
	})
	runner := NewRunner(st, keylock.New())
	if _, err := runner.Run(ctx, p, p, &supplier.ID, "styret"); err != nil {
		t.Fatal(err)
	}

	// A corrected file replaces the batch; salon b is gone from it.
	seedBatch(t, st, supplier, p, []store.ImportedRow{
		{Value: decimal.NewFromInt(1000), Brand: "Cutrin", ProductGroup: "kjemi",
			SalonID: &a.ID, MatchStatus: store.MatchStatusMatched},
	})
	if _, err := runner.Run(ctx, p, p, &supplier.ID, "styret"); err != nil {
		t.Fatal(err)
	}

	calcs, err := st.CalculationsForPeriod(ctx, p.String(), &supplier.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(calcs) != 1 {
		t.Fatalf("stale salon record survived re-import: %d calcs", len(calcs))
	}
	if calcs[0].SalonID == nil || *calcs[0].SalonID != a.ID {
		t.Fatalf("expected salon a only, got %+v", calcs[0])
	}
}

func TestRunNoRulesExplicitSupplierAborts(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	supplier := store.Supplier{ID: uuid.New(), Name: "Tendenz", Active: true}
	st.AddSupplier(supplier)

	runner := NewRunner(st, keylock.New())
	p := period.Period("2025-02")
	if _, err := runner.Run(ctx, p, p, &supplier.ID, "styret"); err == nil {
		t.Fatal("expected error for supplier without rules")
	}
}

func TestRunNoRulesAllSuppliersCountsFailure(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	ruled := store.Supplier{ID: uuid.New(), Name: "A", Active: true}
	unruled := store.Supplier{ID: uuid.New(), Name: "B", Active: true}
	st.AddSupplier(ruled)
	st.AddSupplier(unruled)
	st.AddRule(store.BonusRule{
		ID: uuid.New(), SupplierID: ruled.ID,
		Percentage: pct("0.05"), RuleType: store.RuleTypeLoyalty, Active: true,
	})
	salon := store.Salon{ID: uuid.New(), Name: "Klipp AS", MemberNumber: "1001", Active: true}
	st.AddSalon(salon)

	p := period.Period("2025-02")
	seedBatch(t, st, ruled, p, []store.ImportedRow{{
		Value: decimal.NewFromInt(100), Brand: "X", ProductGroup: "kjemi",
		SalonID: &salon.ID, MatchStatus: store.MatchStatusMatched,
	}})

	runner := NewRunner(st, keylock.New())
	report, err := runner.Run(ctx, p, p, nil, "styret")
	if err != nil {
		t.Fatal(err)
	}
	if report.Calculated != 1 || report.Failed != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestApproveTransition(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	supplier := store.Supplier{ID: uuid.New(), Name: "Cutrin", Active: true}
	st.AddSupplier(supplier)
	salonID := uuid.New()

	calc := store.BonusCalculation{
		ID:            uuid.New(),
		SalonID:       &salonID,
		SupplierID:    supplier.ID,
		Period:        "2025-03",
		TotalTurnover: decimal.NewFromInt(1000),
		Status:        string(StatusCalculated),
		CalculatedAt:  time.Now(),
	}
	if err := st.UpsertCalculation(ctx, calc); err != nil {
		t.Fatal(err)
	}

	runner := NewRunner(st, keylock.New())
	got, err := runner.Approve(ctx, calc.ID, "daglig leder")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != string(StatusApproved) || got.ApprovedBy != "daglig leder" || got.ApprovedAt == nil {
		t.Fatalf("after approve: %+v", got)
	}

	// Approving twice is rejected by the transition table.
	if _, err := runner.Approve(ctx, calc.ID, "daglig leder"); err == nil {
		t.Fatal("second approve allowed")
	}
}
