package calculation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"SalongDriftSaas/internal/store"
)

func TestFoldReportGroupsBySalon(t *testing.T) {
	salonID := uuid.New()
	supA := uuid.New()
	supB := uuid.New()

	calcs := []store.BonusCalculation{
		{
			ID: uuid.New(), SalonID: &salonID, SupplierID: supA, Period: "2025-01",
			TotalTurnover: decimal.NewFromInt(1000), LoyaltyBonus: decimal.NewFromInt(50),
			Status: string(StatusPaid),
		},
		{
			ID: uuid.New(), SalonID: &salonID, SupplierID: supB, Period: "2025-02",
			TotalTurnover: decimal.NewFromInt(2000), ReturnCommission: decimal.NewFromInt(40),
			Status: string(StatusCalculated),
		},
		{
			ID: uuid.New(), SupplierID: supA, Period: "2025-01",
			TotalTurnover: decimal.NewFromInt(300),
			Status:        string(StatusUnmatched),
		},
	}

	rows := FoldReport(calcs,
		map[uuid.UUID]string{salonID: "Klipp AS"},
		map[uuid.UUID]string{supA: "Cutrin", supB: "Headbrands"})

	if len(rows) != 2 {
		t.Fatalf("expected salon row plus unmatched row, got %d", len(rows))
	}

	salonRow := rows[0]
	if salonRow.SalonID == nil || salonRow.SalonName != "Klipp AS" {
		t.Fatalf("salon row: %+v", salonRow)
	}
	if !salonRow.Turnover.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("turnover %s, want 3000", salonRow.Turnover)
	}
	if !salonRow.LoyaltyBonus.Equal(decimal.NewFromInt(50)) || !salonRow.ReturnCommission.Equal(decimal.NewFromInt(40)) {
		t.Errorf("bonus totals: %+v", salonRow)
	}
	// paid + calculated surfaces the least-finished state.
	if salonRow.WorstStatus != StatusCalculated {
		t.Errorf("worst status %s, want calculated", salonRow.WorstStatus)
	}
	if len(salonRow.Periods) != 2 || len(salonRow.Suppliers) != 2 {
		t.Errorf("periods %v, suppliers %d", salonRow.Periods, len(salonRow.Suppliers))
	}

	unmatchedRow := rows[1]
	if unmatchedRow.SalonID != nil || unmatchedRow.WorstStatus != StatusUnmatched {
		t.Fatalf("unmatched row: %+v", unmatchedRow)
	}
	if !unmatchedRow.Turnover.Equal(decimal.NewFromInt(300)) {
		t.Errorf("unmatched turnover %s, want 300", unmatchedRow.Turnover)
	}
}
