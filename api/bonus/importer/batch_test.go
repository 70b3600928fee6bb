package importer

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"SalongDriftSaas/api/bonus/feed"
	"SalongDriftSaas/api/bonus/period"
	"SalongDriftSaas/internal/store"
	"SalongDriftSaas/internal/store/memory"
	"SalongDriftSaas/pkg/keylock"
)

func testManager(st store.Store) *Manager {
	return NewManager(st, keylock.New())
}

func seedSupplier(st *memory.Store) store.Supplier {
	supplier := store.Supplier{
		ID:      uuid.New(),
		Name:    "Headbrands",
		Active:  true,
		MatchBy: store.MatchByMemberNumber,
	}
	st.AddSupplier(supplier)
	return supplier
}

func row(identifier, brand, group string, value int64) feed.NormalizedRow {
	return feed.NormalizedRow{
		Identifier:   identifier,
		Name:         "Salong " + identifier,
		Brand:        brand,
		ProductGroup: group,
		Value:        decimal.NewFromInt(value),
	}
}

func TestImportReplacesPreviousBatch(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	supplier := seedSupplier(st)
	salon := store.Salon{ID: uuid.New(), Name: "Klipp AS", MemberNumber: "1001", Active: true}
	st.AddSalon(salon)
	mgr := testManager(st)
	p := period.Period("2025-03")

	first, err := mgr.Import(ctx, &supplier, p,
		[]feed.NormalizedRow{row("1001", "Wella", store.ProductGroupChemistry, 5000)},
		"mars.xlsx", "hash-a", "")
	if err != nil {
		t.Fatal(err)
	}
	if first.RowCount != 1 || first.MatchedCount != 1 || first.ErrorCount != 0 {
		t.Fatalf("unexpected first result: %+v", first)
	}

	// Corrected file for the same period replaces, never merges.
	second, err := mgr.Import(ctx, &supplier, p,
		[]feed.NormalizedRow{
			row("1001", "Wella", store.ProductGroupChemistry, 6000),
			row("9999", "Wella", store.ProductGroupRetail, 1000),
		},
		"mars-korrigert.xlsx", "hash-b", "korrigert")
	if err != nil {
		t.Fatal(err)
	}
	if second.RowCount != 2 || second.MatchedCount != 1 || second.ErrorCount != 1 {
		t.Fatalf("unexpected second result: %+v", second)
	}

	batches, err := st.Batches(ctx, &supplier.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch after re-import, got %d", len(batches))
	}
	if batches[0].ID != second.Batch.ID {
		t.Error("surviving batch is not the re-import")
	}

	rows, err := st.RowsByBatch(ctx, second.Batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if oldRows, _ := st.RowsByBatch(ctx, first.Batch.ID); len(oldRows) != 0 {
		t.Errorf("rows of replaced batch survived: %d", len(oldRows))
	}
}

func TestImportIdenticalFileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	supplier := seedSupplier(st)
	st.AddSalon(store.Salon{ID: uuid.New(), Name: "Klipp AS", MemberNumber: "1001", Active: true})
	mgr := testManager(st)
	p := period.Period("2025-03")
	rows := []feed.NormalizedRow{row("1001", "Wella", store.ProductGroupChemistry, 5000)}

	first, err := mgr.Import(ctx, &supplier, p, rows, "mars.xlsx", "same-hash", "")
	if err != nil {
		t.Fatal(err)
	}
	again, err := mgr.Import(ctx, &supplier, p, rows, "mars.xlsx", "same-hash", "")
	if err != nil {
		t.Fatal(err)
	}
	if !again.Duplicate {
		t.Fatal("identical file not flagged as duplicate")
	}
	if again.Batch.ID != first.Batch.ID {
		t.Error("duplicate upload created a new batch")
	}
}

func TestManualMatchLearnsMapping(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	supplier := seedSupplier(st)
	salon := store.Salon{ID: uuid.New(), Name: "Saks AS", MemberNumber: "2002", Active: true}
	st.AddSalon(salon)
	mgr := testManager(st)
	p := period.Period("2025-04")

	res, err := mgr.Import(ctx, &supplier, p,
		[]feed.NormalizedRow{row("KUNDE-77", "Wella", store.ProductGroupRetail, 3000)},
		"april.xlsx", "hash-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.MatchedCount != 0 {
		t.Fatalf("expected unmatched import, got %+v", res)
	}

	rows, err := st.RowsByBatch(ctx, res.Batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	updated, err := mgr.ManualMatch(ctx, rows[0].ID, salon.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.MatchStatus != store.MatchStatusManualOverride || updated.MatchMethod != store.MatchMethodManual {
		t.Fatalf("unexpected row after manual match: %+v", updated)
	}
	if updated.SalonID == nil || *updated.SalonID != salon.ID {
		t.Fatal("salon not assigned")
	}

	batch, err := st.BatchByID(ctx, res.Batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if batch.MatchedCount != 1 || batch.ErrorCount != 0 {
		t.Errorf("batch counts not refreshed: %+v", batch)
	}

	// The learned mapping resolves the same identifier on the next import.
	next, err := mgr.Import(ctx, &supplier, period.Period("2025-05"),
		[]feed.NormalizedRow{row("KUNDE-77", "Wella", store.ProductGroupRetail, 4000)},
		"mai.xlsx", "hash-2", "")
	if err != nil {
		t.Fatal(err)
	}
	if next.MatchedCount != 1 {
		t.Fatalf("learned mapping not applied on re-import: %+v", next)
	}
}

func TestRematchOnlyTouchesUnmatchedRows(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	supplier := seedSupplier(st)
	matched := store.Salon{ID: uuid.New(), Name: "Klipp AS", MemberNumber: "1001", Active: true}
	st.AddSalon(matched)
	mgr := testManager(st)
	p := period.Period("2025-06")

	res, err := mgr.Import(ctx, &supplier, p,
		[]feed.NormalizedRow{
			row("1001", "Wella", store.ProductGroupChemistry, 1000),
			row("3003", "Wella", store.ProductGroupChemistry, 2000),
			row("4004", "Wella", store.ProductGroupRetail, 3000),
		},
		"juni.xlsx", "hash-j", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.MatchedCount != 1 || res.ErrorCount != 2 {
		t.Fatalf("unexpected import result: %+v", res)
	}

	// A salon registered after the import makes one identifier resolvable.
	late := store.Salon{ID: uuid.New(), Name: "Ny Salong", MemberNumber: "3003", Active: true}
	st.AddSalon(late)

	rr, err := mgr.Rematch(ctx, res.Batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rr.NewlyMatched != 1 || rr.StillUnmatched != 1 {
		t.Fatalf("unexpected rematch result: %+v", rr)
	}

	batch, err := st.BatchByID(ctx, res.Batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if batch.MatchedCount != 2 || batch.ErrorCount != 1 {
		t.Errorf("batch counts after rematch: %+v", batch)
	}

	// A second pass finds nothing new.
	rr, err = mgr.Rematch(ctx, res.Batch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rr.NewlyMatched != 0 || rr.StillUnmatched != 1 {
		t.Fatalf("rematch not idempotent: %+v", rr)
	}
}

func TestSyncAllCoversEveryBatchWithUnmatchedRows(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	supplier := seedSupplier(st)
	mgr := testManager(st)

	for i, p := range []period.Period{"2025-01", "2025-02"} {
		_, err := mgr.Import(ctx, &supplier, p,
			[]feed.NormalizedRow{row("5005", "Wella", store.ProductGroupChemistry, int64(1000*(i+1)))},
			p.String()+".xlsx", "hash-"+p.String(), "")
		if err != nil {
			t.Fatal(err)
		}
	}

	st.AddSalon(store.Salon{ID: uuid.New(), Name: "Sen Salong", MemberNumber: "5005", Active: true})

	report, err := mgr.SyncAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.BatchesProcessed != 2 || report.NewlyMatched != 2 || report.Failed != 0 {
		t.Fatalf("unexpected sync report: %+v", report)
	}

	// Everything is matched now, the next sync is a no-op.
	report, err = mgr.SyncAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.BatchesProcessed != 0 {
		t.Fatalf("sync not idempotent: %+v", report)
	}
}

func TestRematchWaitsForPeriodLock(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	supplier := seedSupplier(st)
	locks := keylock.New()
	mgr := NewManager(st, locks)
	p := period.Period("2025-03")

	res, err := mgr.Import(ctx, &supplier, p,
		[]feed.NormalizedRow{row("9999", "Wella", store.ProductGroupChemistry, 100)},
		"mars.xlsx", "hash-lock", "")
	if err != nil {
		t.Fatal(err)
	}

	unlock := locks.Lock(LockKey(supplier.ID, p))
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := mgr.Rematch(ctx, res.Batch.ID); err != nil {
			t.Error(err)
		}
	}()

	select {
	case <-done:
		t.Fatal("rematch ran while the supplier+period lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("rematch never acquired the released lock")
	}
}

func TestQuarterlyImportSplitsIntoMonthlyThirds(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	supplier := seedSupplier(st)
	salon := store.Salon{ID: uuid.New(), Name: "Klipp AS", MemberNumber: "1001", Active: true}
	st.AddSalon(salon)
	mgr := testManager(st)

	months, err := period.ParseQuarter("2025-Q2")
	if err != nil {
		t.Fatal(err)
	}
	if len(months) != 3 {
		t.Fatalf("quarter resolved to %d months", len(months))
	}

	rows := SplitQuarterly([]feed.NormalizedRow{row("1001", "Wella", store.ProductGroupChemistry, 300)})
	for _, p := range months {
		res, err := mgr.Import(ctx, &supplier, p, rows, "kvartal.xlsx", "hash-q2", "")
		if err != nil {
			t.Fatal(err)
		}
		if res.RowCount != 1 || res.MatchedCount != 1 {
			t.Fatalf("month %s: %+v", p, res)
		}
	}

	for _, p := range months {
		got, err := st.RowsByPeriod(ctx, supplier.ID, p.String(), nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 {
			t.Fatalf("month %s has %d rows", p, len(got))
		}
		if !got[0].Value.Equal(decimal.NewFromInt(100)) {
			t.Errorf("month %s value %s, want 100", p, got[0].Value)
		}
	}
}
