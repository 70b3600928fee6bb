package importer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"SalongDriftSaas/api/bonus/feed"
	"SalongDriftSaas/api/bonus/period"
	"SalongDriftSaas/internal/store"
	"SalongDriftSaas/pkg/keylock"
)

// Manager owns the lifecycle of import batches: replace-on-reimport,
// row persistence with match fields, rematching and the bulk sync.
type Manager struct {
	st    store.Store
	locks *keylock.KeyLock
}

func NewManager(st store.Store, locks *keylock.KeyLock) *Manager {
	return &Manager{st: st, locks: locks}
}

// LockKey is shared with the calculation runner so imports and calculation
// runs for the same supplier+period never interleave.
func LockKey(supplierID uuid.UUID, p period.Period) string {
	return supplierID.String() + "@" + p.String()
}

// SplitQuarterly scales quarterly reported values to monthly thirds so a
// quarter file can be imported as three monthly batches. The input rows
// are not modified.
func SplitQuarterly(rows []feed.NormalizedRow) []feed.NormalizedRow {
	three := decimal.NewFromInt(3)
	scaled := make([]feed.NormalizedRow, len(rows))
	for i, r := range rows {
		r.Value = r.Value.Div(three)
		scaled[i] = r
	}
	return scaled
}

// ImportResult summarizes one persisted batch for the operator.
type ImportResult struct {
	Batch        store.ImportBatch `json:"batch"`
	Duplicate    bool              `json:"duplicate"`
	RowCount     int               `json:"row_count"`
	MatchedCount int               `json:"matched_count"`
	ErrorCount   int               `json:"error_count"`
}

// Import persists one parsed report for (supplier, period). Any prior batch
// for the same key is deleted with its rows first: strict replace, never
// merge. Each row is resolved to a salon before persisting.
func (m *Manager) Import(ctx context.Context, supplier *store.Supplier, p period.Period, rows []feed.NormalizedRow, fileName, fileHash, note string) (*ImportResult, error) {
	unlock := m.locks.Lock(LockKey(supplier.ID, p))
	defer unlock()

	// Idempotency: the identical file for the same key short-circuits
	// before anything is deleted.
	if existing, err := m.st.BatchWithFileHash(ctx, supplier.ID, p.String(), fileHash); err != nil {
		return nil, err
	} else if existing != nil {
		return &ImportResult{
			Batch:        *existing,
			Duplicate:    true,
			RowCount:     existing.RowCount,
			MatchedCount: existing.MatchedCount,
			ErrorCount:   existing.ErrorCount,
		}, nil
	}

	cache, err := LoadMappingCache(ctx, m.st, supplier.ID)
	if err != nil {
		return nil, fmt.Errorf("load identifier mappings: %w", err)
	}
	resolver := NewResolver(m.st, cache)

	batch := store.ImportBatch{
		ID:         uuid.New(),
		SupplierID: supplier.ID,
		Period:     p.String(),
		FileName:   fileName,
		FileHash:   fileHash,
		Status:     store.BatchStatusPending,
		Note:       note,
		CreatedAt:  time.Now(),
	}

	imported := make([]store.ImportedRow, 0, len(rows))
	matchedCount := 0
	for _, r := range rows {
		res, err := resolver.Resolve(ctx, supplier, r.Identifier)
		if err != nil {
			return nil, fmt.Errorf("resolve identifier %q: %w", r.Identifier, err)
		}
		if res.SalonID != nil {
			matchedCount++
		}
		imported = append(imported, store.ImportedRow{
			ID:              uuid.New(),
			BatchID:         batch.ID,
			SupplierID:      supplier.ID,
			Period:          p.String(),
			Value:           r.Value,
			Brand:           r.Brand,
			ProductGroup:    r.ProductGroup,
			RawIdentifier:   r.Identifier,
			RawName:         r.Name,
			SalonID:         res.SalonID,
			MatchStatus:     res.Status,
			MatchConfidence: res.Confidence,
			MatchMethod:     res.Method,
		})
	}

	if err := m.st.ReplaceBatch(ctx, batch, imported); err != nil {
		return nil, fmt.Errorf("replace batch %s/%s: %w", supplier.Name, p, err)
	}

	rowCount := len(imported)
	errorCount := rowCount - matchedCount
	if err := m.st.FinalizeBatch(ctx, batch.ID, store.BatchStatusCompleted, rowCount, matchedCount, errorCount, time.Now()); err != nil {
		return nil, fmt.Errorf("finalize batch: %w", err)
	}

	batch.Status = store.BatchStatusCompleted
	batch.RowCount = rowCount
	batch.MatchedCount = matchedCount
	batch.ErrorCount = errorCount
	return &ImportResult{
		Batch:        batch,
		RowCount:     rowCount,
		MatchedCount: matchedCount,
		ErrorCount:   errorCount,
	}, nil
}

// RematchResult reports one rematch pass over a batch.
type RematchResult struct {
	BatchID        uuid.UUID `json:"batch_id"`
	NewlyMatched   int       `json:"newly_matched"`
	StillUnmatched int       `json:"still_unmatched"`
}

// Rematch re-runs resolution against the unmatched rows of a batch, used
// after new identifier mappings have been learned. Rows that are already
// matched are left alone.
func (m *Manager) Rematch(ctx context.Context, batchID uuid.UUID) (*RematchResult, error) {
	batch, err := m.st.BatchByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, fmt.Errorf("batch %s not found", batchID)
	}
	supplier, err := m.st.SupplierByID(ctx, batch.SupplierID)
	if err != nil {
		return nil, err
	}
	if supplier == nil {
		return nil, fmt.Errorf("supplier %s not found", batch.SupplierID)
	}

	unlock := m.locks.Lock(LockKey(batch.SupplierID, period.Period(batch.Period)))
	defer unlock()

	cache, err := LoadMappingCache(ctx, m.st, supplier.ID)
	if err != nil {
		return nil, err
	}
	resolver := NewResolver(m.st, cache)

	rows, err := m.st.RowsByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	result := &RematchResult{BatchID: batchID}
	matchedCount := 0
	for _, row := range rows {
		if row.MatchStatus != store.MatchStatusUnmatched {
			if row.SalonID != nil {
				matchedCount++
			}
			continue
		}
		res, err := resolver.Resolve(ctx, supplier, row.RawIdentifier)
		if err != nil {
			return nil, err
		}
		if res.SalonID == nil {
			result.StillUnmatched++
			continue
		}
		if err := m.st.UpdateRowMatch(ctx, row.ID, res.SalonID, res.Status, res.Confidence, res.Method); err != nil {
			return nil, err
		}
		result.NewlyMatched++
		matchedCount++
	}

	rowCount := len(rows)
	if err := m.st.FinalizeBatch(ctx, batchID, store.BatchStatusCompleted, rowCount, matchedCount, rowCount-matchedCount, time.Now()); err != nil {
		return nil, err
	}
	return result, nil
}

// SyncReport accumulates a bulk rematch over every batch that still has
// unmatched rows.
type SyncReport struct {
	BatchesProcessed int `json:"batches_processed"`
	NewlyMatched     int `json:"newly_matched"`
	StillUnmatched   int `json:"still_unmatched"`
	Failed           int `json:"failed"`
}

// SyncAll rematches every batch with unmatched rows, sequentially. A
// failing batch is counted and the sync continues; re-running is safe
// because rematch is idempotent per batch.
func (m *Manager) SyncAll(ctx context.Context) (*SyncReport, error) {
	batches, err := m.st.BatchesWithUnmatchedRows(ctx)
	if err != nil {
		return nil, err
	}
	report := &SyncReport{}
	for _, batch := range batches {
		res, err := m.Rematch(ctx, batch.ID)
		if err != nil {
			log.Printf("[ERROR] sync: rematch of batch %s failed: %v", batch.ID, err)
			report.Failed++
			continue
		}
		report.BatchesProcessed++
		report.NewlyMatched += res.NewlyMatched
		report.StillUnmatched += res.StillUnmatched
	}
	return report, nil
}

// ManualMatch assigns a salon to a row by operator decision, learns the
// (supplier, customer number) mapping for future imports and refreshes the
// batch counts. The learned mapping replaces any previous mapping for the
// same pair, so a wrong match can be corrected.
func (m *Manager) ManualMatch(ctx context.Context, rowID, salonID uuid.UUID) (*store.ImportedRow, error) {
	row, err := m.st.RowByID(ctx, rowID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("imported row %s not found", rowID)
	}
	salon, err := m.st.SalonByID(ctx, salonID)
	if err != nil {
		return nil, err
	}
	if salon == nil {
		return nil, fmt.Errorf("salon %s not found", salonID)
	}

	unlock := m.locks.Lock(LockKey(row.SupplierID, period.Period(row.Period)))
	defer unlock()

	if err := m.st.ReplaceMapping(ctx, store.IdentifierMapping{
		SupplierID:     row.SupplierID,
		CustomerNumber: row.RawIdentifier,
		SalonID:        salonID,
		MappingType:    store.MappingTypeManual,
	}); err != nil {
		return nil, fmt.Errorf("learn identifier mapping: %w", err)
	}

	if err := m.st.UpdateRowMatch(ctx, rowID, &salonID, store.MatchStatusManualOverride, 100, store.MatchMethodManual); err != nil {
		return nil, err
	}

	// Refresh counts on the owning batch.
	rows, err := m.st.RowsByBatch(ctx, row.BatchID)
	if err != nil {
		return nil, err
	}
	matched := 0
	for _, r := range rows {
		if r.SalonID != nil {
			matched++
		}
	}
	if err := m.st.FinalizeBatch(ctx, row.BatchID, store.BatchStatusCompleted, len(rows), matched, len(rows)-matched, time.Now()); err != nil {
		return nil, err
	}

	updated, err := m.st.RowByID(ctx, rowID)
	if err != nil {
		return nil, err
	}
	return updated, nil
}
