package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"SalongDriftSaas/internal/store"
)

// Store is an in-memory store.Store used by tests and local development.
// A single mutex serializes every operation, which also satisfies the
// import-vs-calculate serialization the engine expects from storage.
type Store struct {
	mu sync.Mutex

	salons       map[uuid.UUID]store.Salon
	suppliers    map[uuid.UUID]store.Supplier
	brands       map[uuid.UUID]store.Brand
	rules        map[uuid.UUID]store.BonusRule
	mappings     map[string]store.IdentifierMapping // supplierID|customerNumber
	batches      map[uuid.UUID]store.ImportBatch
	rows         map[uuid.UUID]store.ImportedRow
	baselines    map[string]store.CumulativeBaseline // salonID|supplierID|period
	calculations map[uuid.UUID]store.BonusCalculation
}

func New() *Store {
	return &Store{
		salons:       make(map[uuid.UUID]store.Salon),
		suppliers:    make(map[uuid.UUID]store.Supplier),
		brands:       make(map[uuid.UUID]store.Brand),
		rules:        make(map[uuid.UUID]store.BonusRule),
		mappings:     make(map[string]store.IdentifierMapping),
		batches:      make(map[uuid.UUID]store.ImportBatch),
		rows:         make(map[uuid.UUID]store.ImportedRow),
		baselines:    make(map[string]store.CumulativeBaseline),
		calculations: make(map[uuid.UUID]store.BonusCalculation),
	}
}

func mappingKey(supplierID uuid.UUID, customerNumber string) string {
	return supplierID.String() + "|" + strings.TrimSpace(customerNumber)
}

func baselineKey(salonID, supplierID uuid.UUID, period string) string {
	return salonID.String() + "|" + supplierID.String() + "|" + period
}

// ---- seeding helpers (tests) ----

func (s *Store) AddSalon(v store.Salon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.salons[v.ID] = v
}

func (s *Store) AddSupplier(v store.Supplier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppliers[v.ID] = v
}

func (s *Store) AddBrand(v store.Brand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.brands[v.ID] = v
}

func (s *Store) AddRule(v store.BonusRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[v.ID] = v
}

func (s *Store) AddBaseline(v store.CumulativeBaseline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baselines[baselineKey(v.SalonID, v.SupplierID, v.Period)] = v
}

// ---- master data ----

func (s *Store) SalonByID(_ context.Context, id uuid.UUID) (*store.Salon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.salons[id]; ok {
		return &v, nil
	}
	return nil, nil
}

func (s *Store) SalonByMemberNumber(_ context.Context, code string) (*store.Salon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code = strings.TrimSpace(code)
	for _, v := range s.salons {
		if v.Active && v.MemberNumber == code {
			out := v
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) SalonByOrgNumber(_ context.Context, orgNumber string) (*store.Salon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orgNumber = strings.TrimSpace(orgNumber)
	for _, v := range s.salons {
		if v.Active && v.OrgNumber == orgNumber {
			out := v
			return &out, nil
		}
	}
	return nil, nil
}

func (s *Store) SupplierByID(_ context.Context, id uuid.UUID) (*store.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.suppliers[id]; ok {
		return &v, nil
	}
	return nil, nil
}

func (s *Store) Suppliers(_ context.Context, activeOnly bool) ([]store.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Supplier, 0, len(s.suppliers))
	for _, v := range s.suppliers {
		if activeOnly && !v.Active {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) BrandsBySupplier(_ context.Context, supplierID uuid.UUID) ([]store.Brand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Brand
	for _, v := range s.brands {
		if v.SupplierID == supplierID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ActiveRules(_ context.Context, supplierID *uuid.UUID) ([]store.BonusRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.BonusRule
	for _, v := range s.rules {
		if !v.Active {
			continue
		}
		if supplierID != nil && v.SupplierID != *supplierID {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// ---- identifier mappings ----

func (s *Store) MappingsBySupplier(_ context.Context, supplierID uuid.UUID) ([]store.IdentifierMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.IdentifierMapping
	for _, v := range s.mappings {
		if v.SupplierID == supplierID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Store) ReplaceMapping(_ context.Context, m store.IdentifierMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[mappingKey(m.SupplierID, m.CustomerNumber)] = m
	return nil
}

// ---- import batches ----

func (s *Store) ReplaceBatch(_ context.Context, batch store.ImportBatch, rows []store.ImportedRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range s.batches {
		if b.SupplierID == batch.SupplierID && b.Period == batch.Period {
			delete(s.batches, id)
			for rid, r := range s.rows {
				if r.BatchID == id {
					delete(s.rows, rid)
				}
			}
		}
	}
	s.batches[batch.ID] = batch
	for _, r := range rows {
		s.rows[r.ID] = r
	}
	return nil
}

func (s *Store) FinalizeBatch(_ context.Context, batchID uuid.UUID, status string, rowCount, matchedCount, errorCount int, processedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[batchID]
	if !ok {
		return nil
	}
	b.Status = status
	b.RowCount = rowCount
	b.MatchedCount = matchedCount
	b.ErrorCount = errorCount
	b.ProcessedAt = &processedAt
	s.batches[batchID] = b
	return nil
}

func (s *Store) BatchByID(_ context.Context, id uuid.UUID) (*store.ImportBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.batches[id]; ok {
		return &v, nil
	}
	return nil, nil
}

func (s *Store) Batches(_ context.Context, supplierID *uuid.UUID) ([]store.ImportBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.ImportBatch
	for _, v := range s.batches {
		if supplierID != nil && v.SupplierID != *supplierID {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period < out[j].Period
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) BatchesWithUnmatchedRows(_ context.Context) ([]store.ImportBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	withUnmatched := make(map[uuid.UUID]bool)
	for _, r := range s.rows {
		if r.MatchStatus == store.MatchStatusUnmatched {
			withUnmatched[r.BatchID] = true
		}
	}
	var out []store.ImportBatch
	for id, b := range s.batches {
		if withUnmatched[id] {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *Store) BatchWithFileHash(_ context.Context, supplierID uuid.UUID, period, fileHash string) (*store.ImportBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fileHash == "" {
		return nil, nil
	}
	for _, b := range s.batches {
		if b.SupplierID == supplierID && b.Period == period && b.FileHash == fileHash && b.Status == store.BatchStatusCompleted {
			out := b
			return &out, nil
		}
	}
	return nil, nil
}

// ---- imported rows ----

func (s *Store) RowByID(_ context.Context, id uuid.UUID) (*store.ImportedRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.rows[id]; ok {
		return &v, nil
	}
	return nil, nil
}

func (s *Store) RowsByBatch(_ context.Context, batchID uuid.UUID) ([]store.ImportedRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.ImportedRow
	for _, v := range s.rows {
		if v.BatchID == batchID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *Store) RowsByPeriod(_ context.Context, supplierID uuid.UUID, period string, matchStatuses []string) ([]store.ImportedRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	allowed := map[string]bool{}
	for _, st := range matchStatuses {
		allowed[st] = true
	}
	var out []store.ImportedRow
	for _, v := range s.rows {
		if v.SupplierID != supplierID || v.Period != period {
			continue
		}
		if len(allowed) > 0 && !allowed[v.MatchStatus] {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *Store) UpdateRowMatch(_ context.Context, rowID uuid.UUID, salonID *uuid.UUID, matchStatus string, confidence int, method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[rowID]
	if !ok {
		return nil
	}
	r.SalonID = salonID
	r.MatchStatus = matchStatus
	r.MatchConfidence = confidence
	r.MatchMethod = method
	s.rows[rowID] = r
	return nil
}

// ---- baselines ----

func (s *Store) Baseline(_ context.Context, salonID, supplierID uuid.UUID, period string) (*store.CumulativeBaseline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.baselines[baselineKey(salonID, supplierID, period)]; ok {
		return &v, nil
	}
	return nil, nil
}

func (s *Store) BaselinesForPeriod(_ context.Context, supplierID uuid.UUID, period string) ([]store.CumulativeBaseline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.CumulativeBaseline
	for _, v := range s.baselines {
		if v.SupplierID == supplierID && v.Period == period {
			out = append(out, v)
		}
	}
	return out, nil
}

// ---- calculations ----

func sameCalcKey(a store.BonusCalculation, salonID *uuid.UUID, supplierID uuid.UUID, period string) bool {
	if a.SupplierID != supplierID || a.Period != period {
		return false
	}
	if a.SalonID == nil && salonID == nil {
		return true
	}
	if a.SalonID != nil && salonID != nil && *a.SalonID == *salonID {
		return true
	}
	return false
}

func (s *Store) UpsertCalculation(_ context.Context, c store.BonusCalculation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.calculations {
		if sameCalcKey(existing, c.SalonID, c.SupplierID, c.Period) {
			delete(s.calculations, id)
		}
	}
	s.calculations[c.ID] = c
	return nil
}

func (s *Store) PruneCalculations(_ context.Context, supplierID uuid.UUID, period string, keepSalonIDs []uuid.UUID, keepUnmatched bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keep := make(map[uuid.UUID]bool, len(keepSalonIDs))
	for _, id := range keepSalonIDs {
		keep[id] = true
	}
	for id, c := range s.calculations {
		if c.SupplierID != supplierID || c.Period != period {
			continue
		}
		if c.SalonID == nil {
			if !keepUnmatched {
				delete(s.calculations, id)
			}
			continue
		}
		if !keep[*c.SalonID] {
			delete(s.calculations, id)
		}
	}
	return nil
}

func (s *Store) CalculationByID(_ context.Context, id uuid.UUID) (*store.BonusCalculation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.calculations[id]; ok {
		return &v, nil
	}
	return nil, nil
}

func (s *Store) CalculationsForPeriod(_ context.Context, period string, supplierID *uuid.UUID) ([]store.BonusCalculation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.BonusCalculation
	for _, v := range s.calculations {
		if v.Period != period {
			continue
		}
		if supplierID != nil && v.SupplierID != *supplierID {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *Store) CalculationsInRange(_ context.Context, fromPeriod, toPeriod string, supplierID *uuid.UUID) ([]store.BonusCalculation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.BonusCalculation
	for _, v := range s.calculations {
		if v.Period < fromPeriod || v.Period > toPeriod {
			continue
		}
		if supplierID != nil && v.SupplierID != *supplierID {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period != out[j].Period {
			return out[i].Period < out[j].Period
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) TransitionCalculation(_ context.Context, id uuid.UUID, from, to, actor string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calculations[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	c.ApprovedBy = actor
	c.ApprovedAt = &at
	s.calculations[id] = c
	return true, nil
}
