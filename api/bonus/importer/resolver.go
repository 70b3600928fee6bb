package importer

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"SalongDriftSaas/internal/store"
)

// MappingCache holds a supplier's learned identifier mappings for the
// duration of one import or rematch run. It is built explicitly at the
// start of the run and discarded with it; nothing is cached across runs.
type MappingCache struct {
	supplierID uuid.UUID
	bySalonKey map[string]uuid.UUID
}

// LoadMappingCache reads all learned mappings for a supplier.
func LoadMappingCache(ctx context.Context, st store.Store, supplierID uuid.UUID) (*MappingCache, error) {
	mappings, err := st.MappingsBySupplier(ctx, supplierID)
	if err != nil {
		return nil, err
	}
	cache := &MappingCache{
		supplierID: supplierID,
		bySalonKey: make(map[string]uuid.UUID, len(mappings)),
	}
	for _, m := range mappings {
		cache.bySalonKey[strings.TrimSpace(m.CustomerNumber)] = m.SalonID
	}
	return cache, nil
}

func (c *MappingCache) lookup(identifier string) (uuid.UUID, bool) {
	id, ok := c.bySalonKey[strings.TrimSpace(identifier)]
	return id, ok
}

// Resolution is the outcome of resolving one raw feed identifier.
type Resolution struct {
	SalonID    *uuid.UUID
	Status     string
	Confidence int
	Method     string
}

// Resolver maps supplier-specific customer codes to salons. It never
// creates or mutates data, and confidence is binary: 100 for any match,
// 0 for none. There is no fuzzy matching.
type Resolver struct {
	st    store.Store
	cache *MappingCache
}

func NewResolver(st store.Store, cache *MappingCache) *Resolver {
	return &Resolver{st: st, cache: cache}
}

// Resolve looks for a learned mapping first, then falls back to the
// supplier-appropriate direct lookup: member number for most suppliers,
// normalized organization number for suppliers whose feed has no member
// number.
func (r *Resolver) Resolve(ctx context.Context, supplier *store.Supplier, rawIdentifier string) (Resolution, error) {
	identifier := strings.TrimSpace(rawIdentifier)
	if identifier == "" {
		return unmatched(), nil
	}

	if salonID, ok := r.cache.lookup(identifier); ok {
		return matched(salonID), nil
	}

	var salon *store.Salon
	var err error
	if supplier.MatchBy == store.MatchByOrgNumber {
		orgNumber, ok := NormalizeOrgNumber(identifier)
		if !ok {
			return unmatched(), nil
		}
		salon, err = r.st.SalonByOrgNumber(ctx, orgNumber)
	} else {
		salon, err = r.st.SalonByMemberNumber(ctx, identifier)
	}
	if err != nil {
		return Resolution{}, err
	}
	if salon == nil {
		return unmatched(), nil
	}
	return matched(salon.ID), nil
}

func matched(salonID uuid.UUID) Resolution {
	return Resolution{
		SalonID:    &salonID,
		Status:     store.MatchStatusMatched,
		Confidence: 100,
		Method:     store.MatchMethodIdentifier,
	}
}

func unmatched() Resolution {
	return Resolution{
		Status:     store.MatchStatusUnmatched,
		Confidence: 0,
		Method:     store.MatchMethodNone,
	}
}

// NormalizeOrgNumber strips whitespace from a national organization number
// and rejects anything that is not a bare digit string of at least nine
// digits. VAT-decorated forms ("NO ... MVA") are rejected, not repaired.
func NormalizeOrgNumber(s string) (string, bool) {
	var b strings.Builder
	for _, r := range s {
		if r == ' ' || r == ' ' || r == '\t' {
			continue
		}
		if r < '0' || r > '9' {
			return "", false
		}
		b.WriteRune(r)
	}
	normalized := b.String()
	if len(normalized) < 9 {
		return "", false
	}
	return normalized, true
}
