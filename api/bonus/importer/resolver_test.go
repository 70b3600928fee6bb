package importer

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"SalongDriftSaas/internal/store"
	"SalongDriftSaas/internal/store/memory"
)

func TestNormalizeOrgNumber(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"987 654 321", "987654321", true},
		{"987 654 321", "987654321", true},
		{"NO 987654321 MVA", "", false},
		{"987654321MVA", "", false},
		{"98765432x1", "", false},
		{"12345678", "", false},
		{"9876543210", "9876543210", true},
	}
	for _, c := range cases {
		got, ok := NormalizeOrgNumber(c.in)
		if ok != c.ok || got != c.want {
			t.Errorf("NormalizeOrgNumber(%q) = %q, %v, want %q, %v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestResolvePrefersLearnedMapping(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	bySalon := store.Salon{ID: uuid.New(), Name: "Klipp AS", MemberNumber: "1001", Active: true}
	byMapping := store.Salon{ID: uuid.New(), Name: "Saks AS", MemberNumber: "1002", Active: true}
	st.AddSalon(bySalon)
	st.AddSalon(byMapping)

	supplier := store.Supplier{ID: uuid.New(), Name: "Cutrin", Active: true, MatchBy: store.MatchByMemberNumber}
	st.AddSupplier(supplier)

	// "1001" would hit bySalon by member number, but the learned mapping
	// points elsewhere and must win.
	if err := st.ReplaceMapping(ctx, store.IdentifierMapping{
		SupplierID:     supplier.ID,
		CustomerNumber: "1001",
		SalonID:        byMapping.ID,
		MappingType:    store.MappingTypeManual,
	}); err != nil {
		t.Fatal(err)
	}

	cache, err := LoadMappingCache(ctx, st, supplier.ID)
	if err != nil {
		t.Fatal(err)
	}
	r := NewResolver(st, cache)

	res, err := r.Resolve(ctx, &supplier, " 1001 ")
	if err != nil {
		t.Fatal(err)
	}
	if res.SalonID == nil || *res.SalonID != byMapping.ID {
		t.Fatalf("mapping not preferred: got %v", res.SalonID)
	}
	if res.Status != store.MatchStatusMatched || res.Confidence != 100 {
		t.Errorf("unexpected resolution: %+v", res)
	}
}

func TestResolveByOrgNumber(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	salon := store.Salon{ID: uuid.New(), Name: "Frisør Nord", OrgNumber: "987654321", Active: true}
	st.AddSalon(salon)
	supplier := store.Supplier{ID: uuid.New(), Name: "Tendenz", Active: true, MatchBy: store.MatchByOrgNumber}
	st.AddSupplier(supplier)

	cache, err := LoadMappingCache(ctx, st, supplier.ID)
	if err != nil {
		t.Fatal(err)
	}
	r := NewResolver(st, cache)

	res, err := r.Resolve(ctx, &supplier, "987 654 321")
	if err != nil {
		t.Fatal(err)
	}
	if res.SalonID == nil || *res.SalonID != salon.ID {
		t.Fatalf("org number lookup failed: %+v", res)
	}

	res, err = r.Resolve(ctx, &supplier, "111 222 333")
	if err != nil {
		t.Fatal(err)
	}
	if res.SalonID != nil || res.Status != store.MatchStatusUnmatched {
		t.Fatalf("expected unmatched, got %+v", res)
	}
}
