package feed

import "testing"

func TestGenericFindsHeaderBelowPreamble(t *testing.T) {
	wb := &Workbook{FileName: "leverandor.xlsx", Sheets: []Sheet{{
		Name: "Ark1",
		Rows: grid(
			[]string{"Omsetningsrapport 2025"},
			[]string{"Generert 05.02.2025"},
			[]string{},
			[]string{"Kundenummer", "Salongnavn", "Varemerke", "Varegruppe", "Netto omsetning"},
			[]string{"3001", "Studio Lokk", "Wella", "kjemi", "12 000,00"},
			[]string{"3002", "Frisørloftet", "Wella", "produkt", "4 500,50"},
			[]string{"", "Totalt", "", "", "16 500,50"},
		),
	}}}
	rows, diag, err := Parse("generic", wb)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diag != "" {
		t.Fatalf("diagnostic: %s", diag)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	r := rows[0]
	if r.Identifier != "3001" || r.Name != "Studio Lokk" || r.Brand != "Wella" || r.ProductGroup != "kjemi" {
		t.Errorf("unexpected row: %+v", r)
	}
	if r.Value.String() != "12000" {
		t.Errorf("value = %s", r.Value)
	}
}

func TestGenericUnknownLayoutIsError(t *testing.T) {
	wb := &Workbook{FileName: "rar.xlsx", Sheets: []Sheet{{
		Name: "Ark1",
		Rows: grid(
			[]string{"kolonne1", "kolonne2"},
			[]string{"a", "b"},
		),
	}}}
	if _, _, err := Parse("generic", wb); err == nil {
		t.Fatal("expected error when no header row can be located")
	}
}

func TestUnknownParserKeyFallsBackToGeneric(t *testing.T) {
	wb := &Workbook{FileName: "ny-leverandor.csv", Sheets: []Sheet{{
		Name: "ny-leverandor",
		Rows: grid(
			[]string{"Kundenr", "Navn", "Beløp"},
			[]string{"4001", "Sakseriet", "777"},
		),
	}}}
	rows, _, err := Parse("helt-ny-leverandor", wb)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 1 || rows[0].Identifier != "4001" {
		t.Fatalf("fallback parse failed: %+v", rows)
	}
}
