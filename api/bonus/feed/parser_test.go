package feed

import (
	"testing"

	"github.com/shopspring/decimal"
)

func grid(rows ...[]string) [][]string { return rows }

func TestParseAmountFormats(t *testing.T) {
	cases := map[string]string{
		"1234":       "1234",
		"1 234,56":   "1234.56",
		"1.234,56":   "1234.56",
		"1,234.56":   "1234.56",
		"12,5":       "12.5",
		"980 kr":     "980",
		"-45,00":     "-45",
	}
	for in, want := range cases {
		got, ok := parseAmount(in)
		if !ok {
			t.Errorf("parseAmount(%q) not ok", in)
			continue
		}
		if got.String() != want {
			t.Errorf("parseAmount(%q) = %s, want %s", in, got, want)
		}
	}
	for _, bad := range []string{"", "Sum", "Kundenr", "n/a"} {
		if _, ok := parseAmount(bad); ok {
			t.Errorf("parseAmount(%q) unexpectedly ok", bad)
		}
	}
}

func TestParseFiltersNoise(t *testing.T) {
	wb := &Workbook{FileName: "tendenz.xlsx", Sheets: []Sheet{{
		Name: "Rapport",
		Rows: grid(
			[]string{"Orgnr", "Salong", "Beløp"},
			[]string{"987654321", "Salong Saks", "1500"},
			[]string{"", "Mangler orgnr", "900"},
			[]string{"912345678", "Null omsetning", "0"},
			[]string{"923456789", "Kreditert", "-250"},
		),
	}}}
	rows, diag, err := Parse("tendenz", wb)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diag != "" {
		t.Fatalf("unexpected diagnostic: %s", diag)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 surviving row, got %d", len(rows))
	}
	if rows[0].Identifier != "987654321" || !rows[0].Value.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("unexpected row: %+v", rows[0])
	}
}

func TestParseEmptyResultIsDiagnosticNotError(t *testing.T) {
	wb := &Workbook{FileName: "tom.xlsx", Sheets: []Sheet{{
		Name: "Rapport",
		Rows: grid(
			[]string{"Orgnr", "Salong", "Beløp"},
			[]string{"", "", "0"},
		),
	}}}
	rows, diag, err := Parse("tendenz", wb)
	if err != nil {
		t.Fatalf("parse should not fail for empty result: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(rows))
	}
	if diag == "" {
		t.Error("expected a diagnostic message for empty parse result")
	}
}

func TestHeadBrandsEmitsTwoRowsForDualColumns(t *testing.T) {
	wb := &Workbook{FileName: "headbrands.xlsx", Sheets: []Sheet{{
		Name: "Omsetning",
		Rows: grid(
			[]string{"Kundenr", "Salong", "Merke", "Kjemi", "Produkt"},
			[]string{"1001", "Klippotequet", "Maria Nila", "2 000,00", "3 500,00"},
			[]string{"1002", "Hårstudio", "Maria Nila", "800", ""},
		),
	}}}
	rows, _, err := Parse("headbrands", wb)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows (2 + 1), got %d", len(rows))
	}
	if rows[0].ProductGroup != "kjemi" || rows[1].ProductGroup != "produkt" {
		t.Errorf("unexpected product groups: %s, %s", rows[0].ProductGroup, rows[1].ProductGroup)
	}
	if !rows[1].Value.Equal(decimal.NewFromInt(3500)) {
		t.Errorf("retail value = %s", rows[1].Value)
	}
}

func TestCutrinMultiSheetPerBrand(t *testing.T) {
	wb := &Workbook{FileName: "cutrin.xlsx", Sheets: []Sheet{
		{
			Name: "Cutrin",
			Rows: grid(
				[]string{"Kundenr", "Salong", "Varegruppe", "Beløp"},
				[]string{"2001", "Salong A", "kjemi", "1000"},
			),
		},
		{
			Name: "System 4",
			Rows: grid(
				[]string{"Kundenr", "Salong", "Varegruppe", "Beløp"},
				[]string{"2001", "Salong A", "produkt", "400"},
			),
		},
		{
			Name: "Sammendrag",
			Rows: grid([]string{"ignorer", "dette", "", "9999"}),
		},
	}}
	rows, _, err := Parse("cutrin", wb)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	brands := map[string]bool{}
	for _, r := range rows {
		brands[r.Brand] = true
	}
	if !brands["Cutrin"] || !brands["System 4"] {
		t.Errorf("unexpected brands: %v", brands)
	}
}
