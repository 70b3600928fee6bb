package feed

import (
	"fmt"
	"strings"
)

// Generic fallback for suppliers without a bespoke layout. It locates the
// header row by keyword matching and then fuzzy-maps column names onto the
// four semantic fields. Header rows are frequently not on line 1 because
// suppliers put logos and date stamps above the table.

// headerScanLimit bounds how deep into a sheet the header hunt goes.
const headerScanLimit = 30

var (
	identifierSynonyms = []string{
		"kundenr", "kunde nr", "kundenummer", "kunde-id",
		"medlemsnr", "medlemsnummer", "avtalenr",
		"orgnr", "org.nr", "org nr", "organisasjonsnummer",
		"customer", "customer no", "account",
	}
	nameSynonyms = []string{
		"salongnavn", "navn", "salong", "kunde", "name", "salon",
	}
	brandSynonyms = []string{
		"merke", "varemerke", "brand",
	}
	groupSynonyms = []string{
		"varegruppe", "produktgruppe", "gruppe", "kategori", "product group",
	}
	valueSynonyms = []string{
		"beløp", "belop", "omsetning", "netto", "sum", "verdi",
		"kjøp", "kjop", "amount", "turnover", "value",
	}
)

func matchesAny(cellText string, synonyms []string) bool {
	lc := strings.ToLower(cellText)
	for _, syn := range synonyms {
		if strings.Contains(lc, syn) {
			return true
		}
	}
	return false
}

type genericColumns struct {
	identifier int
	name       int
	brand      int
	group      int
	value      int
}

// findHeaderRow scans for the first row containing both an identifier-ish
// and an amount-ish column label.
func findHeaderRow(rows [][]string) (int, genericColumns) {
	limit := len(rows)
	if limit > headerScanLimit {
		limit = headerScanLimit
	}
	for i := 0; i < limit; i++ {
		cols := genericColumns{identifier: -1, name: -1, brand: -1, group: -1, value: -1}
		for idx, raw := range rows[i] {
			c := normalizeCell(raw)
			if c == "" {
				continue
			}
			switch {
			case cols.identifier == -1 && matchesAny(c, identifierSynonyms):
				cols.identifier = idx
			case cols.value == -1 && matchesAny(c, valueSynonyms):
				cols.value = idx
			case cols.brand == -1 && matchesAny(c, brandSynonyms):
				cols.brand = idx
			case cols.group == -1 && matchesAny(c, groupSynonyms):
				cols.group = idx
			case cols.name == -1 && matchesAny(c, nameSynonyms):
				cols.name = idx
			}
		}
		if cols.identifier >= 0 && cols.value >= 0 {
			return i, cols
		}
	}
	return -1, genericColumns{}
}

func parseGeneric(wb *Workbook) ([]NormalizedRow, error) {
	sheet := wb.FirstSheet()
	if sheet == nil {
		return nil, nil
	}
	headerIdx, cols := findHeaderRow(sheet.Rows)
	if headerIdx == -1 {
		return nil, fmt.Errorf("could not locate a header row with customer and amount columns in %s", wb.FileName)
	}
	var out []NormalizedRow
	for _, row := range sheet.Rows[headerIdx+1:] {
		value, ok := parseAmount(cell(row, cols.value))
		if !ok {
			continue
		}
		r := NormalizedRow{
			Identifier: cell(row, cols.identifier),
			Value:      value,
		}
		if cols.name >= 0 {
			r.Name = cell(row, cols.name)
		}
		if cols.brand >= 0 {
			r.Brand = cell(row, cols.brand)
		}
		if cols.group >= 0 {
			r.ProductGroup = cell(row, cols.group)
		}
		out = append(out, r)
	}
	return out, nil
}
