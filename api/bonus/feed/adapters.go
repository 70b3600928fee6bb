package feed

import (
	"strings"

	"SalongDriftSaas/internal/store"
)

// Bespoke supplier layouts. Column positions are fixed per supplier and
// hand-mapped from the files they actually send; when a supplier changes
// their export the adapter changes with it.

// cutrinSheetBrands maps Cutrin workbook sheet names to brand names. The
// supplier delivers one sheet per brand; sheets with unknown names (summary
// tabs, pivot leftovers) are ignored.
var cutrinSheetBrands = map[string]string{
	"cutrin":    "Cutrin",
	"system4":   "System 4",
	"bioluxe":   "BioLuxe",
	"fourreasons": "Four Reasons",
}

// parseCutrin: one sheet per brand, columns are
// 0 customer number, 1 salon name, 2 product group, 3 value.
func parseCutrin(wb *Workbook) ([]NormalizedRow, error) {
	var out []NormalizedRow
	for _, sheet := range wb.Sheets {
		brand, ok := cutrinSheetBrands[strings.ToLower(strings.ReplaceAll(sheet.Name, " ", ""))]
		if !ok {
			continue
		}
		for _, row := range sheet.Rows {
			value, ok := parseAmount(cell(row, 3))
			if !ok {
				continue
			}
			group := strings.ToLower(cell(row, 2))
			if group == "" {
				group = store.ProductGroupRetail
			}
			out = append(out, NormalizedRow{
				Identifier:   cell(row, 0),
				Name:         cell(row, 1),
				Brand:        brand,
				ProductGroup: group,
				Value:        value,
			})
		}
	}
	return out, nil
}

// parseHeadBrands: single sheet, multi-brand, two amount columns per row.
// Columns are 0 customer number, 1 salon name, 2 brand, 3 chemistry value,
// 4 retail value. A row with both amounts emits two normalized rows.
func parseHeadBrands(wb *Workbook) ([]NormalizedRow, error) {
	sheet := wb.FirstSheet()
	if sheet == nil {
		return nil, nil
	}
	var out []NormalizedRow
	for _, row := range sheet.Rows {
		identifier := cell(row, 0)
		name := cell(row, 1)
		brand := cell(row, 2)
		if chem, ok := parseAmount(cell(row, 3)); ok {
			out = append(out, NormalizedRow{
				Identifier:   identifier,
				Name:         name,
				Brand:        brand,
				ProductGroup: store.ProductGroupChemistry,
				Value:        chem,
			})
		}
		if retail, ok := parseAmount(cell(row, 4)); ok {
			out = append(out, NormalizedRow{
				Identifier:   identifier,
				Name:         name,
				Brand:        brand,
				ProductGroup: store.ProductGroupRetail,
				Value:        retail,
			})
		}
	}
	return out, nil
}

// parseTendenz: single-brand supplier identifying salons by organization
// number. Columns are 0 org number, 1 salon name, 2 value.
func parseTendenz(wb *Workbook) ([]NormalizedRow, error) {
	sheet := wb.FirstSheet()
	if sheet == nil {
		return nil, nil
	}
	var out []NormalizedRow
	for _, row := range sheet.Rows {
		value, ok := parseAmount(cell(row, 2))
		if !ok {
			continue
		}
		out = append(out, NormalizedRow{
			Identifier:   cell(row, 0),
			Name:         cell(row, 1),
			Brand:        "Tendenz",
			ProductGroup: store.ProductGroupRetail,
			Value:        value,
		})
	}
	return out, nil
}
