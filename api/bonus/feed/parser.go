package feed

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"SalongDriftSaas/api/constants"
)

// NormalizedRow is one salon-brand observation after parsing. Everything
// downstream of the parser works on this strict shape; loosely-typed
// spreadsheet data never crosses this boundary.
type NormalizedRow struct {
	Identifier   string
	Name         string
	Brand        string
	ProductGroup string
	Value        decimal.Decimal
}

// AdapterFunc turns a supplier workbook into normalized rows. Adapters are
// pure: same workbook in, same rows out, no storage access.
type AdapterFunc func(wb *Workbook) ([]NormalizedRow, error)

// Registry of supplier layouts, keyed by the supplier's parser_key. New
// suppliers are added by registering a function here, not by subclassing
// anything.
var adapters = map[string]AdapterFunc{
	"cutrin":     parseCutrin,
	"headbrands": parseHeadBrands,
	"tendenz":    parseTendenz,
	"generic":    parseGeneric,
}

// Adapter resolves a parser key, falling back to the generic layout
// sniffer for suppliers without a bespoke adapter.
func Adapter(key string) AdapterFunc {
	if fn, ok := adapters[strings.ToLower(strings.TrimSpace(key))]; ok {
		return fn
	}
	return parseGeneric
}

// Parse runs the adapter for key and applies the shared noise filter. A
// readable workbook that produces zero usable rows is not an error; the
// diagnostic tells the operator what happened so they can retry with
// another file.
func Parse(key string, wb *Workbook) ([]NormalizedRow, string, error) {
	raw, err := Adapter(key)(wb)
	if err != nil {
		return nil, "", err
	}
	rows := make([]NormalizedRow, 0, len(raw))
	for _, r := range raw {
		if !keepRow(r) {
			continue
		}
		r.Identifier = normalizeCell(r.Identifier)
		r.Name = normalizeCell(r.Name)
		r.Brand = normalizeCell(r.Brand)
		r.ProductGroup = strings.ToLower(normalizeCell(r.ProductGroup))
		rows = append(rows, r)
	}
	if len(rows) == 0 {
		diag := fmt.Sprintf("no usable rows in %s: rows without identifier or with zero/negative value are skipped", wb.FileName)
		return nil, diag, nil
	}
	return rows, "", nil
}

// keepRow drops parse noise: zero, blank or negative amounts and rows the
// supplier exported without any customer identifier. Intentional filtering,
// not an error.
func keepRow(r NormalizedRow) bool {
	if strings.TrimSpace(r.Identifier) == "" {
		return false
	}
	return r.Value.IsPositive()
}

// normalizeCell trims, removes non-breaking spaces and collapses whitespace.
func normalizeCell(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, constants.NBSP, " ")
	return strings.Join(strings.Fields(s), " ")
}

// cell is a bounds-safe row accessor; short rows read as empty cells.
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return normalizeCell(row[idx])
}

// parseAmount reads a spreadsheet amount in either Norwegian ("1 234,56")
// or anglo ("1,234.56") formatting. Returns false for non-numeric cells,
// which is how header and footer rows get skipped.
func parseAmount(s string) (decimal.Decimal, bool) {
	s = normalizeCell(s)
	s = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(s)), "kr")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return decimal.Zero, false
	}
	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		// The rightmost separator is the decimal mark.
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
