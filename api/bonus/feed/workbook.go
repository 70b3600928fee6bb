package feed

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"
)

// Sheet is one worksheet as a plain string grid.
type Sheet struct {
	Name string
	Rows [][]string
}

// Workbook is the format-independent view of an uploaded supplier report.
// Adapters only ever see this, never the underlying file format.
type Workbook struct {
	FileName string
	Sheets   []Sheet
}

// FirstSheet returns the first sheet, or nil for an empty workbook.
func (wb *Workbook) FirstSheet() *Sheet {
	if len(wb.Sheets) == 0 {
		return nil
	}
	return &wb.Sheets[0]
}

// Load reads an uploaded report into a Workbook. It tries xlsx first, then
// legacy xls, then csv, mirroring how suppliers actually deliver files with
// misleading extensions.
func Load(fileName string, data []byte) (*Workbook, error) {
	if wb, err := loadXLSX(fileName, data); err == nil {
		return wb, nil
	}
	if wb, err := loadXLS(fileName, data); err == nil {
		return wb, nil
	}
	wb, csvErr := loadCSV(fileName, data)
	if csvErr != nil {
		return nil, fmt.Errorf("file %s is not a readable xlsx, xls or csv: %w", fileName, csvErr)
	}
	return wb, nil
}

func loadXLSX(fileName string, data []byte) (*Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	wb := &Workbook{FileName: fileName}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", name, err)
		}
		wb.Sheets = append(wb.Sheets, Sheet{Name: name, Rows: rows})
	}
	if len(wb.Sheets) == 0 {
		return nil, fmt.Errorf("no sheets in %s", fileName)
	}
	return wb, nil
}

// loadXLS goes through a temp file because the legacy reader only works
// with file paths.
func loadXLS(fileName string, data []byte) (*Workbook, error) {
	tmp, err := os.CreateTemp("", "supplierreport-*.xls")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, err
	}
	tmp.Close()

	book, err := xls.OpenFile(tmp.Name())
	if err != nil {
		return nil, err
	}
	wb := &Workbook{FileName: fileName}
	for i := 0; i < book.GetNumberSheets(); i++ {
		sheet, err := book.GetSheet(i)
		if err != nil || sheet == nil {
			continue
		}
		var rows [][]string
		for _, xlsRow := range sheet.GetRows() {
			var vals []string
			for _, col := range xlsRow.GetCols() {
				vals = append(vals, col.GetString())
			}
			rows = append(rows, vals)
		}
		wb.Sheets = append(wb.Sheets, Sheet{Name: sheet.GetName(), Rows: rows})
	}
	if len(wb.Sheets) == 0 {
		return nil, fmt.Errorf("no sheets in %s", fileName)
	}
	return wb, nil
}

func loadCSV(fileName string, data []byte) (*Workbook, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.Comma = detectCSVSeparator(data)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty csv %s", fileName)
	}
	name := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	return &Workbook{FileName: fileName, Sheets: []Sheet{{Name: name, Rows: rows}}}, nil
}

// Norwegian exports routinely use semicolons because comma is the decimal
// separator.
func detectCSVSeparator(data []byte) rune {
	sample := data
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	if idx := bytes.IndexByte(sample, '\n'); idx > 0 {
		sample = sample[:idx]
	}
	if bytes.Count(sample, []byte(";")) > bytes.Count(sample, []byte(",")) {
		return ';'
	}
	return ','
}
