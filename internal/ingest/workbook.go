package ingest

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// headerScanDepth bounds how many leading rows may hold report titles before the header.
const headerScanDepth = 10

// ReadWorkbook reads a provider workbook. Exports carry a summary sheet first
// and a detail sheet second; the second sheet wins when it has an identifier column.
func ReadWorkbook(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}

	candidates := sheets[:1]
	if len(sheets) > 1 {
		candidates = []string{sheets[1], sheets[0]}
	}

	var first [][]string
	for _, sheet := range candidates {
		records, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		if start, ok := findHeaderRow(records); ok {
			return rowsFromRecords(records[start:]), nil
		}
		if sheet == sheets[0] {
			first = records
		}
	}

	if len(first) == 0 {
		return nil, ErrEmptyFile
	}
	return rowsFromRecords(first), nil
}

func findHeaderRow(records [][]string) (int, bool) {
	for i := 0; i < len(records) && i < headerScanDepth; i++ {
		if HasIdentifierColumn(records[i]) {
			return i, true
		}
	}
	return 0, false
}
