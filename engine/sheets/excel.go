package sheets

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// XLSXContentType is the media type of an Excel workbook upload.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReadXLSX reads every worksheet of an Excel workbook in tab order. The first
// row of a worksheet is its header. Worksheets with no known column are
// skipped; a workbook where none has one is an error.
func ReadXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("sheets: open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []Row
	usable := 0
	for _, name := range f.GetSheetList() {
		table, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("sheets: read worksheet %s: %w", name, err)
		}
		if len(table) == 0 {
			continue
		}
		header := table[0]
		if _, err := Columns(header); err != nil {
			continue
		}
		usable++
		for idx, rec := range table[1:] {
			if row := tableRow(name, idx, header, rec); !row.Empty() {
				out = append(out, row)
			}
		}
	}
	if usable == 0 {
		return nil, fmt.Errorf("sheets: no worksheet has a known column")
	}
	return out, nil
}
