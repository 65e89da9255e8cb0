package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// XLSXExporter renders Dataset records into a single-sheet workbook.
type XLSXExporter struct {
	sheet string
}

// NewXLSXExporter builds an exporter writing to the named sheet.
func NewXLSXExporter(sheet string) *XLSXExporter {
	if sheet == "" {
		sheet = "Report"
	}
	return &XLSXExporter{sheet: sheet}
}

// Render produces xlsx encoded bytes for the dataset.
func (e *XLSXExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("xlsx requires at least one header")
	}
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	if err := f.SetSheetName("Sheet1", e.sheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for col, header := range data.Headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(e.sheet, cell, header); err != nil {
			return nil, fmt.Errorf("write xlsx header: %w", err)
		}
		if err := f.SetCellStyle(e.sheet, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("style xlsx header: %w", err)
		}
	}
	for i, row := range data.Rows {
		for col, header := range data.Headers {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(e.sheet, cell, row[header]); err != nil {
				return nil, fmt.Errorf("write xlsx row: %w", err)
			}
		}
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("encode xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
