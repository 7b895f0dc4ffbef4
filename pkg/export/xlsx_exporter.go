package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const xlsxSheetName = "Export"

// XLSXExporter renders datasets as an Excel workbook.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// Render produces an xlsx workbook with a bold header row, the table body
// and summary lines below it.
func (e *XLSXExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("xlsx requires at least one header")
	}
	file := excelize.NewFile()
	defer file.Close()

	index, err := file.NewSheet(xlsxSheetName)
	if err != nil {
		return nil, fmt.Errorf("create xlsx sheet: %w", err)
	}
	file.SetActiveSheet(index)
	if err := file.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default xlsx sheet: %w", err)
	}

	headerStyle, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create xlsx style: %w", err)
	}

	for col, header := range data.Headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("resolve xlsx cell: %w", err)
		}
		if err := file.SetCellValue(xlsxSheetName, cell, header); err != nil {
			return nil, fmt.Errorf("write xlsx header: %w", err)
		}
		if err := file.SetCellStyle(xlsxSheetName, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("style xlsx header: %w", err)
		}
	}

	for rowIdx, row := range data.Rows {
		for col, header := range data.Headers {
			cell, err := excelize.CoordinatesToCellName(col+1, rowIdx+2)
			if err != nil {
				return nil, fmt.Errorf("resolve xlsx cell: %w", err)
			}
			if err := file.SetCellValue(xlsxSheetName, cell, row[header]); err != nil {
				return nil, fmt.Errorf("write xlsx row: %w", err)
			}
		}
	}

	summaryStart := len(data.Rows) + 3
	for i, line := range data.Summary {
		labelCell, err := excelize.CoordinatesToCellName(1, summaryStart+i)
		if err != nil {
			return nil, fmt.Errorf("resolve xlsx cell: %w", err)
		}
		valueCell, err := excelize.CoordinatesToCellName(2, summaryStart+i)
		if err != nil {
			return nil, fmt.Errorf("resolve xlsx cell: %w", err)
		}
		if err := file.SetCellValue(xlsxSheetName, labelCell, line.Label); err != nil {
			return nil, fmt.Errorf("write xlsx summary: %w", err)
		}
		if err := file.SetCellStyle(xlsxSheetName, labelCell, labelCell, headerStyle); err != nil {
			return nil, fmt.Errorf("style xlsx summary: %w", err)
		}
		if err := file.SetCellValue(xlsxSheetName, valueCell, line.Value); err != nil {
			return nil, fmt.Errorf("write xlsx summary: %w", err)
		}
	}

	if len(data.Headers) > 0 {
		last, err := excelize.ColumnNumberToName(len(data.Headers))
		if err == nil {
			_ = file.SetColWidth(xlsxSheetName, "A", last, 22)
		}
	}

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
