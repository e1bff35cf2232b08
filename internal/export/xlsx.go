package export

import (
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/a3tai/mcp-invoice-reader/internal/repository"
)

// SheetName is the worksheet holding the invoice summary
const SheetName = "Fatture"

const (
	minColWidth = 12
	maxColWidth = 48
)

// XLSX writes a workbook with one summary row per invoice. The issue date is
// stored as a date cell and the total as a number.
func XLSX(w io.Writer, invoices []repository.Invoice) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("xlsx style: %w", err)
	}
	dateFmt := "dd/mm/yyyy"
	dateStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &dateFmt})
	if err != nil {
		return fmt.Errorf("xlsx style: %w", err)
	}
	moneyFmt := "#,##0.00"
	moneyStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &moneyFmt})
	if err != nil {
		return fmt.Errorf("xlsx style: %w", err)
	}

	widths := make([]int, len(summaryColumns))
	for i, h := range summaryColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return err
		}
		widths[i] = utf8.RuneCountInString(h)
	}
	last, _ := excelize.CoordinatesToCellName(len(summaryColumns), 1)
	if err := f.SetCellStyle(SheetName, "A1", last, header); err != nil {
		return err
	}

	for r, inv := range invoices {
		row := r + 2
		texts := summaryRow(inv)
		for c, text := range texts {
			cell, _ := excelize.CoordinatesToCellName(c+1, row)
			var value any = text
			style := 0
			switch c {
			case 4:
				if d, err := time.Parse(time.DateOnly, text); err == nil {
					value, style = d, dateStyle
				}
			case 5:
				if inv.Fields.GrossAmount.Valid {
					value, style = inv.Fields.GrossAmount.Decimal.InexactFloat64(), moneyStyle
				}
			}
			if err := f.SetCellValue(SheetName, cell, value); err != nil {
				return err
			}
			if style != 0 {
				if err := f.SetCellStyle(SheetName, cell, cell, style); err != nil {
					return err
				}
			}
			widths[c] = max(widths[c], utf8.RuneCountInString(text))
		}
	}

	for c, n := range widths {
		col, _ := excelize.ColumnNumberToName(c + 1)
		if err := f.SetColWidth(SheetName, col, col, columnWidth(n)); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

// columnWidth sizes a column for its longest value, within fixed bounds
func columnWidth(longest int) float64 {
	return float64(min(max(minColWidth, longest+2), maxColWidth))
}
