package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/a3tai/mcp-invoice-reader/internal/repository"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVOptions tune the CSV dialect for spreadsheet imports
type CSVOptions struct {
	Separator rune
	BOM       bool
}

// DefaultCSVOptions match what Italian locale spreadsheets expect
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{Separator: ';', BOM: true}
}

// CSV writes one summary row per invoice with CRLF line endings
func CSV(w io.Writer, invoices []repository.Invoice, opts CSVOptions) error {
	if opts.Separator == 0 {
		opts.Separator = ';'
	}
	if opts.BOM {
		if _, err := w.Write(utf8BOM); err != nil {
			return err
		}
	}

	cw := csv.NewWriter(w)
	cw.Comma = opts.Separator
	cw.UseCRLF = true

	if err := cw.Write(summaryColumns); err != nil {
		return fmt.Errorf("csv header: %w", err)
	}
	for _, inv := range invoices {
		if err := cw.Write(summaryRow(inv)); err != nil {
			return fmt.Errorf("csv row %s: %w", inv.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
