package export

import (
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"

	"github.com/a3tai/mcp-invoice-reader/internal/invoice"
	"github.com/a3tai/mcp-invoice-reader/internal/repository"
)

const (
	pdfMargin     = 40.0
	pdfTop        = 50.0
	pdfLineHeight = 18.0
)

// summaryLine is one labelled value of the PDF summary
type summaryLine struct {
	Label string
	Value string
}

func summaryLines(inv repository.Invoice) []summaryLine {
	f := inv.Fields
	currency := f.Currency
	if currency == "" {
		currency = invoice.DefaultCurrency
	}
	return []summaryLine{
		{"ID", inv.ID.String()},
		{"Filename", inv.Filename},
		{"Intestatario", f.PartyName},
		{"Partita IVA", f.TaxID},
		{"Codice Fiscale", f.FiscalCode},
		{"Numero Fattura", f.InvoiceNumber},
		{"Data Emissione", f.IssueDate},
		{"Data Scadenza", f.DueDate},
		{"Valuta", currency},
		{"Imponibile", amountText(f.NetAmount)},
		{"IVA", amountText(f.TaxAmount)},
		{"Totale", amountText(f.GrossAmount)},
	}
}

func (l summaryLine) String() string {
	v := l.Value
	if v == "" {
		v = "-"
	}
	return fmt.Sprintf("%s: %s", l.Label, v)
}

// PDFSummary writes a one page A4 summary of a single invoice
func PDFSummary(w io.Writer, inv repository.Invoice) error {
	doc := fpdf.New("P", "pt", "A4", "")
	doc.SetTitle("Fattura "+inv.ID.String(), true)
	doc.AddPage()
	tr := doc.UnicodeTranslatorFromDescriptor("")

	y := pdfTop
	doc.SetFont("Helvetica", "B", 14)
	doc.Text(pdfMargin, y, tr("Fattura - Riepilogo"))
	y += 25

	doc.SetFont("Helvetica", "", 11)
	for _, line := range summaryLines(inv) {
		doc.Text(pdfMargin, y, tr(line.String()))
		y += pdfLineHeight
	}

	if err := doc.Output(w); err != nil {
		return fmt.Errorf("pdf summary: %w", err)
	}
	return nil
}
