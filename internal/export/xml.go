package export

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/a3tai/mcp-invoice-reader/internal/invoice"
	"github.com/a3tai/mcp-invoice-reader/internal/repository"
)

type xmlInvoices struct {
	XMLName  xml.Name     `xml:"Invoices"`
	Invoices []xmlInvoice `xml:"Invoice"`
}

type xmlInvoice struct {
	ID       string    `xml:"id,attr"`
	Filename string    `xml:"Filename"`
	Fields   xmlFields `xml:"Fields"`
}

type xmlFields struct {
	PartyName     string `xml:"intestatario"`
	InvoiceNumber string `xml:"invoice_number"`
	IssueDate     string `xml:"data_emissione"`
	DueDate       string `xml:"data_scadenza"`
	TaxID         string `xml:"partita_iva"`
	FiscalCode    string `xml:"codice_fiscale"`
	Currency      string `xml:"valuta"`
	NetAmount     string `xml:"imponibile"`
	TaxAmount     string `xml:"iva"`
	GrossAmount   string `xml:"totale"`
}

// XML writes the invoices as an <Invoices> document. Absent fields are
// rendered as empty elements.
func XML(w io.Writer, invoices []repository.Invoice) error {
	doc := xmlInvoices{Invoices: make([]xmlInvoice, 0, len(invoices))}
	for _, inv := range invoices {
		f := inv.Fields
		currency := f.Currency
		if currency == "" {
			currency = invoice.DefaultCurrency
		}
		doc.Invoices = append(doc.Invoices, xmlInvoice{
			ID:       inv.ID.String(),
			Filename: inv.Filename,
			Fields: xmlFields{
				PartyName:     f.PartyName,
				InvoiceNumber: f.InvoiceNumber,
				IssueDate:     f.IssueDate,
				DueDate:       f.DueDate,
				TaxID:         f.TaxID,
				FiscalCode:    f.FiscalCode,
				Currency:      currency,
				NetAmount:     amountText(f.NetAmount),
				TaxAmount:     amountText(f.TaxAmount),
				GrossAmount:   amountText(f.GrossAmount),
			},
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("xml encode: %w", err)
	}
	return enc.Close()
}
