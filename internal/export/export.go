// Package export renders stored invoices as CSV, XML, XLSX and PDF documents.
package export

import (
	"github.com/shopspring/decimal"

	"github.com/a3tai/mcp-invoice-reader/internal/repository"
)

// Content types of the rendered documents
const (
	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeXML  = "application/xml"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypePDF  = "application/pdf"
)

// summaryColumns are the columns of the tabular exports
var summaryColumns = []string{"id", "filename", "intestatario", "invoice_number", "data_emissione", "totale"}

func amountText(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}

func summaryRow(inv repository.Invoice) []string {
	return []string{
		inv.ID.String(),
		inv.Filename,
		inv.Fields.PartyName,
		inv.Fields.InvoiceNumber,
		inv.Fields.IssueDate,
		amountText(inv.Fields.GrossAmount),
	}
}
