package api

import (
	"github.com/shopspring/decimal"

	"github.com/a3tai/mcp-invoice-reader/internal/invoice"
	"github.com/a3tai/mcp-invoice-reader/internal/repository"
	"github.com/a3tai/mcp-invoice-reader/internal/storage"
)

// InvoiceOut is a full invoice with its lines
type InvoiceOut struct {
	ID        string             `json:"id"`
	S3        *storage.Ref       `json:"s3"`
	Filename  string             `json:"filename"`
	Fields    invoice.Fields     `json:"fields"`
	LineItems []invoice.LineItem `json:"righe"`
}

// InvoiceListItem is the summary of one invoice in a listing
type InvoiceListItem struct {
	ID            string              `json:"id"`
	Filename      string              `json:"filename"`
	PartyName     *string             `json:"intestatario"`
	InvoiceNumber *string             `json:"invoice_number"`
	IssueDate     *string             `json:"data_emissione"`
	GrossAmount   decimal.NullDecimal `json:"totale"`
}

// InvoiceListResponse is one page of invoices
type InvoiceListResponse struct {
	Items  []InvoiceListItem `json:"items"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// PresignedURLOut is a temporary link to the original document
type PresignedURLOut struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in"`
}

// ErrorOut is the body of every error response
type ErrorOut struct {
	Detail string `json:"detail"`
}

func newInvoiceOut(inv *repository.Invoice, lines []repository.Line) InvoiceOut {
	out := InvoiceOut{
		ID:        inv.ID.String(),
		Filename:  inv.Filename,
		Fields:    inv.Fields,
		LineItems: make([]invoice.LineItem, 0, len(lines)),
	}
	if out.Filename == "" {
		out.Filename = "document.pdf"
	}
	if inv.S3Bucket != "" || inv.S3Key != "" {
		out.S3 = &storage.Ref{Bucket: inv.S3Bucket, Key: inv.S3Key}
	}
	for _, l := range lines {
		out.LineItems = append(out.LineItems, l.LineItem)
	}
	return out
}

func newListItem(inv repository.Invoice) InvoiceListItem {
	item := InvoiceListItem{
		ID:            inv.ID.String(),
		Filename:      inv.Filename,
		PartyName:     optional(inv.Fields.PartyName),
		InvoiceNumber: optional(inv.Fields.InvoiceNumber),
		IssueDate:     optional(inv.Fields.IssueDate),
		GrossAmount:   inv.Fields.GrossAmount,
	}
	if item.Filename == "" {
		item.Filename = "document.pdf"
	}
	return item
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
