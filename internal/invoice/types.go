package invoice

import "github.com/shopspring/decimal"

// DefaultCurrency is used whenever a document does not declare one
const DefaultCurrency = "EUR"

// Kind identifies which extractor handles a document
type Kind string

const (
	KindPDF     Kind = "pdf"
	KindXML     Kind = "xml"
	KindUnknown Kind = "unknown"
)

// Fields holds the header values recovered from an invoice document.
// Empty strings and invalid decimals mean "not found".
type Fields struct {
	PartyName     string              `json:"intestatario,omitempty"`
	TaxID         string              `json:"partita_iva,omitempty"`
	FiscalCode    string              `json:"codice_fiscale,omitempty"`
	InvoiceNumber string              `json:"invoice_number,omitempty"`
	IssueDate     string              `json:"data_emissione,omitempty"`
	DueDate       string              `json:"data_scadenza,omitempty"`
	Currency      string              `json:"valuta"`
	NetAmount     decimal.NullDecimal `json:"imponibile"`
	TaxAmount     decimal.NullDecimal `json:"iva"`
	GrossAmount   decimal.NullDecimal `json:"totale"`
}

// LineItem is a single invoice row. Numeric values default to zero.
type LineItem struct {
	Description    string          `json:"descrizione,omitempty"`
	Quantity       decimal.Decimal `json:"qta"`
	UnitPrice      decimal.Decimal `json:"prezzo_unitario"`
	TaxRatePercent decimal.Decimal `json:"aliquota_iva"`
	LineTotal      decimal.Decimal `json:"totale_riga"`
}

// Extracted is the result of running an extractor over one document
type Extracted struct {
	Fields    Fields     `json:"fields"`
	LineItems []LineItem `json:"righe"`
}

// emptyExtracted returns a record with every field absent and the default currency
func emptyExtracted() Extracted {
	return Extracted{
		Fields:    Fields{Currency: DefaultCurrency},
		LineItems: []LineItem{},
	}
}

// HasAmounts reports whether all three monetary fields are present
func (f Fields) HasAmounts() bool {
	return f.NetAmount.Valid && f.TaxAmount.Valid && f.GrossAmount.Valid
}
