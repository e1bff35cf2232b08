package repository

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/a3tai/mcp-invoice-reader/internal/invoice"
)

var hundred = decimal.NewFromInt(100)

// prepareLines numbers the rows from 1 and applies the storage rounding.
// A zero line total is recomputed as qty × price × (1 + rate/100).
func prepareLines(invoiceID uuid.UUID, items []invoice.LineItem) []Line {
	lines := make([]Line, 0, len(items))
	for i, item := range items {
		price := item.UnitPrice.Round(2)
		rate := decimal.NewFromFloat(invoice.NormalizeTaxRate(item.TaxRatePercent.InexactFloat64())).Round(3)
		total := item.LineTotal
		if total.IsZero() {
			total = item.Quantity.Mul(item.UnitPrice).Mul(decimal.NewFromInt(1).Add(rate.Div(hundred)))
		}
		lines = append(lines, Line{
			ID:         uuid.New(),
			InvoiceID:  invoiceID,
			LineNumber: i + 1,
			LineItem: invoice.LineItem{
				Description:    item.Description,
				Quantity:       item.Quantity,
				UnitPrice:      price,
				TaxRatePercent: rate,
				LineTotal:      total.Round(2),
			},
		})
	}
	return lines
}
