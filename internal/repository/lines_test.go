package repository

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-invoice-reader/internal/invoice"
)

func TestPrepareLines(t *testing.T) {
	id := uuid.New()
	items := []invoice.LineItem{
		{
			Description:    "Consulenza",
			Quantity:       decimal.NewFromInt(2),
			UnitPrice:      decimal.RequireFromString("10.005"),
			TaxRatePercent: decimal.NewFromInt(22),
			LineTotal:      decimal.RequireFromString("24.40"),
		},
		{
			Description:    "Canone",
			Quantity:       decimal.NewFromInt(3),
			UnitPrice:      decimal.NewFromInt(10),
			TaxRatePercent: decimal.NewFromInt(2200),
		},
		{},
	}

	lines := prepareLines(id, items)
	require.Len(t, lines, 3)

	for i, l := range lines {
		assert.Equal(t, i+1, l.LineNumber)
		assert.Equal(t, id, l.InvoiceID)
		assert.NotEqual(t, uuid.Nil, l.ID)
	}

	first := lines[0]
	assert.Equal(t, "10.01", first.UnitPrice.StringFixed(2))
	assert.True(t, first.LineTotal.Equal(decimal.RequireFromString("24.40")))

	second := lines[1]
	assert.True(t, second.TaxRatePercent.Equal(decimal.NewFromInt(22)), "got %s", second.TaxRatePercent)
	assert.True(t, second.LineTotal.Equal(decimal.RequireFromString("36.60")), "got %s", second.LineTotal)

	third := lines[2]
	assert.True(t, third.LineTotal.IsZero())
	assert.True(t, third.TaxRatePercent.IsZero())
}

func TestNullHelpers(t *testing.T) {
	assert.Nil(t, nullText(""))
	require.NotNil(t, nullText("x"))
	assert.Equal(t, "x", deref(nullText("x")))
	assert.Equal(t, "", deref(nil))

	assert.False(t, dateParam("").Valid)
	assert.False(t, dateParam("31/12/2024").Valid)
	assert.Equal(t, "2024-12-31", isoDate(dateParam("2024-12-31")))

	assert.False(t, roundNull(decimal.NullDecimal{}).Valid)
	r := roundNull(decimal.NewNullDecimal(decimal.RequireFromString("1.005")))
	assert.Equal(t, "1.01", r.Decimal.StringFixed(2))
}
