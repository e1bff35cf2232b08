package invoice

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestBackfill(t *testing.T) {
	none := decimal.NullDecimal{}

	tests := []struct {
		name            string
		in              Fields
		net, tax, gross decimal.NullDecimal
	}{
		{
			name: "net from gross and tax",
			in:   Fields{TaxAmount: nd("220"), GrossAmount: nd("1220")},
			net:  nd("1000"), tax: nd("220"), gross: nd("1220"),
		},
		{
			name: "tax from gross and net",
			in:   Fields{NetAmount: nd("100"), GrossAmount: nd("110")},
			net:  nd("100"), tax: nd("10"), gross: nd("110"),
		},
		{
			name: "gross from net and tax",
			in:   Fields{NetAmount: nd("100"), TaxAmount: nd("22")},
			net:  nd("100"), tax: nd("22"), gross: nd("122"),
		},
		{
			name: "negative derivation is skipped",
			in:   Fields{TaxAmount: nd("300"), GrossAmount: nd("200")},
			net:  none, tax: nd("300"), gross: nd("200"),
		},
		{
			name: "gross aligned within five cents",
			in:   Fields{NetAmount: nd("100"), TaxAmount: nd("22"), GrossAmount: nd("122.04")},
			net:  nd("100"), tax: nd("22"), gross: nd("122"),
		},
		{
			name: "distant gross kept",
			in:   Fields{NetAmount: nd("100"), TaxAmount: nd("22"), GrossAmount: nd("150")},
			net:  nd("100"), tax: nd("22"), gross: nd("150"),
		},
		{
			name: "single amount untouched",
			in:   Fields{GrossAmount: nd("50")},
			net:  none, tax: none, gross: nd("50"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Backfill(tt.in)
			assertNullEqual(t, tt.net, got.NetAmount)
			assertNullEqual(t, tt.tax, got.TaxAmount)
			assertNullEqual(t, tt.gross, got.GrossAmount)
		})
	}
}

func assertNullEqual(t *testing.T, want, got decimal.NullDecimal) {
	t.Helper()
	assert.Equal(t, want.Valid, got.Valid)
	if want.Valid {
		assert.True(t, want.Decimal.Equal(got.Decimal), "expected %s, got %s", want.Decimal, got.Decimal)
	}
}
