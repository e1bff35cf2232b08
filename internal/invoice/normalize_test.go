package invoice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"1.234,56", 1234.56, true},
		{"1220,50", 1220.50, true},
		{"1220.00", 1220.00, true},
		{"€ 99,90", 99.90, true},
		{"", 0, false},
		{"abc", 0, false},
		{"NaN", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseAmount(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"31/02/2024", ""},
		{"01/01/24", "2024-01-01"},
		{"01/01/80", "1980-01-01"},
		{"15.03.2023", "2023-03-15"},
		{"2023-12-31", "2023-12-31"},
		{"31/04/2023", ""},
		{"2023-13-01", ""},
		{"not a date", ""},
		{"01/01/1850", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDate(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want != "", ok)
		})
	}
}

func TestNormalizeTaxRate(t *testing.T) {
	assert.Equal(t, 22.0, NormalizeTaxRate(2200))
	assert.Equal(t, 22.0, NormalizeTaxRate(22))
	assert.Equal(t, 0.0, NormalizeTaxRate(0))
	assert.Equal(t, 4.5, NormalizeTaxRate(4.5))
}

func TestCanonicalTaxID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"01234567890", "IT01234567890"},
		{"IT01234567890", "IT01234567890"},
		{"1234567890", "IT01234567890"},
		{"IT 012 345 678 90", "IT01234567890"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalTaxID(tt.in))
		})
	}
}

func TestNormalizeFiscalCode(t *testing.T) {
	assert.Equal(t, "RSSMRA80A01H501U", NormalizeFiscalCode("rss mra 80a01 h501u"))
}

func TestAmount(t *testing.T) {
	a := Amount(12.345)
	assert.True(t, a.Valid)
	assert.Equal(t, "12.35", a.Decimal.StringFixed(2))

	assert.False(t, optionalAmount(nil).Valid)
}
