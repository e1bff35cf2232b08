package invoice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsNoiseLine(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"Via Roma 1", true},
		{"20121 Milano", true},
		{"1.234,56", true},
		{"Partita IVA 01234567890", true},
		{"Mario Rossi", false},
		{"Rossi Impianti Srl", false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNoiseLine(tt.line))
		})
	}
}

func TestAmountsInLine_SkipsDates(t *testing.T) {
	got := amountsInLine("Data 12.03.24 importo 100,00")
	require.Len(t, got, 1)
	assert.Equal(t, 100.0, got[0])
}

func TestTaxRate(t *testing.T) {
	tests := []struct {
		text   string
		want   float64
		wantOK bool
	}{
		{"IVA 22%", 22, true},
		{"Iva: 10 %", 10, true},
		{"IVA 2%", 0, false},
		{"Sconto 22%", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := TaxRate(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindTaxID(t *testing.T) {
	id, ok := FindTaxID("Rossi Srl - P.IVA: 01234567890")
	require.True(t, ok)
	assert.Equal(t, "01234567890", id)

	_, ok = FindTaxID("nessun identificativo")
	assert.False(t, ok)
}

func TestFindFiscalCode(t *testing.T) {
	cf, ok := FindFiscalCode("C.F. RSSMRA80A01H501U")
	require.True(t, ok)
	assert.Equal(t, "RSSMRA80A01H501U", cf)
}

func TestGrossFromOneLine(t *testing.T) {
	v, ok := grossFromOneLine("Totale imponibile 100,00 Totale € 122,00")
	require.True(t, ok)
	assert.Equal(t, 122.0, v)
}

func TestTaxFromOneLine_RejectsTotals(t *testing.T) {
	_, ok := taxFromOneLine("IVA 22% Totale: 122,00")
	assert.False(t, ok)

	v, ok := taxFromOneLine("IVA 22% 22,00")
	require.True(t, ok)
	assert.Equal(t, 22.0, v)
}

func TestSplitLines(t *testing.T) {
	got := splitLines("  uno \r\n\n due tre\fquattro")
	assert.Equal(t, []string{"uno", "due tre", "quattro"}, got)
}
