package invoice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFatturaPA = `<?xml version="1.0" encoding="UTF-8"?>
<p:FatturaElettronica versione="FPR12" xmlns:p="http://ivaservizi.agenziaentrate.gov.it/docs/xsd/fatture/v1.2">
  <FatturaElettronicaHeader>
    <CedentePrestatore>
      <DatiAnagrafici>
        <IdFiscaleIVA>
          <IdPaese>IT</IdPaese>
          <IdCodice>01234567890</IdCodice>
        </IdFiscaleIVA>
        <CodiceFiscale>01234567890</CodiceFiscale>
        <Anagrafica>
          <Denominazione>Rossi Impianti Srl</Denominazione>
        </Anagrafica>
      </DatiAnagrafici>
    </CedentePrestatore>
  </FatturaElettronicaHeader>
  <FatturaElettronicaBody>
    <DatiGenerali>
      <DatiGeneraliDocumento>
        <Divisa>EUR</Divisa>
        <Data>2024-01-31</Data>
        <Numero>FPA 12/24</Numero>
        <ImportoTotaleDocumento>1220.00</ImportoTotaleDocumento>
      </DatiGeneraliDocumento>
    </DatiGenerali>
    <DatiBeniServizi>
      <DettaglioLinee>
        <NumeroLinea>1</NumeroLinea>
        <Descrizione>Manutenzione impianto</Descrizione>
        <Quantita>2.00</Quantita>
        <PrezzoUnitario>500.00</PrezzoUnitario>
        <PrezzoTotale>1000.00</PrezzoTotale>
        <AliquotaIVA>22.00</AliquotaIVA>
      </DettaglioLinee>
      <DettaglioLinee>
        <Descrizione>Diritto di chiamata</Descrizione>
        <AliquotaIVA>2200</AliquotaIVA>
      </DettaglioLinee>
      <DatiRiepilogo>
        <AliquotaIVA>22.00</AliquotaIVA>
        <ImponibileImporto>1000.00</ImponibileImporto>
        <Imposta>220.00</Imposta>
      </DatiRiepilogo>
    </DatiBeniServizi>
    <DatiPagamento>
      <DettaglioPagamento>
        <DataScadenzaPagamento>2024-02-29</DataScadenzaPagamento>
      </DettaglioPagamento>
    </DatiPagamento>
  </FatturaElettronicaBody>
</p:FatturaElettronica>`

func TestExtractXML(t *testing.T) {
	out := ExtractXML([]byte(sampleFatturaPA))
	f := out.Fields

	assert.Equal(t, "Rossi Impianti Srl", f.PartyName)
	assert.Equal(t, "IT01234567890", f.TaxID)
	assert.Equal(t, "01234567890", f.FiscalCode)
	assert.Equal(t, "FPA 12/24", f.InvoiceNumber)
	assert.Equal(t, "2024-01-31", f.IssueDate)
	assert.Equal(t, "2024-02-29", f.DueDate)
	assert.Equal(t, "EUR", f.Currency)
	assertAmount(t, "1220", f.GrossAmount)
	assertAmount(t, "1000", f.NetAmount)
	assertAmount(t, "220", f.TaxAmount)

	require.Len(t, out.LineItems, 2)
	first := out.LineItems[0]
	assert.Equal(t, "Manutenzione impianto", first.Description)
	assert.Equal(t, "2", first.Quantity.String())
	assert.Equal(t, "500", first.UnitPrice.String())
	assert.Equal(t, "22", first.TaxRatePercent.String())
	assert.Equal(t, "1000", first.LineTotal.String())

	second := out.LineItems[1]
	assert.Equal(t, "22", second.TaxRatePercent.String())
	assert.True(t, second.Quantity.IsZero())
	assert.True(t, second.LineTotal.IsZero())
}

func TestExtractXML_PersonName(t *testing.T) {
	doc := `<FatturaElettronica><CedentePrestatore><DatiAnagrafici>
<IdFiscaleIVA><IdCodice>09876543210</IdCodice></IdFiscaleIVA>
<Anagrafica><Nome>Mario</Nome><Cognome>Rossi</Cognome></Anagrafica>
</DatiAnagrafici></CedentePrestatore>
<DatiGeneraliDocumento><Data>31/01/2024</Data></DatiGeneraliDocumento></FatturaElettronica>`

	f := ExtractXML([]byte(doc)).Fields
	assert.Equal(t, "Mario Rossi", f.PartyName)
	assert.Equal(t, "IT09876543210", f.TaxID)
	assert.Equal(t, "2024-01-31", f.IssueDate)
	assert.Equal(t, DefaultCurrency, f.Currency)
	assert.False(t, f.GrossAmount.Valid)
}

func TestExtractXML_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"not xml", "%PDF-1.4 binary"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ExtractXML([]byte(tt.data))
			assert.Equal(t, DefaultCurrency, out.Fields.Currency)
			assert.Empty(t, out.Fields.InvoiceNumber)
			assert.Empty(t, out.LineItems)
		})
	}
}

func TestExtractXML_TruncatedKeepsPrefix(t *testing.T) {
	doc := `<FatturaElettronica><DatiGeneraliDocumento><Numero>42</Numero><Data>2024-03-01`
	f := ExtractXML([]byte(doc)).Fields
	assert.Equal(t, "42", f.InvoiceNumber)
}

// latin1Invoice has an accented supplier name ahead of every other field
const latin1Invoice = "<FatturaElettronica><CedentePrestatore><DatiAnagrafici>" +
	"<IdFiscaleIVA><IdPaese>IT</IdPaese><IdCodice>01234567890</IdCodice></IdFiscaleIVA>" +
	"<Anagrafica><Denominazione>Societ\xe0 Rossi</Denominazione></Anagrafica>" +
	"</DatiAnagrafici></CedentePrestatore>" +
	"<DatiGeneraliDocumento><Numero>FT-9</Numero><Data>2024-06-10</Data>" +
	"<ImportoTotaleDocumento>122.00</ImportoTotaleDocumento></DatiGeneraliDocumento>" +
	"</FatturaElettronica>"

func TestExtractXML_DeclaredCharset(t *testing.T) {
	tests := []struct {
		name   string
		prolog string
	}{
		{"iso-8859-1", `<?xml version="1.0" encoding="ISO-8859-1"?>`},
		{"windows-1252", `<?xml version='1.0' encoding='windows-1252'?>`},
		{"undeclared latin-1 bytes", `<?xml version="1.0"?>`},
		{"utf-8 declared with latin-1 bytes", `<?xml version="1.0" encoding="UTF-8"?>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ExtractXML([]byte(tt.prolog + latin1Invoice)).Fields
			assert.Equal(t, "Società Rossi", f.PartyName)
			assert.Equal(t, "IT01234567890", f.TaxID)
			assert.Equal(t, "FT-9", f.InvoiceNumber)
			assert.Equal(t, "2024-06-10", f.IssueDate)
			assertAmount(t, "122", f.GrossAmount)
		})
	}
}

func TestExtractXML_RecoversFromBadMarkup(t *testing.T) {
	general := `<DatiGeneraliDocumento><Numero>FT-42</Numero><Data>2024-02-01</Data>` +
		`<ImportoTotaleDocumento>122.00</ImportoTotaleDocumento></DatiGeneraliDocumento>`

	tests := []struct {
		name string
		junk string
		desc string
	}{
		{
			name: "stray less-than in text",
			junk: `<DettaglioLinee><Descrizione>sconto < 5 pezzi</Descrizione></DettaglioLinee>`,
			desc: "sconto < 5 pezzi",
		},
		{
			name: "empty closing tag",
			junk: `<DettaglioLinee><Descrizione>posa</Descrizione></></DettaglioLinee>`,
			desc: "posa",
		},
		{
			name: "less-than in cdata is kept",
			junk: `<DettaglioLinee><Descrizione><![CDATA[a < b]]></Descrizione></DettaglioLinee>`,
			desc: "a < b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := `<FatturaElettronica><CedentePrestatore><Anagrafica><Denominazione>Rossi Srl` +
				`</Denominazione></Anagrafica></CedentePrestatore>` + tt.junk + general + `</FatturaElettronica>`

			out := ExtractXML([]byte(doc))
			assert.Equal(t, "Rossi Srl", out.Fields.PartyName)
			assert.Equal(t, "FT-42", out.Fields.InvoiceNumber)
			assert.Equal(t, "2024-02-01", out.Fields.IssueDate)
			assertAmount(t, "122", out.Fields.GrossAmount)
			require.Len(t, out.LineItems, 1)
			assert.Equal(t, tt.desc, out.LineItems[0].Description)
		})
	}
}

func TestEscapeStrayLT(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`<a>1 < 2</a>`, `<a>1 &lt; 2</a>`},
		{`<a>x<5</a>`, `<a>x&lt;5</a>`},
		{`<?xml version="1.0"?><!-- a < b --><a/>`, `<?xml version="1.0"?><!-- a < b --><a/>`},
		{`trailing <`, `trailing &lt;`},
		{`plain`, `plain`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, string(escapeStrayLT([]byte(tt.in))), tt.in)
	}
}
