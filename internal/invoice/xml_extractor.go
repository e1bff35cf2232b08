package invoice

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/shopspring/decimal"
)

// node is a namespace-free element tree built from a FatturaPA document
type node struct {
	name     string
	text     strings.Builder
	children []*node
}

// first returns the first descendant (document order) with the given local name
func (n *node) first(name string) *node {
	if n == nil {
		return nil
	}
	for _, c := range n.children {
		if c.name == name {
			return c
		}
		if d := c.first(name); d != nil {
			return d
		}
	}
	return nil
}

// all returns every descendant with the given local name
func (n *node) all(name string) []*node {
	if n == nil {
		return nil
	}
	var out []*node
	for _, c := range n.children {
		if c.name == name {
			out = append(out, c)
		}
		out = append(out, c.all(name)...)
	}
	return out
}

// value returns the trimmed text of the first descendant named name
func (n *node) value(name string) string {
	c := n.first(name)
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.text.String())
}

// parseTree decodes data leniently. The charset is normalised to UTF-8 and
// stray '<' are escaped first; a syntax error skips to the next tag with the
// open elements replayed, so one bad token only loses itself. nil is returned
// only when no element could be read.
func parseTree(data []byte) *node {
	src := escapeStrayLT(toUTF8(data))

	doc := &node{}
	stack := []*node{doc}
	for pos := 0; pos < len(src); {
		prefix := reopen(stack)
		dec := newLenientDecoder(io.MultiReader(strings.NewReader(prefix), bytes.NewReader(src[pos:])))
		if err := readTree(dec, &stack, len(stack)-1); err == io.EOF {
			break
		}

		at := pos + int(dec.InputOffset()) - len(prefix)
		if at <= pos {
			at = pos + 1
		}
		if at >= len(src) {
			break
		}
		next := bytes.IndexByte(src[at:], '<')
		if next < 0 {
			break
		}
		pos = at + next
	}
	if len(doc.children) == 0 {
		return nil
	}
	return doc
}

func newLenientDecoder(r io.Reader) *xml.Decoder {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	// toUTF8 has already decoded the declared charset
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	return dec
}

// reopen renders start tags for the elements still open on stack
func reopen(stack []*node) string {
	var b strings.Builder
	for _, n := range stack[1:] {
		b.WriteString("<" + n.name + ">")
	}
	return b.String()
}

// readTree appends decoded tokens below the open elements on stack until the
// decoder fails. The first skip start elements replay elements that are
// already open and are ignored.
func readTree(dec *xml.Decoder, stack *[]*node, skip int) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		open := *stack
		top := open[len(open)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			if skip > 0 {
				skip--
				continue
			}
			n := &node{name: t.Name.Local}
			top.children = append(top.children, n)
			*stack = append(open, n)
		case xml.EndElement:
			if len(open) > 1 {
				*stack = open[:len(open)-1]
			}
		case xml.CharData:
			top.text.Write(t)
		}
	}
}

// ExtractXML reads an Italian electronic invoice (FatturaPA). Undecodable
// input yields an empty record with the default currency.
func ExtractXML(data []byte) Extracted {
	out := emptyExtracted()
	root := parseTree(data)
	if root == nil {
		return out
	}
	f := &out.Fields

	// Supplier
	supplier := root.first("CedentePrestatore")
	registry := supplier.first("Anagrafica")
	f.PartyName = registry.value("Denominazione")
	if f.PartyName == "" {
		var parts []string
		for _, p := range []string{registry.value("Nome"), registry.value("Cognome")} {
			if p != "" {
				parts = append(parts, p)
			}
		}
		f.PartyName = strings.Join(parts, " ")
	}

	vatID := supplier.first("IdFiscaleIVA")
	if code := vatID.value("IdCodice"); code != "" {
		country := vatID.value("IdPaese")
		if country == "" {
			country = "IT"
		}
		f.TaxID = country + code
	}
	f.FiscalCode = supplier.value("CodiceFiscale")

	// General document data
	general := root.first("DatiGeneraliDocumento")
	f.InvoiceNumber = general.value("Numero")
	f.IssueDate, _ = ParseDate(general.value("Data"))
	if cur := general.value("Divisa"); cur != "" {
		f.Currency = cur
	}
	f.GrossAmount = xmlAmount(general.value("ImportoTotaleDocumento"))
	f.TaxAmount = xmlAmount(general.value("TotaleImposta"))
	f.NetAmount = xmlAmount(general.value("TotaleImponibile"))

	// Most issuers only fill the summary blocks
	if !f.TaxAmount.Valid || !f.NetAmount.Valid {
		net, tax, ok := summaryTotals(root)
		if ok && !f.NetAmount.Valid {
			f.NetAmount = net
		}
		if ok && !f.TaxAmount.Valid {
			f.TaxAmount = tax
		}
	}

	f.DueDate, _ = ParseDate(root.first("DettaglioPagamento").value("DataScadenzaPagamento"))

	for _, row := range root.all("DettaglioLinee") {
		out.LineItems = append(out.LineItems, LineItem{
			Description:    row.value("Descrizione"),
			Quantity:       xmlNumber(row.value("Quantita")),
			UnitPrice:      xmlNumber(row.value("PrezzoUnitario")),
			TaxRatePercent: decimal.NewFromFloat(NormalizeTaxRate(xmlNumber(row.value("AliquotaIVA")).InexactFloat64())),
			LineTotal:      xmlNumber(row.value("PrezzoTotale")),
		})
	}
	return out
}

// summaryTotals sums the DatiRiepilogo blocks
func summaryTotals(root *node) (net, tax decimal.NullDecimal, ok bool) {
	blocks := root.all("DatiRiepilogo")
	if len(blocks) == 0 {
		return net, tax, false
	}
	netSum, taxSum := decimal.Zero, decimal.Zero
	for _, b := range blocks {
		netSum = netSum.Add(xmlNumber(b.value("ImponibileImporto")))
		taxSum = taxSum.Add(xmlNumber(b.value("Imposta")))
	}
	return decimal.NewNullDecimal(netSum.Round(2)), decimal.NewNullDecimal(taxSum.Round(2)), true
}

// xmlAmount parses an optional monetary element
func xmlAmount(s string) decimal.NullDecimal {
	v, ok := ParseAmount(s)
	if !ok {
		return decimal.NullDecimal{}
	}
	return Amount(v)
}

// xmlNumber parses a numeric element, defaulting to zero
func xmlNumber(s string) decimal.Decimal {
	v, ok := ParseAmount(s)
	if !ok {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}
