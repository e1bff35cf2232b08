package invoice

import (
	"regexp"
	"strings"
	"unicode"
)

// amountExpr matches a money token: digit groups separated by '.', ',', a space,
// a narrow no-break space or a no-break space, with a two-digit decimal tail.
const amountExpr = `(\d{1,3}(?:[.,\s\x{202F}\x{00A0}]\d{3})*(?:[.,]\d{2}))`

// dateExpr matches DD.MM.YY, DD.MM.YYYY, DD/MM/YY, DD/MM/YYYY and YYYY-MM-DD
const dateExpr = `(\d{2}[./]\d{2}[./](?:\d{2}|\d{4})|\d{4}-\d{2}-\d{2})`

var (
	// Tax identifiers
	taxIDLabeled = regexp.MustCompile(`(?i)(?:P\.?\s*IVA|Partita\s*IVA)[^\d]{0,10}(\d{10,11})`)
	taxIDRaw     = regexp.MustCompile(`\b(?:IT)?\s?(\d{10,11})\b`)
	fiscalCode   = regexp.MustCompile(`\b([A-Z]{3}\s*[A-Z]{3}\s*\d{2}\s*[A-Z]\s*\d{2}\s*[A-Z]\s*\d{3}\s*[A-Z])\b`)
	currencyMark = regexp.MustCompile(`(?i)(EUR|€)`)

	// Labeled amounts, generic form
	grossLabeled = regexp.MustCompile(`(?im)(?:totale\s*(?:documento)?|^totale$)\s*[:€]?\s*([\d\.,]+)`)
	netLabeled   = regexp.MustCompile(`(?i)(?:imponibile|totale\s*imponibile)\s*[:€]?\s*([\d\.,]+)`)
	taxLabeled   = regexp.MustCompile(`(?i)(?:\biva\b[^\n\r]*?)(\d{1,3}(?:[\.\,]\d{3})*(?:[\.,]\d{2}))`)

	// Labeled amounts on the flattened text
	amountToken   = regexp.MustCompile(amountExpr)
	netOneLine    = regexp.MustCompile(`(?i)(?:imponibile(?:\s+prestazione)?)\s*[:€]?\s*` + amountExpr)
	taxOneLine    = regexp.MustCompile(`(?i)\biva\b[^\n\r%]*%?[^\d]{0,10}` + amountExpr)
	grossKeyword  = regexp.MustCompile(`(?i)\btotale\b`)
	grossTail     = regexp.MustCompile(`^[^\d€]*€?\s*` + amountExpr)
	netAfterGross = regexp.MustCompile(`(?i)^\s*imponibile`)
	ivaWord       = regexp.MustCompile(`(?i)iva`)

	// Tax rate, e.g. "IVA 22%" or "Iva: 10 %"
	taxRatePercent = regexp.MustCompile(`(?i)\biva\b[^\n\r]{0,20}?(\d{1,2})(?:[.,]\d+)?\s*%`)

	// Dates
	dateAny         = regexp.MustCompile(dateExpr)
	dateIssue       = regexp.MustCompile(`(?i)(?:\bdata\b(?:\s*(?:emissione|fattura))?\s*:?\s*)` + dateExpr)
	dateDue         = regexp.MustCompile(`(?i)(?:\bscadenza\b|\bdata\s*scadenza\b)\s*:?\s*` + dateExpr)
	dateAfterNumber = regexp.MustCompile(`(?is)fattura\s+nr?\.?[^,\n\r]{0,60}?del\s+(\d{1,2}[./]\d{1,2}[./]\d{2,4})`)
	fourDigitYear   = regexp.MustCompile(`\b(20\d{2})\b`)
	dateShaped      = regexp.MustCompile(`^\d{2}[./]\d{2}[./](?:\d{2}|\d{4})$`)
	dateInText      = regexp.MustCompile(`\b\d{2}[./]\d{2}[./](?:\d{2}|\d{4})\b`)

	// Invoice numbers
	invoiceNumberGeneric = regexp.MustCompile(`(?i)(?:fattura|fatt\.|n[°o])\s*[:\-]?\s*([A-Za-z0-9/\\\-]+)`)
	invoiceNumberOneLine = regexp.MustCompile(`(?i)\bfattura\b[ \t\f\v]*([A-Za-z0-9/\-]{1,20})`)
	invoiceNumberShape   = regexp.MustCompile(`^(?:[A-Za-z]?\d{1,6}|[A-Za-z]?\d{1,4}/\d{2,4})$`)

	// Noise lines that are never a party name
	cityLine    = regexp.MustCompile(`\b\d{5}\b\s*[-–]?\s*[A-Za-zÀ-ÖØ-öø-ÿ].*`)
	addressLine = regexp.MustCompile(`(?i)^(via|viale|piazza|corso|vicolo|largo)\b`)
	numericLine = regexp.MustCompile(`^[\d\.\,€\s]+$`)

	lineBreaks = regexp.MustCompile(`[\r\n]+`)
)

// nonNameLabels are field labels that appear next to names on invoices
var nonNameLabels = []string{
	"indirizzo", "citta'", "città", "partita iva", "cod. fisc", "codice fiscale", "p. iva", "p iva",
}

// numberLineLabels mark lines that cannot hold an invoice number
var numberLineLabels = []string{"data", "cliente", "indirizzo", "citta'", "città"}

// firstGroup returns the first capture group of the leftmost match
func firstGroup(re *regexp.Regexp, text string) (string, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// FindTaxID returns the raw VAT number, preferring the labeled form
func FindTaxID(text string) (string, bool) {
	if v, ok := firstGroup(taxIDLabeled, text); ok {
		return v, true
	}
	return firstGroup(taxIDRaw, text)
}

// FindFiscalCode returns a normalized personal fiscal code
func FindFiscalCode(text string) (string, bool) {
	v, ok := firstGroup(fiscalCode, text)
	if !ok {
		return "", false
	}
	return NormalizeFiscalCode(v), true
}

// HasCurrencyMark reports whether the text mentions euros explicitly
func HasCurrencyMark(text string) bool {
	return currencyMark.MatchString(text)
}

// IsNoiseLine flags labels, postal-code/city lines, addresses and numeric lines
func IsNoiseLine(line string) bool {
	if containsAny(strings.ToLower(line), nonNameLabels) {
		return true
	}
	return cityLine.MatchString(line) || addressLine.MatchString(line) || numericLine.MatchString(line)
}

// TaxRate returns the VAT percentage mentioned in the text when it is plausible
func TaxRate(text string) (float64, bool) {
	m := taxRatePercent.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	p, ok := ParseAmount(m[1])
	if !ok || p < 4 || p > 30 {
		return 0, false
	}
	return p, true
}

// cleanAmount removes thousands separators made of spaces
func cleanAmount(s string) string {
	return strings.NewReplacer(" ", "", "\u202f", "", "\u00a0", "").Replace(s)
}

// parseAmountToken parses a token matched by amountToken
func parseAmountToken(s string) (float64, bool) {
	return ParseAmount(cleanAmount(s))
}

// insideDate reports whether [start,end) lies within a date token of line
func insideDate(line string, start, end int) bool {
	for _, span := range dateInText.FindAllStringIndex(line, -1) {
		if start >= span[0] && end <= span[1] {
			return true
		}
	}
	return false
}

// amountsInLine returns every money token in line that is not part of a date
func amountsInLine(line string) []float64 {
	var out []float64
	for _, m := range amountToken.FindAllStringSubmatchIndex(line, -1) {
		if insideDate(line, m[2], m[3]) {
			continue
		}
		if v, ok := parseAmountToken(line[m[2]:m[3]]); ok {
			out = append(out, v)
		}
	}
	return out
}

// firstAmountInLine returns the first money token that is not part of a date
func firstAmountInLine(line string) (float64, bool) {
	for _, m := range amountToken.FindAllStringSubmatchIndex(line, -1) {
		if insideDate(line, m[2], m[3]) {
			continue
		}
		return parseAmountToken(line[m[2]:m[3]])
	}
	return 0, false
}

// grossFromOneLine finds "totale … amount" where "totale" is not followed by
// "imponibile"
func grossFromOneLine(text string) (float64, bool) {
	for _, kw := range grossKeyword.FindAllStringIndex(text, -1) {
		rest := text[kw[1]:]
		if netAfterGross.MatchString(rest) {
			continue
		}
		m := grossTail.FindStringSubmatch(rest)
		if m == nil {
			continue
		}
		return parseAmountToken(m[1])
	}
	return 0, false
}

// taxFromOneLine reads the VAT amount, rejecting matches where a total or
// taxable label sits between "iva" and the number
func taxFromOneLine(text string) (float64, bool) {
	m := taxOneLine.FindStringSubmatchIndex(text)
	if m == nil {
		return 0, false
	}
	numStart, numEnd := m[2], m[3]
	if insideDate(text, numStart, numEnd) {
		return 0, false
	}
	if loc := ivaWord.FindStringIndex(text); loc != nil && loc[0] < numStart {
		between := strings.ToLower(text[loc[0]:numStart])
		if strings.Contains(between, "totale") || strings.Contains(between, "imponibile") {
			return 0, false
		}
	}
	return parseAmountToken(text[numStart:numEnd])
}

// splitLines returns the trimmed, non-empty lines of text
func splitLines(text string) []string {
	raw := strings.FieldsFunc(text, isLineBreak)
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}

// flatten joins all lines into one, so patterns can cross line breaks
func flatten(text string) string {
	return lineBreaks.ReplaceAllString(text, " ")
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func isAlphaWord(w string) bool {
	if w == "" {
		return false
	}
	for _, r := range w {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
