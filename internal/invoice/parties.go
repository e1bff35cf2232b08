package invoice

import "strings"

const (
	nameLookback    = 5
	customerMargin  = 2
	numberLookahead = 4
)

// looksLikeName accepts 2-4 alphabetic words with no digits on a non-noise line
func looksLikeName(s string) bool {
	s = strings.TrimSpace(s)
	if IsNoiseLine(s) {
		return false
	}
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return false
		}
	}
	words := 0
	for _, w := range strings.Fields(s) {
		if isAlphaWord(w) {
			words++
		}
	}
	return words >= 2 && words <= 4
}

// taxIDLine returns the index of the first line mentioning a VAT number
func taxIDLine(lines []string) int {
	for i, l := range lines {
		if taxIDLabeled.MatchString(l) || taxIDRaw.MatchString(l) {
			return i
		}
	}
	return -1
}

// partyName looks for the issuer's name just above the VAT number line, then
// anywhere away from the "cliente" (customer) block
func partyName(lines []string) string {
	if idx := taxIDLine(lines); idx >= 0 {
		for look := 1; look <= nameLookback && idx-look >= 0; look++ {
			if cand := strings.TrimSpace(lines[idx-look]); looksLikeName(cand) {
				return cand
			}
		}
	}

	customer := -1
	for i, l := range lines {
		if strings.Contains(strings.ToLower(l), "cliente") {
			customer = i
			break
		}
	}
	for i, cand := range lines {
		if customer >= 0 && abs(i-customer) <= customerMargin {
			continue
		}
		if looksLikeName(cand) {
			return cand
		}
	}
	return ""
}

// validNumberToken reports whether tok has the shape of an invoice number
func validNumberToken(tok string) bool {
	return tok != "" && !dateShaped.MatchString(tok) && !strings.Contains(tok, ".") &&
		invoiceNumberShape.MatchString(tok)
}

// invoiceNumber resolves the document number from "fattura" lines, then the
// flattened text, then the generic recognizer
func invoiceNumber(lines []string, text, oneLine string) string {
	if n := invoiceNumberFromLines(lines); n != "" {
		return n
	}
	if m, ok := firstGroup(invoiceNumberOneLine, oneLine); ok {
		if cand := strings.TrimSpace(m); validNumberToken(cand) {
			return cand
		}
	}
	if m, ok := firstGroup(invoiceNumberGeneric, text); ok {
		return m
	}
	return ""
}

func invoiceNumberFromLines(lines []string) string {
	for i, l := range lines {
		if !strings.Contains(strings.ToLower(l), "fattura") {
			continue
		}
		if m, ok := firstGroup(invoiceNumberOneLine, l); ok {
			if cand := strings.TrimSpace(m); validNumberToken(cand) {
				return cand
			}
		}

		steps := 0
		for j := i + 1; j < len(lines) && steps < numberLookahead; j++ {
			next := strings.TrimSpace(lines[j])
			if next == "" {
				continue
			}
			low := strings.ToLower(next)
			if !dateShaped.MatchString(next) && !strings.Contains(next, ".") &&
				!containsAny(low, numberLineLabels) && invoiceNumberShape.MatchString(next) {
				return next
			}
			steps++
		}
	}
	return ""
}
