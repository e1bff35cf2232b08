package invoice

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// Dates whose year falls outside this window are treated as misreads
	minPlausibleYear = 1900
	maxPlausibleYear = 2099

	isoDate = "2006-01-02"
)

var (
	shortYearDate = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{2})$`)
	longYearDate  = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})$`)
	nonDigits     = regexp.MustCompile(`\D`)
	whitespace    = regexp.MustCompile(`\s+`)
)

// ParseAmount parses a number written with Italian or plain separators.
// When both '.' and ',' occur, '.' groups thousands and ',' is the decimal mark;
// a lone ',' is the decimal mark; anything else is parsed as-is.
func ParseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "€", ""))
	if s == "" {
		return 0, false
	}

	switch {
	case strings.Contains(s, ".") && strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ",", ".")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseDate converts DD/MM/YY, DD/MM/YYYY (dots allowed) or YYYY-MM-DD into an
// ISO date. Calendar-invalid or implausible dates return false.
func ParseDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	s = strings.ReplaceAll(s, ".", "/")

	if m := shortYearDate.FindStringSubmatch(s); m != nil {
		return buildDate(windowYear(atoi(m[3])), atoi(m[2]), atoi(m[1]))
	}
	if m := longYearDate.FindStringSubmatch(s); m != nil {
		return buildDate(atoi(m[3]), atoi(m[2]), atoi(m[1]))
	}

	t, err := time.Parse(isoDate, s)
	if err != nil {
		return "", false
	}
	return buildDate(t.Year(), int(t.Month()), t.Day())
}

// windowYear maps two-digit years: 00-79 to the 2000s, 80-99 to the 1900s
func windowYear(y int) int {
	if y <= 79 {
		return 2000 + y
	}
	return 1900 + y
}

func buildDate(year, month, day int) (string, bool) {
	if year < minPlausibleYear || year > maxPlausibleYear {
		return "", false
	}
	if month < 1 || month > 12 || day < 1 {
		return "", false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalises overflow (31 April -> 1 May); reject it
	if t.Day() != day || int(t.Month()) != month {
		return "", false
	}
	return t.Format(isoDate), true
}

// replaceYear swaps the year component of an ISO date
func replaceYear(iso string, year int) string {
	parts := strings.Split(iso, "-")
	if len(parts) != 3 {
		return iso
	}
	return strconv.Itoa(year) + "-" + parts[1] + "-" + parts[2]
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// NormalizeTaxRate keeps a percentage in the 0-100 range. Values above 1000
// are assumed to be multiplied by 100 at the source.
func NormalizeTaxRate(v float64) float64 {
	if v > 1000 {
		return roundTo(v/100, 3)
	}
	return roundTo(v, 3)
}

// CanonicalTaxID renders an Italian VAT number as "IT" + 11 digits
func CanonicalTaxID(raw string) string {
	digits := nonDigits.ReplaceAllString(strings.ReplaceAll(raw, "IT", ""), "")
	if digits == "" {
		return ""
	}
	if len(digits) < 11 {
		digits = strings.Repeat("0", 11-len(digits)) + digits
	}
	return "IT" + digits
}

// NormalizeFiscalCode strips inner whitespace and uppercases a fiscal code
func NormalizeFiscalCode(cf string) string {
	return strings.ToUpper(whitespace.ReplaceAllString(cf, ""))
}

// RoundAmount rounds to cents
func RoundAmount(v float64) float64 {
	return roundTo(v, 2)
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Amount wraps a float as a two-decimal optional value
func Amount(v float64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromFloat(v).Round(2))
}

// optionalAmount converts a maybe-present float into a NullDecimal
func optionalAmount(v *float64) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return Amount(*v)
}
