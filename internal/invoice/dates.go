package invoice

import (
	"strconv"
	"strings"
)

const (
	// Years counted when looking for the dominant year of a document
	minCountedYear = 2010
	maxCountedYear = 2035

	// The dominant year only overrides a date inside this window and when it
	// is at least minYearDrift away
	minDominantYear = 2015
	maxDominantYear = 2035
	minYearDrift    = 2
)

// issueDate resolves the invoice date: "fattura nr … del DATE", then the
// labeled issue date, then the first date-shaped token. The year is then
// corrected against the dominant year of the document.
func issueDate(text, oneLine string) string {
	var date string
	if m, ok := firstGroup(dateAfterNumber, oneLine); ok {
		date, _ = ParseDate(m)
	}
	if date == "" {
		if m, ok := firstGroup(dateIssue, text); ok {
			date, _ = ParseDate(m)
		}
	}
	if date == "" {
		if m, ok := firstGroup(dateAny, text); ok {
			date, _ = ParseDate(m)
		}
	}
	if date == "" {
		return ""
	}
	return applyDominantYear(date, oneLine)
}

// dueDate reads the labeled due date only
func dueDate(text string) string {
	m, ok := firstGroup(dateDue, text)
	if !ok {
		return ""
	}
	d, _ := ParseDate(m)
	return d
}

// DominantYear returns the most frequent year between 2010 and 2035 in text;
// ties go to the later year
func DominantYear(text string) (int, bool) {
	counts := make(map[int]int)
	for _, m := range fourDigitYear.FindAllStringSubmatch(text, -1) {
		y, err := strconv.Atoi(m[1])
		if err != nil || y < minCountedYear || y > maxCountedYear {
			continue
		}
		counts[y]++
	}

	best, bestCount := 0, 0
	for y, c := range counts {
		if c > bestCount || (c == bestCount && y > best) {
			best, bestCount = y, c
		}
	}
	return best, bestCount > 0
}

// applyDominantYear replaces the year of an ISO date when the document's
// dominant year disagrees by two years or more
func applyDominantYear(iso, text string) string {
	dom, ok := DominantYear(text)
	if !ok || dom < minDominantYear || dom > maxDominantYear {
		return iso
	}
	y, err := strconv.Atoi(strings.SplitN(iso, "-", 2)[0])
	if err != nil {
		return iso
	}
	if abs(dom-y) >= minYearDrift {
		return replaceYear(iso, dom)
	}
	return iso
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
