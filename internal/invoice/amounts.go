package invoice

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// Heuristics groups the empirically chosen thresholds used to reconcile
// net, tax and gross amounts. They are tuned on Italian invoices, not derived.
type Heuristics struct {
	// Tolerance is the maximum |net + tax - gross| accepted as consistent
	Tolerance float64
	// TieEpsilon treats two reconciliation errors as equal
	TieEpsilon float64
	// TailLines bounds the combinatorial search to the document foot
	TailLines int
	// LabelWindow is how many non-empty lines are read after an amount label
	LabelWindow int
	// SmallTaxFloor and SmallTaxGross reject a tax below the floor when the
	// gross is above SmallTaxGross (stray page numbers and the like)
	SmallTaxFloor float64
	SmallTaxGross float64
	// SwapError is the rate mismatch beyond which net and tax are swapped
	SwapError float64
	// MinEffectiveRate and MaxEffectiveRate bound a plausible tax/net ratio
	MinEffectiveRate float64
	MaxEffectiveRate float64
	// EqualTaxNet flags a tax that merely repeats the net amount
	EqualTaxNet float64
}

// DefaultHeuristics returns the thresholds used by the extractor
func DefaultHeuristics() Heuristics {
	return Heuristics{
		Tolerance:        0.05,
		TieEpsilon:       0.001,
		TailLines:        20,
		LabelWindow:      8,
		SmallTaxFloor:    1,
		SmallTaxGross:    50,
		SwapError:        0.5,
		MinEffectiveRate: 0.035,
		MaxEffectiveRate: 0.305,
		EqualTaxNet:      0.01,
	}
}

// amountRole selects which candidate wins inside a label block
type amountRole int

const (
	roleNet amountRole = iota
	roleTax
	roleGross
)

var (
	netLabels   = []string{"totale imponibile", "imponibile totale"}
	taxLabels   = []string{"totale iva"}
	grossLabels = []string{"totale documento", "netto a pagare", "totale fattura"}
)

// triple is a possibly partial (net, tax, gross) assignment
type triple struct {
	net, tax, gross *float64
}

func (t triple) complete() bool {
	return t.net != nil && t.tax != nil && t.gross != nil
}

func (t triple) inconsistent(tol float64) bool {
	return t.complete() && math.Abs(*t.net+*t.tax-*t.gross) > tol
}

func ptr(v float64) *float64 { return &v }

// reconcileAmounts resolves the three monetary fields from the document lines
// and its flattened form
func (h Heuristics) reconcileAmounts(text string, lines []string, oneLine string) triple {
	t := h.amountsByLabelBlocks(lines)

	// Generic labeled patterns, then the flattened variants
	if t.net == nil {
		if v, ok := labeledAmount(netLabeled, text); ok {
			t.net = ptr(v)
		} else if m := netOneLine.FindStringSubmatch(oneLine); m != nil {
			if v, ok := parseAmountToken(m[1]); ok {
				t.net = ptr(v)
			}
		}
	}
	if t.tax == nil {
		if v, ok := labeledAmount(taxLabeled, text); ok {
			t.tax = ptr(v)
		} else if v, ok := taxFromOneLine(oneLine); ok {
			t.tax = ptr(v)
		}
	}
	if t.gross == nil {
		if v, ok := labeledAmount(grossLabeled, text); ok {
			t.gross = ptr(v)
		} else if v, ok := grossFromOneLine(oneLine); ok {
			t.gross = ptr(v)
		}
	}

	// Percentage-derived tax
	rate, hasRate := TaxRate(text)
	if hasRate && t.net != nil {
		if t.tax == nil || math.Abs(*t.tax-*t.net) <= h.EqualTaxNet {
			t.tax = ptr(RoundAmount(*t.net * rate / 100))
		}
	}

	// Combinatorial search when something is missing or the triple disagrees
	bad := t.inconsistent(h.Tolerance)
	if !t.complete() || bad {
		guess := h.searchAmounts(lines)
		if (t.tax == nil || bad) && guess.tax != nil {
			t.tax = guess.tax
		}
		if (t.net == nil || bad) && guess.net != nil {
			t.net = guess.net
		}
		if (t.gross == nil || bad) && guess.gross != nil {
			t.gross = guess.gross
		}
	}

	h.correctSwap(&t, rate, hasRate)

	// Final coherence: gross follows net + tax when close enough
	if t.net != nil && t.tax != nil {
		sum := RoundAmount(*t.net + *t.tax)
		if t.gross == nil || math.Abs(*t.gross-sum) <= h.Tolerance {
			t.gross = ptr(sum)
		}
	}
	return t
}

// labeledAmount parses the first capture of a generic labeled pattern
func labeledAmount(re *regexp.Regexp, text string) (float64, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	return ParseAmount(m[1])
}

// amountsByLabelBlocks reads the explicit "Totale …" label blocks
func (h Heuristics) amountsByLabelBlocks(lines []string) triple {
	var t triple
	if v, ok := h.amountAfterLabel(lines, netLabels, roleNet); ok {
		t.net = ptr(v)
	}
	if v, ok := h.amountAfterLabel(lines, taxLabels, roleTax); ok {
		t.tax = ptr(v)
	}
	if v, ok := h.amountAfterLabel(lines, grossLabels, roleGross); ok {
		t.gross = ptr(v)
	}
	return t
}

// amountAfterLabel collects amounts from the lines following the first label
// line that yields any, skipping bare percentage lines. Tax takes the smallest
// candidate, net and gross the largest.
func (h Heuristics) amountAfterLabel(lines []string, labels []string, role amountRole) (float64, bool) {
	for i, line := range lines {
		if !containsAny(strings.ToLower(line), labels) {
			continue
		}

		var cands []float64
		steps := 0
		for j := i + 1; j < len(lines) && steps < h.LabelWindow; j++ {
			next := lines[j]
			if strings.Contains(next, "%") && !amountToken.MatchString(next) {
				continue
			}
			if v, ok := firstAmountInLine(next); ok {
				cands = append(cands, v)
			}
			steps++
		}
		if len(cands) == 0 {
			continue
		}

		best := cands[0]
		for _, c := range cands[1:] {
			if (role == roleTax && c < best) || (role != roleTax && c > best) {
				best = c
			}
		}
		return best, true
	}
	return 0, false
}

// searchAmounts tries every triple of amounts near the document foot, then
// falls back to the whole document
func (h Heuristics) searchAmounts(lines []string) triple {
	tail := lines
	if len(lines) > h.TailLines {
		tail = lines[len(lines)-h.TailLines:]
	}

	var vals []float64
	for _, line := range tail {
		vals = append(vals, amountsInLine(line)...)
	}
	if best := h.bestPermutation(vals); best.gross != nil {
		return best
	}

	return h.bestOrdered(distinctSorted(lines))
}

// bestPermutation assigns (tax, net, gross) over all permutations of every
// triple of candidate positions
func (h Heuristics) bestPermutation(vals []float64) triple {
	var best triple
	bestErr := math.Inf(1)
	n := len(vals)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				a, b, c := vals[i], vals[j], vals[k]
				for _, p := range [6][3]float64{
					{a, b, c}, {a, c, b}, {b, a, c}, {b, c, a}, {c, a, b}, {c, b, a},
				} {
					if err, ok := h.score(p[0], p[1], p[2]); ok && h.better(err, bestErr, p[2], best.gross) {
						best = triple{tax: ptr(RoundAmount(p[0])), net: ptr(RoundAmount(p[1])), gross: ptr(RoundAmount(p[2]))}
						bestErr = err
					}
				}
			}
		}
	}
	return best
}

// bestOrdered assigns ascending values as (tax, net, gross)
func (h Heuristics) bestOrdered(vals []float64) triple {
	var best triple
	bestErr := math.Inf(1)
	n := len(vals)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				tax, net, gross := vals[i], vals[j], vals[k]
				if err, ok := h.score(tax, net, gross); ok && h.better(err, bestErr, gross, best.gross) {
					best = triple{tax: ptr(tax), net: ptr(net), gross: ptr(gross)}
					bestErr = err
				}
			}
		}
	}
	return best
}

// score returns the reconciliation error of a candidate and whether it is acceptable
func (h Heuristics) score(tax, net, gross float64) (float64, bool) {
	if gross < net || gross < tax {
		return 0, false
	}
	if gross > h.SmallTaxGross && tax < h.SmallTaxFloor {
		return 0, false
	}
	err := math.Abs(net + tax - gross)
	if err > h.Tolerance || net <= 0 || tax <= 0 {
		return 0, false
	}
	return err, true
}

// better prefers a smaller error, then the larger gross on a tie
func (h Heuristics) better(err, bestErr, gross float64, bestGross *float64) bool {
	if err < bestErr {
		return true
	}
	cur := 0.0
	if bestGross != nil {
		cur = *bestGross
	}
	return math.Abs(err-bestErr) <= h.TieEpsilon && gross > cur
}

// correctSwap exchanges net and tax when they were read in the wrong order
func (h Heuristics) correctSwap(t *triple, rate float64, hasRate bool) {
	if t.net == nil || t.tax == nil {
		return
	}
	net, tax := *t.net, *t.tax
	if hasRate {
		errNow := math.Abs(tax - RoundAmount(net*rate/100))
		errSwap := math.Abs(net - RoundAmount(tax*rate/100))
		if errNow > h.SwapError && errSwap < h.SwapError {
			t.net, t.tax = t.tax, t.net
		}
		return
	}
	if !h.rateOK(net, tax) && h.rateOK(tax, net) {
		t.net, t.tax = t.tax, t.net
	}
}

func (h Heuristics) rateOK(net, tax float64) bool {
	if net <= 0 {
		return false
	}
	r := tax / net
	return r >= h.MinEffectiveRate && r <= h.MaxEffectiveRate
}

// distinctSorted returns every amount of the document rounded, deduplicated
// and sorted ascending
func distinctSorted(lines []string) []float64 {
	seen := make(map[float64]bool)
	var out []float64
	for _, line := range lines {
		for _, v := range amountsInLine(line) {
			v = RoundAmount(v)
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	sort.Float64s(out)
	return out
}
