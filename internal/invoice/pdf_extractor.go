package invoice

import (
	"strings"

	"github.com/rs/zerolog"
)

// Extractor recovers invoice fields from the plain text of a PDF document.
// It holds no mutable state and is safe for concurrent use.
type Extractor struct {
	heuristics Heuristics
	logger     zerolog.Logger
}

// Option configures an Extractor
type Option func(*Extractor)

// WithHeuristics overrides the amount reconciliation thresholds
func WithHeuristics(h Heuristics) Option {
	return func(e *Extractor) {
		e.heuristics = h
	}
}

// WithLogger sets the logger used for trace output
func WithLogger(l zerolog.Logger) Option {
	return func(e *Extractor) {
		e.logger = l
	}
}

// NewExtractor creates a PDF text extractor
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		heuristics: DefaultHeuristics(),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Heuristics returns the thresholds in use
func (e *Extractor) Heuristics() Heuristics {
	return e.heuristics
}

// ExtractText recovers the header fields from document text. It never fails:
// anything that cannot be found is left absent. Line items are never produced.
func (e *Extractor) ExtractText(text string) Extracted {
	out := emptyExtracted()
	if strings.TrimSpace(text) == "" {
		return out
	}

	lines := splitLines(text)
	oneLine := flatten(text)
	f := &out.Fields

	rawTaxID, _ := FindTaxID(text)
	f.FiscalCode, _ = FindFiscalCode(text)

	amounts := e.heuristics.reconcileAmounts(text, lines, oneLine)
	f.NetAmount = optionalAmount(amounts.net)
	f.TaxAmount = optionalAmount(amounts.tax)
	f.GrossAmount = optionalAmount(amounts.gross)

	f.IssueDate = issueDate(text, oneLine)
	f.DueDate = dueDate(text)
	f.InvoiceNumber = invoiceNumber(lines, text, oneLine)
	f.PartyName = partyName(lines)

	if rawTaxID != "" {
		f.TaxID = CanonicalTaxID(rawTaxID)
	}

	e.logger.Debug().
		Int("lines", len(lines)).
		Str("invoice_number", f.InvoiceNumber).
		Str("issue_date", f.IssueDate).
		Bool("amounts", f.HasAmounts()).
		Bool("euro_mark", HasCurrencyMark(text)).
		Msg("extracted fields from text")

	return out
}
