package pdf

import (
	"context"
	"os"
	"path/filepath"

	"golang.org/x/text/unicode/norm"
)

const sampleChars = 600

// TextComparison contrasts the embedded text layer with first page OCR
type TextComparison struct {
	TextLayerChars  int    `json:"len_text_layer"`
	OCRChars        int    `json:"len_ocr"`
	TextLayerSample string `json:"sample_text_layer"`
	OCRSample       string `json:"sample_ocr"`
	OCRRotation     int    `json:"ocr_rotation"`
}

// Compare runs both the text layer reader and OCR regardless of how much text
// the layer holds. Either side is empty when it fails.
func (a *Acquirer) Compare(ctx context.Context, data []byte) TextComparison {
	var cmp TextComparison

	layer, _, err := a.reader.TextLayer(data)
	if err != nil {
		a.logger.Debug().Err(err).Msg("text layer unavailable")
	}
	layer = norm.NFC.String(layer)
	cmp.TextLayerChars = len([]rune(layer))
	cmp.TextLayerSample = sample(layer)

	if a.ocr == nil || len(data) == 0 {
		return cmp
	}

	dir, err := os.MkdirTemp("", "invoice-compare-*")
	if err != nil {
		return cmp
	}
	defer func() { _ = os.RemoveAll(dir) }()

	pdfPath := filepath.Join(dir, "document.pdf")
	if err := os.WriteFile(pdfPath, data, 0o600); err != nil {
		return cmp
	}

	text, rotation, err := a.ocrFirstPage(ctx, pdfPath, dir)
	if err != nil {
		a.logger.Debug().Err(err).Msg("OCR unavailable")
		return cmp
	}
	text = norm.NFC.String(text)
	cmp.OCRChars = len([]rune(text))
	cmp.OCRSample = sample(text)
	cmp.OCRRotation = rotation
	return cmp
}

func sample(s string) string {
	r := []rune(s)
	if len(r) > sampleChars {
		r = r[:sampleChars]
	}
	return string(r)
}
