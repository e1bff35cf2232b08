package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"
)

// MinTextLayerChars is the stripped length from which a text layer is trusted
// without trying OCR
const MinTextLayerChars = 200

// Acquirer turns PDF bytes into text, falling back to OCR for scans
type Acquirer struct {
	reader    *Reader
	ocr       *OCR
	inspector *Inspector
	logger    zerolog.Logger
}

// NewAcquirer creates an acquirer. A nil ocr disables the fallbacks.
func NewAcquirer(reader *Reader, ocr *OCR, logger zerolog.Logger) *Acquirer {
	return &Acquirer{
		reader:    reader,
		ocr:       ocr,
		inspector: NewInspector(),
		logger:    logger,
	}
}

// Acquire returns the best text for data. Every failure degrades to an empty
// string.
func (a *Acquirer) Acquire(ctx context.Context, data []byte) string {
	return a.acquire(ctx, data, false).Text
}

// AcquireDetailed returns the text together with a report of how it was obtained
func (a *Acquirer) AcquireDetailed(ctx context.Context, data []byte) Acquisition {
	return a.acquire(ctx, data, true)
}

func (a *Acquirer) acquire(ctx context.Context, data []byte, inspect bool) Acquisition {
	res := Acquisition{Source: SourceNone}
	log := a.logger.With().Int("bytes", len(data)).Logger()

	layer, pages, err := a.reader.TextLayer(data)
	if err != nil {
		log.Debug().Err(err).Msg("text layer unavailable")
	}
	layer = norm.NFC.String(layer)
	res.Pages = pages
	res.TextLayerChars = strippedLen(layer)
	if res.TextLayerChars > 0 {
		res.Text, res.Source = layer, SourceTextLayer
	}

	if inspect {
		res.ContentType = classifyContent(layer, a.reader.countImages(data))
		if info, err := a.inspector.Inspect(data); err == nil {
			res.Pages = info.Pages
			res.Encrypted = info.Encrypted
			res.PageImages = info.PageImages
		} else {
			log.Debug().Err(err).Msg("inspection failed")
		}
	}

	if res.TextLayerChars >= MinTextLayerChars || a.ocr == nil || len(data) == 0 {
		return res
	}

	dir, err := os.MkdirTemp("", "invoice-ocr-*")
	if err != nil {
		log.Warn().Err(err).Msg("cannot create OCR workspace")
		return res
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("failed to remove OCR workspace")
		}
	}()

	pdfPath := filepath.Join(dir, "document.pdf")
	if err := os.WriteFile(pdfPath, data, 0o600); err != nil {
		log.Warn().Err(err).Msg("cannot stage PDF for OCR")
		return res
	}

	// poppler often recovers text the Go parser cannot decode
	if alt := norm.NFC.String(a.ocr.Pdftotext(ctx, pdfPath)); strippedLen(alt) > strippedLen(res.Text) {
		res.PdftotextChars = strippedLen(alt)
		res.Text, res.Source = alt, SourcePdftotext
	}
	if strippedLen(res.Text) >= MinTextLayerChars {
		return res
	}

	ocrText, rotation, err := a.ocrFirstPage(ctx, pdfPath, dir)
	if err != nil {
		log.Debug().Err(err).Msg("OCR unavailable")
		return res
	}
	ocrText = norm.NFC.String(ocrText)
	res.OCRChars = strippedLen(ocrText)
	if res.OCRChars > strippedLen(res.Text) {
		res.Text, res.Source, res.OCRRotation = ocrText, SourceOCR, rotation
	}

	log.Debug().
		Str("source", res.Source).
		Int("text_layer_chars", res.TextLayerChars).
		Int("ocr_chars", res.OCRChars).
		Msg("text acquired")
	return res
}

// ocrFirstPage renders page 1, recognizes three orientations concurrently and
// keeps the longest result
func (a *Acquirer) ocrFirstPage(ctx context.Context, pdfPath, dir string) (string, int, error) {
	pngPath, err := a.ocr.RenderFirstPage(ctx, pdfPath, filepath.Join(dir, "page"))
	if err != nil {
		return "", 0, err
	}
	base, err := imaging.Open(pngPath)
	if err != nil {
		return "", 0, fmt.Errorf("cannot decode rendered page: %w", err)
	}

	variants := rotations(base)
	angles := make([]int, 0, len(variants))
	for angle := range variants {
		angles = append(angles, angle)
	}
	sort.Ints(angles)

	var mu sync.Mutex
	texts := make(map[int]string, len(variants))

	var g errgroup.Group
	g.SetLimit(len(variants))
	for _, angle := range angles {
		img := variants[angle]
		g.Go(func() error {
			path := filepath.Join(dir, fmt.Sprintf("variant_%d.png", angle))
			if err := imaging.Save(Preprocess(img), path); err != nil {
				a.logger.Debug().Err(err).Int("rotation", angle).Msg("cannot save OCR variant")
				return nil
			}
			text := a.ocr.Recognize(ctx, path)
			a.logger.Debug().Int("rotation", angle).Int("chars", strippedLen(text)).Msg("ocr.variant")

			mu.Lock()
			texts[angle] = text
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	best, bestAngle := "", 0
	for _, angle := range angles {
		if t := texts[angle]; strippedLen(t) > strippedLen(best) {
			best, bestAngle = t, angle
		}
	}
	return best, bestAngle, nil
}

func strippedLen(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}
