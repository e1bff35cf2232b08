package invoice

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Document is a file submitted for extraction
type Document struct {
	Data        []byte
	Filename    string
	ContentType string
}

// TextSource turns PDF bytes into plain text. Failures yield an empty string.
type TextSource interface {
	Acquire(ctx context.Context, data []byte) string
}

// DetectKind routes a document by file extension, then by content type
func DetectKind(filename, contentType string) Kind {
	ext := strings.ToLower(filepath.Ext(filename))
	ct := strings.ToLower(contentType)
	switch {
	case ext == ".xml" || strings.Contains(ct, "xml"):
		return KindXML
	case ext == ".pdf" || strings.Contains(ct, "pdf"):
		return KindPDF
	default:
		return KindUnknown
	}
}

// Engine dispatches documents to the XML or PDF extractor
type Engine struct {
	text      TextSource
	extractor *Extractor
	logger    zerolog.Logger
}

// NewEngine creates an engine. A nil extractor uses the default one.
func NewEngine(text TextSource, extractor *Extractor, logger zerolog.Logger) *Engine {
	if extractor == nil {
		extractor = NewExtractor(WithLogger(logger))
	}
	return &Engine{
		text:      text,
		extractor: extractor,
		logger:    logger,
	}
}

// Extract runs the matching extractor. Unknown documents yield an empty record.
func (e *Engine) Extract(ctx context.Context, doc Document) Extracted {
	kind := DetectKind(doc.Filename, doc.ContentType)
	log := e.logger.With().Str("filename", doc.Filename).Str("kind", string(kind)).Logger()

	switch kind {
	case KindXML:
		out := ExtractXML(doc.Data)
		log.Debug().Int("lines", len(out.LineItems)).Msg("parsed electronic invoice")
		return out
	case KindPDF:
		if e.text == nil {
			log.Warn().Msg("no text source configured")
			return emptyExtracted()
		}
		text := e.text.Acquire(ctx, doc.Data)
		log.Debug().Int("chars", len(text)).Msg("acquired document text")
		return e.extractor.ExtractText(text)
	default:
		log.Debug().Msg("unsupported document type")
		return emptyExtracted()
	}
}

// ExtractText runs the PDF field extractor over already acquired text
func (e *Engine) ExtractText(text string) Extracted {
	return e.extractor.ExtractText(text)
}
