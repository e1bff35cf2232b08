package pdf

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// wordGap is the horizontal gap, as a fraction of the font size, above which
// two glyphs on the same row are separated by a space
const wordGap = 0.25

// Reader handles reading of invoice files and their embedded text layer
type Reader struct {
	maxFileSize int64
	maxTextSize int
}

// NewReader creates a new reader with the specified constraints
func NewReader(maxFileSize int64) *Reader {
	return &Reader{
		maxFileSize: maxFileSize,
		maxTextSize: 10 * 1024 * 1024, // 10MB text limit
	}
}

// ReadFile loads a document from disk after checking its size
func (r *Reader) ReadFile(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}

	fileInfo, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("file does not exist: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot access file: %w", err)
	}
	if fileInfo.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}
	if fileInfo.Size() > r.maxFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max: %d bytes)",
			fileInfo.Size(), r.maxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// TextLayer extracts the embedded text of a PDF, one line per text row.
// The parser panics on some malformed files; that is reported as an error.
func (r *Reader) TextLayer(data []byte) (text string, pages int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, pages, err = "", 0, fmt.Errorf("pdf parser panic: %v", rec)
		}
	}()

	pdfReader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("failed to open PDF: %w", err)
	}

	var builder strings.Builder
	pages = pdfReader.NumPage()
	for pageNum := 1; pageNum <= pages; pageNum++ {
		page := pdfReader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		content := r.pageText(page)
		if builder.Len()+len(content) > r.maxTextSize {
			builder.WriteString(clipText(content, r.maxTextSize-builder.Len()))
			break
		}
		builder.WriteString(content)
		builder.WriteString("\n")
	}

	return builder.String(), pages, nil
}

// clipText cuts s to at most n bytes without splitting a rune
func clipText(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// pageText rebuilds the rows of a page, falling back to the plain text stream
func (r *Reader) pageText(page pdf.Page) string {
	rows, err := page.GetTextByRow()
	if err == nil && len(rows) > 0 {
		var lines []string
		for _, row := range rows {
			if line := strings.TrimSpace(joinRow(row.Content)); line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			return strings.Join(lines, "\n")
		}
	}

	content, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return content
}

// joinRow concatenates the glyphs of a row, inserting a space where the
// horizontal gap between two glyphs is wide enough to separate words
func joinRow(texts pdf.TextHorizontal) string {
	var b strings.Builder
	var prevEnd float64
	for i, t := range texts {
		if i > 0 && t.X-prevEnd > wordGap*t.FontSize && !strings.HasPrefix(t.S, " ") {
			b.WriteString(" ")
		}
		b.WriteString(t.S)
		prevEnd = t.X + t.W
	}
	return b.String()
}

// countImages scans page resources for image XObjects
func (r *Reader) countImages(data []byte) (count int) {
	defer func() {
		// Image detection is best effort
		if recover() != nil {
			count = 0
		}
	}()

	pdfReader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}
	for pageNum := 1; pageNum <= pdfReader.NumPage(); pageNum++ {
		count += countImagesOnPage(pdfReader.Page(pageNum))
	}
	return count
}

func countImagesOnPage(page pdf.Page) int {
	if page.V.IsNull() {
		return 0
	}
	xObjects := page.V.Key("Resources").Key("XObject")
	if xObjects.IsNull() || xObjects.Kind() != pdf.Dict {
		return 0
	}

	imageCount := 0
	for _, key := range xObjects.Keys() {
		if xObjects.Key(key).Key("Subtype").Name() == "Image" {
			imageCount++
		}
	}
	return imageCount
}

// classifyContent determines the type of content in the PDF
func classifyContent(text string, images int) string {
	// Minimum text length to consider content meaningful
	const minMeaningfulTextLength = 50

	clean := strings.TrimSpace(text)
	switch {
	case len(clean) < minMeaningfulTextLength && images > 0:
		return ContentScannedImages
	case len(clean) < minMeaningfulTextLength:
		return ContentNoContent
	case images > 0:
		return ContentMixed
	default:
		return ContentText
	}
}
