package pdf

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"

	"github.com/ledongthuc/pdf"

	"github.com/a3tai/mcp-invoice-reader/internal/invoice"
)

// Validator handles invoice document validation operations
type Validator struct {
	maxFileSize int64
}

// NewValidator creates a new validator with the specified constraints
func NewValidator(maxFileSize int64) *Validator {
	return &Validator{
		maxFileSize: maxFileSize,
	}
}

// ValidateFile checks that a file is a readable PDF or XML invoice
func (v *Validator) ValidateFile(req ValidateFileRequest) (*ValidateFileResult, error) {
	result := &ValidateFileResult{
		Path:  req.Path,
		Kind:  invoice.DetectKind(req.Path, ""),
		Valid: false,
	}

	err := v.validateFile(req.Path)
	if err != nil {
		result.Message = err.Error()
		return result, nil //nolint:nilerr // Return result with validation error, not a processing error
	}

	result.Valid = true
	return result, nil
}

// validateFile performs detailed validation on a document
func (v *Validator) validateFile(filePath string) error {
	if filePath == "" {
		return fmt.Errorf("path cannot be empty")
	}

	fileInfo, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", filePath)
	}
	if err != nil {
		return fmt.Errorf("cannot access file: %w", err)
	}

	if err := v.ValidateFileInfo(filePath, fileInfo); err != nil {
		return err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("cannot read file: %w", err)
	}
	return v.ValidateContent(invoice.DetectKind(filePath, ""), data)
}

// ValidateContent checks that data can be parsed as the given kind
func (v *Validator) ValidateContent(kind invoice.Kind, data []byte) (err error) {
	switch kind {
	case invoice.KindPDF:
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("invalid PDF file: %v", rec)
			}
		}()
		if _, err := pdf.NewReader(bytes.NewReader(data), int64(len(data))); err != nil {
			return fmt.Errorf("invalid PDF file: %w", err)
		}
		return nil
	case invoice.KindXML:
		return validateXML(data)
	default:
		return fmt.Errorf("unsupported document type")
	}
}

// validateXML requires a well-formed root element
func validateXML(data []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = invoice.CharsetReader
	sawRoot := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("invalid XML file: %w", err)
		}
		if _, ok := tok.(xml.StartElement); ok {
			sawRoot = true
		}
	}
	if !sawRoot {
		return fmt.Errorf("invalid XML file: no root element")
	}
	return nil
}

// ValidateFileInfo performs basic validation on file info without reading the file
func (v *Validator) ValidateFileInfo(filePath string, fileInfo os.FileInfo) error {
	if fileInfo.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", filePath)
	}

	if invoice.DetectKind(filePath, "") == invoice.KindUnknown {
		return fmt.Errorf("file is not a PDF or XML invoice: %s", filePath)
	}

	if fileInfo.Size() == 0 {
		return fmt.Errorf("file is empty: %s", filePath)
	}

	if fileInfo.Size() > v.maxFileSize {
		return fmt.Errorf("file too large: %d bytes (max: %d bytes)",
			fileInfo.Size(), v.maxFileSize)
	}

	return nil
}
