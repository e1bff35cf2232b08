package pdf

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/a3tai/mcp-invoice-reader/internal/descriptions"
	"github.com/a3tai/mcp-invoice-reader/internal/inbox"
	"github.com/a3tai/mcp-invoice-reader/internal/invoice"
)

// Service handles invoice file operations by orchestrating the reader,
// validator, search and extraction components
type Service struct {
	maxFileSize int64
	reader      *Reader
	validator   *Validator
	search      *Search
	acquirer    *Acquirer
	ocr         *OCR
	engine      *invoice.Engine
	inbox       *inbox.Inbox
	logger      zerolog.Logger
}

// NewService creates a new service with all components. A nil ocr disables
// the pdftotext and OCR fallbacks.
func NewService(maxFileSize int64, directory string, ocr *OCR, logger zerolog.Logger) (*Service, error) {
	box, err := inbox.New(directory)
	if err != nil {
		return nil, fmt.Errorf("failed to create inbox: %w", err)
	}

	reader := NewReader(maxFileSize)
	acquirer := NewAcquirer(reader, ocr, logger)

	return &Service{
		maxFileSize: maxFileSize,
		reader:      reader,
		validator:   NewValidator(maxFileSize),
		search:      NewSearch(maxFileSize),
		acquirer:    acquirer,
		ocr:         ocr,
		engine:      invoice.NewEngine(acquirer, nil, logger),
		inbox:       box,
		logger:      logger,
	}, nil
}

// Engine returns the extraction engine shared with the HTTP surface
func (s *Service) Engine() *invoice.Engine {
	return s.engine
}

// Acquirer returns the PDF text acquirer
func (s *Service) Acquirer() *Acquirer {
	return s.acquirer
}

// Validator returns the document validator
func (s *Service) Validator() *Validator {
	return s.validator
}

// ExtractFile reads an invoice from the inbox and extracts its fields
func (s *Service) ExtractFile(ctx context.Context, req ExtractFileRequest) (*ExtractFileResult, error) {
	path, data, err := s.ReadFile(req.Path)
	if err != nil {
		return nil, err
	}

	result := &ExtractFileResult{
		Path: path,
		Kind: invoice.DetectKind(path, ""),
		Size: int64(len(data)),
	}

	var out invoice.Extracted
	switch result.Kind {
	case invoice.KindPDF:
		acq := s.acquirer.AcquireDetailed(ctx, data)
		out = s.engine.ExtractText(acq.Text)
		if !req.IncludeText {
			acq.Text = ""
		}
		result.Acquisition = &acq
	case invoice.KindXML:
		out = s.engine.Extract(ctx, invoice.Document{Data: data, Filename: path})
	default:
		return nil, fmt.Errorf("file is not a PDF or XML invoice: %s", path)
	}

	result.Fields = invoice.Backfill(out.Fields)
	result.LineItems = out.LineItems

	s.logger.Info().
		Str("path", path).
		Str("kind", string(result.Kind)).
		Str("invoice_number", result.Fields.InvoiceNumber).
		Msg("invoice.extract.ok")

	return result, nil
}

// ReadFile reads a document from the inbox, returning its resolved path
func (s *Service) ReadFile(path string) (string, []byte, error) {
	resolved, err := s.inbox.Resolve(path)
	if err != nil {
		return "", nil, fmt.Errorf("security validation failed: %w", err)
	}
	data, err := s.reader.ReadFile(resolved)
	if err != nil {
		return "", nil, err
	}
	return resolved, data, nil
}

// ValidateFile performs validation on an invoice document
func (s *Service) ValidateFile(req ValidateFileRequest) (*ValidateFileResult, error) {
	path, err := s.inbox.Resolve(req.Path)
	if err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}
	req.Path = path
	return s.validator.ValidateFile(req)
}

// SearchDirectory searches for invoice documents in a directory of the inbox
func (s *Service) SearchDirectory(req SearchDirectoryRequest) (*SearchDirectoryResult, error) {
	dir, err := s.inbox.ResolveDir(req.Directory)
	if err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}
	req.Directory = dir
	return s.search.SearchDirectory(req)
}

// GetMaxFileSize returns the maximum file size limit
func (s *Service) GetMaxFileSize() int64 {
	return s.maxFileSize
}

// ServerInfo returns server information and usage guidance
func (s *Service) ServerInfo(_ ServerInfoRequest, serverName, version string) (*ServerInfoResult, error) {
	// Limit to first 100 files for performance
	directoryContents := []FileInfo{}

	resultChan := make(chan []FileInfo, 1)
	errorChan := make(chan error, 1)

	// Run directory search in a goroutine with timeout
	go func() {
		files, err := s.search.FindDocumentsLimited(s.inbox.Dir(), 100)
		if err != nil {
			errorChan <- err
			return
		}
		resultChan <- files
	}()

	select {
	case files := <-resultChan:
		directoryContents = files
	case <-errorChan:
		// Don't fail completely if directory scan fails, just return empty contents
	case <-time.After(5 * time.Second):
	}

	availableTools := []ToolInfo{
		{
			Name:        "invoice_extract_file",
			Description: descriptions.GetToolDescription("invoice_extract_file"),
			Usage: "Use this tool on a PDF (text or scanned) or a FatturaPA XML file. Amounts are " +
				"reconciled so that imponibile + iva = totale whenever possible.",
			Parameters: "path (required): path to the invoice, absolute or relative to the inbox; " +
				"include_text (optional): also return the acquired text",
		},
		{
			Name:        "invoice_search_directory",
			Description: descriptions.GetToolDescription("invoice_search_directory"),
			Usage:       "Use this tool to find invoice files. Supports fuzzy search by filename.",
			Parameters: "directory (optional): directory inside the inbox (uses the inbox if empty), " +
				"query (optional): search query for fuzzy matching",
		},
		{
			Name:        "invoice_validate_file",
			Description: descriptions.GetToolDescription("invoice_validate_file"),
			Usage:       "Use this tool before extraction to rule out damaged or unsupported files.",
			Parameters:  "path (required): path to the invoice",
		},
		{
			Name:        "invoice_list",
			Description: descriptions.GetToolDescription("invoice_list"),
			Usage:       "Requires the database. Supports text search, date range and ordering.",
			Parameters: "q, date_from, date_to (YYYY-MM-DD), order_by (created_at|issue_date|totale|" +
				"invoice_number), order_dir (asc|desc), limit, offset",
		},
		{
			Name:        "invoice_import_file",
			Description: descriptions.GetToolDescription("invoice_import_file"),
			Usage:       "Requires the database. The original file is uploaded when object storage is configured.",
			Parameters:  "path (required): path to the invoice",
		},
		{
			Name:        "invoice_get",
			Description: descriptions.GetToolDescription("invoice_get"),
			Usage:       "Requires the database.",
			Parameters:  "id (required): invoice UUID",
		},
	}

	usageGuidance := `Invoice MCP Server Usage Guide:

1. Use 'invoice_search_directory' to find invoices in the inbox
2. Use 'invoice_validate_file' to check a file before processing
3. Use 'invoice_extract_file' to read the fields:
   - intestatario, partita_iva, codice_fiscale, invoice_number
   - data_emissione, data_scadenza (ISO dates)
   - imponibile, iva, totale, valuta
   - righe (XML only)
4. For PDFs the 'acquisition.source' field tells where the text came from:
   text_layer, pdftotext or ocr. Scanned invoices need pdftoppm and tesseract.

IMPORTANT NOTES:
- Paths are confined to the inbox directory
- The server can handle files up to ` + fmt.Sprintf("%d", s.GetMaxFileSize()/(1024*1024)) + `MB
- Fields that cannot be found are omitted from the result`

	status := OCRStatus{}
	if s.ocr != nil {
		status = s.ocr.Status()
	}

	return &ServerInfoResult{
		ServerName:        serverName,
		Version:           version,
		DefaultDirectory:  s.inbox.Dir(),
		MaxFileSize:       s.GetMaxFileSize(),
		AvailableTools:    availableTools,
		DirectoryContents: directoryContents,
		UsageGuidance:     usageGuidance,
		SupportedKinds:    []string{string(invoice.KindPDF), string(invoice.KindXML)},
		OCR:               status,
	}, nil
}

// ValidateConfiguration validates the service configuration
func (s *Service) ValidateConfiguration() error {
	if s.maxFileSize <= 0 {
		return fmt.Errorf("maxFileSize must be greater than 0")
	}

	if s.maxFileSize > 1024*1024*1024 { // 1GB limit
		return fmt.Errorf("maxFileSize cannot exceed 1GB")
	}

	return nil
}
