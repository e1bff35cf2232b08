package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/a3tai/mcp-invoice-reader/internal/config"
	"github.com/a3tai/mcp-invoice-reader/internal/ingest"
	"github.com/a3tai/mcp-invoice-reader/internal/invoice"
	"github.com/a3tai/mcp-invoice-reader/internal/pdf"
	"github.com/a3tai/mcp-invoice-reader/internal/repository"
)

// listLimit caps the rows returned by invoice_list
const listLimit = 200

// Archive reads invoices stored in the database
type Archive interface {
	GetInvoice(ctx context.Context, id uuid.UUID) (*repository.Invoice, error)
	ListLines(ctx context.Context, id uuid.UUID) ([]repository.Line, error)
	ListInvoices(ctx context.Context, filter repository.ListFilter) ([]repository.Invoice, int, error)
}

// Importer extracts an uploaded document and persists the result
type Importer interface {
	Ingest(ctx context.Context, up ingest.Upload) (*ingest.Result, error)
}

// Server represents the MCP server instance
type Server struct {
	config     *config.Config
	pdfService *pdf.Service
	archive    Archive
	importer   Importer
	logger     zerolog.Logger
	mcpServer  *server.MCPServer
}

// Option configures optional collaborators of the server
type Option func(*Server)

// WithArchive enables the tools reading stored invoices
func WithArchive(a Archive) Option {
	return func(s *Server) { s.archive = a }
}

// WithImporter enables invoice_import_file
func WithImporter(i Importer) Option {
	return func(s *Server) { s.importer = i }
}

// WithLogger sets the logger used for tool failures
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, pdfService *pdf.Service, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if pdfService == nil {
		return nil, fmt.Errorf("pdfService cannot be nil")
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		config:     cfg,
		pdfService: pdfService,
		logger:     zerolog.Nop(),
		mcpServer:  mcpServer,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools. Archive tools are only
// offered when a database is configured.
func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"invoice_extract_file",
		mcp.WithDescription("Extract header fields and line items from an Italian invoice (PDF or FatturaPA XML)"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the invoice, absolute or relative to the inbox"),
		),
		mcp.WithBoolean("include_text",
			mcp.Description("Also return the text acquired from a PDF"),
		),
	), s.handleExtractFile)

	s.mcpServer.AddTool(mcp.NewTool(
		"invoice_search_directory",
		mcp.WithDescription("Search for PDF and XML invoices in the inbox with optional fuzzy search"),
		mcp.WithString("directory",
			mcp.Description("Directory inside the inbox (uses the inbox if empty)"),
		),
		mcp.WithString("query",
			mcp.Description("Optional search query for fuzzy matching by filename"),
		),
	), s.handleSearchDirectory)

	s.mcpServer.AddTool(mcp.NewTool(
		"invoice_validate_file",
		mcp.WithDescription("Validate that a file is a readable PDF or XML invoice"),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the invoice"),
		),
	), s.handleValidateFile)

	s.mcpServer.AddTool(mcp.NewTool(
		"invoice_server_info",
		mcp.WithDescription("Get server information, available tools, inbox contents and usage guidance"),
	), s.handleServerInfo)

	if s.importer != nil {
		s.mcpServer.AddTool(mcp.NewTool(
			"invoice_import_file",
			mcp.WithDescription("Extract an invoice from the inbox and store it in the archive"),
			mcp.WithString("path",
				mcp.Required(),
				mcp.Description("Path to the invoice"),
			),
		), s.handleImportFile)
	}

	if s.archive == nil {
		return
	}

	s.mcpServer.AddTool(mcp.NewTool(
		"invoice_list",
		mcp.WithDescription("List stored invoices, newest first unless ordered otherwise"),
		mcp.WithString("q", mcp.Description("Text matched against party, VAT number, fiscal code, number and filename")),
		mcp.WithString("date_from", mcp.Description("Earliest issue date (YYYY-MM-DD)")),
		mcp.WithString("date_to", mcp.Description("Latest issue date (YYYY-MM-DD)")),
		mcp.WithString("order_by",
			mcp.Description("Sort column"),
			mcp.Enum("created_at", "issue_date", "totale", "invoice_number"),
		),
		mcp.WithString("order_dir", mcp.Description("Sort direction"), mcp.Enum("asc", "desc")),
		mcp.WithNumber("limit", mcp.Description("Maximum rows, 1 to 200 (default 50)")),
		mcp.WithNumber("offset", mcp.Description("Rows to skip")),
	), s.handleList)

	s.mcpServer.AddTool(mcp.NewTool(
		"invoice_get",
		mcp.WithDescription("Get a stored invoice with its line items"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Invoice UUID"),
		),
	), s.handleGet)
}

// Handler functions
func (s *Server) handleExtractFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	includeText, _ := request.GetArguments()["include_text"].(bool)

	result, err := s.pdfService.ExtractFile(ctx, pdf.ExtractFileRequest{Path: path, IncludeText: includeText})
	if err != nil {
		return s.toolError("invoice_extract_file", err), nil
	}

	return mcp.NewToolResultText(s.formatExtractFileResult(result)), nil
}

func (s *Server) handleSearchDirectory(_ context.Context, request mcp.CallToolRequest) (
	*mcp.CallToolResult, error,
) {
	args := request.GetArguments()

	directory, _ := args["directory"].(string)
	query, _ := args["query"].(string)

	result, err := s.pdfService.SearchDirectory(pdf.SearchDirectoryRequest{
		Directory: directory,
		Query:     query,
	})
	if err != nil {
		return s.toolError("invoice_search_directory", err), nil
	}

	var responseText string
	if result.TotalCount == 0 {
		responseText = fmt.Sprintf("No invoice files found in directory: %s", result.Directory)
		if result.SearchQuery != "" {
			responseText += fmt.Sprintf(" (searched for: %s)", result.SearchQuery)
		}
	} else {
		responseText = s.formatSearchDirectoryResult(result)
	}

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleValidateFile(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pdfService.ValidateFile(pdf.ValidateFileRequest{Path: path})
	if err != nil {
		return s.toolError("invoice_validate_file", err), nil
	}

	var responseText string
	if result.Valid {
		responseText = fmt.Sprintf("Valid %s invoice: %s", strings.ToUpper(string(result.Kind)), result.Path)
	} else {
		responseText = fmt.Sprintf("Invalid invoice file: %s\nReason: %s", result.Path, result.Message)
	}

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleServerInfo(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.pdfService.ServerInfo(pdf.ServerInfoRequest{}, s.config.ServerName, s.config.Version)
	if err != nil {
		return s.toolError("invoice_server_info", err), nil
	}

	return mcp.NewToolResultText(s.formatServerInfoResult(result)), nil
}

func (s *Server) handleImportFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resolved, data, err := s.pdfService.ReadFile(path)
	if err != nil {
		return s.toolError("invoice_import_file", err), nil
	}

	result, err := s.importer.Ingest(ctx, ingest.Upload{
		Filename:    filepath.Base(resolved),
		ContentType: contentType(resolved),
		Data:        data,
	})
	if err != nil {
		return s.toolError("invoice_import_file", err), nil
	}

	return mcp.NewToolResultText(s.formatImportResult(result)), nil
}

func (s *Server) handleList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	filter := repository.ListFilter{Limit: repository.DefaultListLimit}
	filter.Q, _ = args["q"].(string)
	filter.DateFrom, _ = args["date_from"].(string)
	filter.DateTo, _ = args["date_to"].(string)
	filter.OrderBy, _ = args["order_by"].(string)
	filter.OrderDir, _ = args["order_dir"].(string)
	if limit, ok := args["limit"].(float64); ok {
		if limit < 1 || limit > listLimit {
			return mcp.NewToolResultError(fmt.Sprintf("limit must be between 1 and %d", listLimit)), nil
		}
		filter.Limit = int(limit)
	}
	if offset, ok := args["offset"].(float64); ok {
		if offset < 0 {
			return mcp.NewToolResultError("offset cannot be negative"), nil
		}
		filter.Offset = int(offset)
	}
	for _, d := range []*string{&filter.DateFrom, &filter.DateTo} {
		if *d == "" {
			continue
		}
		iso, ok := invoice.ParseDate(*d)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("invalid date: %s (expected YYYY-MM-DD)", *d)), nil
		}
		*d = iso
	}

	items, total, err := s.archive.ListInvoices(ctx, filter)
	if err != nil {
		return s.toolError("invoice_list", err), nil
	}

	return mcp.NewToolResultText(s.formatListResult(items, total, filter)), nil
}

func (s *Server) handleGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid invoice id: %s", raw)), nil
	}

	inv, err := s.archive.GetInvoice(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return mcp.NewToolResultError("Invoice not found"), nil
	}
	if err != nil {
		return s.toolError("invoice_get", err), nil
	}
	lines, err := s.archive.ListLines(ctx, id)
	if err != nil {
		return s.toolError("invoice_get", err), nil
	}

	return mcp.NewToolResultText(s.formatInvoice(inv, lines)), nil
}

// toolError logs a failed tool call and turns it into a tool result
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	s.logger.Warn().Err(err).Str("tool", tool).Msg("mcp.tool.failed")
	return mcp.NewToolResultError(err.Error())
}

// contentType guesses the upload type from the file kind
func contentType(path string) string {
	switch invoice.DetectKind(path, "") {
	case invoice.KindPDF:
		return "application/pdf"
	case invoice.KindXML:
		return "application/xml"
	default:
		return "application/octet-stream"
	}
}

// Formatting methods

func amount(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.StringFixed(2)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func (s *Server) formatFields(f invoice.Fields) string {
	text := fmt.Sprintf("Intestatario: %s\n", orDash(f.PartyName))
	text += fmt.Sprintf("Partita IVA: %s\n", orDash(f.TaxID))
	text += fmt.Sprintf("Codice fiscale: %s\n", orDash(f.FiscalCode))
	text += fmt.Sprintf("Numero: %s\n", orDash(f.InvoiceNumber))
	text += fmt.Sprintf("Data emissione: %s\n", orDash(f.IssueDate))
	text += fmt.Sprintf("Data scadenza: %s\n", orDash(f.DueDate))
	text += fmt.Sprintf("Imponibile: %s %s\n", amount(f.NetAmount), f.Currency)
	text += fmt.Sprintf("IVA: %s %s\n", amount(f.TaxAmount), f.Currency)
	text += fmt.Sprintf("Totale: %s %s\n", amount(f.GrossAmount), f.Currency)
	return text
}

func (s *Server) formatLineItems(items []invoice.LineItem) string {
	if len(items) == 0 {
		return ""
	}
	text := fmt.Sprintf("\nRighe (%d):\n", len(items))
	for i, item := range items {
		text += fmt.Sprintf("%d. %s\n", i+1, orDash(item.Description))
		text += fmt.Sprintf("   Qta: %s  Prezzo: %s  Aliquota: %s%%  Totale: %s\n",
			item.Quantity.String(), item.UnitPrice.StringFixed(2),
			item.TaxRatePercent.String(), item.LineTotal.StringFixed(2))
	}
	return text
}

// formatJSON renders v as indented JSON for clients that parse tool output
func formatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

func (s *Server) formatExtractFileResult(result *pdf.ExtractFileResult) string {
	text := fmt.Sprintf("Invoice: %s\n", result.Path)
	text += fmt.Sprintf("Kind: %s\n", result.Kind)
	text += fmt.Sprintf("Size: %d bytes\n", result.Size)

	if acq := result.Acquisition; acq != nil {
		text += fmt.Sprintf("Pages: %d\n", acq.Pages)
		text += fmt.Sprintf("Text source: %s\n", acq.Source)
		text += fmt.Sprintf("Content Type: %s\n", acq.ContentType)
		switch acq.Source {
		case pdf.SourceOCR:
			text += "\nINFO: The text was recognised with OCR. Check the amounts against the document.\n"
		case pdf.SourceNone:
			text += "\nWARNING: No text could be read from this PDF. Install pdftoppm and tesseract to read scanned invoices.\n"
		}
	}

	text += "\n" + s.formatFields(result.Fields)
	text += s.formatLineItems(result.LineItems)

	text += "\nJSON:\n" + formatJSON(invoice.Extracted{Fields: result.Fields, LineItems: result.LineItems})

	if result.Acquisition != nil && result.Acquisition.Text != "" {
		text += "\n\nText:\n" + result.Acquisition.Text
	}
	return text
}

func (s *Server) formatSearchDirectoryResult(result *pdf.SearchDirectoryResult) string {
	text := fmt.Sprintf("Found %d invoice file(s) in directory: %s\n", result.TotalCount, result.Directory)
	if result.SearchQuery != "" {
		text += fmt.Sprintf("Search query: %s\n", result.SearchQuery)
	}
	text += "\nFiles:\n"

	for i, file := range result.Files {
		text += fmt.Sprintf("%d. %s (%s)\n", i+1, file.Name, file.Kind)
		text += fmt.Sprintf("   Path: %s\n", file.Path)
		text += fmt.Sprintf("   Size: %d bytes\n", file.Size)
		text += fmt.Sprintf("   Modified: %s\n", file.ModifiedTime)
		if i < len(result.Files)-1 {
			text += "\n"
		}
	}

	return text
}

func (s *Server) formatImportResult(result *ingest.Result) string {
	text := fmt.Sprintf("Imported %s\n", result.Filename)
	if result.ID != "" {
		text += fmt.Sprintf("ID: %s\n", result.ID)
	}
	if result.S3 != nil {
		text += fmt.Sprintf("Stored at: s3://%s/%s\n", result.S3.Bucket, result.S3.Key)
	}
	text += "\n" + s.formatFields(result.Fields)
	text += s.formatLineItems(result.LineItems)
	return text
}

func (s *Server) formatListResult(items []repository.Invoice, total int, filter repository.ListFilter) string {
	if len(items) == 0 {
		return fmt.Sprintf("No invoices found (total: %d)", total)
	}
	text := fmt.Sprintf("Invoices %d-%d of %d\n\n", filter.Offset+1, filter.Offset+len(items), total)
	for i, inv := range items {
		f := inv.Fields
		text += fmt.Sprintf("%d. %s  %s  %s  %s %s\n", filter.Offset+i+1,
			orDash(f.InvoiceNumber), orDash(f.IssueDate), orDash(f.PartyName), amount(f.GrossAmount), f.Currency)
		text += fmt.Sprintf("   ID: %s  File: %s\n", inv.ID, inv.Filename)
	}
	return text
}

func (s *Server) formatInvoice(inv *repository.Invoice, lines []repository.Line) string {
	text := fmt.Sprintf("Invoice %s\n", inv.ID)
	text += fmt.Sprintf("File: %s\n", inv.Filename)
	if inv.S3Key != "" {
		text += fmt.Sprintf("Stored at: s3://%s/%s\n", inv.S3Bucket, inv.S3Key)
	}
	text += fmt.Sprintf("Created: %s\n\n", inv.CreatedAt.Format("2006-01-02 15:04:05"))
	text += s.formatFields(inv.Fields)

	items := make([]invoice.LineItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, l.LineItem)
	}
	text += s.formatLineItems(items)
	return text
}

func (s *Server) formatServerInfoResult(result *pdf.ServerInfoResult) string {
	text := fmt.Sprintf("%s v%s - Server Information\n", result.ServerName, result.Version)
	text += fmt.Sprintf("Inbox: %s\n", result.DefaultDirectory)
	text += fmt.Sprintf("Max File Size: %d MB\n", result.MaxFileSize/(1024*1024))
	text += fmt.Sprintf("Supported kinds: %s\n", strings.Join(result.SupportedKinds, ", "))
	text += fmt.Sprintf("OCR: pdftotext=%t pdftoppm=%t tesseract=%t languages=%s\n",
		result.OCR.Pdftotext, result.OCR.Pdftoppm, result.OCR.Tesseract, result.OCR.Languages)
	text += fmt.Sprintf("Archive: %t\n\n", s.archive != nil)

	if len(result.DirectoryContents) > 0 {
		text += fmt.Sprintf("Inbox Contents (%d invoice files found):\n", len(result.DirectoryContents))
		for i, file := range result.DirectoryContents {
			if i >= 10 {
				text += fmt.Sprintf("   ... and %d more files\n", len(result.DirectoryContents)-10)
				break
			}
			text += fmt.Sprintf("   %d. %s (%d bytes)\n", i+1, file.Name, file.Size)
		}
		text += "\n"
	} else {
		text += "Inbox Contents: No invoice files found\n\n"
	}

	text += "Available Tools:\n"
	for _, tool := range result.AvailableTools {
		if s.archive == nil && (tool.Name == "invoice_list" || tool.Name == "invoice_get") {
			continue
		}
		if s.importer == nil && tool.Name == "invoice_import_file" {
			continue
		}
		text += fmt.Sprintf("\n- %s\n", tool.Name)
		text += fmt.Sprintf("  Description: %s\n", tool.Description)
		text += fmt.Sprintf("  Usage: %s\n", tool.Usage)
		text += fmt.Sprintf("  Parameters: %s\n", tool.Parameters)
	}

	text += "\n" + result.UsageGuidance

	return text
}

// Run serves MCP over stdin and stdout until the input closes or ctx ends
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve runs the stdio transport over the given streams
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Debug().
		Str("inbox", s.config.InboxDirectory).
		Bool("archive", s.archive != nil).
		Msg("mcp.stdio.start")

	stdio := server.NewStdioServer(s.mcpServer)
	if err := stdio.Listen(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}
