package pdf

import "github.com/a3tai/mcp-invoice-reader/internal/invoice"

// Text acquisition sources
const (
	SourceTextLayer = "text_layer"
	SourcePdftotext = "pdftotext"
	SourceOCR       = "ocr"
	SourceNone      = "none"
)

// Content classifications reported for a PDF
const (
	ContentText          = "text"
	ContentScannedImages = "scanned_images"
	ContentMixed         = "mixed"
	ContentNoContent     = "no_content"
)

// FileInfo represents information about an invoice document on disk
type FileInfo struct {
	Path         string       `json:"path"`
	Name         string       `json:"name"`
	Kind         invoice.Kind `json:"kind"`
	Size         int64        `json:"size"`
	ModifiedTime string       `json:"modified_time"`
}

// Acquisition describes how the text of a PDF was obtained
type Acquisition struct {
	Text           string `json:"text,omitempty"`
	Source         string `json:"source"`
	ContentType    string `json:"content_type"`
	TextLayerChars int    `json:"text_layer_chars"`
	PdftotextChars int    `json:"pdftotext_chars"`
	OCRChars       int    `json:"ocr_chars"`
	OCRRotation    int    `json:"ocr_rotation,omitempty"`
	Pages          int    `json:"pages"`
	Encrypted      bool   `json:"encrypted"`
	PageImages     int    `json:"page_images"`
}

// Request Types

// ExtractFileRequest represents a request to extract invoice fields from a file
type ExtractFileRequest struct {
	Path string `json:"path"`
	// IncludeText adds the acquired text to the result
	IncludeText bool `json:"include_text"`
}

// ValidateFileRequest represents a request to validate an invoice document
type ValidateFileRequest struct {
	Path string `json:"path"`
}

// SearchDirectoryRequest represents a request to search for invoice documents
type SearchDirectoryRequest struct {
	Directory string `json:"directory"`
	Query     string `json:"query"`
}

// ServerInfoRequest represents a request to get server information
type ServerInfoRequest struct{}

// Response Types

// ExtractFileResult represents the result of a field extraction
type ExtractFileResult struct {
	Path        string             `json:"path"`
	Kind        invoice.Kind       `json:"kind"`
	Size        int64              `json:"size"`
	Fields      invoice.Fields     `json:"fields"`
	LineItems   []invoice.LineItem `json:"righe"`
	Acquisition *Acquisition       `json:"acquisition,omitempty"`
}

// ValidateFileResult represents the result of a validation
type ValidateFileResult struct {
	Valid   bool         `json:"valid"`
	Path    string       `json:"path"`
	Kind    invoice.Kind `json:"kind"`
	Message string       `json:"message,omitempty"`
}

// SearchDirectoryResult represents the result of a directory search
type SearchDirectoryResult struct {
	Files       []FileInfo `json:"files"`
	TotalCount  int        `json:"total_count"`
	Directory   string     `json:"directory"`
	SearchQuery string     `json:"search_query,omitempty"`
}

// ToolInfo represents information about an available tool
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Usage       string `json:"usage"`
	Parameters  string `json:"parameters"`
}

// OCRStatus reports which external OCR tools were found
type OCRStatus struct {
	Pdftotext bool   `json:"pdftotext"`
	Pdftoppm  bool   `json:"pdftoppm"`
	Tesseract bool   `json:"tesseract"`
	Languages string `json:"languages"`
}

// ServerInfoResult represents server information and usage guidance
type ServerInfoResult struct {
	ServerName        string     `json:"server_name"`
	Version           string     `json:"version"`
	DefaultDirectory  string     `json:"default_directory"`
	MaxFileSize       int64      `json:"max_file_size"`
	AvailableTools    []ToolInfo `json:"available_tools"`
	DirectoryContents []FileInfo `json:"directory_contents"`
	UsageGuidance     string     `json:"usage_guidance"`
	SupportedKinds    []string   `json:"supported_kinds"`
	OCR               OCRStatus  `json:"ocr"`
}
