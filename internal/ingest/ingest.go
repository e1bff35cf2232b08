// Package ingest runs the upload flow shared by the HTTP and MCP surfaces:
// extract, backfill, store the original document, persist the record.
package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/a3tai/mcp-invoice-reader/internal/invoice"
	"github.com/a3tai/mcp-invoice-reader/internal/repository"
	"github.com/a3tai/mcp-invoice-reader/internal/storage"
)

// Extractor turns a document into fields and lines
type Extractor interface {
	Extract(ctx context.Context, doc invoice.Document) invoice.Extracted
}

// Uploader stores the original document
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (storage.Ref, error)
}

// Store persists the extracted record
type Store interface {
	InsertInvoice(ctx context.Context, inv repository.Invoice, items []invoice.LineItem) (uuid.UUID, error)
}

// Upload is a received document
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Result is the outcome of an ingest. ID is empty when no store is configured
// and S3 is nil when no uploader is configured.
type Result struct {
	ID        string             `json:"id,omitempty"`
	Filename  string             `json:"filename"`
	S3        *storage.Ref       `json:"s3,omitempty"`
	Fields    invoice.Fields     `json:"fields"`
	LineItems []invoice.LineItem `json:"righe"`
}

// Option configures a Service
type Option func(*Service)

// WithUploader stores every ingested document
func WithUploader(u Uploader) Option {
	return func(s *Service) { s.uploader = u }
}

// WithStore persists every ingested record
func WithStore(st Store) Option {
	return func(s *Service) { s.store = st }
}

// Service runs ingests
type Service struct {
	extractor Extractor
	uploader  Uploader
	store     Store
	logger    zerolog.Logger
}

// NewService creates an ingest service. Without options it only extracts.
func NewService(extractor Extractor, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{extractor: extractor, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Persistent reports whether ingests are stored
func (s *Service) Persistent() bool {
	return s.store != nil
}

// Ingest extracts the document and, when configured, uploads and persists it
func (s *Service) Ingest(ctx context.Context, up Upload) (*Result, error) {
	out := s.extractor.Extract(ctx, invoice.Document{
		Data:        up.Data,
		Filename:    up.Filename,
		ContentType: up.ContentType,
	})

	result := &Result{
		Filename:  up.Filename,
		Fields:    invoice.Backfill(out.Fields),
		LineItems: out.LineItems,
	}
	if result.Fields.Currency == "" {
		result.Fields.Currency = invoice.DefaultCurrency
	}
	if result.LineItems == nil {
		result.LineItems = []invoice.LineItem{}
	}

	if s.uploader != nil {
		contentType := up.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		ref, err := s.uploader.Upload(ctx, storage.ObjectKey(up.Filename), up.Data, contentType)
		if err != nil {
			return nil, fmt.Errorf("failed to store document: %w", err)
		}
		result.S3 = &ref
	}

	if s.store != nil {
		rec := repository.Invoice{Filename: up.Filename, Fields: result.Fields}
		if result.S3 != nil {
			rec.S3Bucket, rec.S3Key = result.S3.Bucket, result.S3.Key
		}
		id, err := s.store.InsertInvoice(ctx, rec, result.LineItems)
		if err != nil {
			return nil, fmt.Errorf("failed to save invoice: %w", err)
		}
		result.ID = id.String()
	}

	s.logger.Info().
		Str("filename", up.Filename).
		Str("invoice_id", result.ID).
		Bool("stored", result.S3 != nil).
		Msg("invoice.ingest.ok")
	return result, nil
}
