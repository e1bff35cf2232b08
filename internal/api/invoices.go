package api

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/a3tai/mcp-invoice-reader/internal/export"
	"github.com/a3tai/mcp-invoice-reader/internal/ingest"
	"github.com/a3tai/mcp-invoice-reader/internal/repository"
	"github.com/a3tai/mcp-invoice-reader/internal/storage"
)

// Listing and link bounds
const (
	listDefaultLimit   = 50
	listMaxLimit       = 200
	exportDefaultLimit = 1000
	exportMaxLimit     = repository.MaxListLimit
	linkDefaultExpiry  = 900
	linkMinExpiry      = 60
	linkMaxExpiry      = 86400
)

func (s *Server) requireStore(c *gin.Context) bool {
	if s.opts.Store == nil {
		abort(c, http.StatusServiceUnavailable, "database not configured")
		return false
	}
	return true
}

// readUpload reads the multipart "file" field
func (s *Server) readUpload(c *gin.Context) (ingest.Upload, bool) {
	fh, err := c.FormFile("file")
	if err != nil {
		abort(c, http.StatusUnprocessableEntity, "file is required")
		return ingest.Upload{}, false
	}
	if fh.Size > s.opts.MaxUploadSize {
		abort(c, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file too large: %d bytes (max: %d bytes)", fh.Size, s.opts.MaxUploadSize))
		return ingest.Upload{}, false
	}
	f, err := fh.Open()
	if err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return ingest.Upload{}, false
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, s.opts.MaxUploadSize+1))
	if err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return ingest.Upload{}, false
	}
	return ingest.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, true
}

func (s *Server) handleExtract(c *gin.Context) {
	up, ok := s.readUpload(c)
	if !ok {
		return
	}
	res, err := s.opts.Ingest.Ingest(c.Request.Context(), up)
	if err != nil {
		s.logger.Error().Err(err).Str("filename", up.Filename).Msg("invoice.extract.failed")
		abort(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, InvoiceOut{
		ID:        res.ID,
		S3:        res.S3,
		Filename:  res.Filename,
		Fields:    res.Fields,
		LineItems: res.LineItems,
	})
}

func (s *Server) handleList(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	filter, err := listFilter(c, listDefaultLimit, listMaxLimit)
	if err != nil {
		abortErr(c, err)
		return
	}
	rows, total, err := s.opts.Store.ListInvoices(c.Request.Context(), filter)
	if err != nil {
		abortErr(c, err)
		return
	}
	items := make([]InvoiceListItem, 0, len(rows))
	for _, inv := range rows {
		items = append(items, newListItem(inv))
	}
	c.JSON(http.StatusOK, InvoiceListResponse{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset})
}

// loadInvoice resolves the :id parameter to a stored invoice
func (s *Server) loadInvoice(c *gin.Context) (*repository.Invoice, bool) {
	if !s.requireStore(c) {
		return nil, false
	}
	id, err := idParam(c)
	if err != nil {
		abortErr(c, err)
		return nil, false
	}
	inv, err := s.opts.Store.GetInvoice(c.Request.Context(), id)
	if err != nil {
		abortErr(c, err)
		return nil, false
	}
	return inv, true
}

func (s *Server) handleGet(c *gin.Context) {
	inv, ok := s.loadInvoice(c)
	if !ok {
		return
	}
	lines, err := s.opts.Store.ListLines(c.Request.Context(), inv.ID)
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, newInvoiceOut(inv, lines))
}

func (s *Server) handleDownload(c *gin.Context) {
	s.presign(c, false)
}

func (s *Server) handlePreview(c *gin.Context) {
	s.presign(c, true)
}

func (s *Server) presign(c *gin.Context, inline bool) {
	if s.opts.Presigner == nil {
		abort(c, http.StatusServiceUnavailable, "object storage not configured")
		return
	}
	expires, err := intQuery(c, "expires_in", linkDefaultExpiry, linkMinExpiry, linkMaxExpiry)
	if err != nil {
		abortErr(c, err)
		return
	}
	inv, ok := s.loadInvoice(c)
	if !ok {
		return
	}
	if inv.S3Key == "" {
		abort(c, http.StatusNotFound, "Invoice has no stored document")
		return
	}

	opts := storage.PresignOptions{}
	if inline {
		opts = storage.PresignOptions{Inline: true, ContentType: guessContentType(inv.Filename, inv.S3Key), Filename: inv.Filename}
	}
	url, err := s.opts.Presigner.PresignedURL(c.Request.Context(),
		storage.Ref{Bucket: inv.S3Bucket, Key: inv.S3Key}, time.Duration(expires)*time.Second, opts)
	if err != nil {
		s.logger.Error().Err(err).Str("invoice_id", inv.ID.String()).Msg("presign failed")
		abort(c, http.StatusInternalServerError, "Unable to generate presigned URL")
		return
	}
	c.JSON(http.StatusOK, PresignedURLOut{URL: url, ExpiresIn: expires})
}

// guessContentType maps the filename, or failing that the key, to a MIME type
func guessContentType(filename, key string) string {
	name := filename
	if name == "" {
		name = key
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// exportRows loads the invoices selected by the export parameters
func (s *Server) exportRows(c *gin.Context) ([]repository.Invoice, bool) {
	if !s.requireStore(c) {
		return nil, false
	}
	filter, err := listFilter(c, exportDefaultLimit, exportMaxLimit)
	if err != nil {
		abortErr(c, err)
		return nil, false
	}
	rows, _, err := s.opts.Store.ListInvoices(c.Request.Context(), filter)
	if err != nil {
		abortErr(c, err)
		return nil, false
	}
	return rows, true
}

func attachment(c *gin.Context, filename, contentType string, body []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, body)
}

func (s *Server) handleExportCSV(c *gin.Context) {
	sep, err := separatorQuery(c)
	if err != nil {
		abortErr(c, err)
		return
	}
	bom, err := intQuery(c, "bom", 1, 0, 1)
	if err != nil {
		abortErr(c, err)
		return
	}
	rows, ok := s.exportRows(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.CSV(&buf, rows, export.CSVOptions{Separator: sep, BOM: bom == 1}); err != nil {
		abortErr(c, err)
		return
	}
	attachment(c, "invoices.csv", export.ContentTypeCSV, buf.Bytes())
}

func (s *Server) handleExportXML(c *gin.Context) {
	rows, ok := s.exportRows(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.XML(&buf, rows); err != nil {
		abortErr(c, err)
		return
	}
	attachment(c, "invoices.xml", export.ContentTypeXML, buf.Bytes())
}

func (s *Server) handleExportXLSX(c *gin.Context) {
	rows, ok := s.exportRows(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.XLSX(&buf, rows); err != nil {
		abortErr(c, err)
		return
	}
	name := fmt.Sprintf("invoices_%s.xlsx", time.Now().UTC().Format("2006-01-02_15-04"))
	attachment(c, name, export.ContentTypeXLSX, buf.Bytes())
}

func (s *Server) handleExportPDF(c *gin.Context) {
	inv, ok := s.loadInvoice(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.PDFSummary(&buf, *inv); err != nil {
		abortErr(c, err)
		return
	}
	attachment(c, fmt.Sprintf("invoice_%s.pdf", inv.ID), export.ContentTypePDF, buf.Bytes())
}
