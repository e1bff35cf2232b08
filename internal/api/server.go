// Package api serves the invoice archive over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/a3tai/mcp-invoice-reader/internal/health"
	"github.com/a3tai/mcp-invoice-reader/internal/ingest"
	"github.com/a3tai/mcp-invoice-reader/internal/pdf"
	"github.com/a3tai/mcp-invoice-reader/internal/repository"
	"github.com/a3tai/mcp-invoice-reader/internal/storage"
)

// Prefix is the path prefix of every versioned route
const Prefix = "/api/v1"

// DefaultCORSOrigin is allowed when no origin is configured
const DefaultCORSOrigin = "http://localhost:8081"

// Ingester runs the upload flow
type Ingester interface {
	Ingest(ctx context.Context, up ingest.Upload) (*ingest.Result, error)
}

// InvoiceStore reads stored invoices
type InvoiceStore interface {
	GetInvoice(ctx context.Context, id uuid.UUID) (*repository.Invoice, error)
	ListLines(ctx context.Context, id uuid.UUID) ([]repository.Line, error)
	ListInvoices(ctx context.Context, filter repository.ListFilter) ([]repository.Invoice, int, error)
}

// Presigner issues temporary download links
type Presigner interface {
	PresignedURL(ctx context.Context, ref storage.Ref, expires time.Duration, opts storage.PresignOptions) (string, error)
}

// TextComparer reports text layer and OCR output side by side
type TextComparer interface {
	Compare(ctx context.Context, data []byte) pdf.TextComparison
}

// Options wires the server to its collaborators. Store, Presigner and Debug
// may be nil; the routes needing them answer 503.
type Options struct {
	Name          string
	Version       string
	CORSOrigins   []string
	MaxUploadSize int64
	Ingest        Ingester
	Store         InvoiceStore
	Presigner     Presigner
	Health        *health.Checker
	Debug         TextComparer
	Logger        zerolog.Logger
}

// Server is the HTTP surface
type Server struct {
	opts   Options
	router *gin.Engine
	logger zerolog.Logger
}

// NewServer builds the router
func NewServer(opts Options) (*Server, error) {
	if opts.Ingest == nil {
		return nil, fmt.Errorf("ingest service cannot be nil")
	}
	if opts.Health == nil {
		opts.Health = health.NewChecker(5 * time.Second)
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = 100 * 1024 * 1024
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.MaxMultipartMemory = opts.MaxUploadSize
	router.Use(gin.Recovery(), requestLogger(opts.Logger), cors.New(corsConfig(opts.CORSOrigins)))

	s := &Server{opts: opts, router: router, logger: opts.Logger}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.GET("/", s.handleRoot)

	v1 := s.router.Group(Prefix)

	inv := v1.Group("/invoices")
	inv.POST("/extract", s.handleExtract)
	inv.GET("", s.handleList)
	inv.GET("/export.csv", s.handleExportCSV)
	inv.GET("/export/csv", s.handleExportCSV)
	inv.GET("/export.xml", s.handleExportXML)
	inv.GET("/export/xml", s.handleExportXML)
	inv.GET("/export/xlsx", s.handleExportXLSX)
	inv.GET("/:id", s.handleGet)
	inv.GET("/:id/download", s.handleDownload)
	inv.GET("/:id/preview", s.handlePreview)
	inv.GET("/:id/export.pdf", s.handleExportPDF)

	h := v1.Group("/health")
	h.GET("", s.handleHealth)
	h.GET("/:component", s.handleHealthComponent)

	v1.POST("/debug/extract-text", s.handleDebugExtractText)
}

// Handler returns the router as an http.Handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// corsConfig allows the configured origins. A wildcard disables credentials,
// browsers reject credentials with "*".
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	var list []string
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			list = append(list, o)
		}
	}
	if len(list) == 0 {
		list = []string{DefaultCORSOrigin}
	}
	for _, o := range list {
		if o == "*" {
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			return cfg
		}
	}
	cfg.AllowOrigins = list
	return cfg
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		ev := logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = logger.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	}
}
