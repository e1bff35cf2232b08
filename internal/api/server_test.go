package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-invoice-reader/internal/health"
	"github.com/a3tai/mcp-invoice-reader/internal/ingest"
	"github.com/a3tai/mcp-invoice-reader/internal/invoice"
	"github.com/a3tai/mcp-invoice-reader/internal/pdf"
	"github.com/a3tai/mcp-invoice-reader/internal/repository"
	"github.com/a3tai/mcp-invoice-reader/internal/storage"
)

var storedID = uuid.MustParse("3d0b0c52-6a3e-4c69-9d2f-7e1f6f8a9b10")

type stubIngester struct {
	got ingest.Upload
	err error
}

func (s *stubIngester) Ingest(_ context.Context, up ingest.Upload) (*ingest.Result, error) {
	s.got = up
	if s.err != nil {
		return nil, s.err
	}
	return &ingest.Result{
		ID:       storedID.String(),
		Filename: up.Filename,
		S3:       &storage.Ref{Bucket: "fatture", Key: "invoices/x_" + up.Filename},
		Fields: invoice.Fields{
			InvoiceNumber: "12",
			Currency:      "EUR",
			GrossAmount:   decimal.NewNullDecimal(decimal.RequireFromString("122")),
		},
		LineItems: []invoice.LineItem{},
	}, nil
}

type stubStore struct {
	filter repository.ListFilter
	rows   []repository.Invoice
	err    error
}

func (s *stubStore) GetInvoice(_ context.Context, id uuid.UUID) (*repository.Invoice, error) {
	for _, r := range s.rows {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubStore) ListLines(_ context.Context, _ uuid.UUID) ([]repository.Line, error) {
	return []repository.Line{{LineNumber: 1, LineItem: invoice.LineItem{Description: "Servizio"}}}, nil
}

func (s *stubStore) ListInvoices(_ context.Context, f repository.ListFilter) ([]repository.Invoice, int, error) {
	s.filter = f
	return s.rows, len(s.rows), s.err
}

type stubPresigner struct {
	ref     storage.Ref
	expires time.Duration
	opts    storage.PresignOptions
}

func (s *stubPresigner) PresignedURL(_ context.Context, ref storage.Ref, expires time.Duration, opts storage.PresignOptions) (string, error) {
	s.ref, s.expires, s.opts = ref, expires, opts
	return "https://files.example.com/" + ref.Bucket + "/" + ref.Key, nil
}

type stubComparer struct{}

func (stubComparer) Compare(_ context.Context, data []byte) pdf.TextComparison {
	return pdf.TextComparison{TextLayerChars: len(data), TextLayerSample: string(data)}
}

type fixture struct {
	server    *Server
	ingester  *stubIngester
	store     *stubStore
	presigner *stubPresigner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ingester: &stubIngester{},
		store: &stubStore{rows: []repository.Invoice{{
			ID:       storedID,
			Filename: "fattura.pdf",
			S3Bucket: "fatture",
			S3Key:    "invoices/abc_fattura.pdf",
			Fields: invoice.Fields{
				PartyName:   "Rossi S.r.l.",
				IssueDate:   "2024-03-15",
				Currency:    "EUR",
				GrossAmount: decimal.NewNullDecimal(decimal.RequireFromString("1220")),
			},
		}}},
		presigner: &stubPresigner{},
	}
	checker := health.NewChecker(time.Second)
	checker.Register(health.ComponentDB, func(context.Context) error { return nil }, "")

	srv, err := NewServer(Options{
		Name:        "mcp-invoice-reader",
		Version:     "test",
		CORSOrigins: []string{"http://localhost:5173"},
		Ingest:      f.ingester,
		Store:       f.store,
		Presigner:   f.presigner,
		Health:      checker,
		Debug:       stubComparer{},
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	f.server = srv
	return f
}

func (f *fixture) do(t *testing.T, method, target string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func multipartFile(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestNewServer_RequiresIngest(t *testing.T) {
	_, err := NewServer(Options{})
	assert.Error(t, err)
}

func TestRoot(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestExtract(t *testing.T) {
	f := newFixture(t)

	body, ct := multipartFile(t, "fattura.xml", "application/xml", []byte("<FatturaElettronica/>"))
	rec := f.do(t, http.MethodPost, Prefix+"/invoices/extract", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out InvoiceOut
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, storedID.String(), out.ID)
	assert.Equal(t, "fattura.xml", out.Filename)
	require.NotNil(t, out.S3)
	assert.Equal(t, "fatture", out.S3.Bucket)
	assert.Equal(t, "12", out.Fields.InvoiceNumber)
	assert.True(t, out.Fields.GrossAmount.Decimal.Equal(decimal.NewFromInt(122)))

	assert.Equal(t, "fattura.xml", f.ingester.got.Filename)
	assert.Equal(t, "application/xml", f.ingester.got.ContentType)
	assert.Equal(t, []byte("<FatturaElettronica/>"), f.ingester.got.Data)
}

func TestExtract_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodPost, Prefix+"/invoices/extract", bytes.NewBufferString("x=1"), "application/x-www-form-urlencoded")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("ingest failure", func(t *testing.T) {
		f := newFixture(t)
		f.ingester.err = errors.New("upload failed")
		body, ct := multipartFile(t, "f.pdf", "application/pdf", []byte("%PDF"))
		rec := f.do(t, http.MethodPost, Prefix+"/invoices/extract", body, ct)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"detail":"upload failed"}`, rec.Body.String())
	})
}

func TestList(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLimit  int
	}{
		{name: "defaults", query: "", wantStatus: http.StatusOK, wantLimit: 50},
		{name: "filters", query: "?limit=5&offset=10&q=rossi&date_from=2024-01-01&order_by=totale&order_dir=asc", wantStatus: http.StatusOK, wantLimit: 5},
		{name: "limit too high", query: "?limit=500", wantStatus: http.StatusUnprocessableEntity},
		{name: "limit zero", query: "?limit=0", wantStatus: http.StatusUnprocessableEntity},
		{name: "bad date", query: "?date_to=15/03/2024", wantStatus: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(t, http.MethodGet, Prefix+"/invoices"+tt.query, nil, "")
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}

			var out InvoiceListResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
			assert.Equal(t, 1, out.Total)
			assert.Equal(t, tt.wantLimit, out.Limit)
			require.Len(t, out.Items, 1)
			require.NotNil(t, out.Items[0].PartyName)
			assert.Equal(t, "Rossi S.r.l.", *out.Items[0].PartyName)
			assert.Nil(t, out.Items[0].InvoiceNumber)
			assert.Equal(t, tt.wantLimit, f.store.filter.Limit)
		})
	}
}

func TestList_FilterPassthrough(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, Prefix+"/invoices?offset=10&q=rossi&date_from=2024-01-01&order_by=totale&order_dir=asc", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, repository.ListFilter{
		Limit: 50, Offset: 10, Q: "rossi", DateFrom: "2024-01-01", OrderBy: "totale", OrderDir: "asc",
	}, f.store.filter)
}

func TestGet(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, Prefix+"/invoices/"+storedID.String(), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out InvoiceOut
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "fattura.pdf", out.Filename)
	assert.Equal(t, "invoices/abc_fattura.pdf", out.S3.Key)
	require.Len(t, out.LineItems, 1)
	assert.Equal(t, "Servizio", out.LineItems[0].Description)

	rec = f.do(t, http.MethodGet, Prefix+"/invoices/"+uuid.NewString(), nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"detail":"Invoice not found"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, Prefix+"/invoices/not-a-uuid", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPresignedLinks(t *testing.T) {
	t.Run("download", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodGet, Prefix+"/invoices/"+storedID.String()+"/download", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)

		var out PresignedURLOut
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.Equal(t, 900, out.ExpiresIn)
		assert.Equal(t, "https://files.example.com/fatture/invoices/abc_fattura.pdf", out.URL)
		assert.Equal(t, 15*time.Minute, f.presigner.expires)
		assert.False(t, f.presigner.opts.Inline)
	})

	t.Run("preview", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodGet, Prefix+"/invoices/"+storedID.String()+"/preview?expires_in=60", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, storage.PresignOptions{Inline: true, ContentType: "application/pdf", Filename: "fattura.pdf"}, f.presigner.opts)
		assert.Equal(t, time.Minute, f.presigner.expires)
	})

	t.Run("expiry out of range", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodGet, Prefix+"/invoices/"+storedID.String()+"/download?expires_in=10", nil, "")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestExports(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		wantType    string
		wantFile    string
		wantContent string
	}{
		{name: "csv", path: "/invoices/export.csv?bom=0", wantType: "text/csv", wantFile: "invoices.csv", wantContent: "id;filename;intestatario"},
		{name: "csv alias", path: "/invoices/export/csv?sep=,&bom=0", wantType: "text/csv", wantFile: "invoices.csv", wantContent: "id,filename,intestatario"},
		{name: "xml", path: "/invoices/export.xml", wantType: "application/xml", wantFile: "invoices.xml", wantContent: "<Invoices>"},
		{name: "xml alias", path: "/invoices/export/xml", wantType: "application/xml", wantFile: "invoices.xml", wantContent: "<intestatario>Rossi S.r.l.</intestatario>"},
		{name: "xlsx", path: "/invoices/export/xlsx", wantType: "spreadsheetml", wantFile: "invoices_", wantContent: "PK"},
		{name: "pdf", path: "/invoices/" + storedID.String() + "/export.pdf", wantType: "application/pdf", wantFile: "invoice_" + storedID.String() + ".pdf", wantContent: "%PDF-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(t, http.MethodGet, Prefix+tt.path, nil, "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Header().Get("Content-Type"), tt.wantType)
			assert.Contains(t, rec.Header().Get("Content-Disposition"), tt.wantFile)
			assert.Contains(t, rec.Body.String(), tt.wantContent)
		})
	}
}

func TestExports_Validation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, Prefix+"/invoices/export.csv?sep=ab", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodGet, Prefix+"/invoices/export.csv?limit=6000", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodGet, Prefix+"/invoices/export.csv", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\xef\xbb\xbf"))
	assert.Equal(t, 1000, f.store.filter.Limit)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, Prefix+"/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var overview map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &overview))
	assert.Equal(t, "down", overview["status"])

	rec = f.do(t, http.MethodGet, Prefix+"/health/db", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"up"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, Prefix+"/health/redis", nil, "")
	assert.JSONEq(t, `{"status":"down","error":"not configured"}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, Prefix+"/health/queue", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebugExtractText(t *testing.T) {
	f := newFixture(t)

	body, ct := multipartFile(t, "scan.pdf", "application/pdf", []byte("abc"))
	rec := f.do(t, http.MethodPost, Prefix+"/debug/extract-text", body, ct)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"len_text_layer":3`)

	body, ct = multipartFile(t, "note.txt", "text/plain", []byte("abc"))
	rec = f.do(t, http.MethodPost, Prefix+"/debug/extract-text", body, ct)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestStoreNotConfigured(t *testing.T) {
	srv, err := NewServer(Options{Ingest: &stubIngester{}, Logger: zerolog.Nop()})
	require.NoError(t, err)

	for _, path := range []string{"/invoices", "/invoices/" + storedID.String(), "/invoices/export.csv"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, Prefix+path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestCORSConfig(t *testing.T) {
	tests := []struct {
		name        string
		origins     []string
		wantAll     bool
		wantOrigins []string
		wantCreds   bool
	}{
		{name: "default", origins: nil, wantOrigins: []string{DefaultCORSOrigin}, wantCreds: true},
		{name: "list", origins: []string{" http://a.test ", "", "http://b.test"}, wantOrigins: []string{"http://a.test", "http://b.test"}, wantCreds: true},
		{name: "wildcard", origins: []string{"http://a.test", "*"}, wantAll: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := corsConfig(tt.origins)
			assert.Equal(t, tt.wantAll, cfg.AllowAllOrigins)
			assert.Equal(t, tt.wantOrigins, cfg.AllowOrigins)
			assert.Equal(t, tt.wantCreds, cfg.AllowCredentials)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, Prefix+"/invoices", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGuessContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", guessContentType("a.pdf", ""))
	assert.Equal(t, "application/pdf", guessContentType("", "invoices/x_a.pdf"))
	assert.Equal(t, "application/octet-stream", guessContentType("noext", ""))
}
