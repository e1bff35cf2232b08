package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/a3tai/mcp-invoice-reader/internal/invoice"
)

// ErrNotFound is returned when an invoice id does not exist
var ErrNotFound = errors.New("invoice not found")

// Invoice is a stored invoice header
type Invoice struct {
	ID        uuid.UUID
	Filename  string
	S3Bucket  string
	S3Key     string
	Fields    invoice.Fields
	CreatedAt time.Time
}

// Line is a stored invoice row
type Line struct {
	ID         uuid.UUID
	InvoiceID  uuid.UUID
	LineNumber int
	invoice.LineItem
}

const invoiceColumns = `id, s3_bucket, s3_key, filename, invoice_number, intestatario, partita_iva,
	codice_fiscale, issue_date, due_date, currency, imponibile, iva, totale, created_at`

// InsertInvoice stores the header and its lines in one transaction. A zero ID
// is replaced by a new random one; the stored ID is returned.
func (s *Store) InsertInvoice(ctx context.Context, inv Invoice, items []invoice.LineItem) (uuid.UUID, error) {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	f := inv.Fields
	currency := f.Currency
	if currency == "" {
		currency = invoice.DefaultCurrency
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `INSERT INTO invoices (id, s3_bucket, s3_key, filename, invoice_number,
		intestatario, partita_iva, codice_fiscale, issue_date, due_date, currency, imponibile, iva, totale)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		inv.ID, nullText(inv.S3Bucket), nullText(inv.S3Key), nullText(inv.Filename),
		nullText(f.InvoiceNumber), nullText(f.PartyName), nullText(f.TaxID), nullText(f.FiscalCode),
		dateParam(f.IssueDate), dateParam(f.DueDate), currency,
		roundNull(f.NetAmount), roundNull(f.TaxAmount), roundNull(f.GrossAmount))
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert invoice: %w", err)
	}

	for _, line := range prepareLines(inv.ID, items) {
		_, err = tx.Exec(ctx, `INSERT INTO invoice_lines (id, invoice_id, line_number, descrizione,
			qta, prezzo_unitario, aliquota_iva, totale_riga) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			line.ID, line.InvoiceID, line.LineNumber, nullText(line.Description),
			line.Quantity, line.UnitPrice, line.TaxRatePercent, line.LineTotal)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to insert line %d: %w", line.LineNumber, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit invoice: %w", err)
	}

	s.logger.Info().
		Str("invoice_id", inv.ID.String()).
		Int("lines", len(items)).
		Msg("invoice.persist.ok")
	return inv.ID, nil
}

// GetInvoice loads one invoice header
func (s *Store) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 LIMIT 1`, id)
	inv, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

// ListLines returns the lines of an invoice ordered by line number
func (s *Store) ListLines(ctx context.Context, id uuid.UUID) ([]Line, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, invoice_id, line_number, descrizione, qta,
		prezzo_unitario, aliquota_iva, totale_riga FROM invoice_lines
		WHERE invoice_id = $1 ORDER BY line_number`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list lines: %w", err)
	}
	defer rows.Close()

	lines := []Line{}
	for rows.Next() {
		var (
			l           Line
			description *string
			qty, price  decimal.NullDecimal
			rate, total decimal.NullDecimal
		)
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.LineNumber, &description,
			&qty, &price, &rate, &total); err != nil {
			return nil, fmt.Errorf("failed to scan line: %w", err)
		}
		l.Description = deref(description)
		l.Quantity = qty.Decimal
		l.UnitPrice = price.Decimal
		l.TaxRatePercent = rate.Decimal
		l.LineTotal = total.Decimal
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// ListInvoices returns one page of invoices matching the filter and the
// total number of matches
func (s *Store) ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, int, error) {
	q := buildListQuery(filter)

	var total int
	if err := s.pool.QueryRow(ctx, q.countSQL, q.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count invoices: %w", err)
	}

	rows, err := s.pool.Query(ctx, q.itemsSQL, append(q.args, q.limit, q.offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	items := []Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan invoice: %w", err)
		}
		items = append(items, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var (
		inv                          Invoice
		bucket, key, filename        *string
		number, party, taxID, fiscal *string
		issue, due                   pgtype.Date
		currency                     string
		net, tax, gross              decimal.NullDecimal
	)
	err := row.Scan(&inv.ID, &bucket, &key, &filename, &number, &party, &taxID, &fiscal,
		&issue, &due, &currency, &net, &tax, &gross, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	inv.S3Bucket = deref(bucket)
	inv.S3Key = deref(key)
	inv.Filename = deref(filename)
	if currency == "" {
		currency = invoice.DefaultCurrency
	}
	inv.Fields = invoice.Fields{
		PartyName:     deref(party),
		TaxID:         deref(taxID),
		FiscalCode:    deref(fiscal),
		InvoiceNumber: deref(number),
		IssueDate:     isoDate(issue),
		DueDate:       isoDate(due),
		Currency:      currency,
		NetAmount:     net,
		TaxAmount:     tax,
		GrossAmount:   gross,
	}
	return &inv, nil
}

func nullText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// dateParam converts an ISO date to a DATE parameter; anything else is NULL
func dateParam(s string) pgtype.Date {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: t, Valid: true}
}

func isoDate(d pgtype.Date) string {
	if !d.Valid {
		return ""
	}
	return d.Time.Format(time.DateOnly)
}

func roundNull(d decimal.NullDecimal) decimal.NullDecimal {
	if !d.Valid {
		return d
	}
	return decimal.NewNullDecimal(d.Decimal.Round(2))
}
