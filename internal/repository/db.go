package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Config holds the connection pool settings
type Config struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// DefaultConfig returns pool settings suitable for a single API instance
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:             dsn,
		MaxConns:        10,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 10 * time.Minute,
		DialTimeout:     10 * time.Second,
	}
}

// Store persists invoices and their lines in Postgres
type Store struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Open creates a pgx pool for the given configuration
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (*Store, error) {
	logger.Info().Str("host", redactDSN(cfg.DSN)).Msg("connecting to database")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid database dsn: %w", err)
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "mcp-invoice-reader"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", cfg.StatementTimeout.Milliseconds())
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info().Msg("successfully connected to database")
	return &Store{pool: pool, logger: logger}, nil
}

// Close releases every pooled connection
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.logger.Info().Msg("closing database connections")
	s.pool.Close()
}

// HealthCheck pings the database
func (s *Store) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	s.logger.Debug().Msg("pinging database")
	return s.pool.Ping(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS invoices (
	id             UUID PRIMARY KEY,
	s3_bucket      TEXT,
	s3_key         TEXT,
	filename       TEXT,
	invoice_number TEXT,
	intestatario   TEXT,
	partita_iva    TEXT,
	codice_fiscale TEXT,
	issue_date     DATE,
	due_date       DATE,
	currency       TEXT NOT NULL DEFAULT 'EUR',
	imponibile     NUMERIC(14,2),
	iva            NUMERIC(14,2),
	totale         NUMERIC(14,2),
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS invoices_issue_date_idx ON invoices (issue_date);
CREATE INDEX IF NOT EXISTS invoices_created_at_idx ON invoices (created_at);
CREATE TABLE IF NOT EXISTS invoice_lines (
	id              UUID PRIMARY KEY,
	invoice_id      UUID NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
	line_number     INTEGER NOT NULL,
	descrizione     TEXT,
	qta             NUMERIC(14,4),
	prezzo_unitario NUMERIC(14,2),
	aliquota_iva    NUMERIC(7,3),
	totale_riga     NUMERIC(14,2)
);
CREATE INDEX IF NOT EXISTS invoice_lines_invoice_idx ON invoice_lines (invoice_id, line_number);
`

// Migrate creates the invoice tables when they are missing
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	s.logger.Info().Msg("database schema ready")
	return nil
}

// redactDSN keeps the DSN loggable by dropping everything before the host
func redactDSN(dsn string) string {
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return "invalid"
	}
	return fmt.Sprintf("%s:%d/%s", pc.ConnConfig.Host, pc.ConnConfig.Port, pc.ConnConfig.Database)
}
