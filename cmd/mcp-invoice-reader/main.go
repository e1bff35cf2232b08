package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/a3tai/mcp-invoice-reader/internal/api"
	"github.com/a3tai/mcp-invoice-reader/internal/config"
	"github.com/a3tai/mcp-invoice-reader/internal/health"
	"github.com/a3tai/mcp-invoice-reader/internal/ingest"
	"github.com/a3tai/mcp-invoice-reader/internal/mcp"
	"github.com/a3tai/mcp-invoice-reader/internal/pdf"
	"github.com/a3tai/mcp-invoice-reader/internal/repository"
	"github.com/a3tai/mcp-invoice-reader/internal/storage"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// healthTimeout bounds each dependency check
const healthTimeout = 3 * time.Second

// setupLogging configures logging based on the server mode. Logs always go
// to stderr; in stdio mode stdout carries the MCP protocol and logging stays
// off unless debug is enabled.
func setupLogging(cfg *config.Config, out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if cfg.IsStdioMode() && !cfg.IsDebug() {
		return zerolog.Nop()
	}

	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Str("service", cfg.ServerName).Logger()
}

// component returns a child logger tagged with a component name
func component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}

// infrastructure holds the optional backends; nil fields are disabled
type infrastructure struct {
	store   *repository.Store
	objects *storage.S3
	health  *health.Checker
	closers []func() error
}

func (i *infrastructure) Close() {
	for _, c := range i.closers {
		_ = c()
	}
	i.store.Close()
}

// connectInfrastructure opens the database, object storage and redis check
// for whichever of them is configured
func connectInfrastructure(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*infrastructure, error) {
	infra := &infrastructure{health: health.NewChecker(healthTimeout)}

	if dsn := cfg.PostgresDSN(); dsn != "" {
		store, err := repository.Open(ctx, repository.DefaultConfig(dsn), component(logger, "repository"))
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		infra.store = store
		infra.health.Register(health.ComponentDB, func(ctx context.Context) error {
			return store.HealthCheck(ctx, 0)
		}, fmt.Sprintf("%s:%d/%s", cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.DB))
	}

	if cfg.S3.Endpoint != "" {
		objects, err := storage.New(storage.Config{
			Endpoint:       cfg.S3.Endpoint,
			PublicEndpoint: cfg.S3.PublicEndpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
		}, component(logger, "storage"))
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("failed to configure object storage: %w", err)
		}
		infra.objects = objects
		infra.health.Register(health.ComponentS3, objects.Ping, objects.Endpoint())
	}

	if cfg.RedisURL != "" {
		ping, closeFn, err := health.Redis(cfg.RedisURL)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		infra.closers = append(infra.closers, closeFn)
		infra.health.Register(health.ComponentRedis, ping, "")
	}

	return infra, nil
}

// newIngester wires extraction to whichever backends are available
func newIngester(pdfService *pdf.Service, infra *infrastructure, logger zerolog.Logger) *ingest.Service {
	var opts []ingest.Option
	if infra.objects != nil {
		opts = append(opts, ingest.WithUploader(infra.objects))
	}
	if infra.store != nil {
		opts = append(opts, ingest.WithStore(infra.store))
	}
	return ingest.NewService(pdfService.Engine(), component(logger, "ingest"), opts...)
}

// runServerMode serves the HTTP API until a signal arrives
func runServerMode(ctx context.Context, cfg *config.Config, pdfService *pdf.Service,
	infra *infrastructure, logger zerolog.Logger,
) error {
	opts := api.Options{
		Name:          cfg.ServerName,
		Version:       cfg.Version,
		CORSOrigins:   cfg.CORSOrigins(),
		MaxUploadSize: pdfService.GetMaxFileSize(),
		Ingest:        newIngester(pdfService, infra, logger),
		Health:        infra.health,
		Debug:         pdfService.Acquirer(),
		Logger:        component(logger, "api"),
	}
	// Interfaces must stay nil when a backend is disabled
	if infra.store != nil {
		opts.Store = infra.store
	}
	if infra.objects != nil {
		opts.Presigner = infra.objects
	}

	server, err := api.NewServer(opts)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}
	return server.Run(ctx, cfg.Address())
}

// runStdioMode serves MCP over stdin and stdout. The parent process controls
// the lifecycle; the server exits when stdin closes.
func runStdioMode(ctx context.Context, cfg *config.Config, pdfService *pdf.Service,
	infra *infrastructure, logger zerolog.Logger,
) error {
	opts := []mcp.Option{mcp.WithLogger(component(logger, "mcp"))}
	if infra.store != nil {
		opts = append(opts,
			mcp.WithArchive(infra.store),
			mcp.WithImporter(newIngester(pdfService, infra, logger)),
		)
	}

	server, err := mcp.NewServer(cfg, pdfService, opts...)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	return server.Run(ctx)
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	ocr := pdf.NewOCR(cfg.PDFOCRConfig(), nil, component(logger, "ocr"))
	pdfService, err := pdf.NewService(cfg.MaxFileSize, cfg.InboxDirectory, ocr, component(logger, "pdf"))
	if err != nil {
		return fmt.Errorf("failed to create invoice service: %w", err)
	}
	if err := pdfService.ValidateConfiguration(); err != nil {
		return err
	}

	infra, err := connectInfrastructure(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer infra.Close()

	if cfg.IsServerMode() {
		return runServerMode(ctx, cfg, pdfService, infra, logger)
	}
	return runStdioMode(ctx, cfg, pdfService, infra, logger)
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Set version if it was provided during build
	if version != "dev" {
		cfg.Version = version
	}

	logger := setupLogging(cfg, os.Stderr)
	logger.Debug().Str("config", cfg.String()).Msg("starting")

	// Amounts are JSON numbers, not strings
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("server stopped with error")
		stop()
		os.Exit(1) //nolint:gocritic // exitAfterDefer
	}
	logger.Info().Msg("server stopped")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("MCP Invoice Reader\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}
