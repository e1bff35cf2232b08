package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/a3tai/mcp-invoice-reader/internal/pdf"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultPort        = 8080
	DefaultHost        = "127.0.0.1"
	DefaultLogLevel    = "info"
	DefaultEnv         = "dev"
	DefaultMaxFileSize = 100 * 1024 * 1024 // 100MB
	DefaultS3Region    = "us-east-1"

	// Directory permissions
	DefaultDirPerm = 0o750

	// EnvPrefix is prepended to every environment variable
	EnvPrefix = "INVOICE"

	redacted = "***"
)

// PostgresConfig locates the invoice archive database
type PostgresConfig struct {
	Host     string
	Port     int
	DB       string
	User     string
	Password string
	SSLMode  string
}

// S3Config locates the object storage holding the original documents
type S3Config struct {
	Endpoint       string
	PublicEndpoint string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
}

// OCRConfig names the external text recognition tools
type OCRConfig struct {
	Pdftotext string
	Pdftoppm  string
	Tesseract string
	Lang      string
	DPI       int
	Timeout   time.Duration
}

// Config holds all configuration for the invoice reader
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int
	Env  string

	// InboxDirectory holds the documents reachable by the file tools
	InboxDirectory string

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	MaxFileSize int64 // Maximum document size in bytes

	// Comma separated list, "*" allows any origin
	CORSOriginsRaw string

	Postgres PostgresConfig
	S3       S3Config
	RedisURL string
	OCR      OCRConfig
}

// DefaultConfig returns a configuration with sensible defaults. The
// database, object storage and redis are disabled until a host, endpoint or
// URL is configured.
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		// Fallback to current directory if working directory cannot be determined
		currentDir = "."
	}

	ocr := pdf.DefaultOCRConfig()
	return &Config{
		Mode:           ModeStdio, // Default to stdio mode for MCP compatibility
		Host:           DefaultHost,
		Port:           DefaultPort,
		Env:            DefaultEnv,
		InboxDirectory: currentDir,
		Version:        "1.0.0",
		ServerName:     "mcp-invoice-reader",
		LogLevel:       DefaultLogLevel,
		MaxFileSize:    DefaultMaxFileSize,
		CORSOriginsRaw: "",
		Postgres: PostgresConfig{
			Port:    5432,
			DB:      "invoices",
			User:    "invoices",
			SSLMode: "disable",
		},
		S3: S3Config{
			Region: DefaultS3Region,
			Bucket: "invoices",
		},
		OCR: OCRConfig{
			Pdftotext: ocr.Pdftotext,
			Pdftoppm:  ocr.Pdftoppm,
			Tesseract: ocr.Tesseract,
			Lang:      ocr.Languages,
			DPI:       ocr.DPI,
			Timeout:   ocr.Timeout,
		},
	}
}

// LoadFromFlags parses command line flags and returns a configuration.
// Values come from flags, then INVOICE_* environment variables (a .env file
// in the working directory is loaded first), then defaults.
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	// A missing .env file is not an error
	_ = godotenv.Load()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	// Check for version flag before parsing
	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	populateConfigFromViper(cfg)

	// Expand paths if needed
	if cfg.InboxDirectory != "" {
		if expandedPath, err := filepath.Abs(cfg.InboxDirectory); err == nil {
			cfg.InboxDirectory = expandedPath
		}
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// envAliases are the unprefixed variable names shared with docker compose
// files, accepted after the prefixed name
var envAliases = map[string][]string{
	"env":                {"ENV"},
	"cors_origins":       {"CORS_ORIGINS"},
	"postgres_host":      {"POSTGRES_HOST"},
	"postgres_port":      {"POSTGRES_PORT"},
	"postgres_db":        {"POSTGRES_DB"},
	"postgres_user":      {"POSTGRES_USER"},
	"postgres_password":  {"POSTGRES_PASSWORD"},
	"s3_endpoint":        {"S3_ENDPOINT", "MINIO_ENDPOINT"},
	"s3_public_endpoint": {"S3_PUBLIC_ENDPOINT", "MINIO_PUBLIC_ENDPOINT"},
	"s3_region":          {"S3_REGION"},
	"s3_bucket":          {"S3_BUCKET", "MINIO_BUCKET"},
	"s3_access_key":      {"S3_ACCESS_KEY", "MINIO_ACCESS_KEY"},
	"s3_secret_key":      {"S3_SECRET_KEY", "MINIO_SECRET_KEY"},
	"redis_url":          {"REDIS_URL"},
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	// Set environment variable prefix
	viper.SetEnvPrefix(EnvPrefix)
	viper.AutomaticEnv()

	for key, aliases := range envAliases {
		names := append([]string{EnvPrefix + "_" + strings.ToUpper(key)}, aliases...)
		_ = viper.BindEnv(append([]string{key}, names...)...)
	}

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("env", cfg.Env)
	viper.SetDefault("dir", cfg.InboxDirectory)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
	viper.SetDefault("cors_origins", cfg.CORSOriginsRaw)

	viper.SetDefault("postgres_host", cfg.Postgres.Host)
	viper.SetDefault("postgres_port", cfg.Postgres.Port)
	viper.SetDefault("postgres_db", cfg.Postgres.DB)
	viper.SetDefault("postgres_user", cfg.Postgres.User)
	viper.SetDefault("postgres_password", cfg.Postgres.Password)
	viper.SetDefault("postgres_sslmode", cfg.Postgres.SSLMode)

	viper.SetDefault("s3_endpoint", cfg.S3.Endpoint)
	viper.SetDefault("s3_public_endpoint", cfg.S3.PublicEndpoint)
	viper.SetDefault("s3_region", cfg.S3.Region)
	viper.SetDefault("s3_bucket", cfg.S3.Bucket)
	viper.SetDefault("s3_access_key", cfg.S3.AccessKey)
	viper.SetDefault("s3_secret_key", cfg.S3.SecretKey)

	viper.SetDefault("redis_url", cfg.RedisURL)

	viper.SetDefault("ocr_pdftotext", cfg.OCR.Pdftotext)
	viper.SetDefault("ocr_pdftoppm", cfg.OCR.Pdftoppm)
	viper.SetDefault("ocr_tesseract", cfg.OCR.Tesseract)
	viper.SetDefault("ocr_lang", cfg.OCR.Lang)
	viper.SetDefault("ocr_dpi", cfg.OCR.DPI)
	viper.SetDefault("ocr_timeout", cfg.OCR.Timeout)
}

// defineCommandLineFlags sets up the command line flags. Connection secrets
// are only read from the environment.
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Server mode: 'stdio' for MCP standard I/O, 'server' for the HTTP API")
	pflag.String("host", cfg.Host, "Server host address (server mode only)")
	pflag.Int("port", cfg.Port, "Server port (server mode only)")
	pflag.String("dir", cfg.InboxDirectory, "Inbox directory containing invoice documents")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum document size in bytes")
	pflag.String("cors-origins", cfg.CORSOriginsRaw, "Comma separated CORS origins (server mode only)")
	pflag.String("postgres-host", cfg.Postgres.Host, "Postgres host; empty disables the invoice archive")
	pflag.String("s3-endpoint", cfg.S3.Endpoint, "S3 endpoint URL; empty disables document storage")
	pflag.String("redis-url", cfg.RedisURL, "Redis URL for health checks")
	pflag.String("ocr-lang", cfg.OCR.Lang, "Tesseract languages")
	pflag.Int("ocr-dpi", cfg.OCR.DPI, "Rasterization resolution for OCR")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	_ = viper.BindPFlag("mode", pflag.Lookup("mode"))
	_ = viper.BindPFlag("host", pflag.Lookup("host"))
	_ = viper.BindPFlag("port", pflag.Lookup("port"))
	_ = viper.BindPFlag("dir", pflag.Lookup("dir"))
	_ = viper.BindPFlag("loglevel", pflag.Lookup("loglevel"))
	_ = viper.BindPFlag("maxfilesize", pflag.Lookup("maxfilesize"))
	_ = viper.BindPFlag("cors_origins", pflag.Lookup("cors-origins"))
	_ = viper.BindPFlag("postgres_host", pflag.Lookup("postgres-host"))
	_ = viper.BindPFlag("s3_endpoint", pflag.Lookup("s3-endpoint"))
	_ = viper.BindPFlag("redis_url", pflag.Lookup("redis-url"))
	_ = viper.BindPFlag("ocr_lang", pflag.Lookup("ocr-lang"))
	_ = viper.BindPFlag("ocr_dpi", pflag.Lookup("ocr-dpi"))
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nMCP Invoice Reader - extracts fields from Italian invoices (PDF and FatturaPA XML)\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                          "+
			"# MCP over stdio, current directory as inbox\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --dir=/srv/inbox                         "+
			"# MCP over stdio with a custom inbox\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=server --postgres-host=db         # HTTP API with archive\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=server --host=0.0.0.0 --port=8000 # HTTP API on all interfaces\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables (also read from .env):\n")
		fmt.Fprintf(os.Stderr, "  INVOICE_MODE, INVOICE_HOST, INVOICE_PORT, INVOICE_DIR, INVOICE_LOGLEVEL\n")
		fmt.Fprintf(os.Stderr, "  INVOICE_MAXFILESIZE, INVOICE_CORS_ORIGINS\n")
		fmt.Fprintf(os.Stderr, "  INVOICE_POSTGRES_{HOST,PORT,DB,USER,PASSWORD,SSLMODE} (or POSTGRES_*)\n")
		fmt.Fprintf(os.Stderr, "  INVOICE_S3_{ENDPOINT,PUBLIC_ENDPOINT,REGION,BUCKET,ACCESS_KEY,SECRET_KEY} (or S3_*)\n")
		fmt.Fprintf(os.Stderr, "  INVOICE_REDIS_URL (or REDIS_URL)\n")
		fmt.Fprintf(os.Stderr, "  INVOICE_OCR_{PDFTOTEXT,PDFTOPPM,TESSERACT,LANG,DPI,TIMEOUT}\n")
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.Env = viper.GetString("env")
	cfg.InboxDirectory = viper.GetString("dir")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
	cfg.CORSOriginsRaw = viper.GetString("cors_origins")

	cfg.Postgres = PostgresConfig{
		Host:     viper.GetString("postgres_host"),
		Port:     viper.GetInt("postgres_port"),
		DB:       viper.GetString("postgres_db"),
		User:     viper.GetString("postgres_user"),
		Password: viper.GetString("postgres_password"),
		SSLMode:  viper.GetString("postgres_sslmode"),
	}
	cfg.S3 = S3Config{
		Endpoint:       viper.GetString("s3_endpoint"),
		PublicEndpoint: viper.GetString("s3_public_endpoint"),
		Region:         viper.GetString("s3_region"),
		Bucket:         viper.GetString("s3_bucket"),
		AccessKey:      viper.GetString("s3_access_key"),
		SecretKey:      viper.GetString("s3_secret_key"),
	}
	cfg.RedisURL = viper.GetString("redis_url")
	cfg.OCR = OCRConfig{
		Pdftotext: viper.GetString("ocr_pdftotext"),
		Pdftoppm:  viper.GetString("ocr_pdftoppm"),
		Tesseract: viper.GetString("ocr_tesseract"),
		Lang:      viper.GetString("ocr_lang"),
		DPI:       viper.GetInt("ocr_dpi"),
		Timeout:   viper.GetDuration("ocr_timeout"),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate mode
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	// Validate port range (only for server mode)
	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	// Validate inbox directory
	if c.InboxDirectory == "" {
		return errors.New("inbox directory cannot be empty")
	}

	// Check if the inbox exists, create if it doesn't
	if _, err := os.Stat(c.InboxDirectory); os.IsNotExist(err) {
		if err := os.MkdirAll(c.InboxDirectory, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create inbox directory %s: %w", c.InboxDirectory, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access inbox directory %s: %w", c.InboxDirectory, err)
	}

	// Validate max file size
	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	if c.Postgres.Host != "" && (c.Postgres.Port < 1 || c.Postgres.Port > 65535) {
		return errors.New("postgres port must be between 1 and 65535")
	}
	if c.S3.Endpoint != "" && c.S3.Bucket == "" {
		return errors.New("s3 bucket cannot be empty when an endpoint is set")
	}
	if c.OCR.DPI < 0 {
		return errors.New("ocr dpi cannot be negative")
	}

	return nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// IsDev reports whether the process runs in a development environment
func (c *Config) IsDev() bool {
	return c.Env == "" || c.Env == DefaultEnv || c.Env == "development"
}

// PostgresDSN returns the connection URL, or "" when no host is configured
func (c *Config) PostgresDSN() string {
	if c.Postgres.Host == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Postgres.User, c.Postgres.Password),
		Host:   c.Postgres.Host + ":" + strconv.Itoa(c.Postgres.Port),
		Path:   "/" + c.Postgres.DB,
	}
	if c.Postgres.SSLMode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(c.Postgres.SSLMode)
	}
	return u.String()
}

// CORSOrigins splits the configured origins. An empty list lets the HTTP
// layer apply its default.
func (c *Config) CORSOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOriginsRaw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// PDFOCRConfig converts the OCR settings for the pdf package
func (c *Config) PDFOCRConfig() pdf.OCRConfig {
	ocr := pdf.DefaultOCRConfig()
	ocr.Pdftotext = c.OCR.Pdftotext
	ocr.Pdftoppm = c.OCR.Pdftoppm
	ocr.Tesseract = c.OCR.Tesseract
	if c.OCR.Lang != "" {
		ocr.Languages = c.OCR.Lang
	}
	if c.OCR.DPI > 0 {
		ocr.DPI = c.OCR.DPI
	}
	ocr.Timeout = c.OCR.Timeout
	return ocr
}

// String returns a string representation of the configuration with secrets
// redacted
func (c *Config) String() string {
	password := ""
	if c.Postgres.Password != "" {
		password = redacted
	}
	secret := ""
	if c.S3.SecretKey != "" {
		secret = redacted
	}
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, Env: %s, InboxDirectory: %s, LogLevel: %s, "+
		"MaxFileSize: %d, CORSOrigins: %q, Postgres: %s@%s:%d/%s (password: %s), "+
		"S3: %s bucket=%s (secret: %s), Redis: %s, OCR: %s dpi=%d}",
		c.Mode, c.Host, c.Port, c.Env, c.InboxDirectory, c.LogLevel, c.MaxFileSize, c.CORSOriginsRaw,
		c.Postgres.User, c.Postgres.Host, c.Postgres.Port, c.Postgres.DB, password,
		c.S3.Endpoint, c.S3.Bucket, secret, redactURL(c.RedisURL), c.OCR.Lang, c.OCR.DPI)
}

// redactURL hides the password of a URL
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), redacted)
	}
	return u.String()
}

// IsServerMode returns true if the server is running in HTTP server mode
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the server is running in stdio mode
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
