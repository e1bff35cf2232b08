package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var loadEnvVars = []string{
	"INVOICE_MODE", "INVOICE_HOST", "INVOICE_PORT", "INVOICE_DIR", "INVOICE_LOGLEVEL",
	"INVOICE_MAXFILESIZE", "INVOICE_ENV", "INVOICE_CORS_ORIGINS",
	"INVOICE_POSTGRES_HOST", "INVOICE_POSTGRES_PORT", "INVOICE_POSTGRES_DB",
	"INVOICE_POSTGRES_USER", "INVOICE_POSTGRES_PASSWORD", "INVOICE_POSTGRES_SSLMODE",
	"INVOICE_S3_ENDPOINT", "INVOICE_S3_PUBLIC_ENDPOINT", "INVOICE_S3_REGION", "INVOICE_S3_BUCKET",
	"INVOICE_S3_ACCESS_KEY", "INVOICE_S3_SECRET_KEY", "INVOICE_REDIS_URL",
	"INVOICE_OCR_LANG", "INVOICE_OCR_DPI", "INVOICE_OCR_TIMEOUT",
	"ENV", "CORS_ORIGINS", "POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_DB", "POSTGRES_USER",
	"POSTGRES_PASSWORD", "S3_ENDPOINT", "S3_PUBLIC_ENDPOINT", "S3_REGION", "S3_BUCKET",
	"S3_ACCESS_KEY", "S3_SECRET_KEY", "MINIO_ENDPOINT", "MINIO_PUBLIC_ENDPOINT", "MINIO_BUCKET",
	"MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "REDIS_URL",
}

// Helper function to reset pflag.CommandLine for testing
func resetFlags() {
	pflag.CommandLine = pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	viper.Reset()
}

// Helper function to set os.Args for testing
func setArgs(args []string) {
	os.Args = args
}

// Helper function to clear environment variables
func clearEnvVars() {
	for _, name := range loadEnvVars {
		os.Unsetenv(name)
	}
}

// prepareLoad isolates a LoadFromFlags call and restores global state afterwards
func prepareLoad(t *testing.T, args ...string) {
	t.Helper()
	originalArgs := os.Args
	t.Cleanup(func() {
		os.Args = originalArgs
		resetFlags()
		clearEnvVars()
	})
	setArgs(append([]string{"mcp-invoice-reader"}, args...))
	resetFlags()
	clearEnvVars()
}

func TestLoadFromFlags_DefaultConfig(t *testing.T) {
	prepareLoad(t)

	cfg, err := LoadFromFlags()
	if err != nil {
		t.Fatalf("LoadFromFlags() unexpected error: %v", err)
	}

	if cfg.Mode != "stdio" {
		t.Errorf("LoadFromFlags() Mode = %v, want %v", cfg.Mode, "stdio")
	}
	if cfg.Port != 8080 {
		t.Errorf("LoadFromFlags() Port = %v, want %v", cfg.Port, 8080)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LoadFromFlags() LogLevel = %v, want %v", cfg.LogLevel, "info")
	}
	if cfg.InboxDirectory == "" {
		t.Error("LoadFromFlags() InboxDirectory should not be empty")
	}
	if cfg.PostgresDSN() != "" {
		t.Errorf("LoadFromFlags() PostgresDSN = %q, want disabled", cfg.PostgresDSN())
	}
	if cfg.S3.Endpoint != "" || cfg.RedisURL != "" {
		t.Errorf("LoadFromFlags() S3 endpoint %q, redis %q, want both disabled", cfg.S3.Endpoint, cfg.RedisURL)
	}
	if cfg.OCR.Timeout != 60*time.Second {
		t.Errorf("LoadFromFlags() OCR.Timeout = %v, want %v", cfg.OCR.Timeout, 60*time.Second)
	}
}

func TestLoadFromFlags_ValidFlags(t *testing.T) {
	tests := []struct {
		name            string
		args            []string
		wantMode        string
		wantHost        string
		wantPort        int
		wantLogLevel    string
		wantMaxFileSize int64
	}{
		{
			name:            "stdio mode with custom directory",
			args:            nil,
			wantMode:        "stdio",
			wantHost:        "127.0.0.1",
			wantPort:        8080,
			wantLogLevel:    "info",
			wantMaxFileSize: 100 * 1024 * 1024,
		},
		{
			name:            "server mode with custom host and port",
			args:            []string{"--mode=server", "--host=0.0.0.0", "--port=8000"},
			wantMode:        "server",
			wantHost:        "0.0.0.0",
			wantPort:        8000,
			wantLogLevel:    "info",
			wantMaxFileSize: 100 * 1024 * 1024,
		},
		{
			name:            "debug logging",
			args:            []string{"--loglevel=debug"},
			wantMode:        "stdio",
			wantHost:        "127.0.0.1",
			wantPort:        8080,
			wantLogLevel:    "debug",
			wantMaxFileSize: 100 * 1024 * 1024,
		},
		{
			name:            "custom max file size",
			args:            []string{"--maxfilesize=50000000"},
			wantMode:        "stdio",
			wantHost:        "127.0.0.1",
			wantPort:        8080,
			wantLogLevel:    "info",
			wantMaxFileSize: 50000000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			prepareLoad(t, append(tt.args, "--dir="+tempDir)...)

			cfg, err := LoadFromFlags()
			if err != nil {
				t.Fatalf("LoadFromFlags() unexpected error: %v", err)
			}

			if cfg.Mode != tt.wantMode {
				t.Errorf("LoadFromFlags() Mode = %v, want %v", cfg.Mode, tt.wantMode)
			}
			if cfg.Host != tt.wantHost {
				t.Errorf("LoadFromFlags() Host = %v, want %v", cfg.Host, tt.wantHost)
			}
			if cfg.Port != tt.wantPort {
				t.Errorf("LoadFromFlags() Port = %v, want %v", cfg.Port, tt.wantPort)
			}
			if cfg.LogLevel != tt.wantLogLevel {
				t.Errorf("LoadFromFlags() LogLevel = %v, want %v", cfg.LogLevel, tt.wantLogLevel)
			}
			if cfg.MaxFileSize != tt.wantMaxFileSize {
				t.Errorf("LoadFromFlags() MaxFileSize = %v, want %v", cfg.MaxFileSize, tt.wantMaxFileSize)
			}
			if cfg.InboxDirectory != tempDir {
				t.Errorf("LoadFromFlags() InboxDirectory = %v, want %v", cfg.InboxDirectory, tempDir)
			}
		})
	}
}

func TestLoadFromFlags_EnvironmentVariables(t *testing.T) {
	tempDir := t.TempDir()
	prepareLoad(t)

	os.Setenv("INVOICE_MODE", "server")
	os.Setenv("INVOICE_HOST", "192.168.1.1")
	os.Setenv("INVOICE_PORT", "3000")
	os.Setenv("INVOICE_DIR", tempDir)
	os.Setenv("INVOICE_LOGLEVEL", "warn")
	os.Setenv("INVOICE_MAXFILESIZE", "200000000")
	os.Setenv("INVOICE_CORS_ORIGINS", "http://a.example, http://b.example")
	os.Setenv("INVOICE_OCR_TIMEOUT", "15s")

	cfg, err := LoadFromFlags()
	if err != nil {
		t.Fatalf("LoadFromFlags() unexpected error: %v", err)
	}

	if cfg.Mode != "server" {
		t.Errorf("LoadFromFlags() Mode = %v, want %v", cfg.Mode, "server")
	}
	if cfg.Host != "192.168.1.1" {
		t.Errorf("LoadFromFlags() Host = %v, want %v", cfg.Host, "192.168.1.1")
	}
	if cfg.Port != 3000 {
		t.Errorf("LoadFromFlags() Port = %v, want %v", cfg.Port, 3000)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LoadFromFlags() LogLevel = %v, want %v", cfg.LogLevel, "warn")
	}
	if cfg.MaxFileSize != 200000000 {
		t.Errorf("LoadFromFlags() MaxFileSize = %v, want %v", cfg.MaxFileSize, 200000000)
	}
	origins := cfg.CORSOrigins()
	if len(origins) != 2 || origins[1] != "http://b.example" {
		t.Errorf("LoadFromFlags() CORSOrigins = %v", origins)
	}
	if cfg.OCR.Timeout != 15*time.Second {
		t.Errorf("LoadFromFlags() OCR.Timeout = %v, want %v", cfg.OCR.Timeout, 15*time.Second)
	}
}

func TestLoadFromFlags_UnprefixedInfrastructureVariables(t *testing.T) {
	tempDir := t.TempDir()
	prepareLoad(t, "--dir="+tempDir)

	os.Setenv("POSTGRES_HOST", "db")
	os.Setenv("POSTGRES_PASSWORD", "secret")
	os.Setenv("S3_ENDPOINT", "http://minio:9000")
	os.Setenv("S3_BUCKET", "fatture")
	os.Setenv("REDIS_URL", "redis://redis:6379/0")
	// The prefixed name wins over the alias
	os.Setenv("INVOICE_POSTGRES_DB", "archive")
	os.Setenv("POSTGRES_DB", "ignored")

	cfg, err := LoadFromFlags()
	if err != nil {
		t.Fatalf("LoadFromFlags() unexpected error: %v", err)
	}

	if got, want := cfg.PostgresDSN(), "postgres://invoices:secret@db:5432/archive?sslmode=disable"; got != want {
		t.Errorf("LoadFromFlags() PostgresDSN = %v, want %v", got, want)
	}
	if cfg.S3.Endpoint != "http://minio:9000" || cfg.S3.Bucket != "fatture" {
		t.Errorf("LoadFromFlags() S3 = %+v", cfg.S3)
	}
	if cfg.RedisURL != "redis://redis:6379/0" {
		t.Errorf("LoadFromFlags() RedisURL = %v", cfg.RedisURL)
	}
}

func TestLoadFromFlags_FlagOverridesEnvironment(t *testing.T) {
	prepareLoad(t, "--mode=stdio", "--host=localhost", "--port=8888", "--postgres-host=flaghost")

	os.Setenv("INVOICE_MODE", "server")
	os.Setenv("INVOICE_HOST", "192.168.1.1")
	os.Setenv("INVOICE_PORT", "3000")
	os.Setenv("POSTGRES_HOST", "envhost")

	cfg, err := LoadFromFlags()
	if err != nil {
		t.Fatalf("LoadFromFlags() unexpected error: %v", err)
	}

	// Flags should override environment variables
	if cfg.Mode != "stdio" {
		t.Errorf("LoadFromFlags() Mode = %v, want %v (should override env)", cfg.Mode, "stdio")
	}
	if cfg.Host != "localhost" {
		t.Errorf("LoadFromFlags() Host = %v, want %v (should override env)", cfg.Host, "localhost")
	}
	if cfg.Port != 8888 {
		t.Errorf("LoadFromFlags() Port = %v, want %v (should override env)", cfg.Port, 8888)
	}
	if cfg.Postgres.Host != "flaghost" {
		t.Errorf("LoadFromFlags() Postgres.Host = %v, want %v (should override env)", cfg.Postgres.Host, "flaghost")
	}
}

func TestLoadFromFlags_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "invalid mode",
			args:    []string{"--mode=invalid"},
			wantErr: "mode must be either 'stdio' or 'server'",
		},
		{
			name:    "invalid port",
			args:    []string{"--mode=server", "--port=99999"},
			wantErr: "port must be between 1 and 65535",
		},
		{
			name:    "invalid log level",
			args:    []string{"--loglevel=invalid"},
			wantErr: "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			prepareLoad(t, append(tt.args, "--dir="+tempDir)...)

			_, err := LoadFromFlags()
			if err == nil {
				t.Fatalf("LoadFromFlags() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadFromFlags() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFlags_VersionFlag(t *testing.T) {
	prepareLoad(t, "--version")

	_, err := LoadFromFlags()
	if err == nil {
		t.Error("LoadFromFlags() expected version error")
	}
	if err != nil && err.Error() != "version requested" {
		t.Errorf("LoadFromFlags() error = %v, want 'version requested'", err)
	}
}
