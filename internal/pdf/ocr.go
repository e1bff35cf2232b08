package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct {
	logger zerolog.Logger
}

// NewExecRunner returns a Runner backed by os/exec
func NewExecRunner(logger zerolog.Logger) Runner {
	return execRunner{logger: logger}
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	dur := time.Since(start)

	if err != nil {
		r.logger.Error().
			Str("cmd", name).
			Str("args", strings.Join(args, " ")).
			Int64("duration_ms", dur.Milliseconds()).
			Err(err).
			Str("stderr", truncate(errb.String(), 8<<10)). // cap at 8KB
			Msg("exec failed")
	} else {
		r.logger.Debug().
			Str("cmd", name).
			Str("args", strings.Join(args, " ")).
			Int64("duration_ms", dur.Milliseconds()).
			Int("stdout_bytes", out.Len()).
			Int("stderr_bytes", errb.Len()).
			Msg("exec ok")
	}

	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// OCRConfig names the external tools used when a PDF has no usable text layer
type OCRConfig struct {
	Pdftotext string
	Pdftoppm  string
	Tesseract string
	// Languages is the primary tesseract language set, FallbackLanguage is
	// tried when the primary set is not installed
	Languages        string
	FallbackLanguage string
	DPI              int
	// Timeout bounds each external command; zero means no limit
	Timeout time.Duration
}

// DefaultOCRConfig returns the tool names resolved through PATH
func DefaultOCRConfig() OCRConfig {
	return OCRConfig{
		Pdftotext:        "pdftotext",
		Pdftoppm:         "pdftoppm",
		Tesseract:        "tesseract",
		Languages:        "ita+eng",
		FallbackLanguage: "eng",
		DPI:              300,
		Timeout:          60 * time.Second,
	}
}

// OCR wraps the poppler and tesseract command line tools
type OCR struct {
	cfg    OCRConfig
	runner Runner
	logger zerolog.Logger
}

// NewOCR creates an OCR helper. A nil runner uses os/exec.
func NewOCR(cfg OCRConfig, runner Runner, logger zerolog.Logger) *OCR {
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &OCR{cfg: cfg, runner: runner, logger: logger}
}

func (o *OCR) run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}
	return o.runner.Run(ctx, name, args...)
}

// Pdftotext extracts the text layer with poppler's layout mode.
// An empty string is returned when the tool is missing or fails.
func (o *OCR) Pdftotext(ctx context.Context, pdfPath string) string {
	if o.cfg.Pdftotext == "" {
		return ""
	}
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, _, err := o.run(ctx, o.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", pdfPath, "-")
	if err != nil {
		return ""
	}
	return string(out)
}

// RenderFirstPage rasterizes page 1 to <prefix>.png and returns the image path
func (o *OCR) RenderFirstPage(ctx context.Context, pdfPath, prefix string) (string, error) {
	// pdftoppm -f 1 -l 1 -r 300 -png -singlefile <in.pdf> <prefix>
	_, errb, err := o.run(ctx, o.cfg.Pdftoppm,
		"-f", "1", "-l", "1", "-r", fmt.Sprintf("%d", o.cfg.DPI), "-png", "-singlefile", pdfPath, prefix)
	if err != nil {
		return "", fmt.Errorf("pdftoppm failed: %w: %s", err, truncate(string(errb), 512))
	}
	return prefix + ".png", nil
}

// Recognize runs tesseract on an image with the primary languages, retrying
// with the fallback language. Failures yield an empty string.
func (o *OCR) Recognize(ctx context.Context, imagePath string) string {
	// tesseract <img> stdout -l ita+eng
	out, _, err := o.run(ctx, o.cfg.Tesseract, imagePath, "stdout", "-l", o.cfg.Languages)
	if err == nil {
		return string(out)
	}
	if o.cfg.FallbackLanguage == "" || o.cfg.FallbackLanguage == o.cfg.Languages || ctx.Err() != nil {
		return ""
	}

	o.logger.Debug().Str("image", filepath.Base(imagePath)).Msg("retrying OCR with fallback language")
	out, _, err = o.run(ctx, o.cfg.Tesseract, imagePath, "stdout", "-l", o.cfg.FallbackLanguage)
	if err != nil {
		return ""
	}
	return string(out)
}

// Status reports which of the configured tools can be found
func (o *OCR) Status() OCRStatus {
	found := func(name string) bool {
		if name == "" {
			return false
		}
		_, err := exec.LookPath(name)
		return err == nil
	}
	return OCRStatus{
		Pdftotext: found(o.cfg.Pdftotext),
		Pdftoppm:  found(o.cfg.Pdftoppm),
		Tesseract: found(o.cfg.Tesseract),
		Languages: o.cfg.Languages,
	}
}
