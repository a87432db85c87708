// Package ocr extracts slide text with tesseract. TSV output is requested so
// per-word confidences are available; the result confidence is the mean word
// confidence scaled to [0,1].
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"lectern/internal/config"
	"lectern/internal/language"
	"lectern/internal/services"
)

// Result is the recognized text for one slide image.
type Result struct {
	Text       string
	Confidence float64
	Language   string
}

// CommandRunner executes tesseract; tests substitute fakes that write the
// TSV file themselves.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Engine runs tesseract against slide images.
type Engine struct {
	binary   string
	langSpec string
	cfg      config.OCR
	run      CommandRunner
}

// NewEngine builds an engine from configuration.
func NewEngine(cfg *config.Config) *Engine {
	return &Engine{
		binary:   cfg.TesseractBinary(),
		langSpec: language.TesseractSpec(cfg.OCR.Languages),
		cfg:      cfg.OCR,
		run:      runTesseract,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (e *Engine) WithCommandRunner(run CommandRunner) {
	e.run = run
}

// LanguageSpec returns the tesseract -l argument in use.
func (e *Engine) LanguageSpec() string {
	return e.langSpec
}

func runTesseract(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return fmt.Errorf("%s: %w: %s", name, err, detail)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// ExtractText recognizes text in the image at imagePath. Tesseract writes
// its TSV next to the image under a scratch base name that is removed before
// returning.
func (e *Engine) ExtractText(ctx context.Context, imagePath string) (Result, error) {
	outputBase := strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".ocr"
	tsvPath := outputBase + ".tsv"
	defer os.Remove(tsvPath)

	args := []string{imagePath, outputBase, "-l", e.langSpec, "tsv"}
	if err := e.run(ctx, e.binary, args...); err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "ocr", "extract text", "tesseract failed", err)
	}

	content, err := os.ReadFile(tsvPath)
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "ocr", "extract text", "read tsv output", err)
	}

	text, confidence := ParseTSV(string(content))
	return Result{Text: text, Confidence: confidence, Language: e.langSpec}, nil
}

// ParseTSV folds tesseract TSV output into the recognized text and the mean
// word confidence in [0,1]. Rows with confidence -1 are structural (page,
// block, line) and are skipped; an image with no words yields ("", 0).
func ParseTSV(content string) (string, float64) {
	var (
		words     []string
		totalConf float64
	)
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if i == 0 {
			continue // header
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 12 {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || conf < 0 {
			continue
		}
		word := strings.TrimSpace(cols[11])
		if word == "" {
			continue
		}
		words = append(words, word)
		totalConf += conf
	}
	if len(words) == 0 {
		return "", 0
	}
	return strings.Join(words, " "), totalConf / float64(len(words)) / 100
}

// Reliable reports whether a result's confidence clears the configured
// threshold. Unreliable text is still kept; the caller flags it for review.
func (e *Engine) Reliable(r Result) bool {
	return r.Confidence >= e.cfg.ConfidenceThreshold
}
