package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lectern/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Extraction.SimilarityThreshold != 0.85 {
		t.Fatalf("unexpected default threshold %g", cfg.Extraction.SimilarityThreshold)
	}
	if cfg.Report.Format != "markdown" {
		t.Fatalf("unexpected default report format %q", cfg.Report.Format)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if exists {
		t.Fatal("file should not exist")
	}
	if resolved != path {
		t.Fatalf("resolved = %q, want %q", resolved, path)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Fatalf("expected default retry attempts, got %d", cfg.Retry.MaxAttempts)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[extraction]
interval_seconds = 2.0
similarity_threshold = 0.9

[ocr]
languages = ["eng", "deu"]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be found")
	}
	if cfg.Extraction.IntervalSeconds != 2.0 {
		t.Fatalf("interval = %g", cfg.Extraction.IntervalSeconds)
	}
	if cfg.Extraction.SimilarityThreshold != 0.9 {
		t.Fatalf("threshold = %g", cfg.Extraction.SimilarityThreshold)
	}
	if len(cfg.OCR.Languages) != 2 || cfg.OCR.Languages[1] != "deu" {
		t.Fatalf("languages = %v", cfg.OCR.Languages)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"interval too small", func(c *config.Config) { c.Extraction.IntervalSeconds = 0.01 }, "interval_seconds"},
		{"interval too large", func(c *config.Config) { c.Extraction.IntervalSeconds = 120 }, "interval_seconds"},
		{"threshold out of range", func(c *config.Config) { c.Extraction.SimilarityThreshold = 1.5 }, "similarity_threshold"},
		{"no languages", func(c *config.Config) { c.OCR.Languages = nil }, "languages"},
		{"unknown language", func(c *config.Config) { c.OCR.Languages = []string{"klingon"} }, "unsupported language"},
		{"bad report format", func(c *config.Config) { c.Report.Format = "pdf" }, "report.format"},
		{"verification without key", func(c *config.Config) { c.Verification.Enabled = true }, "api_key"},
		{"zero retry attempts", func(c *config.Config) { c.Retry.MaxAttempts = 0 }, "max_attempts"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("create sample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	if !exists {
		t.Fatal("sample config should exist")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config should validate: %v", err)
	}
}

func TestExpandPathHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := config.ExpandPath("~/lectern")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(home, "lectern") {
		t.Fatalf("expand = %q", got)
	}
}
