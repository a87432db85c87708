package config

import (
	"errors"
	"fmt"
	"strings"
)

var supportedOCRLanguages = map[string]struct{}{
	"eng": {}, "deu": {}, "fra": {}, "spa": {}, "ita": {}, "por": {},
	"nld": {}, "pol": {}, "rus": {}, "jpn": {}, "kor": {},
	"chi_sim": {}, "chi_tra": {}, "vie": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateExtraction(); err != nil {
		return err
	}
	if err := c.validateDownload(); err != nil {
		return err
	}
	if err := c.validateOCR(); err != nil {
		return err
	}
	if err := c.validateVerification(); err != nil {
		return err
	}
	if err := c.validateReport(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateExtraction() error {
	if c.Extraction.IntervalSeconds < 0.1 || c.Extraction.IntervalSeconds > 60 {
		return fmt.Errorf("extraction.interval_seconds must be between 0.1 and 60, got %g", c.Extraction.IntervalSeconds)
	}
	if c.Extraction.SimilarityThreshold < 0 || c.Extraction.SimilarityThreshold > 1 {
		return fmt.Errorf("extraction.similarity_threshold must be between 0 and 1, got %g", c.Extraction.SimilarityThreshold)
	}
	if c.Extraction.JPEGQuality < 1 || c.Extraction.JPEGQuality > 100 {
		return errors.New("extraction.jpeg_quality must be between 1 and 100")
	}
	if c.Extraction.MaxFrameFailurePct < 0 || c.Extraction.MaxFrameFailurePct > 1 {
		return errors.New("extraction.max_frame_failure_pct must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateDownload() error {
	return ensurePositiveMap(map[string]int{
		"download.max_video_minutes":  c.Download.MaxVideoMinutes,
		"download.network_timeout":    c.Download.NetworkTimeout,
		"download.timeout_per_minute": c.Download.TimeoutPerMinute,
	})
}

func (c *Config) validateOCR() error {
	if len(c.OCR.Languages) == 0 {
		return errors.New("ocr.languages must list at least one language")
	}
	for _, lang := range c.OCR.Languages {
		if _, ok := supportedOCRLanguages[strings.TrimSpace(lang)]; !ok {
			return fmt.Errorf("ocr.languages: unsupported language code %q", lang)
		}
	}
	if c.OCR.ConfidenceThreshold < 0 || c.OCR.ConfidenceThreshold > 1 {
		return errors.New("ocr.confidence_threshold must be between 0 and 1")
	}
	if c.OCR.MaxFailurePct < 0 || c.OCR.MaxFailurePct > 1 {
		return errors.New("ocr.max_failure_pct must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateVerification() error {
	if !c.Verification.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Verification.APIKey) == "" {
		return errors.New("verification.api_key must be set when verification.enabled is true")
	}
	if strings.TrimSpace(c.Verification.Model) == "" {
		return errors.New("verification.model must be set when verification.enabled is true")
	}
	return nil
}

func (c *Config) validateReport() error {
	switch c.Report.Format {
	case "markdown", "docx":
		return nil
	default:
		return fmt.Errorf("report.format must be \"markdown\" or \"docx\", got %q", c.Report.Format)
	}
}

func (c *Config) validateRetry() error {
	return ensurePositiveMap(map[string]int{
		"retry.max_attempts":            c.Retry.MaxAttempts,
		"retry.backoff_base_seconds":    c.Retry.BackoffBase,
		"retry.backoff_ceiling_seconds": c.Retry.BackoffCeiling,
	})
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", key, value)
		}
	}
	return nil
}
