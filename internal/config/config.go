package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	WorkDir   string `toml:"work_dir"`
	LogDir    string `toml:"log_dir"`
	LockDir   string `toml:"lock_dir"`
}

// Download contains settings for fetching source videos.
type Download struct {
	// MaxVideoMinutes rejects videos longer than this before download.
	MaxVideoMinutes int `toml:"max_video_minutes"`
	// NetworkTimeout is the per-attempt timeout in seconds for metadata probes.
	NetworkTimeout int `toml:"network_timeout"`
	// TimeoutPerMinute scales the download budget with video length (seconds per minute of video).
	TimeoutPerMinute int    `toml:"timeout_per_minute"`
	Format           string `toml:"format"`
}

// Extraction contains frame sampling and deduplication settings.
type Extraction struct {
	// IntervalSeconds is the frame sampling interval (0.1 - 60).
	IntervalSeconds float64 `toml:"interval_seconds"`
	// SimilarityThreshold marks an incoming fingerprint a duplicate when its
	// similarity to an accepted one is >= this value (0.0 - 1.0).
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	JPEGQuality         int     `toml:"jpeg_quality"`
	// MaxFrameFailurePct caps skipped frames before the stage fails.
	MaxFrameFailurePct float64 `toml:"max_frame_failure_pct"`
}

// OCR contains text recognition settings.
type OCR struct {
	Languages           []string `toml:"languages"`
	ConfidenceThreshold float64  `toml:"confidence_threshold"`
	// MaxFailurePct caps per-slide OCR failures before the stage fails.
	MaxFailurePct float64 `toml:"max_failure_pct"`
}

// Transcription contains speech-to-text settings. Failures are never fatal.
type Transcription struct {
	Enabled bool   `toml:"enabled"`
	Model   string `toml:"model"`
	Binary  string `toml:"binary"`
	// TimeoutPerMinute scales the transcription budget with audio length.
	TimeoutPerMinute int `toml:"timeout_per_minute"`
}

// Verification contains optional LLM slide review settings.
type Verification struct {
	Enabled        bool   `toml:"enabled"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains optional ntfy push settings. An empty topic
// disables notifications entirely.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Report contains document rendering settings.
type Report struct {
	// Format is "markdown" or "docx".
	Format          string `toml:"format"`
	IncludeTimeline bool   `toml:"include_timeline"`
}

// Retry contains stage retry policy settings.
type Retry struct {
	MaxAttempts    int `toml:"max_attempts"`
	BackoffBase    int `toml:"backoff_base_seconds"`
	BackoffCeiling int `toml:"backoff_ceiling_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for lectern.
//
// Configuration sections by subsystem:
//   - Paths: output, scratch, log, and lock directories
//   - Download: yt-dlp limits and timeouts
//   - Extraction: frame sampling interval and dedup threshold
//   - OCR: tesseract languages and confidence threshold
//   - Transcription: optional whisper settings
//   - Verification: optional LLM slide review
//   - Notifications: optional ntfy push when a session finishes
//   - Report: rendered document format
//   - Retry: stage retry policy
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Download      Download      `toml:"download"`
	Extraction    Extraction    `toml:"extraction"`
	OCR           OCR           `toml:"ocr"`
	Transcription Transcription `toml:"transcription"`
	Verification  Verification  `toml:"verification"`
	Notifications Notifications `toml:"notifications"`
	Report        Report        `toml:"report"`
	Retry         Retry         `toml:"retry"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/lectern/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a file was found at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/lectern/config.toml")
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("lectern.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for pipeline operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.WorkDir, c.Paths.LogDir, c.Paths.LockDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return err
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Paths.LockDir, err = expandPath(c.Paths.LockDir); err != nil {
		return err
	}
	c.Report.Format = strings.ToLower(strings.TrimSpace(c.Report.Format))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

// YtDlpBinary returns the downloader executable name.
func (c *Config) YtDlpBinary() string { return "yt-dlp" }

// FFmpegBinary returns the frame and audio extraction executable name.
func (c *Config) FFmpegBinary() string { return "ffmpeg" }

// FFprobeBinary returns the media probing executable name.
func (c *Config) FFprobeBinary() string { return "ffprobe" }

// TesseractBinary returns the OCR executable name.
func (c *Config) TesseractBinary() string { return "tesseract" }

// WhisperBinary returns the speech transcription executable name.
func (c *Config) WhisperBinary() string {
	if b := strings.TrimSpace(c.Transcription.Binary); b != "" {
		return b
	}
	return "whisper"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
