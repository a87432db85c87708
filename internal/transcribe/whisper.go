// Package transcribe wraps the whisper CLI for lecture audio. Transcription
// enriches the rendered document but is never fatal: any failure here is
// reported as a skip reason, not a session failure.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"lectern/internal/config"
	"lectern/internal/language"
	"lectern/internal/services"
)

// Segment is one timed span of recognized speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is whisper's JSON output for one audio file.
type Transcript struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

// CommandRunner executes whisper; tests substitute fakes that write the JSON
// output themselves.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Service runs whisper against extracted lecture audio.
type Service struct {
	binary string
	cfg    config.Transcription
	run    CommandRunner
}

// NewService builds a transcription service from configuration.
func NewService(cfg *config.Config) *Service {
	return &Service{
		binary: cfg.WhisperBinary(),
		cfg:    cfg.Transcription,
		run:    runWhisper,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(run CommandRunner) {
	s.run = run
}

// Enabled reports whether transcription is configured to run.
func (s *Service) Enabled() bool {
	return s.cfg.Enabled
}

func runWhisper(ctx context.Context, name string, args ...string) error {
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

// Transcribe runs whisper on audioPath and returns the parsed transcript
// plus the JSON file location. The timeout scales with audio length so long
// lectures get a proportional budget.
func (s *Service) Transcribe(ctx context.Context, audioPath, outputDir, lang string, durationSec float64) (*Transcript, string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, "", services.Wrap(services.ErrConfiguration, "transcribe", "run whisper", "create output dir", err)
	}

	budget := s.budget(durationSec)
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	model := s.cfg.Model
	if model == "" {
		model = "base"
	}
	args := []string{
		audioPath,
		"--model", model,
		"--output_format", "json",
		"--output_dir", outputDir,
	}
	if iso2 := language.ToISO2(lang); iso2 != "" {
		args = append(args, "--language", iso2)
	}

	if err := s.run(runCtx, s.binary, args...); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, "", services.Wrap(services.ErrTimeout, "transcribe", "run whisper",
				fmt.Sprintf("transcription exceeded %s", budget), err)
		}
		return nil, "", services.Wrap(services.ErrExternalTool, "transcribe", "run whisper", "whisper failed", err)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	jsonPath := filepath.Join(outputDir, base+".json")
	transcript, err := LoadTranscript(jsonPath)
	if err != nil {
		return nil, "", err
	}
	return transcript, jsonPath, nil
}

func (s *Service) budget(durationSec float64) time.Duration {
	perMinute := s.cfg.TimeoutPerMinute
	if perMinute <= 0 {
		perMinute = 60
	}
	minutes := durationSec / 60
	if minutes < 1 {
		minutes = 1
	}
	return time.Duration(minutes*float64(perMinute)) * time.Second
}

// LoadTranscript parses a whisper JSON output file.
func LoadTranscript(jsonPath string) (*Transcript, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "transcribe", "load transcript", "read whisper json", err)
	}
	var transcript Transcript
	if err := json.Unmarshal(data, &transcript); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "transcribe", "load transcript", "parse whisper json", err)
	}
	return &transcript, nil
}

// SegmentsAround returns the transcript segments overlapping the window
// [start, end), used to place spoken context under each slide.
func (t *Transcript) SegmentsAround(start, end float64) []Segment {
	var out []Segment
	for _, seg := range t.Segments {
		if seg.End <= start || seg.Start >= end {
			continue
		}
		out = append(out, seg)
	}
	return out
}
