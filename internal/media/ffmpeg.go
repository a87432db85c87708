package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"lectern/internal/config"
	"lectern/internal/services"
)

// SampledFrame is one frame written by the sampler, in frame order.
type SampledFrame struct {
	Seq       int
	Timestamp float64
	Path      string
}

// Sampler extracts frames and audio from a downloaded video with ffmpeg and
// reads container metadata with ffprobe.
type Sampler struct {
	ffmpeg  string
	ffprobe string
	cfg     config.Extraction
	run     CommandRunner
}

// NewSampler builds a sampler from configuration.
func NewSampler(cfg *config.Config) *Sampler {
	return &Sampler{
		ffmpeg:  cfg.FFmpegBinary(),
		ffprobe: cfg.FFprobeBinary(),
		cfg:     cfg.Extraction,
		run:     runCommand,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Sampler) WithCommandRunner(run CommandRunner) {
	s.run = run
}

// Duration reads the container duration in seconds via ffprobe.
func (s *Sampler) Duration(ctx context.Context, videoPath string) (float64, error) {
	out, err := s.run(ctx, s.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "extract", "probe duration", "ffprobe failed", err)
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "extract", "probe duration", "parse ffprobe output", err)
	}
	if duration <= 0 {
		return 0, services.Wrap(services.ErrValidation, "extract", "probe duration", "video has no duration", nil)
	}
	return duration, nil
}

// SampleFrames writes one JPEG per sampling interval into framesDir and
// returns the frames in order. Frame n (1-based) is stamped at
// (n-1)*interval seconds, matching ffmpeg's fps filter which emits the first
// frame at t=0.
func (s *Sampler) SampleFrames(ctx context.Context, videoPath, framesDir string) ([]SampledFrame, error) {
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "extract", "sample frames", "create frames dir", err)
	}

	pattern := filepath.Join(framesDir, "frame_%06d.jpg")
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=1/%g", s.cfg.IntervalSeconds),
		"-q:v", strconv.Itoa(jpegQScale(s.cfg.JPEGQuality)),
		pattern,
	}
	if _, err := s.run(ctx, s.ffmpeg, args...); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "extract", "sample frames", "ffmpeg failed", err)
	}

	return s.collectFrames(framesDir)
}

func (s *Sampler) collectFrames(framesDir string) ([]SampledFrame, error) {
	entries, err := os.ReadDir(framesDir)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "extract", "sample frames", "read frames dir", err)
	}

	var frames []SampledFrame
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "frame_") || !strings.HasSuffix(name, ".jpg") {
			continue
		}
		seqStr := strings.TrimSuffix(strings.TrimPrefix(name, "frame_"), ".jpg")
		seq, err := strconv.Atoi(seqStr)
		if err != nil {
			continue
		}
		frames = append(frames, SampledFrame{
			Seq:       seq,
			Timestamp: float64(seq-1) * s.cfg.IntervalSeconds,
			Path:      filepath.Join(framesDir, name),
		})
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].Seq < frames[j].Seq })

	if len(frames) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, "extract", "sample frames", "ffmpeg produced no frames", nil)
	}
	return frames, nil
}

// jpegQScale maps a 1-100 quality to ffmpeg's inverted 2-31 -q:v scale.
func jpegQScale(quality int) int {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	scale := (100 - quality) * 29 / 99
	return scale + 2
}

// ExtractAudio writes a mono 16kHz WAV suitable for speech-to-text.
func (s *Sampler) ExtractAudio(ctx context.Context, videoPath, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "transcribe", "extract audio", "create audio dir", err)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", videoPath,
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
	if _, err := s.run(ctx, s.ffmpeg, args...); err != nil {
		return services.Wrap(services.ErrExternalTool, "transcribe", "extract audio", "ffmpeg failed", err)
	}
	return nil
}
