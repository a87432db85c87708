package media_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lectern/internal/media"
	"lectern/internal/services"
	"lectern/internal/testsupport"
)

func TestDurationParsesFFprobeOutput(t *testing.T) {
	s := media.NewSampler(testsupport.NewConfig(t))
	s.WithCommandRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if name != "ffprobe" {
			t.Fatalf("binary = %s", name)
		}
		return []byte("1834.217000\n"), nil
	})

	duration, err := s.Duration(context.Background(), "/tmp/v.mp4")
	if err != nil {
		t.Fatalf("duration: %v", err)
	}
	if duration != 1834.217 {
		t.Fatalf("duration = %v", duration)
	}
}

func TestDurationRejectsGarbage(t *testing.T) {
	s := media.NewSampler(testsupport.NewConfig(t))
	s.WithCommandRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("N/A"), nil
	})
	if _, err := s.Duration(context.Background(), "/tmp/v.mp4"); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func writeTestJPEG(t *testing.T, path string, shade uint8) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write jpeg: %v", err)
	}
}

func TestSampleFramesOrdersAndStampsFrames(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Extraction.IntervalSeconds = 5
	s := media.NewSampler(cfg)

	framesDir := filepath.Join(testsupport.BaseDir(cfg), "frames")
	s.WithCommandRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if name != "ffmpeg" {
			t.Fatalf("binary = %s", name)
		}
		var hasFilter bool
		for _, arg := range args {
			if arg == "fps=1/5" {
				hasFilter = true
			}
		}
		if !hasFilter {
			t.Fatalf("missing fps filter in %v", args)
		}
		if err := os.MkdirAll(framesDir, 0o755); err != nil {
			return nil, err
		}
		// Write out of order to prove collection sorts by sequence.
		for _, n := range []int{3, 1, 2} {
			writeTestJPEG(t, filepath.Join(framesDir, fmt.Sprintf("frame_%06d.jpg", n)), uint8(n*40))
		}
		return nil, nil
	})

	frames, err := s.SampleFrames(context.Background(), "/tmp/v.mp4", framesDir)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("frames = %d", len(frames))
	}
	for i, frame := range frames {
		if frame.Seq != i+1 {
			t.Fatalf("frame %d seq = %d", i, frame.Seq)
		}
		if want := float64(i) * 5; frame.Timestamp != want {
			t.Fatalf("frame %d timestamp = %v, want %v", i, frame.Timestamp, want)
		}
	}
}

func TestSampleFramesEmptyOutputFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := media.NewSampler(cfg)
	s.WithCommandRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, nil
	})
	_, err := s.SampleFrames(context.Background(), "/tmp/v.mp4", filepath.Join(testsupport.BaseDir(cfg), "frames"))
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestExtractAudioBuildsWhisperFriendlyWAV(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := media.NewSampler(cfg)
	var captured []string
	s.WithCommandRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		captured = args
		return nil, nil
	})

	dest := filepath.Join(testsupport.BaseDir(cfg), "audio", "v.wav")
	if err := s.ExtractAudio(context.Background(), "/tmp/v.mp4", dest); err != nil {
		t.Fatalf("extract audio: %v", err)
	}
	joined := strings.Join(captured, " ")
	for _, want := range []string{"-ac 1", "-ar 16000", "pcm_s16le"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args missing %q: %s", want, joined)
		}
	}
}

func TestFingerprintFileMatchesDirectCompute(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.jpg")

	// Horizontal gradient gives a non-trivial fingerprint.
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 8)})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	fp, err := media.FingerprintFile(path)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	again, err := media.FingerprintFile(path)
	if err != nil {
		t.Fatalf("fingerprint again: %v", err)
	}
	if fp != again {
		t.Fatalf("fingerprint not deterministic: %v vs %v", fp, again)
	}
	if fp == 0 {
		t.Fatal("gradient image should not hash to zero")
	}
}

func TestFingerprintFileRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.jpg")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := media.FingerprintFile(path); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}
