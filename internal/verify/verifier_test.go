package verify_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lectern/internal/services"
	"lectern/internal/testsupport"
	"lectern/internal/verify"
)

func writeSlide(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "slide.jpg")
	if err := os.WriteFile(path, []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatalf("write slide: %v", err)
	}
	return path
}

func newVerifier(t *testing.T) *verify.Verifier {
	cfg := testsupport.NewConfig(t)
	cfg.Verification.Enabled = true
	cfg.Verification.APIKey = "test-key"
	return verify.NewVerifier(cfg)
}

func TestReviewSlideApproved(t *testing.T) {
	v := newVerifier(t)
	v.WithGenerateFunc(func(ctx context.Context, prompt string, image []byte) (string, error) {
		if !strings.Contains(prompt, "Raft overview") {
			t.Fatalf("prompt missing OCR text: %s", prompt)
		}
		if string(image) != "jpeg-bytes" {
			t.Fatal("image bytes not forwarded")
		}
		return `{"approved": true}`, nil
	})

	judgement, err := v.ReviewSlide(context.Background(), writeSlide(t), "Raft overview")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if !judgement.Approved {
		t.Fatalf("judgement = %+v", judgement)
	}
}

func TestReviewSlideRejectedWithReason(t *testing.T) {
	v := newVerifier(t)
	v.WithGenerateFunc(func(ctx context.Context, prompt string, image []byte) (string, error) {
		return "```json\n{\"approved\": false, \"reason\": \"speaker close-up\"}\n```", nil
	})

	judgement, err := v.ReviewSlide(context.Background(), writeSlide(t), "")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if judgement.Approved || judgement.Reason != "speaker close-up" {
		t.Fatalf("judgement = %+v", judgement)
	}
}

func TestReviewSlideModelGarbage(t *testing.T) {
	v := newVerifier(t)
	v.WithGenerateFunc(func(ctx context.Context, prompt string, image []byte) (string, error) {
		return "I cannot help with that.", nil
	})
	_, err := v.ReviewSlide(context.Background(), writeSlide(t), "")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestReviewSlideRequestFailure(t *testing.T) {
	v := newVerifier(t)
	v.WithGenerateFunc(func(ctx context.Context, prompt string, image []byte) (string, error) {
		return "", errors.New("RESOURCE_EXHAUSTED")
	})
	_, err := v.ReviewSlide(context.Background(), writeSlide(t), "")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !services.Retryable(err) {
		t.Fatal("request failure should be retryable")
	}
}

func TestEnabledRequiresKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Verification.Enabled = true
	cfg.Verification.APIKey = ""
	if verify.NewVerifier(cfg).Enabled() {
		t.Fatal("verifier without API key must report disabled")
	}
}
