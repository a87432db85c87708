// Package verify reviews extracted slides with a Gemini model. Verification
// is an optional enrichment: a rejected slide is flagged for review, never
// dropped, and any verifier failure is tolerated by the caller.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"

	"lectern/internal/config"
	"lectern/internal/services"
)

const reviewPrompt = `You are reviewing a frame extracted from a lecture video that was classified as a unique presentation slide. The OCR text recognized on it follows.

OCR text:
---
%s
---

Decide whether this frame is a genuine content slide (not a transition blur, speaker close-up, blank screen, or duplicate artifact). Respond with exactly one JSON object and nothing else:
{"approved": true|false, "reason": "<short reason, only when not approved>"}`

// Judgement is the verifier's verdict for one slide.
type Judgement struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

// generateFunc produces the model's raw text response for a prompt plus a
// JPEG slide image. Tests substitute fakes.
type generateFunc func(ctx context.Context, prompt string, image []byte) (string, error)

// Verifier asks a Gemini model to review slide images.
type Verifier struct {
	cfg      config.Verification
	generate generateFunc
}

// NewVerifier builds a verifier from configuration. The API key must already
// be validated; an empty key disables construction at the config layer.
func NewVerifier(cfg *config.Config) *Verifier {
	v := &Verifier{cfg: cfg.Verification}
	v.generate = v.generateWithGemini
	return v
}

// WithGenerateFunc sets a custom generation function (for testing).
func (v *Verifier) WithGenerateFunc(fn func(ctx context.Context, prompt string, image []byte) (string, error)) {
	v.generate = fn
}

// Enabled reports whether verification is configured to run.
func (v *Verifier) Enabled() bool {
	return v.cfg.Enabled && v.cfg.APIKey != ""
}

// ReviewSlide sends one slide image and its OCR text for review.
func (v *Verifier) ReviewSlide(ctx context.Context, imagePath, ocrText string) (Judgement, error) {
	image, err := os.ReadFile(imagePath)
	if err != nil {
		return Judgement{}, services.Wrap(services.ErrExternalTool, "verify", "review slide", "read slide image", err)
	}

	timeout := time.Duration(v.cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	reviewCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prompt := fmt.Sprintf(reviewPrompt, strings.TrimSpace(ocrText))
	raw, err := v.generate(reviewCtx, prompt, image)
	if err != nil {
		if reviewCtx.Err() == context.DeadlineExceeded {
			return Judgement{}, services.Wrap(services.ErrTimeout, "verify", "review slide",
				fmt.Sprintf("review exceeded %s", timeout), err)
		}
		return Judgement{}, services.Wrap(services.ErrExternalTool, "verify", "review slide", "gemini request failed", err)
	}

	judgement, err := parseJudgement(raw)
	if err != nil {
		return Judgement{}, services.Wrap(services.ErrExternalTool, "verify", "review slide", "parse model response", err)
	}
	return judgement, nil
}

func (v *Verifier) generateWithGemini(ctx context.Context, prompt string, image []byte) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  v.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("create client: %w", err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(image, "image/jpeg"),
		}, genai.RoleUser),
	}
	result, err := client.Models.GenerateContent(ctx, v.cfg.Model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty response from model")
	}

	var text strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	return text.String(), nil
}

// parseJudgement extracts the JSON object from the response, tolerating
// markdown fences and surrounding prose the model sometimes adds.
func parseJudgement(raw string) (Judgement, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Judgement{}, fmt.Errorf("no JSON object in %q", raw)
	}
	var judgement Judgement
	if err := json.Unmarshal([]byte(raw[start:end+1]), &judgement); err != nil {
		return Judgement{}, fmt.Errorf("decode judgement: %w", err)
	}
	return judgement, nil
}
