// Package report renders the final slide document. Markdown is the primary
// format, mirroring what the extraction produced: title, video metadata, an
// optional mermaid timeline, then one section per slide with its image and
// recognized text. DOCX output reuses the same document model.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lectern/internal/config"
	"lectern/internal/services"
)

// Slide is one rendered slide section. Number is 1-based for display.
type Slide struct {
	Number         int
	Timestamp      float64
	ImagePath      string
	Text           string
	Confidence     float64
	Language       string
	OCRFailed      bool
	RequiresReview bool
	ReviewReason   string
}

// TranscriptExcerpt is a snippet of spoken context attached to a slide.
type TranscriptExcerpt struct {
	SlideNumber int
	Text        string
}

// Document is everything the renderers need.
type Document struct {
	Title       string
	SourceURL   string
	DurationSec float64
	Slides      []Slide
	Excerpts    []TranscriptExcerpt
	Warnings    int
}

// Renderer writes documents in the configured format.
type Renderer struct {
	cfg config.Report
}

// NewRenderer builds a renderer from configuration.
func NewRenderer(cfg *config.Config) *Renderer {
	return &Renderer{cfg: cfg.Report}
}

// Format returns the configured output format.
func (r *Renderer) Format() string {
	return r.cfg.Format
}

// Render writes the document into outputDir and returns the file path. A
// document with no slides is a caller bug; the orchestrator fails the
// session before reaching here.
func (r *Renderer) Render(doc *Document, outputDir string) (string, error) {
	if len(doc.Slides) == 0 {
		return "", services.Wrap(services.ErrValidation, "generate", "render", "document has no slides", nil)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "generate", "render", "create output dir", err)
	}

	switch r.cfg.Format {
	case "docx":
		path := filepath.Join(outputDir, "slides.docx")
		if err := renderDocx(doc, path); err != nil {
			return "", services.Wrap(services.ErrExternalTool, "generate", "render", "write docx", err)
		}
		return path, nil
	default:
		path := filepath.Join(outputDir, "slides.md")
		markdown := r.RenderMarkdown(doc)
		if err := os.WriteFile(path, []byte(markdown), 0o644); err != nil {
			return "", services.Wrap(services.ErrConfiguration, "generate", "render", "write markdown", err)
		}
		return path, nil
	}
}

// RenderMarkdown builds the full markdown document.
func (r *Renderer) RenderMarkdown(doc *Document) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", doc.Title)
	b.WriteString("## Video Information\n\n")
	if doc.SourceURL != "" {
		fmt.Fprintf(&b, "- **Source:** %s\n", doc.SourceURL)
	}
	fmt.Fprintf(&b, "- **Duration:** %.0f seconds\n", doc.DurationSec)
	fmt.Fprintf(&b, "- **Extracted Slides:** %d\n", len(doc.Slides))
	if doc.Warnings > 0 {
		fmt.Fprintf(&b, "- **Warnings:** %d items skipped\n", doc.Warnings)
	}
	b.WriteString("\n")

	if r.cfg.IncludeTimeline {
		b.WriteString("## Timeline\n\n")
		b.WriteString("```mermaid\ngraph LR\n")
		for _, slide := range doc.Slides {
			fmt.Fprintf(&b, "    S%d[\"Slide %d (%.0fs)\"]\n", slide.Number, slide.Number, slide.Timestamp)
			if slide.Number > 1 {
				fmt.Fprintf(&b, "    S%d --> S%d\n", slide.Number-1, slide.Number)
			}
		}
		b.WriteString("```\n\n")
	}

	excerpts := make(map[int]string, len(doc.Excerpts))
	for _, e := range doc.Excerpts {
		excerpts[e.SlideNumber] = e.Text
	}

	b.WriteString("## Slides Detail\n\n")
	for _, slide := range doc.Slides {
		fmt.Fprintf(&b, "### Slide %d\n\n", slide.Number)
		fmt.Fprintf(&b, "- **Timestamp:** %.2fs\n", slide.Timestamp)
		if slide.RequiresReview {
			reason := slide.ReviewReason
			if reason == "" {
				reason = "flagged by verification"
			}
			fmt.Fprintf(&b, "- **Needs review:** %s\n", reason)
		}
		b.WriteString("\n")

		// Images sit in the slides/ directory next to the report file.
		fmt.Fprintf(&b, "![Slide %d](slides/%s)\n\n", slide.Number, filepath.Base(slide.ImagePath))

		b.WriteString("#### Extracted Text\n\n")
		text := strings.TrimSpace(slide.Text)
		switch {
		case slide.OCRFailed:
			b.WriteString("*Text extraction failed for this slide.*\n\n")
		case text == "":
			b.WriteString("*No text detected.*\n\n")
		default:
			fmt.Fprintf(&b, "%s\n\n", text)
			if slide.Confidence > 0 {
				fmt.Fprintf(&b, "*Confidence: %.0f%%*\n\n", slide.Confidence*100)
			}
		}

		if excerpt := strings.TrimSpace(excerpts[slide.Number]); excerpt != "" {
			b.WriteString("#### Spoken Context\n\n")
			fmt.Fprintf(&b, "> %s\n\n", excerpt)
		}

		b.WriteString("---\n\n")
	}

	return b.String()
}
