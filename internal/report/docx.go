package report

import (
	"fmt"
	"strings"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/docx"
)

const (
	docxFont     = "Calibri"
	docxBodySize = 11
)

// renderDocx writes the document model as a styled DOCX file. Slide images
// stay on disk next to the document and are referenced by name, matching
// the markdown renderer.
func renderDocx(doc *Document, outputPath string) error {
	d, err := godocx.NewDocument()
	if err != nil {
		return err
	}

	addHeading(d, doc.Title, 18)

	addHeading(d, "Video Information", 14)
	if doc.SourceURL != "" {
		addBody(d, "Source: "+doc.SourceURL)
	}
	addBody(d, fmt.Sprintf("Duration: %.0f seconds", doc.DurationSec))
	addBody(d, fmt.Sprintf("Extracted slides: %d", len(doc.Slides)))
	if doc.Warnings > 0 {
		addBody(d, fmt.Sprintf("Warnings: %d items skipped", doc.Warnings))
	}

	excerpts := make(map[int]string, len(doc.Excerpts))
	for _, e := range doc.Excerpts {
		excerpts[e.SlideNumber] = e.Text
	}

	for _, slide := range doc.Slides {
		addHeading(d, fmt.Sprintf("Slide %d", slide.Number), 14)
		addBody(d, fmt.Sprintf("Timestamp: %.2fs", slide.Timestamp))
		addBody(d, "Image: "+slideImageName(slide))
		if slide.RequiresReview {
			reason := slide.ReviewReason
			if reason == "" {
				reason = "flagged by verification"
			}
			addBody(d, "Needs review: "+reason)
		}

		text := strings.TrimSpace(slide.Text)
		switch {
		case slide.OCRFailed:
			addItalic(d, "Text extraction failed for this slide.")
		case text == "":
			addItalic(d, "No text detected.")
		default:
			addBody(d, text)
			if slide.Confidence > 0 {
				addItalic(d, fmt.Sprintf("Confidence: %.0f%%", slide.Confidence*100))
			}
		}

		if excerpt := strings.TrimSpace(excerpts[slide.Number]); excerpt != "" {
			addItalic(d, "Spoken context: "+excerpt)
		}
	}

	return d.SaveTo(outputPath)
}

func slideImageName(slide Slide) string {
	if slide.ImagePath == "" {
		return "(missing)"
	}
	parts := strings.Split(slide.ImagePath, "/")
	return "slides/" + parts[len(parts)-1]
}

func addHeading(d *docx.RootDoc, text string, size uint64) {
	p := d.AddParagraph("")
	p.AddText(text).Font(docxFont).Size(size).Bold(true)
}

func addBody(d *docx.RootDoc, text string) {
	p := d.AddParagraph("")
	p.AddText(text).Font(docxFont).Size(docxBodySize)
}

func addItalic(d *docx.RootDoc, text string) {
	p := d.AddParagraph("")
	p.AddText(text).Font(docxFont).Size(docxBodySize).Italic(true)
}
