package worker

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/grimoire-app/app-library/internal/models"
)

// ExtractedText is the outcome of running a format extractor.
type ExtractedText struct {
	Text      string
	PageCount int
}

// Extractor converts raw document bytes into text and a page count.
type Extractor func(ctx context.Context, data []byte) (ExtractedText, error)

// ExtractorSet maps each document format to its extractor.
type ExtractorSet map[models.DocumentFormat]Extractor

// Thumbnailer renders a preview for a document's first page.
type Thumbnailer func(ctx context.Context, data []byte) ([]byte, error)

func relaxedConfig() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// pdfTextShowRe matches literal strings fed to the Tj/TJ show operators in
// uncompressed content streams. Compressed or image-only streams yield little
// or no text here, which is what routes a document down the OCR-pending path.
var pdfTextShowRe = regexp.MustCompile(`\(((?:\\.|[^\\()])*)\)\s*T[jJ]`)

// MarkdownExtractor returns the extractor for markdown documents. Markdown is
// already text; it is a single logical page.
func MarkdownExtractor() Extractor {
	return func(ctx context.Context, data []byte) (ExtractedText, error) {
		return ExtractedText{Text: string(data), PageCount: 1}, nil
	}
}

// PDFExtractor returns the extractor for PDF documents: page count from the
// document catalog, text from literal show-operator strings. Pages are joined
// with form feeds so downstream consumers can attribute text to a page.
func PDFExtractor() Extractor {
	return func(ctx context.Context, data []byte) (ExtractedText, error) {
		pageCount, err := api.PageCount(bytes.NewReader(data), relaxedConfig())
		if err != nil {
			return ExtractedText{}, models.NewPermanentError("extract",
				fmt.Errorf("unreadable pdf: %w", err))
		}

		var sb strings.Builder
		for _, m := range pdfTextShowRe.FindAllSubmatch(data, -1) {
			sb.Write(unescapePDFString(m[1]))
			sb.WriteByte('\n')
		}
		return ExtractedText{Text: sb.String(), PageCount: pageCount}, nil
	}
}

// PDFThumbnailer returns a thumbnailer that trims the document to its first
// page, used as the preview object.
func PDFThumbnailer() Thumbnailer {
	return func(ctx context.Context, data []byte) ([]byte, error) {
		var out bytes.Buffer
		if err := api.Trim(bytes.NewReader(data), &out, []string{"1"}, relaxedConfig()); err != nil {
			return nil, fmt.Errorf("failed to trim first page: %w", err)
		}
		return out.Bytes(), nil
	}
}

// DefaultExtractors wires the built-in extractors for every supported format.
func DefaultExtractors() ExtractorSet {
	return ExtractorSet{
		models.FormatPDF:      PDFExtractor(),
		models.FormatMarkdown: MarkdownExtractor(),
	}
}

func unescapePDFString(raw []byte) []byte {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i+1 == len(raw) {
			out = append(out, raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			out = append(out, '\n')
		case 't':
			out = append(out, '\t')
		case 'r':
			out = append(out, '\r')
		default:
			out = append(out, raw[i])
		}
	}
	return out
}

// wordCount counts whitespace-separated tokens, the unit of the image-based
// detection threshold.
func wordCount(text string) int {
	return len(strings.Fields(text))
}
