package extract

import (
	"context"
	"log/slog"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/normalisers"
)

// PDFExtractor runs pdftotext and splits its output on form feeds, one page each.
type PDFExtractor struct {
	runner CommandRunner
	norm   *normalisers.Registry
	logger *slog.Logger
}

func NewPDFExtractor(runner CommandRunner, norm *normalisers.Registry, logger *slog.Logger) *PDFExtractor {
	return &PDFExtractor{runner: runner, norm: norm, logger: logger}
}

func (e *PDFExtractor) Extract(ctx context.Context, path string) []domain.Page {
	out, err := e.runner.Run(ctx, "pdftotext", "-enc", "UTF-8", "-layout", path, "-")
	if err != nil {
		e.logger.Warn("pdf extraction failed", "path", path, "error", err)
		return nil
	}
	return splitPages(string(out), e.norm)
}

func (e *PDFExtractor) Extensions() []string {
	return []string{"pdf"}
}

func (e *PDFExtractor) Priority() int {
	return 50
}

// splitPages keeps page numbering of the source even when pages are blank.
func splitPages(out string, norm *normalisers.Registry) []domain.Page {
	raw := strings.Split(strings.ToValidUTF8(out, ""), "\f")
	var pages []domain.Page
	for i, text := range raw {
		text = norm.NormaliseExt(text, "txt")
		if text == "" {
			continue
		}
		pages = append(pages, domain.Page{Number: i + 1, Text: text})
	}
	return pages
}
