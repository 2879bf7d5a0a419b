package extract

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/normalisers"
)

// maxTextFileSize caps plain text reads
const maxTextFileSize = 64 << 20

// TextExtractor reads plain text, Markdown and HTML files as one page.
type TextExtractor struct {
	norm   *normalisers.Registry
	logger *slog.Logger
}

func NewTextExtractor(norm *normalisers.Registry, logger *slog.Logger) *TextExtractor {
	return &TextExtractor{norm: norm, logger: logger}
}

func (e *TextExtractor) Extract(ctx context.Context, path string) []domain.Page {
	info, err := os.Stat(path)
	if err != nil {
		e.logger.Warn("text extraction failed", "path", path, "error", err)
		return nil
	}
	if info.Size() > maxTextFileSize {
		e.logger.Warn("text file too large", "path", path, "size", info.Size())
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		e.logger.Warn("text extraction failed", "path", path, "error", err)
		return nil
	}

	text := strings.ToValidUTF8(string(data), "")
	text = e.norm.NormaliseExt(text, domain.ExtFromFilename(path))
	return singlePage(text)
}

func (e *TextExtractor) Extensions() []string {
	return []string{"txt", "text", "md", "markdown", "html", "htm"}
}

func (e *TextExtractor) Priority() int {
	return 50
}

func singlePage(text string) []domain.Page {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return []domain.Page{{Number: 1, Text: text}}
}
