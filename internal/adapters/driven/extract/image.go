package extract

import (
	"context"
	"log/slog"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/normalisers"
)

// ImageExtractor OCRs an image with tesseract into a single page.
type ImageExtractor struct {
	runner   CommandRunner
	language string
	norm     *normalisers.Registry
	logger   *slog.Logger
}

func NewImageExtractor(runner CommandRunner, language string, norm *normalisers.Registry, logger *slog.Logger) *ImageExtractor {
	return &ImageExtractor{runner: runner, language: language, norm: norm, logger: logger}
}

func (e *ImageExtractor) Extract(ctx context.Context, path string) []domain.Page {
	args := []string{path, "stdout"}
	if e.language != "" {
		args = append(args, "-l", e.language)
	}
	out, err := e.runner.Run(ctx, "tesseract", args...)
	if err != nil {
		e.logger.Warn("ocr failed", "path", path, "error", err)
		return nil
	}
	text := strings.ReplaceAll(strings.ToValidUTF8(string(out), ""), "\f", "\n")
	return singlePage(e.norm.NormaliseExt(text, "txt"))
}

func (e *ImageExtractor) Extensions() []string {
	return []string{"png", "jpg", "jpeg"}
}

func (e *ImageExtractor) Priority() int {
	return 50
}
