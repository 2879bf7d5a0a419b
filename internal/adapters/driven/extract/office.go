package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/normalisers"
)

// maxXMLPartSize caps the size of one decompressed XML part
const maxXMLPartSize = 32 << 20

// DocxExtractor reads word/document.xml from a Word file as one page.
type DocxExtractor struct {
	norm   *normalisers.Registry
	logger *slog.Logger
}

func NewDocxExtractor(norm *normalisers.Registry, logger *slog.Logger) *DocxExtractor {
	return &DocxExtractor{norm: norm, logger: logger}
}

func (e *DocxExtractor) Extract(ctx context.Context, path string) []domain.Page {
	zr, err := zip.OpenReader(path)
	if err != nil {
		e.logger.Warn("docx open failed", "path", path, "error", err)
		return nil
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		text, err := partText(f, "t", "p")
		if err != nil {
			e.logger.Warn("docx parse failed", "path", path, "error", err)
			return nil
		}
		return singlePage(e.norm.NormaliseExt(text, "txt"))
	}
	e.logger.Warn("docx has no document part", "path", path)
	return nil
}

func (e *DocxExtractor) Extensions() []string {
	return []string{"docx"}
}

func (e *DocxExtractor) Priority() int {
	return 50
}

var slidePart = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// PptxExtractor reads a PowerPoint file, one page per slide in slide order.
type PptxExtractor struct {
	norm   *normalisers.Registry
	logger *slog.Logger
}

func NewPptxExtractor(norm *normalisers.Registry, logger *slog.Logger) *PptxExtractor {
	return &PptxExtractor{norm: norm, logger: logger}
}

func (e *PptxExtractor) Extract(ctx context.Context, path string) []domain.Page {
	zr, err := zip.OpenReader(path)
	if err != nil {
		e.logger.Warn("pptx open failed", "path", path, "error", err)
		return nil
	}
	defer zr.Close()

	type slide struct {
		n int
		f *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		m := slidePart.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{n: n, f: f})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	var pages []domain.Page
	for i, s := range slides {
		if ctx.Err() != nil {
			return pages
		}
		text, err := partText(s.f, "t", "p")
		if err != nil {
			e.logger.Warn("pptx slide parse failed", "path", path, "slide", s.n, "error", err)
			continue
		}
		text = e.norm.NormaliseExt(text, "txt")
		if text == "" {
			continue
		}
		pages = append(pages, domain.Page{Number: i + 1, Text: text})
	}
	return pages
}

func (e *PptxExtractor) Extensions() []string {
	return []string{"pptx"}
}

func (e *PptxExtractor) Priority() int {
	return 50
}

// partText streams an OOXML part and collects the character data of
// textTag elements, ending a line at each paraTag. Namespaces are ignored.
func partText(f *zip.File, textTag, paraTag string) (string, error) {
	if f.UncompressedSize64 > maxXMLPartSize {
		return "", fmt.Errorf("%s is too large (%d bytes)", f.Name, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	dec := xml.NewDecoder(io.LimitReader(rc, maxXMLPartSize))
	var sb strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case textTag:
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case textTag:
				inText = false
			case paraTag:
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}
