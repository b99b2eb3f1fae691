package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
)

const (
	FileTypePDF  = "pdf"
	FileTypeDOC  = "doc"
	FileTypeDOCX = "docx"
	FileTypeTXT  = "txt"
	FileTypeXLSX = "xlsx"
)

type extractFunc func(data []byte) (text string, pages int, err error)

// Extractor picks a format reader by file extension.
type Extractor struct {
	readers map[string]extractFunc
}

func New() *Extractor {
	return &Extractor{readers: map[string]extractFunc{
		FileTypePDF: extractPDF,
		// legacy .doc uploads are read as OOXML; true binary Word files fail extraction
		FileTypeDOC:  extractDOCX,
		FileTypeDOCX: extractDOCX,
		FileTypeTXT:  extractPlainText,
		FileTypeXLSX: extractXLSX,
	}}
}

// FileType returns the lowercased extension without the dot.
func FileType(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}

func (e *Extractor) Supports(filename string) bool {
	_, ok := e.readers[FileType(filename)]
	return ok
}

func (e *Extractor) Extract(ctx context.Context, filename string, data []byte) (domain.ExtractedText, error) {
	fileType := FileType(filename)
	read, ok := e.readers[fileType]
	if !ok {
		return domain.ExtractedText{}, domain.WrapError(
			domain.ErrUnsupportedFormat,
			"extract text",
			fmt.Errorf("file type %q of %s is not supported", fileType, filename),
		)
	}
	if err := ctx.Err(); err != nil {
		return domain.ExtractedText{}, err
	}

	text, pages, err := read(data)
	if err != nil {
		return domain.ExtractedText{}, domain.WrapError(
			domain.ErrExtractionFailure,
			"extract text",
			fmt.Errorf("failed to extract text from %s: %w", filename, err),
		)
	}
	return domain.ExtractedText{
		Text:     strings.TrimSpace(text),
		FileType: fileType,
		Pages:    pages,
	}, nil
}

func extractPlainText(data []byte) (string, int, error) {
	if !utf8.Valid(data) {
		return "", 0, fmt.Errorf("text file is not valid utf-8")
	}
	return strings.TrimPrefix(string(data), "\ufeff"), 0, nil
}
