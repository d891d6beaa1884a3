package ingest

import (
	"fmt"
	"io"
	"strings"

	"ragstack/internal/pkg/pdfextract"
)

// ErrUnsupportedFileType marks a document whose declared type has no text
// extractor. Surfaced at upload time and re-checked at ingestion time.
var ErrUnsupportedFileType = fmt.Errorf("unsupported file type")

// SupportedFileType reports whether documents of the given type (extension
// without the dot, lowercased) can be ingested.
func SupportedFileType(fileType string) bool {
	switch strings.ToLower(fileType) {
	case "pdf", "txt", "md", "markdown", "text":
		return true
	default:
		return false
	}
}

// ExtractText pulls plain text out of r according to the declared file type.
func ExtractText(r io.Reader, fileType string) (string, error) {
	switch strings.ToLower(fileType) {
	case "pdf":
		text, err := pdfextract.ExtractText(r)
		if err != nil {
			return "", fmt.Errorf("extract pdf text failed: %w", err)
		}
		return text, nil
	case "txt", "md", "markdown", "text":
		b, err := io.ReadAll(r)
		if err != nil {
			return "", fmt.Errorf("read text file failed: %w", err)
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFileType, fileType)
	}
}
