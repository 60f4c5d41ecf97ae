// Package extraction turns uploaded documents into plain text for use as
// generation context. Extraction failures are a distinct error class from
// generation and workflow errors so callers can tell the user the file
// itself could not be processed.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"
)

// ErrUnsupportedFormat is returned for mime types with no extractor
var ErrUnsupportedFormat = errors.New("unsupported document format")

// ErrNotText is returned when a supposedly textual upload is not valid text
var ErrNotText = errors.New("document is not valid text")

// MaxDocumentBytes bounds the extracted text kept per upload
const MaxDocumentBytes = 256 * 1024

// Extractor produces plain text from an uploaded document
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (string, error)
}

// TextExtractor handles the plain-text document family. Binary formats
// (PDF, DOCX, XLSX) are handled by external tooling and rejected here.
type TextExtractor struct{}

var _ Extractor = (*TextExtractor)(nil)

// NewTextExtractor creates a plain-text extractor
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

var textMimeTypes = map[string]bool{
	"text/plain":       true,
	"text/markdown":    true,
	"text/csv":         true,
	"application/json": true,
}

// Extract returns the document as plain text, truncated to MaxDocumentBytes
func (e *TextExtractor) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	mediaType := mimeType
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		mediaType = parsed
	}

	if !textMimeTypes[mediaType] && !strings.HasPrefix(mediaType, "text/") {
		return "", fmt.Errorf("mime type %q: %w", mediaType, ErrUnsupportedFormat)
	}

	if len(data) > MaxDocumentBytes {
		data = data[:MaxDocumentBytes]
		// Avoid cutting a multi-byte rune in half
		for i := 0; i < 3 && len(data) > 0 && !utf8.Valid(data); i++ {
			data = data[:len(data)-1]
		}
	}

	if !utf8.Valid(data) {
		return "", fmt.Errorf("mime type %q: %w", mediaType, ErrNotText)
	}

	return strings.TrimSpace(string(data)), nil
}
