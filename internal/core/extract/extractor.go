package extract

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/jobfitai/jobfit-api/internal/core"
)

const (
	mimePDF   = "application/pdf"
	mimeDOCX  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimePlain = "text/plain"
)

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

// DocconvExtractor implements core.DocumentExtractor with sajari/docconv,
// falling back to ledongthuc/pdf for PDFs docconv cannot parse.
type DocconvExtractor struct {
	logger *zap.Logger
}

func NewDocconvExtractor(logger *zap.Logger) *DocconvExtractor {
	return &DocconvExtractor{logger: logger}
}

// Extract converts the raw bytes into normalized text and hashes the text.
// Hashing the extracted text rather than the bytes lets two different file
// containers with identical visible content dedupe to one document.
func (e *DocconvExtractor) Extract(ctx context.Context, data []byte, mimeType string) (string, string, error) {
	base := mimeType
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}

	var text string
	switch {
	case base == mimePlain || strings.HasPrefix(base, "text/"):
		text = string(data)
	case base == mimePDF:
		res, err := docconv.Convert(bytes.NewReader(data), base, false)
		if err != nil || res.Body == "" {
			e.logger.Warn("docconv pdf extraction failed, trying pdf reader",
				zap.Error(err))
			fallback, ferr := extractPDF(data)
			if ferr != nil {
				return "", "", fmt.Errorf("%w: %v", core.ErrExtractionFailed, ferr)
			}
			text = fallback
		} else {
			text = res.Body
		}
	case base == mimeDOCX:
		res, err := docconv.Convert(bytes.NewReader(data), base, false)
		if err != nil {
			return "", "", fmt.Errorf("%w: %v", core.ErrExtractionFailed, err)
		}
		text = res.Body
	default:
		return "", "", fmt.Errorf("%w: %q", core.ErrUnsupportedFormat, mimeType)
	}

	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	text = normalize(text)
	if text == "" {
		return "", "", fmt.Errorf("%w: no text content", core.ErrExtractionFailed)
	}
	return text, HashText(text), nil
}

// extractPDF reads page text directly, joined in page order.
func extractPDF(data []byte) (string, error) {
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, reader.Size())
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 1; i <= pdfReader.NumPage(); i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// normalize collapses line endings and trims surrounding whitespace so the
// content hash is stable across platforms.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(text)
}

// HashText returns the hex sha256 digest of text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
