// Package document extracts text from uploaded business documents.
package document

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/mysteryisfun/Voice-platform/pkg/logger"
)

// Extraction holds extracted document text.
type Extraction struct {
	Filename   string
	Content    string
	TotalPages int
}

// Extractor turns uploaded bytes into plain text. Only PDF is supported;
// other formats are skipped by the caller, not failed.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Supported reports whether the upload can be extracted.
func (e *Extractor) Supported(filename string) bool {
	return strings.ToLower(filepath.Ext(filename)) == ".pdf"
}

// ExtractText extracts plain text from an uploaded PDF, page by page.
// Pages that fail to decode are skipped; an empty document is an error.
func (e *Extractor) ExtractText(ctx context.Context, data []byte, filename string) (*Extraction, error) {
	if !e.Supported(filename) {
		return nil, fmt.Errorf("unsupported document format: %s", filepath.Ext(filename))
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF: %w", err)
	}

	totalPages := reader.NumPage()
	var parts []string

	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			logger.Warn("Failed to extract PDF page",
				zap.String("filename", filename),
				zap.Int("page", pageNum),
				zap.Error(err),
			)
			continue
		}

		if strings.TrimSpace(text) != "" {
			parts = append(parts, fmt.Sprintf("--- Page %d ---\n%s", pageNum, text))
		}
	}

	content := strings.Join(parts, "\n\n")
	if content == "" {
		return nil, fmt.Errorf("no text extracted from %s", filename)
	}

	logger.Info("PDF extraction completed",
		zap.String("filename", filename),
		zap.Int("pages", totalPages),
		zap.Int("characters", len(content)),
	)

	return &Extraction{
		Filename:   filename,
		Content:    content,
		TotalPages: totalPages,
	}, nil
}
