// Package loader turns uploaded files into plain text ready for
// chunking and ingestion.
package loader

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"vectorchat/types"
)

var (
	allowedExtensions = map[string]bool{
		".txt":  true,
		".md":   true,
		".html": true,
		".csv":  true,
		".json": true,
		".pdf":  true,
	}
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_\-.]`)
)

type Loader struct {
	uploadDir   string
	maxFileSize int64
	converter   *PDFConverter
	logger      *slog.Logger
}

func New(cfg types.Config) (*Loader, error) {
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, err
	}
	var converter *PDFConverter
	if cfg.PDFConverterURL != "" {
		converter = NewPDFConverter(cfg.PDFConverterURL)
	}
	return &Loader{
		uploadDir:   cfg.UploadDir,
		maxFileSize: cfg.MaxFileSize,
		converter:   converter,
		logger:      slog.Default(),
	}, nil
}

// SanitizeFilename replaces every character outside [a-zA-Z0-9_-.]
// so the name is safe as a path component and a source name.
func SanitizeFilename(name string) string {
	return unsafeChars.ReplaceAllString(filepath.Base(name), "_")
}

// TitleFromFilename derives a human-readable title from a filename.
func TitleFromFilename(name string) string {
	title := strings.TrimSuffix(name, filepath.Ext(name))
	title = strings.ReplaceAll(title, "_", " ")
	title = strings.ReplaceAll(title, "-", " ")
	return strings.TrimSpace(title)
}

// Extract validates an uploaded file and returns its text content.
// PDFs go through the external converter; everything else must be
// valid UTF-8 text.
func (l *Loader) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return "", types.NewInputError("format %q is not supported", ext)
	}
	if int64(len(data)) > l.maxFileSize {
		return "", types.NewInputError("file too large: %d bytes (max %d)", len(data), l.maxFileSize)
	}

	var content string
	if ext == ".pdf" {
		text, err := l.extractPDF(ctx, filename, data)
		if err != nil {
			return "", err
		}
		content = text
	} else {
		if !utf8.Valid(data) {
			return "", types.NewInputError("file %q is not valid UTF-8 text", filename)
		}
		content = string(data)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return "", types.NewInputError("file %q is empty", filename)
	}
	return content, nil
}

// extractPDF crops page margins to drop running headers and footers,
// then sends the file to the converter service for markdown text.
func (l *Loader) extractPDF(ctx context.Context, filename string, data []byte) (string, error) {
	if l.converter == nil {
		return "", types.NewInputError("PDF ingestion requires a configured converter (PDF_CONVERTER_URL)")
	}

	// A unique temp name per request: concurrent uploads may sanitize
	// to the same filename.
	tmpFile, err := os.CreateTemp(l.uploadDir, "pdf-*.pdf")
	if err != nil {
		return "", err
	}
	tmp := tmpFile.Name()
	defer os.Remove(tmp)
	_, err = tmpFile.Write(data)
	if cerr := tmpFile.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", err
	}

	cropped := tmp + ".cropped.pdf"
	if err := CropMargins(tmp, cropped, 40, 40); err != nil {
		l.logger.Warn("pdf crop failed, converting original", "file", filename, "error", err)
	} else {
		defer os.Remove(cropped)
		if b, err := os.ReadFile(cropped); err == nil {
			data = b
		}
	}

	return l.converter.Convert(ctx, filename, data)
}
