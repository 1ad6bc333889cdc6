package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file exceeds size limit")
	ErrEmptyDocument   = errors.New("document has no text")
)

// Document is the extracted text of one input file
type Document struct {
	Name     string
	Path     string
	FileType string
	Text     string
}

// Extractor reads plain-text documents. A UTF-8 or UTF-16 byte order mark
// selects the decoding; without one the file is read as UTF-8.
type Extractor struct {
	allowed  []string
	maxBytes int64
}

// NewExtractor creates an extractor for the given extensions (".txt", ...).
// maxBytes <= 0 disables the size limit.
func NewExtractor(allowedExtensions []string, maxBytes int64) *Extractor {
	return &Extractor{
		allowed: lo.Map(allowedExtensions, func(ext string, _ int) string {
			return strings.ToLower(ext)
		}),
		maxBytes: maxBytes,
	}
}

// Supported reports whether the file extension is on the allow list
func (e *Extractor) Supported(path string) bool {
	return lo.Contains(e.allowed, fileType(path))
}

// Extract reads the file at path and returns its NFC-normalised, trimmed text
func (e *Extractor) Extract(path string) (Document, error) {
	doc := Document{
		Name:     filepath.Base(path),
		Path:     path,
		FileType: fileType(path),
	}
	if !e.Supported(path) {
		return doc, fmt.Errorf("%w: %q", ErrUnsupportedFile, doc.FileType)
	}

	file, err := os.Open(path)
	if err != nil {
		return doc, fmt.Errorf("failed to open %s: %w", doc.Name, err)
	}
	defer func() { _ = file.Close() }()

	var reader io.Reader = file
	if e.maxBytes > 0 {
		// One extra byte tells an exactly-full file from an oversized one
		reader = io.LimitReader(file, e.maxBytes+1)
	}

	raw, err := io.ReadAll(reader)
	if err != nil {
		return doc, fmt.Errorf("failed to read %s: %w", doc.Name, err)
	}
	if e.maxBytes > 0 && int64(len(raw)) > e.maxBytes {
		return doc, fmt.Errorf("%w: %s is larger than %d bytes", ErrFileTooLarge, doc.Name, e.maxBytes)
	}

	text, err := decodeText(raw)
	if err != nil {
		return doc, fmt.Errorf("failed to decode %s: %w", doc.Name, err)
	}

	doc.Text = strings.TrimSpace(text)
	if doc.Text == "" {
		return doc, ErrEmptyDocument
	}
	return doc, nil
}

func decodeText(raw []byte) (string, error) {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	decoded, _, err := transform.Bytes(decoder, raw)
	if err != nil {
		return "", err
	}
	return norm.NFC.String(string(decoded)), nil
}

func fileType(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
