// Package extract turns raw document bytes into plain text, choosing the format by
// the key's file extension.
package extract

import (
	"fmt"
	"path"
	"strings"
)

// Func extracts text from one document format.
type Func func(content []byte) (string, error)

// Extractor extracts plain text from document bytes.
type Extractor struct {
	formats  map[string]Func
	maxBytes int64
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxBytes rejects documents larger than n bytes. Zero means no limit.
func WithMaxBytes(n int64) Option {
	return func(e *Extractor) {
		e.maxBytes = n
	}
}

// WithFormat registers or replaces the extractor for ext (with leading dot).
func WithFormat(ext string, fn Func) Option {
	return func(e *Extractor) {
		e.formats[strings.ToLower(ext)] = fn
	}
}

// NewExtractor returns an Extractor for PDF, OOXML, OpenDocument, RTF, spreadsheets and plain text.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		formats: map[string]Func{
			".pdf":  extractPDF,
			".docx": extractDOCX,
			".pptx": extractPPTX,
			".xlsx": extractExcel,
			".odp":  extractODP,
			".ods":  extractODS,
			".odt":  extractWithCat,
			".rtf":  extractWithCat,
			".txt":  extractPlain,
			".md":   extractPlain,
			".rst":  extractPlain,
			".csv":  extractPlain,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the text of raw, using the extension of key to pick the format.
// Unknown extensions are treated as plain text.
func (e *Extractor) Extract(key string, raw []byte) (string, error) {
	if e.maxBytes > 0 && int64(len(raw)) > e.maxBytes {
		return "", fmt.Errorf("%s: %d bytes exceeds limit of %d", key, len(raw), e.maxBytes)
	}
	fn, ok := e.formats[strings.ToLower(path.Ext(key))]
	if !ok {
		fn = extractPlain
	}
	text, err := fn(raw)
	if err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}
	return text, nil
}

// Supports reports whether key has a registered format.
func (e *Extractor) Supports(key string) bool {
	_, ok := e.formats[strings.ToLower(path.Ext(key))]
	return ok
}
