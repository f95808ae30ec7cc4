package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Extractor turns a path into an ordered list of pages.
type Extractor interface {
	Extract(ctx context.Context, path string) (*Document, error)
}

// PDFExtractor extracts plain text from PDF files page by page.
type PDFExtractor struct{}

// NewPDFExtractor creates a PDF text extractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract opens the PDF at path and returns its pages in order.
// Any failure is reported as ErrDocumentLoad.
func (e *PDFExtractor) Extract(ctx context.Context, path string) (doc *Document, err error) {
	// The pdf package panics on some malformed content streams
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("%w: malformed pdf %s: %v", ErrDocumentLoad, path, r)
		}
	}()

	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return nil, fmt.Errorf("%w: unsupported format %q", ErrDocumentLoad, filepath.Ext(path))
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDocumentLoad, err)
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrDocumentLoad, path, err)
	}
	defer f.Close()

	total := reader.NumPage()
	doc = &Document{Source: path, Pages: make([]Page, 0, total)}

	// The pdf package numbers pages from 1
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			doc.Pages = append(doc.Pages, Page{Index: i - 1})
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrDocumentLoad, i, err)
		}
		doc.Pages = append(doc.Pages, Page{Index: i - 1, Text: NormalizeText(text)})
	}

	return doc, nil
}

var (
	trailingSpace = regexp.MustCompile(`[ \t]+\n`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

// NormalizeText removes trailing spaces and collapses runs of blank lines left
// behind by PDF text extraction.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = trailingSpace.ReplaceAllString(s, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
