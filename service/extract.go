package service

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"

	"github.com/casevault/backend/model"
)

var (
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)
)

// imageExtensions recognized when no usable mime type is present.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
	".webp": true,
}

// Extractor converts raw evidence bytes into normalized plain text, entirely
// locally. PDF parsing holds no shared state and runs concurrently; image
// recognition goes through a single shared OCR worker that is constructed
// lazily on first use.
type Extractor struct {
	maxPDFPages int

	// newOCR builds the OCR worker; injectable for tests.
	newOCR func() (OCRWorker, error)

	ocrOnce sync.Once
	ocr     OCRWorker
	ocrErr  error
}

// NewExtractor creates an extractor with the given PDF page cap. The OCR
// worker is not constructed until the first image arrives.
func NewExtractor(maxPDFPages int) *Extractor {
	if maxPDFPages <= 0 {
		maxPDFPages = 500
	}
	return &Extractor{
		maxPDFPages: maxPDFPages,
		newOCR:      newTesseractWorker,
	}
}

// Extract resolves the media kind from mime type (preferred) or filename
// extension, extracts text and normalizes it. Returns ErrEmptyInput for an
// empty buffer, ErrUnsupportedType for unrecognized input, ErrNoTextExtracted
// when a successful parse yields nothing, and ErrExtractionFailed otherwise.
func (e *Extractor) Extract(ctx context.Context, data []byte, mimeType, filename string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("file buffer: %w", ErrEmptyInput)
	}

	kind, err := ResolveKind(mimeType, filename)
	if err != nil {
		return "", err
	}

	var raw string
	switch kind {
	case model.MediaDocument:
		raw, err = e.extractPDF(data)
	case model.MediaImage:
		raw, err = e.extractImage(ctx, data)
	}
	if err != nil {
		return "", err
	}

	text := NormalizeText(raw)
	if text == "" {
		return "", ErrNoTextExtracted
	}
	return text, nil
}

// ResolveKind maps mime type and filename to a media kind. Mime type wins
// over the extension when both are present.
func ResolveKind(mimeType, filename string) (model.MediaKind, error) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case mt == "application/pdf" || strings.HasSuffix(mt, "/pdf"):
		return model.MediaDocument, nil
	case strings.HasPrefix(mt, "image/"):
		return model.MediaImage, nil
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case ext == ".pdf":
		return model.MediaDocument, nil
	case imageExtensions[ext]:
		return model.MediaImage, nil
	}

	return "", fmt.Errorf("%w: mime=%q filename=%q", ErrUnsupportedType, mimeType, filename)
}

// extractPDF parses the PDF locally. The page cap bounds resource use on
// hostile or degenerate files. The parser panics on some malformed inputs,
// so panics are recovered and reported as extraction failures.
func (e *Extractor) extractPDF(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: pdf parser panic: %v", ErrExtractionFailed, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	numPages := reader.NumPage()
	if numPages > e.maxPDFPages {
		return "", fmt.Errorf("%w: %d pages exceeds limit of %d", ErrExtractionFailed, numPages, e.maxPDFPages)
	}

	var sb strings.Builder
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", ErrExtractionFailed, i, err)
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}

	return sb.String(), nil
}

// extractImage routes the image through the shared OCR worker, initializing
// it on first use. Initialization is single-flight: concurrent first callers
// all wait for the same construction attempt and share its outcome.
func (e *Extractor) extractImage(ctx context.Context, data []byte) (string, error) {
	e.ocrOnce.Do(func() {
		e.ocr, e.ocrErr = e.newOCR()
	})
	if e.ocrErr != nil {
		return "", fmt.Errorf("%w: ocr init: %v", ErrExtractionFailed, e.ocrErr)
	}

	text, err := e.ocr.Recognize(ctx, data)
	if err != nil {
		return "", fmt.Errorf("%w: ocr: %v", ErrExtractionFailed, err)
	}
	return text, nil
}

// Close releases the OCR worker if it was ever constructed.
func (e *Extractor) Close() error {
	if e.ocr != nil {
		return e.ocr.Close()
	}
	return nil
}

// NormalizeText collapses runs of spaces and tabs to a single space, caps
// consecutive newlines at two, and trims surrounding whitespace.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = spaceRuns.ReplaceAllString(text, " ")
	text = newlineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
