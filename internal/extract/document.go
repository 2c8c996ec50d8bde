package extract

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/otiai10/gosseract/v2"
)

// ErrUnsupported is returned for documents we cannot read text from.
var ErrUnsupported = errors.New("unsupported document type")

// PDFText extracts the text layer of every page of a PDF.
func PDFText(data []byte) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	var b strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			slog.Warn("Failed to extract text from page", "page", i+1, "error", err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			b.WriteString(text)
			b.WriteString("\n")
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// ImageText runs OCR over a JPEG or PNG image.
func ImageText(data []byte, languages []string) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if len(languages) > 0 {
		if err := client.SetLanguage(languages...); err != nil {
			return "", fmt.Errorf("set ocr languages: %w", err)
		}
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("load image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// DocumentReader picks a text extractor by content type.
type DocumentReader struct {
	languages []string
	pdf       func([]byte) (string, error)
	image     func([]byte, []string) (string, error)
}

func NewDocumentReader(ocrLanguages []string) *DocumentReader {
	return &DocumentReader{
		languages: ocrLanguages,
		pdf:       PDFText,
		image:     ImageText,
	}
}

// Kind classifies a document from its declared type, falling back to
// sniffing the bytes.
func Kind(contentType string, data []byte) string {
	ct := strings.ToLower(contentType)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.TrimSpace(ct)

	if ct == "" || ct == "application/octet-stream" {
		if bytes.HasPrefix(data, []byte("%PDF")) {
			return "pdf"
		}
		ct = http.DetectContentType(data)
		if i := strings.IndexByte(ct, ';'); i >= 0 {
			ct = ct[:i]
		}
	}

	switch ct {
	case "application/pdf":
		return "pdf"
	case "image/jpeg", "image/jpg", "image/png":
		return "image"
	case "text/html", "application/xhtml+xml":
		return "html"
	case "text/plain":
		return "text"
	}
	return ""
}

// Text extracts text from data of the given content type.
func (r *DocumentReader) Text(contentType string, data []byte) (string, error) {
	switch Kind(contentType, data) {
	case "pdf":
		return r.pdf(data)
	case "image":
		return r.image(data, r.languages)
	case "html":
		return HTMLText(bytes.NewReader(data))
	case "text":
		return strings.TrimSpace(string(data)), nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupported, contentType)
}
