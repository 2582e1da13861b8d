// Package textextract pulls plain text out of uploaded PDF files.
package textextract

import (
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

type ExtractedText struct {
	Content string
	Pages   int
}

// ExtractPDF reads every page's plain text. Pages that fail to decode are
// skipped rather than failing the whole document; scanned-image pages
// simply contribute nothing.
func ExtractPDF(data io.ReaderAt, size int64) (*ExtractedText, error) {
	reader, err := pdf.NewReader(data, size)
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	var buf strings.Builder
	numPages := reader.NumPage()

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}

	return &ExtractedText{
		Content: strings.TrimSpace(buf.String()),
		Pages:   numPages,
	}, nil
}
