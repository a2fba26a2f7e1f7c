package devserver

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

const minExtractedChars = 50

var errUnsupportedType = errors.New("unsupported file type")

// extractPages returns the text of each page. Plain text files are a single
// page.
func extractPages(data []byte) (pages []string, mimeType string, err error) {
	mtype := mimetype.Detect(data)
	switch {
	case mtype.Is("application/pdf"):
		pages, err = extractPDF(data)
		return pages, "application/pdf", err
	case isText(mtype):
		if !utf8.Valid(data) {
			return nil, "", fmt.Errorf("text file is not valid UTF-8")
		}
		return []string{string(data)}, "text/plain", nil
	default:
		return nil, mtype.String(), errUnsupportedType
	}
}

// isText reports whether m is text/plain or one of its children (JSON, CSV,
// HTML and the like).
func isText(m *mimetype.MIME) bool {
	for ; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

// partTypes are the multipart Content-Type values the production backend
// accepts. An absent type is let through.
var partTypes = []string{
	"application/pdf",
	"text/plain",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

func allowedPartType(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	for _, t := range partTypes {
		if mediaType == t {
			return true
		}
	}
	return false
}

func extractPDF(data []byte) ([]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	total := reader.NumPage()
	pages := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	if len(pages) == 0 {
		plain, err := reader.GetPlainText()
		if err != nil {
			return nil, err
		}
		all, err := io.ReadAll(plain)
		if err != nil {
			return nil, err
		}
		pages = append(pages, string(all))
	}
	return pages, nil
}

func textLength(pages []string) int {
	n := 0
	for _, p := range pages {
		n += utf8.RuneCountInString(strings.TrimSpace(p))
	}
	return n
}
