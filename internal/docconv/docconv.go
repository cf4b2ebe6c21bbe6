package docconv

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"extracto/internal/services"
)

// Result carries the extracted text of one document plus what the converter
// learned about it.
type Result struct {
	Text     string
	MIMEType string
}

// Convert sniffs the document's content type and extracts plain text from
// it. PDF pages are concatenated, HTML is rendered to markdown, and
// text-like content passes through unchanged. Name is only used in error
// messages.
func Convert(name string, data []byte) (Result, error) {
	if len(data) == 0 {
		return Result{}, services.Wrap(services.ErrParse, "", "convert document",
			fmt.Sprintf("%s is empty", name), nil)
	}

	mtype := mimetype.Detect(data)
	result := Result{MIMEType: mtype.String()}

	switch {
	case mtype.Is("application/pdf"):
		text, err := pdfText(data)
		if err != nil {
			return Result{}, services.Wrap(services.ErrParse, "", "convert document",
				fmt.Sprintf("extract pdf text from %s", name), err)
		}
		result.Text = text
	case mtype.Is("text/html"), mtype.Is("application/xhtml+xml"):
		markdown, err := htmltomarkdown.ConvertString(string(data))
		if err != nil {
			return Result{}, services.Wrap(services.ErrParse, "", "convert document",
				fmt.Sprintf("convert html from %s", name), err)
		}
		result.Text = markdown
	case isTextLike(mtype):
		result.Text = string(data)
	default:
		return Result{}, services.Wrap(services.ErrParse, "", "convert document",
			fmt.Sprintf("unsupported content type %s for %s", mtype.String(), name), nil)
	}

	result.Text = strings.TrimSpace(result.Text)
	if result.Text == "" {
		return Result{}, services.Wrap(services.ErrParse, "", "convert document",
			fmt.Sprintf("%s produced no text", name), nil)
	}
	return result, nil
}

func pdfText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("copy pdf text: %w", err)
	}
	return buf.String(), nil
}

func isTextLike(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "text/") {
			return true
		}
	}
	return mtype.Is("application/json") || mtype.Is("application/xml")
}
