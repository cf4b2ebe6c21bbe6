package docconv_test

import (
	"errors"
	"strings"
	"testing"

	"extracto/internal/docconv"
	"extracto/internal/services"
)

func TestConvertPlainText(t *testing.T) {
	result, err := docconv.Convert("notes.txt", []byte("Quarterly revenue grew 12%.\n"))
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if result.Text != "Quarterly revenue grew 12%." {
		t.Fatalf("unexpected text %q", result.Text)
	}
	if !strings.HasPrefix(result.MIMEType, "text/plain") {
		t.Fatalf("unexpected mime type %q", result.MIMEType)
	}
}

func TestConvertHTML(t *testing.T) {
	html := `<html><body><h1>Report</h1><p>All systems nominal.</p></body></html>`
	result, err := docconv.Convert("report.html", []byte(html))
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !strings.Contains(result.Text, "Report") || !strings.Contains(result.Text, "All systems nominal.") {
		t.Fatalf("markdown missing content: %q", result.Text)
	}
}

func TestConvertJSON(t *testing.T) {
	result, err := docconv.Convert("data.json", []byte(`{"metric":"uptime","value":99.9}`))
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !strings.Contains(result.Text, "uptime") {
		t.Fatalf("unexpected text %q", result.Text)
	}
}

func TestConvertEmptyIsParseError(t *testing.T) {
	_, err := docconv.Convert("empty.txt", nil)
	if !errors.Is(err, services.ErrParse) {
		t.Fatalf("expected parse marker, got %v", err)
	}
}

func TestConvertUnsupportedTypeIsParseError(t *testing.T) {
	// PNG header with no text content.
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
	_, err := docconv.Convert("image.png", png)
	if !errors.Is(err, services.ErrParse) {
		t.Fatalf("expected parse marker, got %v", err)
	}
}

func TestConvertCorruptPDFIsParseError(t *testing.T) {
	_, err := docconv.Convert("broken.pdf", []byte("%PDF-1.7 garbage"))
	if !errors.Is(err, services.ErrParse) {
		t.Fatalf("expected parse marker, got %v", err)
	}
}
