package filenameutil

import (
	"net/http"
	"strings"
	"testing"
)

func TestDetermine_ContentDispositionWins(t *testing.T) {
	h := make(http.Header)
	h.Set("Content-Disposition", `attachment; filename="report.pdf"`)
	got := Determine("https://example.com/download?id=1", h, nil)
	if got != "report.pdf" {
		t.Errorf("expected report.pdf, got %s", got)
	}
}

func TestDetermine_ContentDispositionRFC5987(t *testing.T) {
	h := make(http.Header)
	h.Set("Content-Disposition", `attachment; filename*=UTF-8''na%C3%AFve.txt`)
	got := Determine("https://example.com/x", h, nil)
	if got != "naïve.txt" {
		t.Errorf("expected naïve.txt, got %s", got)
	}
}

func TestDetermine_FallsBackToURLPath(t *testing.T) {
	got := Determine("https://example.com/files/archive.tar.gz", nil, nil)
	if got != "archive.tar.gz" {
		t.Errorf("expected archive.tar.gz, got %s", got)
	}
}

func TestDetermine_FallsBackToSyntheticName(t *testing.T) {
	got := Determine("https://example.com/", nil, nil)
	if !strings.HasPrefix(got, "download-") {
		t.Errorf("expected a synthetic download-<timestamp> name, got %s", got)
	}
}

func TestDetermine_InvalidURL(t *testing.T) {
	got := Determine("://not-a-url", nil, nil)
	if !strings.HasPrefix(got, "download-") {
		t.Errorf("expected a synthetic download-<timestamp> name for an unparseable URL, got %s", got)
	}
}

func TestDetermine_SniffsExtensionFromMagicBytes(t *testing.T) {
	// PNG magic header; URL has no extension.
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	got := Determine("https://example.com/image", nil, png)
	if got != "image.png" {
		t.Errorf("expected image.png from magic-byte sniff, got %s", got)
	}
}

func TestDetermine_SanitizesForbiddenCharacters(t *testing.T) {
	h := make(http.Header)
	h.Set("Content-Disposition", `attachment; filename="bad:name?.txt"`)
	got := Determine("https://example.com/x", h, nil)
	for _, forbidden := range []string{":", "?", "*", "\"", "<", ">", "|"} {
		if containsRune(got, forbidden) {
			t.Errorf("expected sanitized filename, got %s which still contains %q", got, forbidden)
		}
	}
}

func TestDetermine_ZipLocalHeaderSpecialCase(t *testing.T) {
	// A minimal ZIP local file header naming "inner.txt".
	name := "inner.txt"
	header := make([]byte, 30+len(name))
	header[0] = 0x50
	header[1] = 0x4B
	header[2] = 0x03
	header[3] = 0x04
	header[26] = byte(len(name))
	header[27] = 0
	copy(header[30:], name)

	got := Determine("https://example.com/", nil, header)
	if got != "inner.txt" {
		t.Errorf("expected inner.txt from ZIP local header, got %s", got)
	}
}

func containsRune(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
