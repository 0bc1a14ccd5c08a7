// Package filenameutil derives and sanitizes display filenames from HTTP
// responses and URLs, and resolves collisions on the destination directory.
// Grounded on the teacher's internal/utils/filename.go.
package filenameutil

import (
	"encoding/binary"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/vfaronov/httpheader"
)

// Determine picks a filename for rawurl given the response headers and, when
// available, the first bytes of the body (used only for magic-byte
// extension sniffing and the ZIP-local-header special case; pass nil when a
// HEAD probe yielded no body).
//
// Priority: Content-Disposition filename/filename* (RFC 6266 + RFC 5987,
// handled by vfaronov/httpheader) -> last non-empty path segment of rawurl
// -> a synthetic "download-<unix-timestamp>" per §4.1. The result is always
// sanitized for the local filesystem.
func Determine(rawurl string, header http.Header, bodyPrefix []byte) string {
	parsed, err := url.Parse(rawurl)
	if err != nil {
		return syntheticName()
	}

	var candidate string
	if _, name, cdErr := httpheader.ContentDisposition(header); cdErr == nil && name != "" {
		candidate = name
	}
	if candidate == "" {
		if base := filepath.Base(parsed.Path); base != "." && base != "/" {
			candidate = base
		}
	}

	filename := sanitize(candidate)

	if candidate == "" && isZipPrefix(bodyPrefix) {
		if zipName := zipLocalFileName(bodyPrefix); zipName != "" {
			filename = sanitize(filepath.Base(zipName))
		}
	}

	if filepath.Ext(filename) == "" && len(bodyPrefix) > 0 {
		if kind, _ := filetype.Match(bodyPrefix); kind != filetype.Unknown && kind.Extension != "" {
			filename += "." + kind.Extension
		}
	}

	if filename == "" || filename == "." || filename == "/" {
		filename = syntheticName()
	}
	return filename
}

// syntheticName is the last-resort fallback per §4.1 when neither
// Content-Disposition nor the URL path yield a usable name.
func syntheticName() string {
	return "download-" + strconv.FormatInt(time.Now().UnixNano(), 10)
}

func isZipPrefix(b []byte) bool {
	return len(b) >= 30 && b[0] == 0x50 && b[1] == 0x4B && b[2] == 0x03 && b[3] == 0x04
}

func zipLocalFileName(header []byte) string {
	nameLen := int(binary.LittleEndian.Uint16(header[26:28]))
	start := 30
	end := start + nameLen
	if end > len(header) {
		return ""
	}
	return string(header[start:end])
}

func sanitize(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	switch name {
	case ".":
		return name
	case "/", "\\":
		return "_"
	}
	name = strings.TrimSpace(name)
	for _, r := range []string{"/", ":", "*", "?", "\"", "<", ">", "|"} {
		name = strings.ReplaceAll(name, r, "_")
	}
	return name
}
