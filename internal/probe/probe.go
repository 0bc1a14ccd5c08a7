// Package probe issues the lightweight metadata request that precedes every
// download, grounded on the teacher's internal/engine/probe.go. Unlike the
// teacher, which always sends a ranged GET, this follows the spec's
// HEAD-first policy: HEAD when the server answers it usefully, falling back
// to a Range: bytes=0-0 GET when HEAD is rejected, ambiguous, or absent
// entirely.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/briskdl/engine/internal/config"
	"github.com/briskdl/engine/internal/filenameutil"
	"github.com/briskdl/engine/internal/types"
)

// Result is everything the rest of the engine needs to plan a download.
type Result struct {
	FinalURL      string
	Filename      string
	TotalSize     int64 // 0 means unknown
	Resumable     bool
	ContentType   string
	ETag          string
}

// client is package-level like the teacher's probeClient; redirects are
// followed by its CheckRedirect policy, capped at 10 hops.
var client = &http.Client{
	Timeout: config.ProbeTimeout,
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return fmt.Errorf("stopped after 10 redirects")
		}
		return nil
	},
}

// Server probes rawurl, making up to 3 attempts on transport failures with
// a 1-second delay between them, matching the teacher's retry loop in
// ProbeServer.
func Server(ctx context.Context, rawurl string, rc *config.RuntimeConfig) (*Result, error) {
	if _, err := url.ParseRequestURI(rawurl); err != nil {
		return nil, types.NewError(types.KindInvalidURL, err)
	}

	resp, bodyPrefix, err := doProbe(ctx, rawurl, rc)
	if err != nil {
		return nil, err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	result := &Result{FinalURL: resp.Request.URL.String()}

	switch resp.StatusCode {
	case http.StatusPartialContent:
		result.Resumable = true
		result.TotalSize = parseContentRangeTotal(resp.Header.Get("Content-Range"))
	case http.StatusOK:
		result.Resumable = strings.EqualFold(resp.Header.Get("Accept-Ranges"), "bytes")
		if cl := resp.Header.Get("Content-Length"); cl != "" {
			if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
				result.TotalSize = n
			}
		}
	default:
		return nil, types.NewProbeFailed(resp.StatusCode)
	}

	result.Filename = filenameutil.Determine(rawurl, resp.Header, bodyPrefix)
	result.ContentType = resp.Header.Get("Content-Type")
	result.ETag = resp.Header.Get("ETag")
	return result, nil
}

// doProbe tries HEAD first; if the server rejects it (405/501) or the
// response is ambiguous (no Content-Length and no Accept-Ranges), it falls
// back to a ranged GET and returns up to 512 bytes of body for filename
// sniffing.
func doProbe(ctx context.Context, rawurl string, rc *config.RuntimeConfig) (*http.Response, []byte, error) {
	var lastErr error

	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, nil, types.NewFatalNetworkError(ctx.Err())
			case <-time.After(time.Second):
			}
		}

		resp, err := headProbe(ctx, rawurl, rc)
		if err == nil && usableHead(resp) {
			return resp, nil, nil
		}
		if resp != nil {
			resp.Body.Close()
		}

		resp, prefix, err := getRangeProbe(ctx, rawurl, rc)
		if err == nil {
			return resp, prefix, nil
		}
		lastErr = err
	}

	return nil, nil, types.NewTransientNetworkError(fmt.Errorf("probe failed after retries: %w", lastErr))
}

func usableHead(resp *http.Response) bool {
	if resp == nil {
		return false
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}
	return resp.Header.Get("Content-Length") != "" || resp.Header.Get("Accept-Ranges") != ""
}

func headProbe(ctx context.Context, rawurl string, rc *config.RuntimeConfig) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawurl, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", rc.GetUserAgent())
	return client.Do(req)
}

func getRangeProbe(ctx context.Context, rawurl string, rc *config.RuntimeConfig) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Range", "bytes=0-0")
	req.Header.Set("User-Agent", rc.GetUserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}

	buf := make([]byte, 512)
	n, _ := io.ReadFull(resp.Body, buf)
	return resp, buf[:n], nil
}

func parseContentRangeTotal(contentRange string) int64 {
	if contentRange == "" {
		return 0
	}
	idx := strings.LastIndex(contentRange, "/")
	if idx == -1 {
		return 0
	}
	sizeStr := contentRange[idx+1:]
	if sizeStr == "*" {
		return 0
	}
	n, _ := strconv.ParseInt(sizeStr, 10, 64)
	return n
}
