package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/briskdl/engine/internal/config"
	"github.com/briskdl/engine/internal/types"
)

func TestServer_InvalidURL(t *testing.T) {
	_, err := Server(context.Background(), "not a url at all", &config.RuntimeConfig{})
	if err == nil {
		t.Fatal("expected an error for an invalid URL")
	}
}

func TestServer_HeadWithContentLengthAndAcceptRanges(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1024")
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Disposition", `attachment; filename="report.pdf"`)
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		t.Errorf("expected HEAD to be usable without falling back to GET, got method %s", r.Method)
	}))
	defer srv.Close()

	res, err := Server(context.Background(), srv.URL, &config.RuntimeConfig{})
	if err != nil {
		t.Fatalf("Server: %v", err)
	}
	if !res.Resumable {
		t.Error("expected Accept-Ranges: bytes to report resumable")
	}
	if res.TotalSize != 1024 {
		t.Errorf("expected total size 1024, got %d", res.TotalSize)
	}
	if res.Filename != "report.pdf" {
		t.Errorf("expected filename from Content-Disposition, got %s", res.Filename)
	}
}

func TestServer_FallsBackToRangedGetWhenHeadRejected(t *testing.T) {
	body := []byte("full file contents go here")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rng := r.Header.Get("Range")
		if rng == "" {
			t.Errorf("expected Range header on GET fallback")
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes 0-0/%d", len(body)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(body[:1])
	}))
	defer srv.Close()

	res, err := Server(context.Background(), srv.URL, &config.RuntimeConfig{})
	if err != nil {
		t.Fatalf("Server: %v", err)
	}
	if !res.Resumable {
		t.Error("expected a 206 response to report resumable")
	}
	if res.TotalSize != int64(len(body)) {
		t.Errorf("expected total size %d from Content-Range, got %d", len(body), res.TotalSize)
	}
}

func TestServer_NonResumableWithoutAcceptRanges(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "42")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res, err := Server(context.Background(), srv.URL, &config.RuntimeConfig{})
	if err != nil {
		t.Fatalf("Server: %v", err)
	}
	if res.Resumable {
		t.Error("expected no Accept-Ranges header to report non-resumable")
	}
	if res.TotalSize != 42 {
		t.Errorf("expected total size 42, got %d", res.TotalSize)
	}
}

func TestServer_ErrorStatusReturnsProbeFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := Server(context.Background(), srv.URL, &config.RuntimeConfig{})
	if err == nil {
		t.Fatal("expected an error for a 404 response")
	}
	if kind := types.Kind(err); kind != types.KindProbeFailed {
		t.Errorf("expected kind %s, got %s", types.KindProbeFailed, kind)
	}
}

func TestParseContentRangeTotal(t *testing.T) {
	cases := map[string]int64{
		"":                   0,
		"bytes 0-0/1024":     1024,
		"bytes 0-499/*":      0,
		"not a content range": 0,
	}
	for in, want := range cases {
		if got := parseContentRangeTotal(in); got != want {
			t.Errorf("parseContentRangeTotal(%q) = %d, want %d", in, got, want)
		}
	}
}
