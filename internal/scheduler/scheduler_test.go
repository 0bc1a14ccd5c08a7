package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/briskdl/engine/internal/config"
	"github.com/briskdl/engine/internal/events"
	"github.com/briskdl/engine/internal/ratelimit"
	"github.com/briskdl/engine/internal/types"
)

func newTestPlan(t *testing.T, url string, totalSize int64, n int, rc *config.RuntimeConfig) (Plan, *os.File) {
	t.Helper()
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	if err := f.Truncate(totalSize); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return Plan{
		URL:       url,
		File:      f,
		TotalSize: totalSize,
		Chunks:    Partition(totalSize, n),
		Runtime:   rc,
	}, f
}

// TestRun_RedistributesChunkAfterRetriesExhausted exercises §4.4's
// reassignment: a server that always fails range requests for the second
// chunk's offset should, after that chunk exhausts its retries against one
// worker, have its remaining range picked up and finished by another.
func TestRun_RedistributesChunkAfterRetriesExhausted(t *testing.T) {
	body := make([]byte, 64)
	for i := range body {
		body[i] = byte(i)
	}

	const flakyChunkIndex = 1
	var flakyAttempts atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")
		start, end := parseRangeHeader(rng, int64(len(body)))

		// The flaky chunk covers bytes [16,31]. Fail its first few requests
		// with a 503 so the worker burns through its retry budget and the
		// scheduler redistributes the remainder to whichever goroutine pops
		// it off the queue next.
		if start >= 16 && start < 32 && flakyAttempts.Add(1) <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Range", httpContentRangeStr(start, end, int64(len(body))))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(body[start : end+1])
	}))
	defer srv.Close()

	rc := &config.RuntimeConfig{MaxTaskRetries: 2}
	plan, f := newTestPlan(t, srv.URL, int64(len(body)), 4, rc)

	ld := types.NewLiveDownload(types.DownloadRecord{ID: types.NewDownloadId()})
	limiter := ratelimit.NewBandwidthLimiter(0)

	var progressMu sync.Mutex
	var sawProgress bool
	sink := events.Sink{
		OnProgress: func(p events.Progress) {
			progressMu.Lock()
			sawProgress = true
			progressMu.Unlock()
		},
	}

	sched := New(plan, ld, limiter, sink)
	err := sched.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := make([]byte, len(body))
	if _, err := f.ReadAt(got, 0); err != nil {
		t.Fatalf("read back: %v", err)
	}
	for i := range got {
		if got[i] != body[i] {
			t.Fatalf("byte %d: expected %d, got %d (redistribution left a gap)", i, body[i], got[i])
			break
		}
	}

	progressMu.Lock()
	defer progressMu.Unlock()
	if !sawProgress {
		t.Error("expected at least one Progress event to reach the Sink")
	}
}

// TestRun_ProgressChannelDropsRatherThanBlocksOnSlowConsumer exercises the
// scheduler's coalescing progress channel: a Sink callback slow enough to
// fall behind the 100ms sampler must never stall a chunk worker, and the
// consumer must still observe the final state once the download finishes.
func TestRun_ProgressChannelDropsRatherThanBlocksOnSlowConsumer(t *testing.T) {
	body := make([]byte, 256*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")
		start, end := parseRangeHeader(rng, int64(len(body)))
		w.Header().Set("Content-Range", httpContentRangeStr(start, end, int64(len(body))))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(body[start : end+1])
	}))
	defer srv.Close()

	rc := &config.RuntimeConfig{ProgressChannelBuffer: 1}
	plan, _ := newTestPlan(t, srv.URL, int64(len(body)), 2, rc)

	ld := types.NewLiveDownload(types.DownloadRecord{ID: types.NewDownloadId()})
	limiter := ratelimit.NewBandwidthLimiter(0)

	var received atomic.Int32
	sink := events.Sink{
		OnProgress: func(p events.Progress) {
			received.Add(1)
			// A consumer slower than the 100ms sample cadence: the scheduler
			// must coalesce rather than pile up unbounded work here.
			time.Sleep(150 * time.Millisecond)
		},
	}

	sched := New(plan, ld, limiter, sink)

	done := make(chan error, 1)
	go func() { done <- sched.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return; a slow Sink callback appears to have stalled the scheduler")
	}

	if received.Load() == 0 {
		t.Error("expected the slow consumer to eventually observe at least one Progress event")
	}
}

func parseRangeHeader(h string, total int64) (int64, int64) {
	start, end := int64(0), total-1
	if h != "" {
		fmt.Sscanf(h, "bytes=%d-%d", &start, &end)
	}
	if end >= total {
		end = total - 1
	}
	return start, end
}

func httpContentRangeStr(start, end, total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", start, end, total)
}
