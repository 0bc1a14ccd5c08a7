// Package worker implements the chunk worker described in §4.3: a single
// ranged GET that streams into one region of the working file. Retries,
// redistribution, and supervision live in the scheduler; a worker only ever
// makes one pass over its assigned range. Grounded on the teacher's
// internal/engine/concurrent/worker.go, stripped of its retry loop and
// health-based work-stealing (both dropped per the scheduler redesign).
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/briskdl/engine/internal/config"
	"github.com/briskdl/engine/internal/ratelimit"
	"github.com/briskdl/engine/internal/types"
)

// Outcome classifies how a worker's pass over its range ended.
type Outcome int

const (
	Done Outcome = iota
	Paused
	Cancelled
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Done:
		return "done"
	case Paused:
		return "paused"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result reports what happened and, on Failed, how many bytes were
// actually written so the scheduler can compute the remaining range.
type Result struct {
	Outcome    Outcome
	Downloaded int64 // bytes newly written this pass
	Err        error
}

var bufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 64*1024)
		return &buf
	},
}

// Assignment is the byte range (inclusive) this worker pass must cover,
// plus how much of it is already on disk from a prior attempt.
type Assignment struct {
	Start             int64
	End               int64 // inclusive
	AlreadyDownloaded int64

	// FileOffsetBase is subtracted from the HTTP range offset before every
	// WriteAt, so a chunk can write into its own zero-based fragment file
	// (FileOffsetBase == Start) instead of its absolute position in a
	// shared, pre-sized file (FileOffsetBase == 0, the default).
	FileOffsetBase int64
}

// Run fetches bytes [Start+AlreadyDownloaded, End] from rawurl and writes
// them into file at the matching offsets. It polls ld for pause/cancel
// before every token-bucket acquisition and every read, matching §4.3's
// "poll pause and cancel flags before each acquire" requirement.
func Run(ctx context.Context, rawurl string, file *os.File, a Assignment, ld *types.LiveDownload, limiter *ratelimit.BandwidthLimiter, client *http.Client, rc *config.RuntimeConfig) Result {
	offset := a.Start + a.AlreadyDownloaded
	if offset > a.End+1 {
		return Result{Outcome: Done}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return Result{Outcome: Failed, Err: err}
	}
	req.Header.Set("User-Agent", rc.GetUserAgent())
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, a.End))

	host := ""
	if u, err := url.Parse(rawurl); err == nil {
		host = u.Host
	}
	hostLimiter := ratelimit.ForHost(host)
	hostLimiter.WaitIfBlocked()

	resp, err := client.Do(req)
	if err != nil {
		return Result{Outcome: Failed, Err: types.NewTransientNetworkError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		wait := hostLimiter.Handle429(resp)
		return Result{Outcome: Failed, Err: &ratelimit.RateLimitedError{WaitDuration: wait}}
	}
	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return Result{Outcome: Failed, Err: types.NewFatalNetworkError(fmt.Errorf("unexpected status %d", resp.StatusCode))}
	}
	hostLimiter.ReportSuccess()

	bufPtr := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufPtr)
	buf := *bufPtr

	var written int64
	stallTimeout := rc.GetStallTimeout()

	for offset <= a.End {
		if ld.IsCancelled() {
			return Result{Outcome: Cancelled, Downloaded: written}
		}
		if ld.IsPaused() {
			return Result{Outcome: Paused, Downloaded: written}
		}
		if err := ctx.Err(); err != nil {
			return Result{Outcome: Failed, Downloaded: written, Err: err}
		}

		want := a.End - offset + 1
		if int64(len(buf)) < want {
			want = int64(len(buf))
		}

		granted, err := limiter.Acquire(ctx, int(want))
		if err != nil {
			return Result{Outcome: Failed, Downloaded: written, Err: err}
		}

		n, readErr := readFullWithDeadline(resp.Body, buf[:granted], stallTimeout)
		if n > 0 {
			// Never write past the assigned end, even if the server
			// over-delivers past what we asked it to.
			if offset+int64(n) > a.End+1 {
				n = int(a.End + 1 - offset)
			}
			if _, werr := file.WriteAt(buf[:n], offset-a.FileOffsetBase); werr != nil {
				return Result{Outcome: Failed, Downloaded: written, Err: types.NewError(types.KindIOError, werr)}
			}
			offset += int64(n)
			written += int64(n)
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
				if offset > a.End {
					break
				}
				return Result{Outcome: Failed, Downloaded: written, Err: types.NewTransientNetworkError(readErr)}
			}
			if errors.Is(readErr, errStalled) {
				return Result{Outcome: Failed, Downloaded: written, Err: types.NewTransientNetworkError(fmt.Errorf("stalled: no data for %v", stallTimeout))}
			}
			return Result{Outcome: Failed, Downloaded: written, Err: types.NewTransientNetworkError(readErr)}
		}
	}

	return Result{Outcome: Done, Downloaded: written}
}

// errStalled marks a read that was aborted for exceeding the per-read idle
// timeout rather than failing on its own.
var errStalled = errors.New("read stalled")

// readFullWithDeadline runs io.ReadFull on a goroutine and races it against
// timeout, bounding a single read the way §5's "per-read idle timeout"
// requires even when the server holds the connection open without sending
// bytes or an error (resp.Body has no SetReadDeadline of its own). On
// timeout the read goroutine is left to unblock when the caller closes
// resp.Body.
func readFullWithDeadline(r io.Reader, buf []byte, timeout time.Duration) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := io.ReadFull(r, buf)
		ch <- result{n, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res.n, res.err
	case <-timer.C:
		return 0, errStalled
	}
}
