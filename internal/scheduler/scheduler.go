package scheduler

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/briskdl/engine/internal/chunkqueue"
	"github.com/briskdl/engine/internal/config"
	"github.com/briskdl/engine/internal/events"
	"github.com/briskdl/engine/internal/ratelimit"
	"github.com/briskdl/engine/internal/types"
	"github.com/briskdl/engine/internal/worker"
)

// Plan is the scheduler's input: everything needed to spawn and supervise
// workers for one download, whether fresh or resumed.
type Plan struct {
	URL       string
	File      *os.File
	TotalSize int64
	Chunks    []types.ChunkState // already partitioned; for resume, Downloaded may be > 0
	Runtime   *config.RuntimeConfig

	// FragmentMode, when set, tells the scheduler to write each chunk into
	// its own zero-based fragment file (via FragmentFile) instead of
	// WriteAt-ing into the shared, pre-sized File. Used as the assembly
	// fallback (§4.5) for destinations where a sparse pre-sized file
	// couldn't be created.
	FragmentMode bool
	FragmentFile func(index int) (*os.File, error)
}

// Scheduler drives one download's chunk workers to completion, applying
// retry-with-backoff and post-exhaustion redistribution per §4.4.
type Scheduler struct {
	plan    Plan
	ld      *types.LiveDownload
	limiter *ratelimit.BandwidthLimiter
	sink    events.Sink
	client  *http.Client

	queue *chunkqueue.Queue

	mu          sync.Mutex
	active      int
	fragFiles   map[int]*os.File
	fragFilesMu sync.Mutex

	// progressCh decouples the sampler from the Sink's callback, per §5's
	// documented back-pressure channel: a full buffer means the consumer is
	// behind, so the sampler drops the oldest queued snapshot rather than
	// block a chunk worker's hot path.
	progressCh chan events.Progress
}

// New builds a Scheduler for plan, publishing progress/lifecycle events to
// sink. limiter is the process-wide bandwidth limiter shared across all
// downloads.
func New(plan Plan, ld *types.LiveDownload, limiter *ratelimit.BandwidthLimiter, sink events.Sink) *Scheduler {
	n := len(plan.Chunks)
	if n < 1 {
		n = 1
	}
	return &Scheduler{
		plan:       plan,
		ld:         ld,
		limiter:    limiter,
		sink:       sink,
		client:     newClient(plan.Runtime, n),
		queue:      chunkqueue.New(),
		fragFiles:  make(map[int]*os.File),
		progressCh: make(chan events.Progress, plan.Runtime.GetProgressChannelBuffer()),
	}
}

// fileForChunk returns the *os.File a chunk's worker passes should write
// into: the shared pre-sized file in the default mode, or a lazily opened,
// cached per-chunk fragment file in FragmentMode.
func (s *Scheduler) fileForChunk(index int) (*os.File, error) {
	if !s.plan.FragmentMode {
		return s.plan.File, nil
	}
	s.fragFilesMu.Lock()
	defer s.fragFilesMu.Unlock()
	if f, ok := s.fragFiles[index]; ok {
		return f, nil
	}
	f, err := s.plan.FragmentFile(index)
	if err != nil {
		return nil, err
	}
	s.fragFiles[index] = f
	return f, nil
}

// closeFragmentFiles closes every fragment file opened during this run.
// Safe to call even when FragmentMode is off (no-op, map is empty).
func (s *Scheduler) closeFragmentFiles() {
	s.fragFilesMu.Lock()
	defer s.fragFilesMu.Unlock()
	for _, f := range s.fragFiles {
		f.Close()
	}
}

func newClient(rc *config.RuntimeConfig, numConns int) *http.Client {
	maxConns := rc.GetMaxConnectionsPerHost()
	if numConns > maxConns {
		maxConns = numConns
	}
	transport := &http.Transport{
		MaxIdleConns:        config.DefaultMaxIdleConns,
		MaxIdleConnsPerHost: maxConns + 2,
		MaxConnsPerHost:     maxConns,

		IdleConnTimeout:       config.DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   config.DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: config.DefaultResponseHeaderTimeout,
		ExpectContinueTimeout: config.DefaultExpectContinueTimeout,

		DisableCompression: true,
		ForceAttemptHTTP2:  false,
		TLSNextProto:       make(map[string]func(authority string, c *tls.Conn) http.RoundTripper),

		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: config.KeepAliveDuration,
		}).DialContext,
	}
	return &http.Client{Transport: transport}
}

// Run spawns one goroutine per chunk, retries failures with exponential
// backoff, redistributes a chunk's remaining range after it exhausts its
// retries, and blocks until every chunk is Done or the download is Paused,
// Cancelled, or Failed.
func (s *Scheduler) Run(ctx context.Context) error {
	for i := range s.plan.Chunks {
		c := s.plan.Chunks[i]
		s.queue.PushAll([]chunkqueue.Chunk{{
			Index:  c.Index,
			Offset: c.Start + c.Downloaded,
			Length: c.Length() - c.Downloaded,
		}})
	}

	numWorkers := len(s.plan.Chunks)
	if numWorkers < 1 {
		numWorkers = 1
	}

	var wg sync.WaitGroup
	errCh := make(chan error, numWorkers)
	var closeOnce sync.Once
	closeQueue := func() { closeOnce.Do(s.queue.Close) }

	pgDone := make(chan struct{})
	go func() {
		defer close(pgDone)
		s.consumeProgress()
	}()

	go s.monitorCompletion(ctx, closeQueue)
	go s.sampleProgress(ctx)

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.runWorkerLoop(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	go func() {
		wg.Wait()
		close(errCh)
		closeQueue()
	}()

	var firstErr error
	for err := range errCh {
		if firstErr == nil {
			firstErr = err
		}
	}
	s.closeFragmentFiles()
	<-pgDone

	if s.ld.IsCancelled() {
		return types.NewError(types.KindCancelled, types.ErrCancelled)
	}
	if s.ld.IsPaused() {
		return types.NewError(types.KindPauseRequested, types.ErrPauseRequested)
	}
	if firstErr == nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return firstErr
}

// runWorkerLoop pulls chunk assignments off the shared queue until it's
// closed, retrying each with exponential backoff and redistributing the
// remainder once MaxTaskRetries retries have also failed.
func (s *Scheduler) runWorkerLoop(ctx context.Context) error {
	maxRetries := s.plan.Runtime.GetMaxTaskRetries()

	for {
		c, ok := s.queue.Pop()
		if !ok {
			return nil
		}

		s.mu.Lock()
		s.active++
		s.mu.Unlock()

		var lastErr error
		for attempt := 0; attempt <= maxRetries; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					s.mu.Lock()
					s.active--
					s.mu.Unlock()
					return nil
				case <-time.After(backoffDelay(attempt)):
				}
			}

			chunkStart, chunkEnd := chunkBounds(s.plan.Chunks, c.Index)
			already := c.Offset - chunkStart

			file, ferr := s.fileForChunk(c.Index)
			if ferr != nil {
				lastErr = ferr
				break
			}

			fileOffsetBase := int64(0)
			if s.plan.FragmentMode {
				fileOffsetBase = chunkStart
			}

			res := worker.Run(ctx, s.plan.URL, file, worker.Assignment{
				Start:             chunkStart,
				End:               chunkEnd,
				AlreadyDownloaded: already,
				FileOffsetBase:    fileOffsetBase,
			}, s.ld, s.limiter, s.client, s.plan.Runtime)

			if res.Downloaded > 0 {
				s.ld.Downloaded.Add(res.Downloaded)
				s.ld.AddChunkDownloaded(c.Index, res.Downloaded)
				s.ld.Sequence.Add(1)
				c.Offset += res.Downloaded
				c.Length -= res.Downloaded
			}

			switch res.Outcome {
			case worker.Done:
				lastErr = nil
			case worker.Paused:
				s.mu.Lock()
				s.active--
				s.mu.Unlock()
				return nil
			case worker.Cancelled:
				s.mu.Lock()
				s.active--
				s.mu.Unlock()
				return nil
			case worker.Failed:
				lastErr = res.Err
				continue
			}
			break
		}

		if lastErr != nil && c.Length > 0 {
			// Retries exhausted: redistribute the remaining range so
			// any free worker can pick it up (§4.4's reassignment). It is
			// queued before this worker counts as idle, so the completion
			// monitor never sees an empty queue while it is unassigned.
			s.queue.Push(c)
		}

		s.mu.Lock()
		s.active--
		s.mu.Unlock()

		if lastErr != nil && c.Length <= 0 {
			return types.NewError(types.KindRetryExhausted, lastErr)
		}
	}
}

func backoffDelay(attempt int) time.Duration {
	delays := []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second}
	if attempt-1 < len(delays) && attempt-1 >= 0 {
		return delays[attempt-1]
	}
	return delays[len(delays)-1]
}

func chunkBounds(chunks []types.ChunkState, index int) (int64, int64) {
	for _, c := range chunks {
		if c.Index == index {
			return c.Start, c.End
		}
	}
	return 0, 0
}

// monitorCompletion closes the queue once every worker is idle and the
// queue is empty, or the context ends.
func (s *Scheduler) monitorCompletion(ctx context.Context, closeQueue func()) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			closeQueue()
			return
		case <-ticker.C:
			if s.ld.IsPaused() || s.ld.IsCancelled() {
				closeQueue()
				return
			}
			s.mu.Lock()
			idle := s.active == 0
			s.mu.Unlock()
			if idle && s.queue.Len() == 0 {
				closeQueue()
				return
			}
		}
	}
}

// consumeProgress drains progressCh and forwards each snapshot to the
// Sink, decoupling the sampler's cadence from however long a caller's
// OnProgress callback takes to run. Returns once progressCh is closed and
// drained.
func (s *Scheduler) consumeProgress() {
	for p := range s.progressCh {
		events.Emit(s.sink, p)
	}
}

// sendProgress delivers p without blocking. A full channel means the
// consumer is behind; rather than stall the sampler, the oldest queued
// snapshot is dropped to make room for the freshest one.
func (s *Scheduler) sendProgress(p events.Progress) {
	select {
	case s.progressCh <- p:
		return
	default:
	}
	select {
	case <-s.progressCh:
	default:
	}
	select {
	case s.progressCh <- p:
	default:
	}
}

// sampleProgress emits a Progress event every 100ms, per §4.4's
// fixed-cadence sampling, until the download is paused or cancelled or no
// chunk is queued or in flight. Speed is the bytes received in consecutive
// one-second windows divided by each window's length: it is 0 until the
// first window closes and then holds that value until the next one closes.
// The window does not slide between ticks.
func (s *Scheduler) sampleProgress(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	defer close(s.progressCh)

	var windowStart = time.Now()
	var windowBytes int64
	var lastTotal = s.ld.Downloaded.Load()
	var speed float64

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			total := s.ld.Downloaded.Load()
			windowBytes += total - lastTotal
			lastTotal = total

			if elapsed := now.Sub(windowStart).Seconds(); elapsed >= 1 {
				speed = float64(windowBytes) / elapsed
				windowBytes = 0
				windowStart = now
			}

			s.mu.Lock()
			active := s.active
			s.mu.Unlock()

			chunkProgress := make([]events.ChunkProgress, len(s.plan.Chunks))
			for i, c := range s.plan.Chunks {
				chunkProgress[i] = events.ChunkProgress{
					Index:      c.Index,
					Downloaded: s.ld.ChunkDownloaded(c.Index),
					Total:      c.Length(),
				}
			}

			s.sendProgress(events.Progress{
				DownloadID:    s.ld.Record.ID,
				Downloaded:    total,
				Total:         s.plan.TotalSize,
				SpeedBps:      speed,
				Status:        types.StatusDownloading,
				Active:        active,
				Sequence:      s.ld.Sequence.Add(1),
				ChunkProgress: chunkProgress,
			})

			if s.ld.IsPaused() || s.ld.IsCancelled() || (active == 0 && s.queue.Len() == 0) {
				return
			}
		}
	}
}
