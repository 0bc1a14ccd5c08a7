// Package manager implements the Download Manager façade (§4.7): the
// single public entry point that owns the registry of live downloads and
// coordinates probe, scheduler, assembler, and store. Grounded on the
// teacher's internal/download/manager.go (probe -> destPath resolution ->
// scheduler dispatch sequence) and internal/download/pool.go (registry,
// pause/resume/cancel, GracefulShutdown idiom), generalized from a
// channel-driven worker pool to a synchronous per-download goroutine since
// this engine has no fixed-size worker-pool cap (§4.7: "multiple downloads
// run in parallel without a cap imposed by the engine").
package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/briskdl/engine/internal/applog"
	"github.com/briskdl/engine/internal/assembler"
	"github.com/briskdl/engine/internal/config"
	"github.com/briskdl/engine/internal/events"
	"github.com/briskdl/engine/internal/filenameutil"
	"github.com/briskdl/engine/internal/launcher"
	"github.com/briskdl/engine/internal/probe"
	"github.com/briskdl/engine/internal/ratelimit"
	"github.com/briskdl/engine/internal/scheduler"
	"github.com/briskdl/engine/internal/store"
	"github.com/briskdl/engine/internal/types"
)

// Manager is the engine's public façade. One process owns exactly one
// Manager, backed by one Store and one shared BandwidthLimiter.
type Manager struct {
	store   *store.Store
	limiter *ratelimit.BandwidthLimiter
	sink    events.Sink

	mu    sync.RWMutex
	live  map[types.DownloadId]*types.LiveDownload
	wg    sync.WaitGroup

	settingsMu       sync.RWMutex
	downloadFolder   string
	connections      int
}

// New builds a Manager backed by st, publishing events to sink. speedLimit
// is in bytes/sec (0 = unlimited), per §4.2.
func New(st *store.Store, sink events.Sink, downloadFolder string, connections int, speedLimitBps int64) *Manager {
	if connections < 1 {
		connections = config.DefaultMaxConnectionsPerHost
	}
	return &Manager{
		store:          st,
		limiter:        ratelimit.NewBandwidthLimiter(speedLimitBps),
		sink:           sink,
		live:           make(map[types.DownloadId]*types.LiveDownload),
		downloadFolder: downloadFolder,
		connections:    connections,
	}
}

// Probe delegates to the probe package (§4.7 probe(url)).
func (m *Manager) Probe(ctx context.Context, rawurl string) (*probe.Result, error) {
	return probe.Server(ctx, rawurl, m.runtimeConfig())
}

// CheckTarget reports whether filename already exists in the configured
// download folder, and if so, the first unused "(n)" suggestion.
func (m *Manager) CheckTarget(filename string) (exists bool, suggested string) {
	m.settingsMu.RLock()
	dir := m.downloadFolder
	m.settingsMu.RUnlock()

	path := filepath.Join(dir, filename)
	if _, err := os.Stat(path); err != nil {
		return false, filename
	}
	return true, filepath.Base(filenameutil.Unique(path))
}

// Start creates a record from a completed Probe, plans the chunk
// partition, and spawns the scheduler in the background, returning
// immediately with the new DownloadId (§4.7 start()). info's ETag and
// ContentType are persisted alongside the record so a later
// ResumeInterrupted can detect that the server-side resource changed.
func (m *Manager) Start(ctx context.Context, rawurl string, info *probe.Result) (types.DownloadId, error) {
	m.settingsMu.RLock()
	dir := m.downloadFolder
	conns := m.connections
	m.settingsMu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", types.NewError(types.KindIOError, err)
	}

	filename := info.Filename
	if filename == "" {
		filename = "download.bin"
	}
	destPath := filenameutil.Unique(filepath.Join(dir, filename))

	finalURL := info.FinalURL
	if finalURL == "" {
		finalURL = rawurl
	}

	rec := types.DownloadRecord{
		ID:            types.NewDownloadId(),
		SchemaVersion: types.SchemaVersion,
		SourceURL:     rawurl,
		FinalURL:      finalURL,
		Filename:      filepath.Base(destPath),
		TargetPath:    destPath,
		TotalSize:     info.TotalSize,
		Status:        types.StatusQueued,
		Resumable:     info.Resumable,
		CreatedAt:     time.Now(),
		ContentType:   info.ContentType,
		ETag:          info.ETag,
	}

	rc := m.runtimeConfig()
	n := scheduler.PlanConnections(conns, info.TotalSize, rc.GetMinChunkSize(), info.Resumable)
	if info.Resumable && info.TotalSize > 0 {
		rec.Chunks = scheduler.Partition(info.TotalSize, n)
	} else {
		rec.Chunks = []types.ChunkState{{Index: 0, Start: 0, End: info.TotalSize - 1}}
	}

	ld := types.NewLiveDownload(rec)

	m.mu.Lock()
	m.live[rec.ID] = ld
	m.mu.Unlock()
	m.store.Put(rec)

	m.wg.Add(1)
	go m.run(ctx, ld)

	return rec.ID, nil
}

// ResumeInterrupted loads a record left Paused by a prior crash or explicit
// pause and restarts its scheduler from the persisted ChunkStates (§4.7
// resume_interrupted(id)). Before restarting, it re-probes the source URL
// and refuses to resume against a resource whose size or ETag no longer
// matches what was persisted, surfacing KindResourceChanged rather than
// silently writing mismatched bytes into the partially downloaded file.
func (m *Manager) ResumeInterrupted(ctx context.Context, id types.DownloadId) error {
	rec, ok := m.store.Get(id)
	if !ok {
		return fmt.Errorf("unknown download %s", id)
	}
	if rec.Status.Terminal() {
		return fmt.Errorf("download %s is in terminal state %s", id, rec.Status)
	}

	if rec.Resumable && len(rec.Chunks) > 0 {
		res, err := m.Probe(ctx, rec.FinalURL)
		if err != nil {
			return fmt.Errorf("re-probe before resuming %s: %w", id, err)
		}
		if resourceChanged(rec, res) {
			return types.NewResourceChanged(fmt.Errorf(
				"resource at %s changed since it was paused (size %d -> %d, etag %q -> %q)",
				rec.FinalURL, rec.TotalSize, res.TotalSize, rec.ETag, res.ETag))
		}
	}

	ld := types.NewLiveDownload(rec)
	m.mu.Lock()
	m.live[id] = ld
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(ctx, ld)
	return nil
}

// resourceChanged compares a persisted record against a fresh probe result,
// reporting a mismatch only when both sides have a known value to compare;
// an absent ETag or size on either side isn't itself evidence of change.
func resourceChanged(rec types.DownloadRecord, res *probe.Result) bool {
	if rec.ETag != "" && res.ETag != "" && rec.ETag != res.ETag {
		return true
	}
	if rec.TotalSize > 0 && res.TotalSize > 0 && rec.TotalSize != res.TotalSize {
		return true
	}
	return false
}

func (m *Manager) run(ctx context.Context, ld *types.LiveDownload) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		if ld.IsCancelled() || ld.IsPaused() || ld.Record.Status.Terminal() {
			delete(m.live, ld.Record.ID)
		}
		m.mu.Unlock()
	}()

	rec := &ld.Record
	rec.Status = types.StatusDownloading
	m.store.Put(*rec)
	events.Emit(m.sink, events.Started{
		DownloadID: rec.ID,
		URL:        rec.SourceURL,
		Filename:   rec.Filename,
		Total:      rec.TotalSize,
		DestPath:   rec.TargetPath,
	})

	var f *os.File
	var err error
	sparseCapable := rec.Resumable && rec.TotalSize > 0
	fragmentMode := sparseCapable && assembler.FragmentsExist(rec.TargetPath)
	switch {
	case fragmentMode:
		// A prior attempt already fell back to fragment files; resume in
		// the same mode rather than retrying sparse allocation.
	case sparseCapable:
		f, err = assembler.PrepareSparse(rec.TargetPath, rec.TotalSize)
		if err != nil {
			// Some destination filesystems reject pre-sized sparse
			// allocation (e.g. Truncate returning ENOTSUP); fall back to
			// per-chunk fragment files assembled by concatenation (§4.5).
			applog.Debug("download %s: sparse allocation failed (%v), falling back to fragment assembly", rec.ID, err)
			fragmentMode = true
			err = nil
		}
	default:
		f, err = assembler.PrepareStream(rec.TargetPath)
	}
	if err != nil {
		m.fail(ld, err)
		return
	}
	ld.SetWorkingFile(f)

	plan := scheduler.Plan{
		URL:       rec.FinalURL,
		File:      f,
		TotalSize: rec.TotalSize,
		Chunks:    rec.Chunks,
		Runtime:   m.runtimeConfig(),
	}
	if fragmentMode {
		plan.FragmentMode = true
		plan.FragmentFile = func(index int) (*os.File, error) {
			return assembler.OpenFragment(rec.TargetPath, index)
		}
	}
	sched := scheduler.New(plan, ld, m.limiter, m.sink)

	runErr := sched.Run(ctx)

	// Pull each chunk's cumulative progress back from the live download
	// before persisting, so a paused-and-resumed record starts workers from
	// where they actually left off instead of re-downloading whole chunks,
	// and invariant I1 (sum(chunk.downloaded) == record.downloaded, §8)
	// holds in the persisted record.
	for i := range rec.Chunks {
		rec.Chunks[i].Downloaded = ld.ChunkDownloaded(rec.Chunks[i].Index)
	}
	rec.Resync()

	switch {
	case ld.IsCancelled():
		rec.Status = types.StatusCancelled
		ld.SetWorkingFile(nil)
		if fragmentMode {
			_ = assembler.AbandonFragments(rec.TargetPath, len(rec.Chunks))
		} else {
			_ = assembler.Abandon(rec.TargetPath)
		}
		m.store.Put(*rec)
		_ = m.store.Checkpoint()
		events.Emit(m.sink, events.Cancelled{DownloadID: rec.ID})

	case ld.IsPaused():
		rec.Status = types.StatusPaused
		m.store.Put(*rec)
		_ = m.store.Checkpoint()
		events.Emit(m.sink, events.Paused{DownloadID: rec.ID, Downloaded: rec.Downloaded})

	case runErr != nil:
		m.fail(ld, runErr)

	default:
		rec.Status = types.StatusMerging
		m.store.Put(*rec)
		ld.SetWorkingFile(nil)
		var finalizeErr error
		if fragmentMode {
			finalizeErr = assembler.ConcatenateFragments(rec.TargetPath, len(rec.Chunks), rec.TotalSize)
		} else {
			finalizeErr = assembler.Finalize(f, rec.TargetPath, rec.TotalSize)
		}
		if finalizeErr != nil {
			m.fail(ld, finalizeErr)
			return
		}
		rec.Status = types.StatusCompleted
		m.store.Put(*rec)
		_ = m.store.Checkpoint()
		events.Emit(m.sink, events.Completed{
			DownloadID: rec.ID,
			Filename:   rec.Filename,
			Total:      rec.TotalSize,
		})
	}
}

func (m *Manager) fail(ld *types.LiveDownload, err error) {
	rec := &ld.Record
	rec.Status = types.StatusFailed
	rec.Error = err.Error()
	m.store.Put(*rec)
	_ = m.store.Checkpoint()
	applog.Debug("download %s failed: %v", rec.ID, err)
	events.Emit(m.sink, events.Failed{DownloadID: rec.ID, Err: err})
}

// Pause requests a download stop after its current sample cadence (§4.7
// pause(id)).
func (m *Manager) Pause(id types.DownloadId) error {
	ld, ok := m.liveDownload(id)
	if !ok {
		return fmt.Errorf("download %s is not active", id)
	}
	ld.RequestPause()
	return nil
}

// Resume restarts a paused download through ResumeInterrupted once its
// scheduler has stopped. A download that is still live (running, or still
// winding down after a pause request) is refused as already active.
func (m *Manager) Resume(ctx context.Context, id types.DownloadId) error {
	if _, ok := m.liveDownload(id); ok {
		return fmt.Errorf("download %s is already active", id)
	}
	return m.ResumeInterrupted(ctx, id)
}

// Cancel requests a download stop and its working files be discarded
// (§4.7 cancel(id)).
func (m *Manager) Cancel(id types.DownloadId) error {
	ld, ok := m.liveDownload(id)
	if !ok {
		rec, exists := m.store.Get(id)
		if !exists {
			return fmt.Errorf("unknown download %s", id)
		}
		if rec.Status == types.StatusCancelled {
			return nil
		}
		if rec.Status.Terminal() {
			return fmt.Errorf("download %s is already %s", id, rec.Status)
		}
		rec.Status = types.StatusCancelled
		_ = assembler.Abandon(rec.TargetPath)
		_ = assembler.AbandonFragments(rec.TargetPath, len(rec.Chunks))
		m.store.Put(rec)
		return nil
	}
	ld.RequestCancel()
	return nil
}

// List returns every known record, live or historical (§4.7 list()).
func (m *Manager) List() []types.DownloadRecord {
	return m.store.List()
}

// RemoveFromHistory deletes a terminal record (§4.7
// remove_from_history(id)).
func (m *Manager) RemoveFromHistory(id types.DownloadId) error {
	if _, ok := m.liveDownload(id); ok {
		return fmt.Errorf("cannot remove active download %s from history", id)
	}
	m.store.Delete(id)
	return nil
}

// ClearHistory removes every terminal record, leaving active downloads
// untouched (§4.7 clear_history()).
func (m *Manager) ClearHistory() {
	for _, rec := range m.store.List() {
		if rec.Status.Terminal() {
			m.store.Delete(rec.ID)
		}
	}
}

// SetConnections changes the connection count applied to downloads started
// after this call (§4.7: "applies to future downloads only").
func (m *Manager) SetConnections(n int) {
	if n < 1 {
		n = 1
	}
	if n > config.PerHostMax {
		n = config.PerHostMax
	}
	m.settingsMu.Lock()
	m.connections = n
	m.settingsMu.Unlock()
}

// SetSpeedLimit changes the process-wide bandwidth cap, taking effect
// within <=1s per §4.2.
func (m *Manager) SetSpeedLimit(bytesPerSec int64) {
	m.limiter.SetRate(bytesPerSec)
}

// SetDownloadFolder changes the directory new downloads are placed in.
func (m *Manager) SetDownloadFolder(path string) {
	m.settingsMu.Lock()
	m.downloadFolder = path
	m.settingsMu.Unlock()
}

// GetConnections returns the connection count applied to downloads started
// after the last SetConnections call (§4.7).
func (m *Manager) GetConnections() int {
	m.settingsMu.RLock()
	defer m.settingsMu.RUnlock()
	return m.connections
}

// GetSpeedLimit returns the process-wide bandwidth cap in bytes/sec (0 =
// unlimited), per §4.2.
func (m *Manager) GetSpeedLimit() int64 {
	return m.limiter.Rate()
}

// GetDownloadFolder returns the directory new downloads are placed in.
func (m *Manager) GetDownloadFolder() string {
	m.settingsMu.RLock()
	defer m.settingsMu.RUnlock()
	return m.downloadFolder
}

// ResetDownloadFolder restores the download folder to the platform default
// (the user's Downloads directory, per config.DefaultSettings) and returns
// the path it was reset to.
func (m *Manager) ResetDownloadFolder() string {
	dir := config.DefaultSettings().DefaultDownloadDir
	m.settingsMu.Lock()
	m.downloadFolder = dir
	m.settingsMu.Unlock()
	return dir
}

// OpenFile hands a completed download's file off to the OS's default
// handler for its type.
func (m *Manager) OpenFile(path string) error {
	return launcher.OpenFile(path)
}

// ShowInFolder reveals a completed download's file in the OS's file
// manager.
func (m *Manager) ShowInFolder(path string) error {
	return launcher.ShowInFolder(path)
}

func (m *Manager) runtimeConfig() *config.RuntimeConfig {
	m.settingsMu.RLock()
	defer m.settingsMu.RUnlock()
	return &config.RuntimeConfig{MaxConnectionsPerHost: m.connections}
}

func (m *Manager) liveDownload(id types.DownloadId) (*types.LiveDownload, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ld, ok := m.live[id]
	return ld, ok
}

// GracefulShutdown pauses every active download and waits for their
// schedulers to persist state, up to timeout. Grounded on the teacher's
// WorkerPool.GracefulShutdown.
func (m *Manager) GracefulShutdown(timeout time.Duration) {
	m.mu.RLock()
	for _, ld := range m.live {
		ld.RequestPause()
	}
	m.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		applog.Debug("GracefulShutdown: timed out waiting for downloads to pause")
	}
}
