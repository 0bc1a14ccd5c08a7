// Package store persists DownloadRecords to a single JSON file with
// debounced, crash-safe writes (§4.6). The teacher backs the equivalent
// concern with modernc.org/sqlite; this package deliberately does not
// reuse that schema (see DESIGN.md) but keeps the teacher's concurrency
// idiom of a dedicated writer goroutine fed by a channel, and its
// gofrs/flock single-instance-lock pattern from cmd/lock.go.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/briskdl/engine/internal/applog"
	"github.com/briskdl/engine/internal/types"
)

// Store is a durable journal of every download, flushed to path at most
// once per second unless a caller forces a checkpoint.
type Store struct {
	path string

	mu      sync.RWMutex
	records map[types.DownloadId]types.DownloadRecord

	dirty     chan struct{}
	checkpoint chan chan struct{}
	closeCh   chan struct{}
	wg        sync.WaitGroup
}

// Open loads path (quarantining it first if corrupt) and starts the
// background writer. Records whose status was Downloading are re-marked
// Paused, since the process that owned them died mid-transfer.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	records, err := load(path)
	if err != nil {
		return nil, err
	}

	s := &Store{
		path:       path,
		records:    records,
		dirty:      make(chan struct{}, 1),
		checkpoint: make(chan chan struct{}),
		closeCh:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writerLoop()
	return s, nil
}

// load reads the on-disk state file, a JSON array of DownloadRecord objects
// per §4.6/§6 ("JSON array of DownloadRecord objects at
// <app_data_dir>/downloads.json"), into an ID-keyed map for fast lookup.
func load(path string) (map[types.DownloadId]types.DownloadRecord, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return make(map[types.DownloadId]types.DownloadRecord), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var recs []types.DownloadRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		quarantine(path)
		applog.Debug("store: quarantined corrupt state file: %v", err)
		return make(map[types.DownloadId]types.DownloadRecord), nil
	}

	records := make(map[types.DownloadId]types.DownloadRecord, len(recs))
	for _, rec := range recs {
		if rec.Status == types.StatusDownloading {
			rec.Status = types.StatusPaused
		}
		records[rec.ID] = rec
	}
	return records, nil
}

func quarantine(path string) {
	dst := fmt.Sprintf("%s.bak.%d", path, time.Now().Unix())
	_ = os.Rename(path, dst)
}

// Put inserts or replaces a record and schedules a debounced flush.
func (s *Store) Put(rec types.DownloadRecord) {
	s.mu.Lock()
	s.records[rec.ID] = rec
	s.mu.Unlock()
	s.markDirty()
}

// Get returns a copy of the record for id, if present.
func (s *Store) Get(id types.DownloadId) (types.DownloadRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

// List returns a snapshot of every record.
func (s *Store) List() []types.DownloadRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.DownloadRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out
}

// Delete removes a record (explicit history removal, §3's "removal is an
// explicit history operation").
func (s *Store) Delete(id types.DownloadId) {
	s.mu.Lock()
	delete(s.records, id)
	s.mu.Unlock()
	s.markDirty()
}

func (s *Store) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// Checkpoint forces an immediate flush and blocks until it completes,
// for pause/completion/shutdown checkpoints per §4.6.
func (s *Store) Checkpoint() error {
	done := make(chan struct{})
	s.checkpoint <- done
	<-done
	return nil
}

// Close flushes any pending state and stops the writer goroutine.
func (s *Store) Close() error {
	err := s.Checkpoint()
	close(s.closeCh)
	s.wg.Wait()
	return err
}

func (s *Store) writerLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	pending := false
	for {
		select {
		case <-s.dirty:
			pending = true
		case <-ticker.C:
			if pending {
				if err := s.flush(); err != nil {
					applog.Debug("store: periodic flush failed: %v", err)
				}
				pending = false
			}
		case done := <-s.checkpoint:
			if err := s.flush(); err != nil {
				applog.Debug("store: checkpoint flush failed: %v", err)
			}
			pending = false
			close(done)
		case <-s.closeCh:
			return
		}
	}
}

func (s *Store) flush() error {
	s.mu.RLock()
	recs := make([]types.DownloadRecord, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	// Stable ordering so two flushes of the same state produce a byte-
	// identical file, easier to diff and to reason about during recovery.
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].ID < recs[j].ID
	})

	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open temp state file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("fsync temp state file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename state file: %w", err)
	}
	return nil
}

// InstanceLock is the single-instance process lock guarding the state
// directory, grounded on the teacher's cmd/lock.go AcquireLock/ReleaseLock.
type InstanceLock struct {
	fl *flock.Flock
}

// AcquireInstanceLock attempts to become the sole process operating on
// path's directory. ok is false (with a nil error) when another process
// already holds the lock.
func AcquireInstanceLock(path string) (lock *InstanceLock, ok bool, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, false, fmt.Errorf("create lock dir: %w", err)
	}
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("try lock: %w", err)
	}
	if !locked {
		return nil, false, nil
	}
	return &InstanceLock{fl: fl}, true, nil
}

// Release unlocks the instance lock.
func (l *InstanceLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
