// Package events defines the progress and lifecycle notifications the
// Download Manager emits to callers (a CLI, a TUI, anything subscribed to a
// download). Grounded on the teacher's internal/engine/events/events.go.
package events

import (
	"time"

	"github.com/briskdl/engine/internal/types"
)

// Progress reports a fixed-cadence snapshot of a download's state (§4.4,
// §4.7). Sequence increases monotonically per download so a consumer can
// discard stale snapshots delivered out of order.
type Progress struct {
	DownloadID    DownloadID
	Downloaded    int64
	Total         int64
	SpeedBps      float64
	Status        types.Status
	Active        int // number of chunk workers currently running
	Sequence      int64
	ChunkProgress []ChunkProgress
}

// ChunkProgress is one chunk's contribution to a Progress snapshot, per the
// wire shape in §6 (`chunk_progress:[{id, downloaded, total}]`).
type ChunkProgress struct {
	Index      int
	Downloaded int64
	Total      int64
}

// DownloadID is a local alias so this package has no direct dependency on
// the chunk-level details of types.DownloadRecord.
type DownloadID = types.DownloadId

// Started fires once probing and planning finish and workers begin.
type Started struct {
	DownloadID DownloadID
	URL        string
	Filename   string
	Total      int64
	DestPath   string
}

// Completed fires when the assembler finishes and the final file is in
// place.
type Completed struct {
	DownloadID DownloadID
	Filename   string
	Elapsed    time.Duration
	Total      int64
}

// Failed fires when a download transitions to Status Failed.
type Failed struct {
	DownloadID DownloadID
	Err        error
}

// Paused fires when every worker has stopped in response to a pause
// request and state has been persisted.
type Paused struct {
	DownloadID DownloadID
	Downloaded int64
}

// Resumed fires when a paused download starts spawning workers again.
type Resumed struct {
	DownloadID DownloadID
}

// Cancelled fires when a cancel request has torn down all workers and
// working files have been removed.
type Cancelled struct {
	DownloadID DownloadID
}

// Sink receives events from a download's lifecycle. The Manager publishes
// to a caller-supplied Sink; nil entries are safe for callers that don't
// care about a given event kind.
type Sink struct {
	OnProgress  func(Progress)
	OnStarted   func(Started)
	OnCompleted func(Completed)
	OnFailed    func(Failed)
	OnPaused    func(Paused)
	OnResumed   func(Resumed)
	OnCancelled func(Cancelled)
}

func (s Sink) progress(e Progress)   { if s.OnProgress != nil { s.OnProgress(e) } }
func (s Sink) started(e Started)     { if s.OnStarted != nil { s.OnStarted(e) } }
func (s Sink) completed(e Completed) { if s.OnCompleted != nil { s.OnCompleted(e) } }
func (s Sink) failed(e Failed)       { if s.OnFailed != nil { s.OnFailed(e) } }
func (s Sink) paused(e Paused)       { if s.OnPaused != nil { s.OnPaused(e) } }
func (s Sink) resumed(e Resumed)     { if s.OnResumed != nil { s.OnResumed(e) } }
func (s Sink) cancelled(e Cancelled) { if s.OnCancelled != nil { s.OnCancelled(e) } }

// Emit dispatches e to whichever Sink callback matches its type. Unknown
// types are silently ignored so new event kinds don't need every caller
// updated in lockstep.
func Emit(s Sink, e any) {
	switch v := e.(type) {
	case Progress:
		s.progress(v)
	case Started:
		s.started(v)
	case Completed:
		s.completed(v)
	case Failed:
		s.failed(v)
	case Paused:
		s.paused(v)
	case Resumed:
		s.resumed(v)
	case Cancelled:
		s.cancelled(v)
	}
}
