package types

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DownloadId is an opaque, restart-stable identifier for a download.
type DownloadId string

// NewDownloadId mints a fresh identifier.
func NewDownloadId() DownloadId {
	return DownloadId(uuid.New().String())
}

// Status is the download's position in the state machine described in
// the Download Manager's lifecycle (§4.7).
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
	StatusMerging     Status = "merging"
)

// Terminal reports whether a status rejects further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// SchemaVersion is bumped whenever DownloadRecord's on-disk shape changes
// in a way that requires a migration.
const SchemaVersion = 1

// ChunkState is one contiguous, persisted byte range of a download.
type ChunkState struct {
	Index      int   `json:"index"`
	Start      int64 `json:"start"`      // inclusive
	End        int64 `json:"end"`        // inclusive
	Downloaded int64 `json:"downloaded"` // bytes written so far within [Start, End]
}

// Length returns the number of bytes this chunk covers.
func (c ChunkState) Length() int64 { return c.End - c.Start + 1 }

// Remaining returns the number of bytes not yet downloaded in this chunk.
func (c ChunkState) Remaining() int64 { return c.Length() - c.Downloaded }

// Done reports whether the chunk has received every byte in its range.
func (c ChunkState) Done() bool { return c.Downloaded >= c.Length() }

// DownloadRecord is the durable, crash-recoverable representation of one
// download. Unknown fields encountered on load are preserved via Extra so
// that future schema additions round-trip through older builds untouched.
type DownloadRecord struct {
	ID              DownloadId     `json:"id"`
	SchemaVersion   int            `json:"schema_version"`
	SourceURL       string         `json:"source_url"`
	FinalURL        string         `json:"final_url"`
	Filename        string         `json:"filename"`
	TargetPath      string         `json:"target_path"`
	TotalSize       int64          `json:"total_size"` // 0 means unknown
	Downloaded      int64          `json:"downloaded"`
	Status          Status         `json:"status"`
	Resumable       bool           `json:"resumable"`
	CreatedAt       time.Time      `json:"created_at"`
	Chunks          []ChunkState   `json:"chunks"`
	Error           string         `json:"error,omitempty"`
	ContentType     string         `json:"content_type,omitempty"`
	ETag            string         `json:"etag,omitempty"`

	// Extra preserves fields this build doesn't know about, so a re-save
	// never drops data written by a newer or older build. Populated and
	// re-merged by UnmarshalJSON/MarshalJSON below, never touched directly.
	Extra map[string]any `json:"-"`
}

// downloadRecordAlias has the same fields as DownloadRecord but none of its
// methods, so MarshalJSON/UnmarshalJSON can delegate to the default struct
// codec without infinitely recursing into themselves.
type downloadRecordAlias DownloadRecord

// knownRecordFields is the set of JSON keys downloadRecordAlias's own tags
// claim; anything else encountered on load is an unknown field to preserve
// in Extra rather than silently discard (§4.6/§6: "unknown fields are
// preserved on re-save").
var knownRecordFields = func() map[string]bool {
	t := reflect.TypeOf(downloadRecordAlias{})
	known := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		if tag == "" {
			continue
		}
		name := strings.Split(tag, ",")[0]
		if name == "" || name == "-" {
			continue
		}
		known[name] = true
	}
	return known
}()

// MarshalJSON re-merges Extra's preserved unknown fields alongside the
// record's own fields, so a newer build's additions survive a round trip
// through this one.
func (r DownloadRecord) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(downloadRecordAlias(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return data, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		raw, err := json.Marshal(v)
		if err != nil {
			continue
		}
		merged[k] = raw
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the record's known fields normally and stashes
// everything else in Extra, keyed by JSON field name.
func (r *DownloadRecord) UnmarshalJSON(data []byte) error {
	var alias downloadRecordAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var extra map[string]any
	for k, v := range raw {
		if knownRecordFields[k] {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[k] = val
	}

	*r = DownloadRecord(alias)
	r.Extra = extra
	return nil
}

// SumChunks recomputes the aggregate downloaded total from the chunk list.
// Invariant I1 (§8): sum(chunk.downloaded) == record.downloaded.
func (r *DownloadRecord) SumChunks() int64 {
	var total int64
	for _, c := range r.Chunks {
		total += c.Downloaded
	}
	return total
}

// Resync sets Downloaded from the chunk list, keeping invariant I1 true
// after any chunk mutation.
func (r *DownloadRecord) Resync() {
	r.Downloaded = r.SumChunks()
}

// PartitionsExactly checks invariant I3 (§8): for a resumable record with a
// known total, chunks form a contiguous, gapless, non-overlapping partition
// of [0, total).
func (r *DownloadRecord) PartitionsExactly() bool {
	if !r.Resumable || r.TotalSize <= 0 {
		return true
	}
	if len(r.Chunks) == 0 {
		return false
	}
	var cursor int64
	for _, c := range r.Chunks {
		if c.Start != cursor || c.End < c.Start {
			return false
		}
		cursor = c.End + 1
	}
	return cursor == r.TotalSize
}
