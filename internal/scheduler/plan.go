// Package scheduler plans and supervises the chunk workers for one
// download (§4.4). Unlike the teacher's ConcurrentDownloader, which
// continuously rebalances by splitting the largest queued task and
// stealing from the busiest active worker, this scheduler partitions the
// file once up front and only ever redistributes a chunk's own remaining
// range, and only after that chunk has exhausted its retries. Grounded on
// internal/engine/concurrent/downloader.go with that behavior removed.
package scheduler

import "github.com/briskdl/engine/internal/types"

// PlanConnections picks N', the number of chunks/workers to use, per §4.4:
// non-resumable or unknown-size downloads always get exactly one; otherwise
// it's min(requested, total/MinChunk), floored to at least 1.
func PlanConnections(requested int, totalSize, minChunk int64, resumable bool) int {
	if !resumable || totalSize <= 0 {
		return 1
	}
	if requested < 1 {
		requested = 1
	}
	byMinChunk := int(totalSize / minChunk)
	n := requested
	if byMinChunk < n {
		n = byMinChunk
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Partition splits [0, totalSize) into n contiguous, gapless ranges. The
// first (totalSize mod n) chunks get one extra byte so the union is exact,
// satisfying invariant I3.
func Partition(totalSize int64, n int) []types.ChunkState {
	if n < 1 {
		n = 1
	}
	base := totalSize / int64(n)
	remainder := totalSize % int64(n)

	chunks := make([]types.ChunkState, n)
	var cursor int64
	for i := 0; i < n; i++ {
		length := base
		if int64(i) < remainder {
			length++
		}
		chunks[i] = types.ChunkState{
			Index: i,
			Start: cursor,
			End:   cursor + length - 1,
		}
		cursor += length
	}
	return chunks
}
