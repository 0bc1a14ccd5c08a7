// Package assembler guarantees the final on-disk file equals the
// concatenation of its chunks and performs the atomic rename from working
// file to final name (§2 item 5, §4.5). Grounded on the rename/race-
// recovery logic at the tail of the teacher's
// internal/engine/concurrent/downloader.go Download method.
package assembler

import (
	"fmt"
	"os"

	"github.com/briskdl/engine/internal/filenameutil"
)

// PrepareSparse creates (or reopens) the working file for a resumable,
// known-size download and pre-sizes it to totalSize so every chunk worker
// can WriteAt its own region independently.
func PrepareSparse(destPath string, totalSize int64) (*os.File, error) {
	workingPath := destPath + filenameutil.IncompleteSuffix
	f, err := os.OpenFile(workingPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create working file: %w", err)
	}
	if totalSize > 0 {
		if err := f.Truncate(totalSize); err != nil {
			f.Close()
			return nil, fmt.Errorf("preallocate working file: %w", err)
		}
	}
	return f, nil
}

// PrepareStream creates the working file for a non-resumable or
// unknown-size download, where a single worker writes sequentially and no
// pre-sizing is possible.
func PrepareStream(destPath string) (*os.File, error) {
	workingPath := destPath + filenameutil.IncompleteSuffix
	f, err := os.OpenFile(workingPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create working file: %w", err)
	}
	return f, nil
}

// Finalize fsyncs the working file, closes it, and atomically renames it to
// destPath. If the rename fails because destPath already exists with the
// expected size, a concurrent finalize (or an external race) already
// completed the work and this is treated as success, matching the
// teacher's race-condition recovery.
func Finalize(f *os.File, destPath string, expectedSize int64) error {
	workingPath := destPath + filenameutil.IncompleteSuffix

	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync working file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close working file: %w", err)
	}

	if err := os.Rename(workingPath, destPath); err != nil {
		if os.IsNotExist(err) {
			if info, statErr := os.Stat(destPath); statErr == nil {
				if expectedSize <= 0 || info.Size() == expectedSize {
					return nil
				}
			}
		}
		return fmt.Errorf("rename working file: %w", err)
	}
	return nil
}

// Abandon removes the working file after a cancel, per the lifecycle rule
// in §3 that a cancel deletes working files.
func Abandon(destPath string) error {
	workingPath := destPath + filenameutil.IncompleteSuffix
	if err := os.Remove(workingPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove working file: %w", err)
	}
	return nil
}
