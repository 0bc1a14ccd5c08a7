package assembler

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/briskdl/engine/internal/filenameutil"
)

// FragmentPath returns the path of the on-disk fragment backing chunk
// index for destPath, used in place of a sparse pre-sized file when the
// target filesystem doesn't support sparse allocation or the total size is
// unknown at plan time.
func FragmentPath(destPath string, index int) string {
	return destPath + filenameutil.IncompleteSuffix + "." + strconv.Itoa(index)
}

// OpenFragment creates (or reopens for append-on-resume) the fragment file
// for one chunk.
func OpenFragment(destPath string, index int) (*os.File, error) {
	f, err := os.OpenFile(FragmentPath(destPath, index), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create fragment %d: %w", index, err)
	}
	return f, nil
}

// ConcatenateFragments streams fragments 0..n-1 into destPath in index
// order, then removes them, then performs the same atomic rename as
// Finalize. Used for the non-sparse/unknown-size assembly path (§4.5).
func ConcatenateFragments(destPath string, n int, expectedSize int64) error {
	workingPath := destPath + filenameutil.IncompleteSuffix

	out, err := os.OpenFile(workingPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create assembly file: %w", err)
	}

	for i := 0; i < n; i++ {
		path := FragmentPath(destPath, i)
		in, err := os.Open(path)
		if err != nil {
			out.Close()
			return fmt.Errorf("open fragment %d: %w", i, err)
		}
		_, copyErr := io.Copy(out, in)
		in.Close()
		if copyErr != nil {
			out.Close()
			return fmt.Errorf("copy fragment %d: %w", i, copyErr)
		}
	}

	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("sync assembly file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close assembly file: %w", err)
	}

	for i := 0; i < n; i++ {
		_ = os.Remove(FragmentPath(destPath, i))
	}

	if err := os.Rename(workingPath, destPath); err != nil {
		if os.IsNotExist(err) {
			if info, statErr := os.Stat(destPath); statErr == nil {
				if expectedSize <= 0 || info.Size() == expectedSize {
					return nil
				}
			}
		}
		return fmt.Errorf("rename assembly file: %w", err)
	}
	return nil
}

// AbandonFragments removes every fragment file for a cancelled download.
func AbandonFragments(destPath string, n int) error {
	var firstErr error
	for i := 0; i < n; i++ {
		if err := os.Remove(FragmentPath(destPath, i)); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	_ = os.Remove(destPath + filenameutil.IncompleteSuffix)
	return firstErr
}

// FragmentsExist reports whether any fragment files already exist for
// destPath, used to detect a resumable fragment-mode download at startup
// so a crash-recovered resume doesn't retry sparse allocation needlessly.
func FragmentsExist(destPath string) bool {
	matches, _ := filepath.Glob(destPath + filenameutil.IncompleteSuffix + ".*")
	return len(matches) > 0
}
