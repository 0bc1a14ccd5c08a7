package briskctl

import (
	"fmt"
	"strings"

	"github.com/briskdl/engine/internal/config"
	"github.com/briskdl/engine/internal/store"
	"github.com/briskdl/engine/internal/types"
)

func openStore() (*store.Store, error) {
	return store.Open(config.StatePath())
}

// resolveID resolves a partial download-ID prefix to the one matching
// record in st, grounded on the teacher's cmd/utils.go resolveDownloadID.
func resolveID(st storeLister, partial string) (types.DownloadId, error) {
	if len(partial) >= 32 {
		return types.DownloadId(partial), nil
	}

	var matches []types.DownloadId
	for _, rec := range st.List() {
		if strings.HasPrefix(string(rec.ID), partial) {
			matches = append(matches, rec.ID)
		}
	}

	switch len(matches) {
	case 0:
		return types.DownloadId(partial), nil
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("ambiguous ID prefix %q matches %d downloads", partial, len(matches))
	}
}

// storeLister is the subset of *store.Store that resolveID needs, so tests
// can substitute a fake.
type storeLister interface {
	List() []types.DownloadRecord
}
