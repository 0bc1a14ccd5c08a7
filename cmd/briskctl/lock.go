package briskctl

import (
	"fmt"

	"github.com/briskdl/engine/internal/config"
	"github.com/briskdl/engine/internal/store"
)

// withInstanceLock runs fn while holding the single-instance process lock,
// refusing to start if another briskctl process already holds it.
// Grounded on the teacher's cmd/lock.go AcquireLock/ReleaseLock.
func withInstanceLock(fn func() error) error {
	lock, ok, err := store.AcquireInstanceLock(config.LockPath())
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another briskctl process is already running")
	}
	defer lock.Release()
	return fn()
}
