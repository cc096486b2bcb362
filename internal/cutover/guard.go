package cutover

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Guard is a host-local file lock that keeps two cutovers from running on the
// same host at once. It does not replace the table locks.
type Guard struct {
	lock *flock.Flock
}

// AcquireGuard takes the lock at path or returns ErrCutoverInProgress if another
// process (or another Guard in this process) holds it.
func AcquireGuard(path string) (*Guard, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire cutover lock: %w", err)
	}
	if !locked {
		return nil, ErrCutoverInProgress
	}
	return &Guard{lock: lock}, nil
}

func (g *Guard) Release() error {
	if g == nil || g.lock == nil {
		return nil
	}
	return g.lock.Unlock()
}
