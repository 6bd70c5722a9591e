package index

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// lockPath names the lock file guarding path. With an empty dir the lock
// sits next to the document; otherwise it is a dotfile inside dir.
func lockPath(dir, path string) string {
	if dir == "" {
		return path + ".lock"
	}
	return filepath.Join(dir, "."+filepath.Base(path)+".lock")
}

// lockDocument takes the advisory lock at lockFile, waiting until it is
// free or ctx is done. The returned func releases it.
func lockDocument(ctx context.Context, lockFile string) (func(), error) {
	lock := flock.New(lockFile)
	ok, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", lockFile, err)
	}
	if !ok {
		return nil, errors.New("lock " + lockFile + ": not acquired")
	}
	return func() { _ = lock.Unlock() }, nil
}
