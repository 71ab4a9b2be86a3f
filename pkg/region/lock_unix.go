//go:build unix

// ABOUTME: Advisory exclusive lock on the metadata file, taken at open
// ABOUTME: and released on close — guards against a second process opening

package region

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// acquireAdvisoryLock takes a non-blocking exclusive flock on fd to
// guard against a second process opening the same store. Contention
// surfaces as ErrAlreadyOpen, not a generic IO failure, since it is
// the caller's job to retry or fail fast rather than treat it as a
// corrupt-state IO error.
func acquireAdvisoryLock(fd int) error {
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if err == unix.EWOULDBLOCK {
			return ErrAlreadyOpen
		}
		return fmt.Errorf("%w: flock: %v", ErrIoFailed, err)
	}
	return nil
}

func releaseAdvisoryLock(fd int) error {
	return unix.Flock(fd, unix.LOCK_UN)
}

// fsyncDir fsyncs the parent directory after creating a new file so a
// crash right after creation cannot lose the directory entry.
func fsyncDir(dir string) error {
	fd, err := unix.Open(dir, unix.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("%w: open dir: %v", ErrIoFailed, err)
	}
	defer unix.Close(fd)
	if err := unix.Fsync(fd); err != nil {
		return fmt.Errorf("%w: fsync dir: %v", ErrIoFailed, err)
	}
	return nil
}
