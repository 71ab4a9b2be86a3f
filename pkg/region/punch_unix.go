//go:build unix

// ABOUTME: Filesystem-level space reclamation: hole-punch live holes,
// ABOUTME: always attempt tail truncation even when punching is unsupported

package region

import (
	"golang.org/x/sys/unix"
)

// punchHole asks the filesystem to deallocate [offset, offset+length)
// without changing the file's apparent size. Punching is best-effort:
// unsupported filesystems (tmpfs, some overlay/network mounts) return
// ENOTSUP/EOPNOTSUPP, which Store.Flush logs and otherwise ignores. Any
// other error is still surfaced — only the "kernel doesn't support
// this" case is masked.
func punchHole(fd int, offset, length uint64) error {
	err := unix.Fallocate(fd, unix.FALLOC_FL_PUNCH_HOLE|unix.FALLOC_FL_KEEP_SIZE, int64(offset), int64(length))
	if err == unix.ENOTSUP || err == unix.EOPNOTSUPP {
		return errPunchUnsupported
	}
	return err
}

var errPunchUnsupported = &punchUnsupportedError{}

type punchUnsupportedError struct{}

func (*punchUnsupportedError) Error() string { return "region: hole punch unsupported by filesystem" }
