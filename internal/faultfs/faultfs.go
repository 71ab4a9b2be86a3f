// Package faultfs wraps an *os.File with deterministic failpoints so
// tests can simulate a crash at an exact point in a multi-step flush
// (e.g. after the data file is durable but before the metadata file
// is). Failures trigger on a named, deterministic call count rather
// than a random rate — crash-consistency scenarios need an exact
// point to fail at, not a probability.
package faultfs

import (
	"errors"
	"io/fs"
	"os"
)

// Op identifies an operation that Inject can fail.
type Op string

const (
	OpWriteAt  Op = "write_at"
	OpSync     Op = "sync"
	OpTruncate Op = "truncate"
)

// ErrInjected is returned by an operation whose failpoint fired.
var ErrInjected = errors.New("faultfs: injected failure")

// File implements the region.fileAPI surface (ReadAt/WriteAt/Sync/
// Truncate/Close/Fd) over a real *os.File, failing the Nth call to a
// configured Op instead of performing it.
type File struct {
	f *os.File

	// FailAt maps an Op to the 1-based call count at which it should
	// fail. A zero or absent entry means "never fail".
	FailAt map[Op]int

	calls map[Op]int
}

// Wrap returns a File that will inject failures per failAt.
func Wrap(f *os.File, failAt map[Op]int) *File {
	return &File{f: f, FailAt: failAt, calls: make(map[Op]int)}
}

func (w *File) trigger(op Op) bool {
	w.calls[op]++
	n, ok := w.FailAt[op]
	return ok && n > 0 && w.calls[op] == n
}

func (w *File) ReadAt(b []byte, off int64) (int, error) {
	return w.f.ReadAt(b, off)
}

func (w *File) WriteAt(b []byte, off int64) (int, error) {
	if w.trigger(OpWriteAt) {
		return 0, &fs.PathError{Op: "write", Path: w.f.Name(), Err: ErrInjected}
	}
	return w.f.WriteAt(b, off)
}

func (w *File) Sync() error {
	if w.trigger(OpSync) {
		return &fs.PathError{Op: "sync", Path: w.f.Name(), Err: ErrInjected}
	}
	return w.f.Sync()
}

func (w *File) Truncate(size int64) error {
	if w.trigger(OpTruncate) {
		return &fs.PathError{Op: "truncate", Path: w.f.Name(), Err: ErrInjected}
	}
	return w.f.Truncate(size)
}

func (w *File) Close() error { return w.f.Close() }
func (w *File) Fd() uintptr  { return w.f.Fd() }

func (w *File) Stat() (os.FileInfo, error) { return w.f.Stat() }
