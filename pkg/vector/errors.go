// ABOUTME: Error kinds the vector layer surfaces to callers, mirroring
// ABOUTME: region's classification: recoverable, state-mutating, or fatal

package vector

import "errors"

var (
	// ErrIndexOutOfRange is returned by any positional operation given
	// an index >= the vector's logical length.
	ErrIndexOutOfRange = errors.New("vector: index out of range")
	// ErrVersionMismatch is returned by Open when the on-disk header's
	// element size or user version tag doesn't match the caller's,
	// unless ForceImport is set.
	ErrVersionMismatch = errors.New("vector: version mismatch")
	// ErrCorruptVectorPage is returned when a page fails to decode.
	ErrCorruptVectorPage = errors.New("vector: corrupt page")
	// ErrCorruptHeader is returned when the header region's checksum
	// or structure doesn't validate.
	ErrCorruptHeader = errors.New("vector: corrupt header")
	// ErrUnknownStamp is returned by RollbackStamp when no rollback
	// record names the requested stamp.
	ErrUnknownStamp = errors.New("vector: unknown stamp")
	// ErrStampNotIncreasing is returned by StampedFlush when stamp is
	// not strictly greater than the last stamp recorded.
	ErrStampNotIncreasing = errors.New("vector: stamp must strictly increase")
	// ErrCyclicDerivation names the cyclic-derivation error kind. No
	// operation returns it: Computed1/2/3 take only StoredVector sources,
	// so a cycle cannot be built through this API.
	ErrCyclicDerivation = errors.New("vector: cyclic derivation")
)
