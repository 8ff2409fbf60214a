// Package dberr defines the error kinds spec.md §7 requires every
// substrate package to raise, as sentinel values so callers can match
// with errors.Is regardless of which package or wrapping produced them.
package dberr

import "errors"

var (
	// ErrSpaceExhausted is returned when the allocator cannot grow the
	// backing file or find a free slot of sufficient size.
	ErrSpaceExhausted = errors.New("nodedb: space exhausted")

	// ErrCorruptedFile is returned when a header plausibility check
	// fails, a free-list invariant is violated, or tree counts are
	// inconsistent.
	ErrCorruptedFile = errors.New("nodedb: corrupted file")

	// ErrDecryptionFailed is returned when both IV slots' HMACs
	// mismatch the stored ciphertext of an encrypted page.
	ErrDecryptionFailed = errors.New("nodedb: decryption failed")

	// ErrInvalidArgument is returned for out-of-range indices,
	// malformed widths, or dereferencing an inline tag as a ref.
	ErrInvalidArgument = errors.New("nodedb: invalid argument")

	// ErrWriterLockUnavailable is returned when another writer holds
	// the file lock and the caller requested non-blocking acquisition.
	ErrWriterLockUnavailable = errors.New("nodedb: writer lock unavailable")

	// ErrIoFailure is returned when an underlying read/write/fsync
	// returns an OS-level error.
	ErrIoFailure = errors.New("nodedb: io failure")
)
