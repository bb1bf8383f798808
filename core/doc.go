// Package core defines the vocabulary shared by every layer of wormdb:
// the error taxonomy, nullable values, inclusive ranges and the
// key/row pairs that drive index rebuilds.
//
// # Errors
//
// All storage errors wrap one of the sentinels below and are matched with
// errors.Is:
//
//   - [ErrIO]: the file system failed. Never retried.
//   - [ErrCorrupt]: a checksum or structural invariant failed on read.
//     Treat the storage instance as lost and restore it from a backup.
//   - [ErrInvalidArgument]: caller misuse (inverted range, reserved
//     sentinel used as data, codec width mismatch).
//   - [ErrConcurrency]: a second append session, or a size observation
//     while a session is open.
//   - [ErrState]: the operation is not allowed in the current state
//     (reading while appending, using a closed store).
//
// # Ordering
//
// Keys are ordered by value ascending with nulls last, and pairs with equal
// keys by row ascending. Every on-disk index relies on this order; it is
// defined here rather than left to the natural order of the key type.
package core
