package core

import (
	"errors"
	"fmt"
)

var (
	// ErrIO is returned when the underlying file system fails.
	ErrIO = errors.New("i/o failure")

	// ErrCorrupt is returned when data corruption is detected (checksum mismatch, bad structure).
	ErrCorrupt = errors.New("storage corrupted")

	// ErrSizeMismatch is returned when a decoded row does not span exactly its stored bytes.
	ErrSizeMismatch = fmt.Errorf("%w: item size mismatch", ErrCorrupt)

	// ErrInvalidArgument is returned when an argument is invalid.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidRange is returned when a range has min > max.
	ErrInvalidRange = fmt.Errorf("%w: inverse range", ErrInvalidArgument)

	// ErrConcurrency is returned when the single-writer contract is violated.
	ErrConcurrency = errors.New("concurrency violation")

	// ErrStoreBusy is returned when an append session is already open.
	ErrStoreBusy = fmt.Errorf("%w: append session already open", ErrConcurrency)

	// ErrState is returned when an operation is not allowed in the current state.
	ErrState = errors.New("state violation")

	// ErrClosed is returned when an operation is attempted on a closed store or index.
	ErrClosed = fmt.Errorf("%w: closed", ErrState)
)

// IOError wraps a file system error so that it matches ErrIO.
// It returns nil for a nil err.
func IOError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}

// Corruptf formats a corruption error that matches ErrCorrupt.
func Corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}
