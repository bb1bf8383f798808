// Package fileio provides buffered, positioned cursors over random-access files.
//
// A ReadCursor and a WriteCursor hold a byte window over a file and refill or
// flush it transparently. All integers are big-endian. Strings are stored as an
// int32 byte length followed by UTF-8 bytes; a length of -1 denotes null.
// Timestamps are stored as int64 Unix milliseconds; 0 denotes null.
//
// # Errors
//
// Cursors record the first error they hit. Subsequent getters return zero
// values and puts are dropped; the error is reported by Err, Flush and Close.
// Hitting the end of the file in the middle of a value is reported as
// core.ErrCorrupt, any other file system failure as core.ErrIO.
//
// # Buffer pool
//
// Cursor buffers may be drawn from a bounded Pool. Get never blocks: an empty
// pool allocates a private buffer, and Put silently drops buffers when the
// pool is full or the buffer has a foreign size.
//
// Cursors are not safe for concurrent use. The file itself is not owned by a
// cursor and must be closed separately.
package fileio
