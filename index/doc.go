// Package index implements secondary indexes mapping column values to row ids.
//
// Two implementations share the Index contract:
//
//   - RangeIndex keeps every (key, row) pair in a file sorted by key, nulls
//     last, and answers value and range lookups with binary search over the
//     file. Keys must have a fixed-width codec.
//   - GroupIndex loads the distinct keys into memory and keeps, per key, a
//     checksummed block of row ids on disk. It suits low-cardinality columns.
//
// # File formats
//
// All integers are big-endian.
//
//	RangeIndex: int64 count | count × key | count × int32 row
//	GroupIndex: int32 headerSize | int32 keyCount |
//	            keyCount × (key, int64 offset, int32 count) |
//	            per key: count × int32 row, uint32 CRC32C of the rows
//
// GroupIndex offsets are relative to headerSize.
//
// # Concurrency
//
// Lookups may run concurrently; each one uses its own pooled cursor.
// Rebuild, Clear and Close must not run concurrently with anything else
// on the same index. This is a documented precondition and is not checked.
package index
