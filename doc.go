// Package wormdb is an embedded, file-backed, write-once-read-many storage
// engine.
//
// Rows are appended to tables and never changed. Each table is a RowStore
// with a codec; secondary indexes are rebuilt from the table whenever an
// append session closes and answer equality, set and range lookups with row
// sets.
//
// # Quick Start
//
//	db, err := wormdb.Open("./data")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	users, err := wormdb.OpenTable(db, "users", codec.Codec[User](codec.JSON[User]{}))
//	age, err := wormdb.OpenRangeIndex(ctx, db, users, "age", codec.NullableInt32,
//	    func(u User) core.Nullable[int32] { return core.Some(u.Age) })
//
//	_, err = users.Append(User{Name: "Ann", Age: 31}, User{Name: "Bob", Age: 45})
//
//	adults, err := users.Select(store.Between(index.Index[int32](age), 18, 99))
//
// # Files
//
// A database directory holds, per table:
//
//   - <table>-data: the encoded rows
//   - <table>-index: row end offsets for variable-width codecs
//   - <table>.<name>.idx: one file per index
//
// The directory is locked while a DB has it open.
//
// # Backups
//
// DB.Backup copies the directory to a blobstore.BlobStore (local directory,
// memory, MinIO or S3), block compressed, with a JSON manifest of sizes and
// CRC32C checksums. Restore verifies every file against the manifest.
//
// # Concurrency
//
// A table has a single writer: BeginAppend hands out an exclusive session.
// Reads and lookups may run concurrently with each other but not with an
// open append session of the same table.
package wormdb
