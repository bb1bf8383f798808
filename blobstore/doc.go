// Package blobstore abstracts where database backups are kept.
//
// A BlobStore holds named, immutable blobs. Backups write every file of a
// database directory as one blob and read them back on restore.
//
// # Built-in Implementations
//
//   - LocalStore: a directory on the local file system
//   - MemoryStore: in-process, for tests
//   - CachingStore: block cache in front of a remote store
//   - minio.Store: MinIO and other S3-compatible servers
//   - s3.Store: Amazon S3 with multipart streaming uploads
//
// # Custom Implementations
//
//	type BlobStore interface {
//	    Open(ctx, name) (Blob, error)             // open for reading
//	    Create(ctx, name) (WritableBlob, error)   // stream a new blob
//	    Put(ctx, name, data) error                // write a small blob at once
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
//
// Implementations must be safe for concurrent use. A blob becomes visible
// only after its WritableBlob is closed successfully.
package blobstore
