// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	target, err := s3.New(ctx, "my-bucket", "backups/", s3.WithRegion("eu-central-1"))
//	if err != nil {
//	    return err
//	}
//	manifest, err := db.Backup(ctx, target)
//
// Reads use ranged GETs, large writes go through the multipart uploader and
// listing follows continuation tokens. Small puts carry a CRC32C checksum
// unless disabled in UploadConfig.
package s3
