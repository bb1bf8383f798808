package minio

import (
	"context"
	"os"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/wormdb/blobstore"
)

func TestNewStore_Prefix(t *testing.T) {
	assert.Equal(t, "backups/x", NewStore(nil, "b", "backups").key("x"))
	assert.Equal(t, "backups/x", NewStore(nil, "b", "backups/").key("x"))
	assert.Equal(t, "x", NewStore(nil, "b", "").key("x"))
}

// TestMinioStore_Integration runs against the server named by
// WORMDB_MINIO_ENDPOINT, with the default minioadmin credentials.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := os.Getenv("WORMDB_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("WORMDB_MINIO_ENDPOINT not set")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)

	ctx := context.Background()
	const bucket = "test-wormdb"
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, t.Name())
	require.NoError(t, store.Put(ctx, "a.txt", []byte("hello minio")))

	data, err := blobstore.ReadAll(ctx, store, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello minio", string(data))

	w, err := store.Create(ctx, "b.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("streamed"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, names)

	require.NoError(t, store.Delete(ctx, "a.txt"))
	require.NoError(t, store.Delete(ctx, "b.txt"))
	_, err = store.Open(ctx, "a.txt")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
