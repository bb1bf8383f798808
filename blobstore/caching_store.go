package blobstore

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/wormdb/internal/cache"
)

// BlockKey identifies a cached block.
type BlockKey struct {
	Path  string
	Block int64
}

// CachingStore wraps a BlobStore and adds block-level read caching.
// Writes and deletes pass through and drop cached blocks of the blob.
type CachingStore struct {
	inner     BlobStore
	cache     *cache.LRU[BlockKey, []byte]
	blockSize int64
}

// NewCachingStore creates a new CachingStore holding up to blocks blocks.
// blockSize defaults to 64 KiB if <= 0.
func NewCachingStore(inner BlobStore, blocks int, blockSize int64) *CachingStore {
	if blockSize <= 0 {
		blockSize = 64 * 1024
	}
	return &CachingStore{
		inner:     inner,
		cache:     cache.NewLRU[BlockKey, []byte](blocks),
		blockSize: blockSize,
	}
}

// Stats returns the cache hit and miss counts.
func (s *CachingStore) Stats() (hits, misses int64) { return s.cache.Stats() }

func (s *CachingStore) invalidate(name string) {
	s.cache.Invalidate(func(key BlockKey) bool { return key.Path == name })
}

func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &cachingBlob{inner: b, store: s, name: name}, nil
}

func (s *CachingStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	s.invalidate(name)
	return s.inner.Create(ctx, name)
}

func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.invalidate(name)
	return s.inner.Put(ctx, name, data)
}

func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.invalidate(name)
	return s.inner.Delete(ctx, name)
}

func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

type cachingBlob struct {
	inner Blob
	store *CachingStore
	name  string
}

func (b *cachingBlob) Close() error { return b.inner.Close() }
func (b *cachingBlob) Size() int64  { return b.inner.Size() }

func (b *cachingBlob) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	size := b.Size()
	if off >= size {
		return 0, io.EOF
	}
	bs := b.store.blockSize
	end := min(off+int64(len(p)), size)
	first, last := off/bs, (end-1)/bs

	if err := b.fill(first, last); err != nil {
		return 0, err
	}

	n := 0
	for blk := first; blk <= last; blk++ {
		data, err := b.block(blk)
		if err != nil {
			return n, err
		}
		from := max(blk*bs, off) - blk*bs
		if from >= int64(len(data)) {
			break
		}
		n += copy(p[n:], data[from:])
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// fill loads missing blocks of [first, last], one request per contiguous run.
func (b *cachingBlob) fill(first, last int64) error {
	type run struct{ start, count int64 }
	var runs []run
	for blk := first; blk <= last; blk++ {
		if _, ok := b.store.cache.Get(BlockKey{b.name, blk}); ok {
			continue
		}
		if n := len(runs); n > 0 && runs[n-1].start+runs[n-1].count == blk {
			runs[n-1].count++
		} else {
			runs = append(runs, run{blk, 1})
		}
	}

	var g errgroup.Group
	g.SetLimit(16)
	bs := b.store.blockSize
	for _, r := range runs {
		g.Go(func() error {
			start := r.start * bs
			buf := make([]byte, min(r.count*bs, b.Size()-start))
			n, err := b.inner.ReadAt(buf, start)
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			buf = buf[:n]
			for i := int64(0); i < r.count && i*bs < int64(len(buf)); i++ {
				chunk := buf[i*bs : min((i+1)*bs, int64(len(buf)))]
				b.store.cache.Set(BlockKey{b.name, r.start + i}, chunk)
			}
			return nil
		})
	}
	return g.Wait()
}

func (b *cachingBlob) block(blk int64) ([]byte, error) {
	key := BlockKey{b.name, blk}
	if data, ok := b.store.cache.Get(key); ok {
		return data, nil
	}
	bs := b.store.blockSize
	buf := make([]byte, bs)
	n, err := b.inner.ReadAt(buf, blk*bs)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	buf = buf[:n]
	if n > 0 {
		b.store.cache.Set(key, buf)
	}
	return buf, nil
}
