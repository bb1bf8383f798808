package wormdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/wormdb/blobstore"
	"github.com/hupe1980/wormdb/core"
	"github.com/hupe1980/wormdb/internal/compress"
	"github.com/hupe1980/wormdb/internal/fs"
	hashutil "github.com/hupe1980/wormdb/internal/hash"
	"github.com/hupe1980/wormdb/internal/resource"
)

// Compression selects how backup files are compressed.
type Compression = compress.Type

// Supported backup compressions.
const (
	CompressionNone   = compress.None
	CompressionLZ4    = compress.LZ4
	CompressionZstd   = compress.Zstd
	CompressionSnappy = compress.Snappy
)

const manifestName = "manifest.json"

// Manifest describes a backup. It is written last, so a backup without a
// manifest is incomplete.
type Manifest struct {
	ID          string         `json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	Compression string         `json:"compression"`
	Files       []ManifestFile `json:"files"`
}

// ManifestFile describes one file of a backup.
type ManifestFile struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Stored int64  `json:"stored"`
	CRC32C uint32 `json:"crc32c"`
}

// TotalSize returns the uncompressed size of the backup.
func (m *Manifest) TotalSize() int64 {
	var n int64
	for _, f := range m.Files {
		n += f.Size
	}
	return n
}

type backupOptions struct {
	id          string
	compression Compression
	blockSize   int
	concurrency int
}

// BackupOption configures Backup.
type BackupOption func(*backupOptions)

// WithBackupID sets the backup id. Defaults to a random UUID.
func WithBackupID(id string) BackupOption {
	return func(o *backupOptions) { o.id = id }
}

// WithCompression sets the compression. Defaults to zstd.
func WithCompression(c Compression) BackupOption {
	return func(o *backupOptions) { o.compression = c }
}

// WithBlockSize sets the uncompressed block size.
func WithBlockSize(n int) BackupOption {
	return func(o *backupOptions) { o.blockSize = n }
}

// WithConcurrency sets how many files are transferred in parallel.
// Defaults to 4.
func WithConcurrency(n int) BackupOption {
	return func(o *backupOptions) { o.concurrency = n }
}

func applyBackupOptions(optFns []BackupOption) (backupOptions, error) {
	o := backupOptions{
		compression: CompressionZstd,
		blockSize:   compress.DefaultBlockSize,
		concurrency: 4,
	}
	for _, fn := range optFns {
		fn(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	if strings.ContainsAny(o.id, `/\`) {
		return o, fmt.Errorf("%w: invalid backup id %q", core.ErrInvalidArgument, o.id)
	}
	if o.compression > CompressionSnappy {
		return o, fmt.Errorf("%w: unknown compression %s", core.ErrInvalidArgument, o.compression)
	}
	if o.concurrency <= 0 {
		o.concurrency = 1
	}
	return o, nil
}

func blobName(id, file string) string { return path.Join(id, file) }

// Backup copies every file of the database directory to target under the
// backup id and returns the manifest. Tables must not be appended to while
// the backup runs.
func (db *DB) Backup(ctx context.Context, target blobstore.BlobStore, optFns ...BackupOption) (*Manifest, error) {
	start := time.Now()
	o, err := applyBackupOptions(optFns)
	if err != nil {
		return nil, err
	}
	m, err := db.backup(ctx, target, o)
	files, bytes := 0, int64(0)
	if m != nil {
		files, bytes = len(m.Files), m.TotalSize()
	}
	db.opts.metricsCollector.RecordBackup(files, bytes, time.Since(start), err)
	db.opts.logger.LogBackup(ctx, o.id, files, bytes, err)
	return m, err
}

func (db *DB) backup(ctx context.Context, target blobstore.BlobStore, o backupOptions) (*Manifest, error) {
	db.mu.Lock()
	closed := db.closed
	db.mu.Unlock()
	if closed {
		return nil, core.ErrClosed
	}

	existing, err := target.List(ctx, o.id+"/")
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: backup %s already exists", core.ErrInvalidArgument, o.id)
	}

	entries, err := db.opts.fs.ReadDir(db.dir)
	if err != nil {
		return nil, core.IOError("read "+db.dir, err)
	}
	m := &Manifest{
		ID:          o.id,
		CreatedAt:   time.Now().UTC(),
		Compression: o.compression.String(),
	}
	for _, e := range entries {
		if e.IsDir() || e.Name() == lockFile {
			continue
		}
		m.Files = append(m.Files, ManifestFile{Name: e.Name()})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)
	for i := range m.Files {
		g.Go(func() error {
			return db.controller.RunBackground(gctx, func() error {
				return db.backupFile(gctx, target, o, &m.Files[i])
			})
		})
	}
	if err := g.Wait(); err != nil {
		db.discard(target, o.id)
		return nil, err
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := target.Put(ctx, blobName(o.id, manifestName), data); err != nil {
		db.discard(target, o.id)
		return nil, err
	}
	return m, nil
}

func (db *DB) backupFile(ctx context.Context, target blobstore.BlobStore, o backupOptions, mf *ManifestFile) error {
	f, err := db.opts.fs.OpenFile(filepath.Join(db.dir, mf.Name), os.O_RDONLY, 0)
	if err != nil {
		return core.IOError("open "+mf.Name, err)
	}
	defer func() { _ = f.Close() }()

	w, err := target.Create(ctx, blobName(o.id, mf.Name))
	if err != nil {
		return err
	}
	counter := &countingWriter{w: w}
	cw := compress.NewWriter(counter, o.compression, o.blockSize)
	crc := hashutil.NewCRC32C()

	src := resource.NewRateLimitedReader(ctx, f, db.controller)
	n, err := io.Copy(io.MultiWriter(cw, crc), src)
	if err == nil {
		err = cw.Close()
	}
	if err != nil {
		_ = w.Abort()
		return fmt.Errorf("backup %s: %w", mf.Name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("backup %s: %w", mf.Name, err)
	}
	mf.Size, mf.Stored, mf.CRC32C = n, counter.n, crc.Sum32()
	db.opts.logger.DebugContext(ctx, "backup file written",
		slog.String("backup", o.id), slog.String("file", mf.Name), slog.Int64("size", n), slog.Int64("stored", counter.n))
	return nil
}

// discard removes the blobs of a failed backup.
func (db *DB) discard(target blobstore.BlobStore, id string) {
	ctx := context.Background()
	names, err := target.List(ctx, id+"/")
	if err != nil {
		db.opts.logger.Warn("listing failed backup", slog.String("backup", id), slog.Any("error", err))
		return
	}
	for _, name := range names {
		if err := target.Delete(ctx, name); err != nil {
			db.opts.logger.Warn("removing failed backup",
				slog.String("backup", id), slog.String("blob", name), slog.Any("error", err))
		}
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// ListBackups returns the ids of the complete backups in src, sorted.
func ListBackups(ctx context.Context, src blobstore.BlobStore) ([]string, error) {
	names, err := src.List(ctx, "")
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, name := range names {
		if id, ok := strings.CutSuffix(name, "/"+manifestName); ok && !strings.Contains(id, "/") {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// ReadManifest loads the manifest of a backup.
func ReadManifest(ctx context.Context, src blobstore.BlobStore, id string) (*Manifest, error) {
	data, err := blobstore.ReadAll(ctx, src, blobName(id, manifestName))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, core.Corruptf("manifest of %s: %v", id, err)
	}
	if m.ID != id {
		return nil, core.Corruptf("manifest of %s names backup %s", id, m.ID)
	}
	return &m, nil
}

// DeleteBackup removes a backup, manifest first.
func DeleteBackup(ctx context.Context, src blobstore.BlobStore, id string) error {
	if err := src.Delete(ctx, blobName(id, manifestName)); err != nil {
		return err
	}
	names, err := src.List(ctx, id+"/")
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := src.Delete(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Restore writes the files of backup id from src into dir and verifies
// their sizes and checksums. dir is locked while restoring and must not
// contain any file of the backup. A mismatch fails with ErrCorrupt and
// leaves no partial file behind.
func Restore(ctx context.Context, src blobstore.BlobStore, id, dir string, optFns ...Option) (*Manifest, error) {
	start := time.Now()
	o := applyOptions(optFns)
	m, err := restore(ctx, src, id, dir, o)
	files, bytes := 0, int64(0)
	if m != nil {
		files, bytes = len(m.Files), m.TotalSize()
	}
	o.metricsCollector.RecordRestore(files, bytes, time.Since(start), err)
	o.logger.LogRestore(ctx, id, dir, files, err)
	return m, err
}

func restore(ctx context.Context, src blobstore.BlobStore, id, dir string, o options) (*Manifest, error) {
	m, err := ReadManifest(ctx, src, id)
	if err != nil {
		return nil, err
	}
	ct, err := compress.ParseType(m.Compression)
	if err != nil {
		return nil, core.Corruptf("manifest of %s: %v", id, err)
	}
	for _, f := range m.Files {
		if f.Name == "" || f.Name == lockFile || f.Name != filepath.Base(f.Name) {
			return nil, core.Corruptf("manifest of %s: bad file name %q", id, f.Name)
		}
	}

	if err := o.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, core.IOError("create "+dir, err)
	}
	lock, err := lockDir(filepath.Join(dir, lockFile))
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.unlock() }()

	for _, f := range m.Files {
		if _, err := o.fs.Stat(filepath.Join(dir, f.Name)); err == nil {
			return nil, fmt.Errorf("%w: %s already exists in %s", core.ErrInvalidArgument, f.Name, dir)
		}
	}

	controller := resource.NewController(o.limits)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(controller.MaxBackgroundWorkers(), 1))
	for _, f := range m.Files {
		g.Go(func() error {
			return restoreFile(gctx, src, id, dir, ct, f, o.fs, controller)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}

func restoreFile(ctx context.Context, src blobstore.BlobStore, id, dir string, ct Compression, mf ManifestFile,
	fsys fs.FileSystem, controller *resource.Controller) error {
	b, err := src.Open(ctx, blobName(id, mf.Name))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return core.Corruptf("backup %s misses %s", id, mf.Name)
		}
		return err
	}
	defer func() { _ = b.Close() }()
	if b.Size() != mf.Stored {
		return core.Corruptf("backup %s: %s is %d bytes, manifest says %d", id, mf.Name, b.Size(), mf.Stored)
	}

	target := filepath.Join(dir, mf.Name)
	tmp := target + ".tmp"
	f, err := fsys.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return core.IOError("create "+tmp, err)
	}
	ok := false
	defer func() {
		if !ok {
			_ = f.Close()
			_ = fsys.Remove(tmp)
		}
	}()

	crc := hashutil.NewCRC32C()
	r := compress.NewReader(blobstore.NewReader(b), ct)
	n, err := io.Copy(io.MultiWriter(resource.NewRateLimitedWriter(ctx, f, controller), crc), r)
	if err != nil {
		if errors.Is(err, compress.ErrCorrupt) {
			return fmt.Errorf("%w: backup %s: %s: %w", core.ErrCorrupt, id, mf.Name, err)
		}
		return core.IOError("restore "+mf.Name, err)
	}
	if n != mf.Size {
		return core.Corruptf("backup %s: %s restored to %d bytes, manifest says %d", id, mf.Name, n, mf.Size)
	}
	if sum := crc.Sum32(); sum != mf.CRC32C {
		return core.Corruptf("backup %s: %s checksum %08x, manifest says %08x", id, mf.Name, sum, mf.CRC32C)
	}
	if err := f.Sync(); err != nil {
		return core.IOError("sync "+tmp, err)
	}
	ok = true
	if err := f.Close(); err != nil {
		_ = fsys.Remove(tmp)
		return core.IOError("close "+tmp, err)
	}
	return core.IOError("rename "+tmp, fsys.Rename(tmp, target))
}
