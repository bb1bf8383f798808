package store

import (
	"log/slog"
	"time"

	"github.com/hupe1980/wormdb/fileio"
	"github.com/hupe1980/wormdb/internal/fs"
	"github.com/hupe1980/wormdb/internal/resource"
)

const (
	// DefaultReadBufferSize is the buffer size of the shared read cursor.
	DefaultReadBufferSize = 1024
	// DefaultWriteBufferSize is the buffer size of an append session.
	DefaultWriteBufferSize = 8 * 1024
	// DefaultCacheSize is the number of decoded rows kept in memory.
	DefaultCacheSize = 32
	// DefaultOffsetBatch is the number of row offsets an append session
	// buffers before persisting them.
	DefaultOffsetBatch = 1024
)

// Metrics receives store events. Implementations must be safe for concurrent use.
type Metrics interface {
	RecordGet(cached bool, duration time.Duration, err error)
	RecordAppend(rows int, duration time.Duration, err error)
	RecordRebuild(index string, rows int, duration time.Duration, err error)
	RecordLookup(duration time.Duration, err error)
}

type noopMetrics struct{}

func (noopMetrics) RecordGet(bool, time.Duration, error)            {}
func (noopMetrics) RecordAppend(int, time.Duration, error)          {}
func (noopMetrics) RecordRebuild(string, int, time.Duration, error) {}
func (noopMetrics) RecordLookup(time.Duration, error)               {}

type options struct {
	name            string
	fs              fs.FileSystem
	pool            *fileio.Pool
	readBufferSize  int
	writeBufferSize int
	cacheSize       int
	offsetBatch     int
	logger          *slog.Logger
	metrics         Metrics
	controller      *resource.Controller
}

// Option configures a RowStore.
type Option func(*options)

// WithName sets the table name used in logs. Defaults to the data file name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithFileSystem sets the file system. Defaults to the local file system.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) { o.fs = fsys }
}

// WithPool sets the buffer pool used by scans.
func WithPool(p *fileio.Pool) Option {
	return func(o *options) { o.pool = p }
}

// WithReadBufferSize sets the buffer size of the shared read cursor.
func WithReadBufferSize(n int) Option {
	return func(o *options) { o.readBufferSize = n }
}

// WithWriteBufferSize sets the buffer size of append sessions.
func WithWriteBufferSize(n int) Option {
	return func(o *options) { o.writeBufferSize = n }
}

// WithCacheSize sets the number of cached rows. Zero disables the cache.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// WithOffsetBatch sets how many offsets an append session buffers.
func WithOffsetBatch(n int) Option {
	return func(o *options) { o.offsetBatch = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithResourceController bounds how many index rebuilds run in parallel
// when a session closes. Without one, rebuilds run one at a time.
func WithResourceController(c *resource.Controller) Option {
	return func(o *options) { o.controller = c }
}

func newOptions(opts []Option) options {
	o := options{
		fs:              fs.Default,
		pool:            fileio.DefaultPool(),
		readBufferSize:  DefaultReadBufferSize,
		writeBufferSize: DefaultWriteBufferSize,
		cacheSize:       DefaultCacheSize,
		offsetBatch:     DefaultOffsetBatch,
		logger:          slog.New(slog.DiscardHandler),
		metrics:         noopMetrics{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.offsetBatch <= 0 {
		o.offsetBatch = DefaultOffsetBatch
	}
	if o.controller == nil {
		o.controller = resource.NewController(resource.Config{MaxBackgroundWorkers: 1})
	}
	return o
}
