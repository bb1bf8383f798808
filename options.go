package wormdb

import (
	"log/slog"
	"runtime"

	"github.com/hupe1980/wormdb/internal/fs"
	"github.com/hupe1980/wormdb/internal/resource"
	"github.com/hupe1980/wormdb/store"
)

// FileSystem abstracts the file operations of the database. The default is
// the local file system.
type FileSystem = fs.FileSystem

// File is an open file of a FileSystem.
type File = fs.File

// ResourceLimits bounds background work: index rebuilds run at most
// MaxBackgroundWorkers at a time and backup/restore transfers are throttled
// to IOLimitBytesPerSec.
type ResourceLimits = resource.Config

type options struct {
	fs               FileSystem
	metricsCollector MetricsCollector
	logger           *Logger
	limits           ResourceLimits
	cacheSize        int
	readBufferSize   int
	writeBufferSize  int
	offsetBatch      int
}

// Option configures a DB.
type Option func(*options)

// WithFileSystem sets the file system used for every table and index.
func WithFileSystem(fsys FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &wormdb.BasicMetricsCollector{}
//	db, _ := wormdb.Open(dir, wormdb.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Appends: %d, Avg latency: %dns\n", stats.AppendCount, stats.AppendAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithResourceLimits bounds rebuild concurrency and backup throughput.
// Defaults to GOMAXPROCS workers and unlimited IO.
func WithResourceLimits(limits ResourceLimits) Option {
	return func(o *options) {
		o.limits = limits
	}
}

// WithCacheSize sets the number of decoded rows each store caches.
func WithCacheSize(n int) Option {
	return func(o *options) {
		o.cacheSize = n
	}
}

// WithReadBufferSize sets the read buffer size of each store.
func WithReadBufferSize(n int) Option {
	return func(o *options) {
		o.readBufferSize = n
	}
}

// WithWriteBufferSize sets the write buffer size of append sessions and
// index rebuilds.
func WithWriteBufferSize(n int) Option {
	return func(o *options) {
		o.writeBufferSize = n
	}
}

// WithOffsetBatch sets how many row offsets of a variable-width table are
// buffered before they are written.
func WithOffsetBatch(n int) Option {
	return func(o *options) {
		o.offsetBatch = n
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		fs:               fs.Default,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		limits:           ResourceLimits{MaxBackgroundWorkers: int64(runtime.GOMAXPROCS(0))},
		cacheSize:        store.DefaultCacheSize,
		readBufferSize:   store.DefaultReadBufferSize,
		writeBufferSize:  store.DefaultWriteBufferSize,
		offsetBatch:      store.DefaultOffsetBatch,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.fs == nil {
		o.fs = fs.Default
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
