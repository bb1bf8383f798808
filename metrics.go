package wormdb

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/wormdb/store"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the metric
// package ships a Prometheus implementation.
//
// A collector is handed to every store opened through the DB, so the store
// methods are called concurrently from many tables.
type MetricsCollector interface {
	store.Metrics

	// RecordBackup is called after each backup with the number of files and
	// the bytes read from the database directory.
	RecordBackup(files int, bytes int64, duration time.Duration, err error)

	// RecordRestore is called after each restore.
	RecordRestore(files int, bytes int64, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordGet(bool, time.Duration, error)            {}
func (NoopMetricsCollector) RecordAppend(int, time.Duration, error)          {}
func (NoopMetricsCollector) RecordRebuild(string, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordLookup(time.Duration, error)               {}
func (NoopMetricsCollector) RecordBackup(int, int64, time.Duration, error)   {}
func (NoopMetricsCollector) RecordRestore(int, int64, time.Duration, error)  {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	GetCount         atomic.Int64
	GetCacheHits     atomic.Int64
	GetErrors        atomic.Int64
	AppendCount      atomic.Int64
	AppendRows       atomic.Int64
	AppendErrors     atomic.Int64
	AppendTotalNanos atomic.Int64
	RebuildCount     atomic.Int64
	RebuildRows      atomic.Int64
	RebuildErrors    atomic.Int64
	LookupCount      atomic.Int64
	LookupErrors     atomic.Int64
	LookupTotalNanos atomic.Int64
	BackupCount      atomic.Int64
	BackupBytes      atomic.Int64
	BackupErrors     atomic.Int64
	RestoreCount     atomic.Int64
	RestoreErrors    atomic.Int64
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(cached bool, _ time.Duration, err error) {
	b.GetCount.Add(1)
	if cached {
		b.GetCacheHits.Add(1)
	}
	if err != nil {
		b.GetErrors.Add(1)
	}
}

// RecordAppend implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAppend(rows int, duration time.Duration, err error) {
	b.AppendCount.Add(1)
	b.AppendRows.Add(int64(rows))
	b.AppendTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.AppendErrors.Add(1)
	}
}

// RecordRebuild implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRebuild(_ string, rows int, _ time.Duration, err error) {
	b.RebuildCount.Add(1)
	b.RebuildRows.Add(int64(rows))
	if err != nil {
		b.RebuildErrors.Add(1)
	}
}

// RecordLookup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLookup(duration time.Duration, err error) {
	b.LookupCount.Add(1)
	b.LookupTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.LookupErrors.Add(1)
	}
}

// RecordBackup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBackup(_ int, bytes int64, _ time.Duration, err error) {
	b.BackupCount.Add(1)
	b.BackupBytes.Add(bytes)
	if err != nil {
		b.BackupErrors.Add(1)
	}
}

// RecordRestore implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRestore(_ int, _ int64, _ time.Duration, err error) {
	b.RestoreCount.Add(1)
	if err != nil {
		b.RestoreErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		GetCount:       b.GetCount.Load(),
		GetCacheHits:   b.GetCacheHits.Load(),
		GetErrors:      b.GetErrors.Load(),
		AppendCount:    b.AppendCount.Load(),
		AppendRows:     b.AppendRows.Load(),
		AppendErrors:   b.AppendErrors.Load(),
		AppendAvgNanos: avg(b.AppendTotalNanos.Load(), b.AppendCount.Load()),
		RebuildCount:   b.RebuildCount.Load(),
		RebuildRows:    b.RebuildRows.Load(),
		RebuildErrors:  b.RebuildErrors.Load(),
		LookupCount:    b.LookupCount.Load(),
		LookupErrors:   b.LookupErrors.Load(),
		LookupAvgNanos: avg(b.LookupTotalNanos.Load(), b.LookupCount.Load()),
		BackupCount:    b.BackupCount.Load(),
		BackupBytes:    b.BackupBytes.Load(),
		BackupErrors:   b.BackupErrors.Load(),
		RestoreCount:   b.RestoreCount.Load(),
		RestoreErrors:  b.RestoreErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	GetCount       int64
	GetCacheHits   int64
	GetErrors      int64
	AppendCount    int64
	AppendRows     int64
	AppendErrors   int64
	AppendAvgNanos int64
	RebuildCount   int64
	RebuildRows    int64
	RebuildErrors  int64
	LookupCount    int64
	LookupErrors   int64
	LookupAvgNanos int64
	BackupCount    int64
	BackupBytes    int64
	BackupErrors   int64
	RestoreCount   int64
	RestoreErrors  int64
}
