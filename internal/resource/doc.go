// Package resource implements the Controller for background work governance.
//
// The Controller manages two resource types:
//
//   - Concurrency: Limit background workers (index rebuilds, backup transfers)
//   - IO: Rate-limit background IO to avoid starving foreground reads
//
// # Background Worker Limits
//
//	rc := resource.NewController(resource.Config{
//	    MaxBackgroundWorkers: 4,
//	})
//
//	err := rc.RunBackground(ctx, func() error {
//	    return idx.Rebuild(pairs)
//	})
//
// # IO Rate Limiting
//
// Token bucket rate limiter for backup and restore transfers:
//
//	rc := resource.NewController(resource.Config{
//	    IOLimitBytesPerSec: 100 * 1024 * 1024, // 100MB/s
//	})
//
//	writer := resource.NewRateLimitedWriter(ctx, file, rc)
//	reader := resource.NewRateLimitedReader(ctx, file, rc)
//
// # Nil Safety
//
// All methods handle nil Controller gracefully - they become no-ops.
// This allows optional resource limiting without nil checks everywhere.
package resource
