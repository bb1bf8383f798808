package wormdb

import "github.com/hupe1980/wormdb/core"

// Errors returned by the database and its components. Test them with
// errors.Is; most are wrapped with context.
var (
	ErrIO              = core.ErrIO
	ErrCorrupt         = core.ErrCorrupt
	ErrSizeMismatch    = core.ErrSizeMismatch
	ErrInvalidArgument = core.ErrInvalidArgument
	ErrInvalidRange    = core.ErrInvalidRange
	ErrConcurrency     = core.ErrConcurrency
	ErrStoreBusy       = core.ErrStoreBusy
	ErrState           = core.ErrState
	ErrClosed          = core.ErrClosed
)
