// Package store implements RowStore, an append-only sequence of rows
// persisted in a single data file.
//
// Rows are addressed by their 0-based position. Fixed-width codecs address a
// row by position*width; variable-width codecs keep a sibling offsets file of
// big-endian int64 cumulative end offsets, one per row.
//
// Rows are added through an append session:
//
//	app, err := s.BeginAppend()
//	if err != nil {
//		return err
//	}
//	for _, v := range values {
//		if _, err := app.Add(v); err != nil {
//			_ = app.Close()
//			return err
//		}
//	}
//	return app.Close() // rebuilds attached indexes
//
// Only one session may be open at a time. While it is open the store refuses
// reads (core.ErrState) and Size (core.ErrConcurrency).
//
// Closing a session rebuilds every attached index from a full scan of the
// store. The cost of a session close therefore grows with the store, not with
// the number of rows added; prefer few large sessions over many small ones.
package store
