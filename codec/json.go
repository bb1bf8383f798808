package codec

import (
	"fmt"

	gojson "github.com/goccy/go-json"

	"github.com/hupe1980/wormdb/core"
	"github.com/hupe1980/wormdb/fileio"
)

// JSON stores a value as a length-prefixed JSON document using
// github.com/goccy/go-json.
//
// Time, complex numbers, funcs, channels, etc. follow encoding/json rules
// and may not round-trip.
type JSON[T any] struct{}

func (JSON[T]) Encode(w *fileio.WriteCursor, v T) error {
	b, err := gojson.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrInvalidArgument, err)
	}
	w.PutString(string(b))
	return w.Err()
}

func (JSON[T]) Decode(r *fileio.ReadCursor) (T, error) {
	var v T
	doc := r.NullString()
	if err := r.Err(); err != nil {
		return v, err
	}
	if !doc.Valid {
		return v, core.Corruptf("null JSON document at offset %d", r.Position())
	}
	if err := gojson.Unmarshal([]byte(doc.Value), &v); err != nil {
		return v, core.Corruptf("json: %v", err)
	}
	return v, nil
}
