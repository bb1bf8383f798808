// Package cache provides a generic LRU cache.
//
// The row store keeps recently decoded rows in an LRU keyed by row id, so
// repeated reads of hot rows skip the file and the codec.
package cache
