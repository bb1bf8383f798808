//go:build !unix

package wormdb

// dirLock is a no-op where flock is unavailable; concurrent opens of one
// directory are not detected.
type dirLock struct{}

func lockDir(string) (*dirLock, error) { return &dirLock{}, nil }

func (*dirLock) unlock() error { return nil }
