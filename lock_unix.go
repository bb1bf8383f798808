//go:build unix

package wormdb

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/hupe1980/wormdb/core"
)

// dirLock holds an exclusive advisory lock on the database directory.
type dirLock struct {
	f *os.File
}

func lockDir(path string) (*dirLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, core.IOError("open lock file", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s is locked by another process", core.ErrConcurrency, path)
		}
		return nil, core.IOError("lock", err)
	}
	return &dirLock{f: f}, nil
}

func (l *dirLock) unlock() error {
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return errors.Join(core.IOError("unlock", err), core.IOError("close lock file", l.f.Close()))
}
