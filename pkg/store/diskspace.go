package store

import (
	"errors"
	"fmt"
)

// MinFreeBytes is the free space required before opening or restoring a
// database. SQLite needs headroom for its journal on top of the data
// itself.
const MinFreeBytes = 10 << 20 // 10 MiB

// ErrDiskFull indicates the target filesystem lacks the required headroom.
var ErrDiskFull = errors.New("store: insufficient disk space")

// CheckDiskSpace verifies the filesystem holding path has at least
// MinFreeBytes available.
func CheckDiskSpace(path string) error {
	free, err := freeDiskSpace(path)
	if err != nil {
		return err
	}
	if free < MinFreeBytes {
		return fmt.Errorf("%w: %d bytes free, need %d", ErrDiskFull, free, MinFreeBytes)
	}
	return nil
}
