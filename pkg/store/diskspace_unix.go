//go:build unix

package store

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// freeDiskSpace returns the bytes available to unprivileged writers on the
// filesystem containing path. The path's parent is used so the check works
// before the database file exists.
func freeDiskSpace(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(filepath.Dir(path), &st); err != nil {
		return 0, fmt.Errorf("store: failed to stat filesystem: %w", err)
	}
	return st.Bavail * uint64(st.Bsize), nil
}
