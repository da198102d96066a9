//go:build linux

package strm

import (
	"io/fs"
	"syscall"
	"time"
)

// changeTime returns the inode change time, falling back to the modification time
func changeTime(info fs.FileInfo) time.Time {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.ModTime()
	}
	return time.Unix(int64(stat.Ctim.Sec), int64(stat.Ctim.Nsec))
}
