//go:build unix

package fs

import (
	"os"
	"syscall"
)

// inodeOf and nlinkOf read syscall.Stat_t. Inodes detect a source file
// swapped during copy; link counts tell linked data from newly written data.

func inodeOf(info os.FileInfo) uint64 {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0
	}
	return st.Ino
}

func nlinkOf(info os.FileInfo) uint64 {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0
	}
	return uint64(st.Nlink)
}
