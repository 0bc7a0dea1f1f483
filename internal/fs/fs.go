// Package fs defines the filesystem abstraction used by snaprotate.
// Snapshot trees, catalog files and the latest symlink all go through it.
package fs

import (
	"context"
	"os"
	"time"
)

type FileInfo struct {
	Path  string
	Size  int64
	Mode  os.FileMode
	MTime time.Time
	Inode uint64
	Nlink uint64
}

type FS interface {
	Stat(path string) (FileInfo, error)
	ReadDir(path string) ([]os.DirEntry, error)
	CopyFile(ctx context.Context, src, dst string) error
	Link(ctx context.Context, oldPath, newPath string) error
	Rename(ctx context.Context, oldPath, newPath string) error
	MkdirAll(path string) error
	RemoveAll(ctx context.Context, path string) error
	WriteFileAtomic(ctx context.Context, path string, data []byte) error
	ReplaceSymlink(ctx context.Context, target, link string) error
	Readlink(path string) (string, error)
	Symlink(target, link string) error
}
