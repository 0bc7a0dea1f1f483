package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// OSFS is the FS backed by the local filesystem. Platform details such as
// inode extraction live in build-tagged files.
type OSFS struct{}

func New() *OSFS {
	return &OSFS{}
}

func (o *OSFS) Stat(path string) (FileInfo, error) {
	st, err := os.Lstat(path)
	if err != nil {
		return FileInfo{}, err
	}

	return FileInfo{
		Path:  path,
		Size:  st.Size(),
		Mode:  st.Mode(),
		MTime: st.ModTime(),
		Inode: inodeOf(st),
		Nlink: nlinkOf(st),
	}, nil
}

func (o *OSFS) ReadDir(path string) ([]os.DirEntry, error) {
	return os.ReadDir(path)
}

func (o *OSFS) Readlink(path string) (string, error) {
	return os.Readlink(path)
}

func (o *OSFS) Symlink(target, link string) error {
	return os.Symlink(target, link)
}

func (o *OSFS) MkdirAll(path string) error {
	return os.MkdirAll(path, 0o755)
}

func (o *OSFS) RemoveAll(ctx context.Context, path string) error {
	return removeAllWithRetry(ctx, path)
}

func (o *OSFS) CopyFile(ctx context.Context, src, dst string) error {
	return copyWithRetry(ctx, o, src, dst)
}

func (o *OSFS) Link(ctx context.Context, oldPath, newPath string) error {
	return linkWithRetry(ctx, oldPath, newPath)
}

func (o *OSFS) Rename(ctx context.Context, oldPath, newPath string) error {
	return renameWithRetry(ctx, oldPath, newPath)
}

// WriteFileAtomic writes data next to path and renames it into place.
func (o *OSFS) WriteFileAtomic(ctx context.Context, path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := o.MkdirAll(dir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	if err := o.Rename(ctx, tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("finalizing %s: %w", path, err)
	}
	return nil
}

// ReplaceSymlink points link at target, swapping it atomically if it exists.
// An existing non-symlink at link is left alone and reported.
func (o *OSFS) ReplaceSymlink(ctx context.Context, target, link string) error {
	if st, err := os.Lstat(link); err == nil && st.Mode()&os.ModeSymlink == 0 {
		return fmt.Errorf("%s exists and is not a symlink", link)
	}

	tmp := link + ".tmp"
	_ = os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return err
	}
	if err := o.Rename(ctx, tmp, link); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
