package fs

import (
	"context"
	"os"
)

// renameWithRetry finalizes snapshot directories and catalog files atomically.
func renameWithRetry(ctx context.Context, oldPath, newPath string) error {
	return retry(ctx, "rename", func() error {
		return os.Rename(oldPath, newPath)
	})
}

func linkWithRetry(ctx context.Context, oldPath, newPath string) error {
	return retry(ctx, "link", func() error {
		return os.Link(oldPath, newPath)
	})
}

func removeAllWithRetry(ctx context.Context, path string) error {
	return retry(ctx, "remove", func() error {
		return os.RemoveAll(path)
	})
}
