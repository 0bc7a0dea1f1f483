package fs

import (
	"errors"
	"syscall"
)

// isTransient decides whether an operation should retry or fail immediately.
func isTransient(err error) bool {
	if errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.EINTR) {
		return true
	}

	// ENOTEMPTY shows up when something writes into a tree while it is removed
	return errors.Is(err, syscall.ENOTEMPTY)
}
