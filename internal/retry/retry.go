// Package retry wraps device I/O in a Fibonacci backoff, classifying which
// failures are worth retrying at all.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"
)

// Do executes task, retrying transient failures with Fibonacci backoff up to
// maxRetries times after the first attempt. If the task still fails (retries
// exhausted or a permanent error), gaveUp is invoked (when not nil) and the
// final error is returned.
func Do(ctx context.Context, maxRetries uint64, task func(ctx context.Context) error, gaveUp func(ctx context.Context)) error {
	b := retry.NewFibonacci(1 * time.Millisecond)
	if err := retry.Do(ctx, retry.WithMaxRetries(maxRetries, b), func(ctx context.Context) error {
		err := task(ctx)
		if err == nil {
			return nil
		}
		if !ShouldRetry(err) {
			// Returning err un-wrapped (not as a RetryableError) tells
			// go-retry to stop immediately instead of burning through
			// the remaining backoff attempts on a permanent failure.
			return err
		}
		return retry.RetryableError(err)
	}); err != nil {
		slog.Warn(err.Error() + ", gave up")
		if gaveUp != nil {
			gaveUp(ctx)
		}
		return err
	}
	return nil
}

// ShouldRetry reports whether err is non-nil and not a known permanent
// failure (quota exhaustion, read-only filesystem, permission errors, ...).
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, os.ErrExist) {
		return false
	}

	switch {
	case errors.Is(err, syscall.EROFS),
		errors.Is(err, syscall.ENOSPC),
		errors.Is(err, syscall.EDQUOT),
		errors.Is(err, syscall.EMFILE),
		errors.Is(err, syscall.ENFILE),
		errors.Is(err, syscall.EACCES),
		errors.Is(err, syscall.EPERM),
		errors.Is(err, syscall.ENAMETOOLONG),
		errors.Is(err, syscall.ENOTDIR),
		errors.Is(err, syscall.EISDIR),
		errors.Is(err, syscall.ENOTEMPTY),
		errors.Is(err, syscall.EMLINK),
		errors.Is(err, syscall.ELOOP),
		errors.Is(err, syscall.EXDEV),
		errors.Is(err, syscall.EEXIST),
		errors.Is(err, syscall.EINVAL):
		return false
	}

	if strings.Contains(err.Error(), "read-only file system") {
		return false
	}

	return true
}
