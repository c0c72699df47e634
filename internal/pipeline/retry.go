package pipeline

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/pageforge/pageforge/pkg/schema"
)

// Classify maps an error to the class that drives the stage policy.
// Transient errors retry with backoff, validation errors route to the
// stage's deterministic fallback, fatal errors abort the run.
func Classify(err error) schema.ErrorClass {
	if err == nil {
		return schema.ClassTransient
	}

	// Stage deadline exceeded is transient; the retry budget bounds it.
	if errors.Is(err, context.DeadlineExceeded) {
		return schema.ClassTransient
	}
	// Run cancellation is final.
	if errors.Is(err, context.Canceled) {
		return schema.ClassFatal
	}

	var ferr *schema.ForgeError
	if errors.As(err, &ferr) {
		return ferr.Class()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return schema.ClassTransient
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"service unavailable",
		"too many requests",
	} {
		if strings.Contains(msg, p) {
			return schema.ClassTransient
		}
	}

	// Conservative default: the retry budget bounds unknown failures.
	return schema.ClassTransient
}

// ComputeBackoff returns the exponential delay before retry attempt n
// (1-based), capped at maxDelay.
func ComputeBackoff(base time.Duration, attempt int, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// WaitForBackoff sleeps for the delay or returns early when the context is
// cancelled.
func WaitForBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
