// Package source provides frame sources: local devices, network streams and
// video files (through OpenCV), HTTP snapshot endpoints and image directories.
package source

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrClosed is returned by Read after Close.
var ErrClosed = errors.New("source closed")

// ReconnectConfig controls retries after a stream failure.
type ReconnectConfig struct {
	// MaxRetries is the number of consecutive failed attempts before giving up. 0 retries forever.
	MaxRetries int
	// RetryDelay is the delay before the first retry; it doubles per attempt.
	// Non-positive values use a 100ms floor.
	RetryDelay time.Duration
	// MaxRetryDelay caps the delay.
	MaxRetryDelay time.Duration
}

// DefaultReconnectConfig returns the default reconnection settings.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:    0,
		RetryDelay:    time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// minRetryDelay is used when RetryDelay is not positive.
const minRetryDelay = 100 * time.Millisecond

// backoff returns the delay before retry attempt (1-based).
//
// Schedule with the defaults: 1s, 2s, 4s, 8s, 16s, 30s, 30s, ...
func (c ReconnectConfig) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := c.RetryDelay
	if delay <= 0 {
		delay = minRetryDelay
	}
	for i := 1; i < attempt && delay < c.MaxRetryDelay; i++ {
		delay *= 2
	}
	if c.MaxRetryDelay > 0 && delay > c.MaxRetryDelay {
		delay = c.MaxRetryDelay
	}
	return delay
}

// exhausted reports whether attempt exceeds the retry budget.
func (c ReconnectConfig) exhausted(attempt int) bool {
	return c.MaxRetries > 0 && attempt > c.MaxRetries
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// sleepUnlocked is sleep with mu released for the duration. mu must be held
// on entry and is held again on return.
func sleepUnlocked(ctx context.Context, mu *sync.Mutex, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	mu.Unlock()
	defer mu.Lock()
	return sleep(ctx, d)
}
