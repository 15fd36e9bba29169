package utils

import (
	"context"
	"strings"
	"time"
)

var sleep = time.Sleep

// TruncateForLog shortens the provided string to the specified limit, appending an ellipsis when truncated.
func TruncateForLog(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// Poll checks done every interval until it returns true or ctx ends.
func Poll(ctx context.Context, interval time.Duration, done func() bool) error {
	for !done() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := WaitFor(ctx, interval); err != nil {
			return err
		}
	}
	return nil
}

// WaitFor sleeps for d unless ctx ends first.
func WaitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sleep(d)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
