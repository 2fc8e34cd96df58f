package browser

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNavigation is returned when a page load fails on transport.
	ErrNavigation = errors.New("navigation failed")

	// ErrNavigationTimeout is returned when a page load misses its deadline.
	ErrNavigationTimeout = errors.New("navigation timed out")

	// ErrWaitTimeout is returned when an expected selector never appeared.
	ErrWaitTimeout = errors.New("wait timed out")

	// ErrStaleElement is returned when the DOM mutated under a node handle.
	// The page's virtualised list recycles nodes constantly, so callers
	// must treat this as routine and recover by re-querying.
	ErrStaleElement = errors.New("stale element")
)

// staleMarkers are the devtools error strings produced when a node was
// detached or recycled between query and use.
var staleMarkers = []string{
	"could not find node",
	"node with given id does not belong",
	"no node with given id",
	"node is detached",
}

// IsStale reports whether err indicates a stale DOM node.
func IsStale(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStaleElement) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range staleMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// classifyDeadline maps a chromedp error under a derived deadline to the
// driver taxonomy. Caller cancellation passes through untouched so an
// interrupt is never mistaken for a timeout.
func classifyDeadline(err error, opCtx context.Context, timeoutErr error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		return timeoutErr
	}
	return err
}
