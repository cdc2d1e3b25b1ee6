// Package ratelimit provides the process-wide sliding window that caps
// outbound extraction calls, a Redis-backed variant shared between
// processes, and the per-client limiter used as HTTP middleware.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultLimit  = 50
	DefaultWindow = time.Minute
)

// Window is a sliding log of admitted calls. Append and truncate-old are the
// only mutations, both under one mutex, so a single Window can be shared by
// every extractor in the process.
type Window struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	stamp []time.Time
}

func NewWindow(limit int, window time.Duration) *Window {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Window{limit: limit, window: window, now: time.Now}
}

// Allow records a call and reports whether it fits in the window. Rejected
// calls are not recorded.
func (w *Window) Allow(context.Context) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.evict(now)
	if len(w.stamp) >= w.limit {
		return false, nil
	}
	w.stamp = append(w.stamp, now)
	return true, nil
}

// Remaining reports how many calls the window would still admit.
func (w *Window) Remaining() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evict(w.now())
	return w.limit - len(w.stamp)
}

func (w *Window) evict(now time.Time) {
	i := 0
	for i < len(w.stamp) && now.Sub(w.stamp[i]) >= w.window {
		i++
	}
	if i > 0 {
		w.stamp = append(w.stamp[:0], w.stamp[i:]...)
	}
}
