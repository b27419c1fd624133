// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package idle stops a server that nobody has talked to for a while.
package idle

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"
)

// Tracker remembers when the last request arrived and cancels a context once
// the server has been idle for longer than the configured timeout.
type Tracker struct {
	lastActivity atomic.Int64 // unix nanoseconds
	timeout      time.Duration
	cancel       context.CancelFunc
}

// NewTracker returns a new idle tracker that calls cancel after timeout
// without requests. It returns nil if timeout is not positive, and a nil
// *Tracker is safe to use.
func NewTracker(timeout time.Duration, cancel context.CancelFunc) *Tracker {
	if timeout <= 0 {
		return nil
	}
	t := &Tracker{timeout: timeout, cancel: cancel}
	t.touch()
	return t
}

func (t *Tracker) touch() { t.lastActivity.Store(time.Now().UnixNano()) }

// Idle returns how long ago the last request arrived.
func (t *Tracker) Idle() time.Duration {
	if t == nil {
		return 0
	}
	return time.Since(time.Unix(0, t.lastActivity.Load()))
}

// Handler is a [web.Middleware] that updates the last activity time.
func (t *Tracker) Handler(next http.Handler) http.Handler {
	if t == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.touch()
		next.ServeHTTP(w, r)
		t.touch()
	})
}

// Run watches for inactivity until ctx is cancelled. It should run in a
// separate goroutine.
func (t *Tracker) Run(ctx context.Context) {
	if t == nil {
		return
	}
	t.run(ctx, min(t.timeout/4, 30*time.Second))
}

func (t *Tracker) run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(max(tick, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if t.Idle() > t.timeout {
				t.cancel()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
