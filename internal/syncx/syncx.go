// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package syncx contains synchronization helpers shared by the server and the
// CLI runtime.
package syncx

import "sync"

// Protect wraps val into a [Protected].
func Protect[T any](val T) *Protected[T] { return &Protected[T]{val: val} }

// Protected guards a value of type T with a read-write mutex.
type Protected[T any] struct {
	mu  sync.RWMutex
	val T
}

// RAccess calls f with the value under a read lock.
func (p *Protected[T]) RAccess(f func(T)) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f(p.val)
}

// Access calls f with the value under a write lock.
func (p *Protected[T]) Access(f func(T)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f(p.val)
}

// Lazy is a value computed on first use. The zero value is ready to use.
type Lazy[T any] struct {
	once sync.Once
	val  T
	err  error
}

// Get returns the value, calling f to compute it on the first call.
func (l *Lazy[T]) Get(f func() T) T {
	l.once.Do(func() { l.val = f() })
	return l.val
}

// GetErr is like Get, but for computations that can fail. The error is
// remembered along with the value.
func (l *Lazy[T]) GetErr(f func() (T, error)) (T, error) {
	l.once.Do(func() { l.val, l.err = f() })
	return l.val, l.err
}
