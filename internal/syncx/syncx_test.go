// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package syncx

import (
	"errors"
	"sync"
	"testing"

	"go.astrophena.name/devserve/internal/testutil"
)

func TestProtected(t *testing.T) {
	t.Parallel()

	counters := Protect(map[string]int{})

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			counters.Access(func(m map[string]int) { m["requests"]++ })
		}()
	}
	wg.Wait()

	var got int
	counters.RAccess(func(m map[string]int) { got = m["requests"] })
	testutil.AssertEqual(t, got, 50)
}

func TestLazy(t *testing.T) {
	t.Parallel()

	var (
		l     Lazy[string]
		calls int
	)
	for range 3 {
		got := l.Get(func() string {
			calls++
			return "index.html"
		})
		testutil.AssertEqual(t, got, "index.html")
	}
	testutil.AssertEqual(t, calls, 1)
}

func TestLazyErr(t *testing.T) {
	t.Parallel()

	var l Lazy[int]
	errBoom := errors.New("boom")

	_, err := l.GetErr(func() (int, error) { return 0, errBoom })
	if !errors.Is(err, errBoom) {
		t.Fatalf("want %v, got %v", errBoom, err)
	}
	// The failure is remembered; f is not called again.
	_, err = l.GetErr(func() (int, error) { return 1, nil })
	if !errors.Is(err, errBoom) {
		t.Fatalf("want remembered %v, got %v", errBoom, err)
	}
}
