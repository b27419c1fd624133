// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package localnet

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"

	"go.astrophena.name/devserve/internal/testutil"
)

// occupy listens on consecutive ports starting from a kernel-assigned one and
// returns the first port. The test is skipped if the range can't be taken.
func occupy(t *testing.T, n int) int {
	t.Helper()
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	start := l.Addr().(*net.TCPAddr).Port
	if start+n-1 > maxPort {
		t.Skipf("kernel gave us port %d, too close to the top of the range", start)
	}

	for port := start + 1; port < start+n; port++ {
		l, err := net.Listen("tcp", ":"+strconv.Itoa(port))
		if err != nil {
			t.Skipf("port %d is taken by someone else: %v", port, err)
		}
		t.Cleanup(func() { l.Close() })
	}
	return start
}

// freePort returns a port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func TestFreePortFirstFit(t *testing.T) {
	start := freePort(t)

	got, err := FreePort("", start, 10)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, got, start)
}

func TestFreePortSkipsOccupied(t *testing.T) {
	start := occupy(t, 1)

	got, err := FreePort("", start, 10)
	if err != nil {
		t.Fatal(err)
	}
	if got <= start || got >= start+10 {
		t.Fatalf("FreePort(%d, 10) = %d, want a port in (%d, %d)", start, got, start, start+10)
	}
}

func TestFreePortExhausted(t *testing.T) {
	const window = 3
	start := occupy(t, window)

	got, err := FreePort("", start, window)
	if !errors.Is(err, ErrNoFreePort) {
		t.Fatalf("want ErrNoFreePort, got port %d and error %v", got, err)
	}
	testutil.AssertEqual(t, got, 0)
}

func TestFreePortInvalid(t *testing.T) {
	for _, start := range []int{-1, 0, 65536} {
		if _, err := FreePort("", start, 10); !errors.Is(err, ErrInvalidPort) {
			t.Errorf("FreePort(%d): want ErrInvalidPort, got %v", start, err)
		}
	}
}

func TestFreePortReleasesPort(t *testing.T) {
	port, err := FreePort("127.0.0.1", freePort(t), 10)
	if err != nil {
		t.Fatal(err)
	}
	// FreePort must not hold the port.
	l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		t.Fatalf("port %d is still held after FreePort returned: %v", port, err)
	}
	l.Close()
}

func TestOutboundIPFallback(t *testing.T) {
	cases := map[string]struct {
		network string
		target  string
	}{
		"unparsable address": {network: "udp4", target: "not an address"},
		"unknown network":    {network: "carrier-pigeon", target: routeTarget},
		"invalid IP":         {network: "udp4", target: "256.0.0.1:80"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			testutil.AssertEqual(t, outboundIP(context.Background(), tc.network, tc.target), Loopback)
		})
	}
}

func TestOutboundIPLoopbackRoute(t *testing.T) {
	// A route to the loopback address always exists and picks a loopback
	// source.
	got := outboundIP(context.Background(), "udp4", "127.0.0.1:9")
	ip := net.ParseIP(got)
	if ip == nil || !ip.IsLoopback() {
		t.Fatalf("want a loopback address, got %q", got)
	}
}

func TestOutboundIPCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// Never fails, whatever the network looks like.
	if got := OutboundIP(ctx); net.ParseIP(got) == nil {
		t.Fatalf("OutboundIP returned %q, want an IP address", got)
	}
}
