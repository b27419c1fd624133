// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package localnet answers two questions a development server asks before it
// starts: which port can it listen on, and under which address can other
// machines on the local network reach it.
package localnet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Loopback is returned by [OutboundIP] when the outbound address can't be
// determined.
const Loopback = "127.0.0.1"

var (
	// ErrNoFreePort is returned by [FreePort] when no port in the scanned
	// range could be bound.
	ErrNoFreePort = errors.New("no free port")
	// ErrInvalidPort is returned by [FreePort] when the start port is not a
	// valid TCP port.
	ErrInvalidPort = errors.New("invalid port")
)

const maxPort = 65535

// FreePort returns the first port in [start, start+window) that can be bound
// on host. An empty host means all interfaces.
//
// The trial listener is closed before FreePort returns, so another process can
// take the port before the caller listens on it.
func FreePort(host string, start, window int) (int, error) {
	if start < 1 || start > maxPort {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPort, start)
	}
	window = max(window, 1)
	end := min(start+window, maxPort+1)

	for port := start; port < end; port++ {
		l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			continue
		}
		l.Close()
		return port, nil
	}
	return 0, fmt.Errorf("%w in range %d-%d", ErrNoFreePort, start, end-1)
}

// routeTarget is a well-known public address. Nothing is ever sent to it:
// connecting a UDP socket only makes the kernel pick a route.
const routeTarget = "8.8.8.8:80"

const routeTimeout = 2 * time.Second

// OutboundIP returns the local address of the interface used to reach the
// internet, for display purposes. On any failure it returns [Loopback].
func OutboundIP(ctx context.Context) string {
	return outboundIP(ctx, "udp4", routeTarget)
}

func outboundIP(ctx context.Context, network, target string) string {
	ctx, cancel := context.WithTimeout(ctx, routeTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, network, target)
	if err != nil {
		return Loopback
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP == nil || addr.IP.IsUnspecified() {
		return Loopback
	}
	return addr.IP.String()
}
