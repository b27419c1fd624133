// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package systemd tells systemd about the lifecycle of the server: when it is
// ready, what it is doing and when it is stopping. Outside of systemd every
// function here is a no-op.
package systemd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"go.astrophena.name/devserve/internal/logger"
)

// State defines a sd_notify protocol state.
// See https://www.freedesktop.org/software/systemd/man/sd_notify.html.
type State string

const (
	// Ready tells the service manager that service startup is finished.
	Ready State = "READY=1"
	// Stopping tells the service manager that the service is beginning its
	// shutdown.
	Stopping State = "STOPPING=1"
	// Watchdog tells the service manager to update the watchdog timestamp.
	Watchdog State = "WATCHDOG=1"
)

// Status returns a State that describes the service status in free form.
func Status(s string) State { return State("STATUS=" + s) }

// Notify sends states to systemd using the sd_notify protocol. Errors are
// logged to logf.
func Notify(logf logger.Logf, states ...State) {
	name := os.Getenv("NOTIFY_SOCKET")
	if name == "" || len(states) == 0 {
		// Not running under systemd.
		return
	}

	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Net: "unixgram", Name: name})
	if err != nil {
		logf("systemd: failed when notifying: %v", err)
		return
	}
	defer conn.Close()

	var msg []byte
	for i, s := range states {
		if i > 0 {
			msg = append(msg, '\n')
		}
		msg = append(msg, s...)
	}
	if _, err := conn.Write(msg); err != nil {
		logf("systemd: failed when notifying: %v", err)
	}
}

// WatchdogLoop periodically updates the systemd watchdog timestamp at half of
// the interval systemd asked for, until ctx is cancelled. It does nothing if
// the watchdog is not enabled.
func WatchdogLoop(ctx context.Context, logf logger.Logf) {
	if os.Getenv("WATCHDOG_USEC") == "" {
		return
	}

	interval, err := watchdogInterval(os.Getenv("WATCHDOG_USEC"))
	if err != nil {
		logf("%v", err)
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			Notify(logf, Watchdog)
		case <-ctx.Done():
			return
		}
	}
}

func watchdogInterval(usec string) (time.Duration, error) {
	s, err := strconv.Atoi(usec)
	if err != nil {
		return 0, fmt.Errorf("systemd: error converting WATCHDOG_USEC: %w", err)
	}
	if s <= 0 {
		return 0, errors.New("systemd: WATCHDOG_USEC must be a positive number")
	}
	return time.Duration(s) * time.Microsecond, nil
}
