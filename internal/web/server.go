// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/benbjohnson/hashfs"
	"golang.org/x/net/netutil"

	"go.astrophena.name/devserve/internal/logger"
	"go.astrophena.name/devserve/internal/systemd"
)

// ListenAndServeConfig is used to configure the HTTP server started by
// [ListenAndServe].
//
// All fields of ListenAndServeConfig can't be modified after [ListenAndServe]
// is called.
type ListenAndServeConfig struct {
	// Addr is a network address to listen on (in the form of "host:port").
	Addr string
	// Mux is a http.ServeMux to serve.
	Mux *http.ServeMux
	// Middleware wraps Mux, including internal routes. The first one is the
	// outermost.
	Middleware []Middleware
	// Logf specifies a logger to use. If nil, log.Printf is used.
	Logf logger.Logf
	// MaxConns limits the number of simultaneously accepted connections.
	// Zero means no limit.
	MaxConns int
	// Health, if set, is served at /health.
	Health HealthFunc
	// Debug, if set, is served at /debug/ together with the connection table
	// and pprof.
	Debug *DebugPage
	// Logs, if set, is served at /debug/logs when Debug is set.
	Logs *logger.Streamer
	// Ready, if set, is called once the server accepts connections.
	Ready func()
}

var (
	errNoAddr = errors.New("c.Addr is empty")
	errNilMux = errors.New("c.Mux is nil")
)

const shutdownTimeout = 30 * time.Second

// ListenAndServe starts the HTTP server based on the provided
// [ListenAndServeConfig] and blocks until ctx is cancelled or the server
// fails. Cancellation stops accepting connections and waits for active ones
// to finish, up to 30 seconds.
func ListenAndServe(ctx context.Context, c *ListenAndServeConfig) error {
	if c.Logf == nil {
		c.Logf = log.Printf
	}
	if c.Addr == "" {
		return errNoAddr
	}
	if c.Mux == nil {
		return errNilMux
	}

	l, err := net.Listen("tcp", c.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	defer l.Close()
	if c.MaxConns > 0 {
		l = netutil.LimitListener(l, c.MaxConns)
	}
	c.Logf("Listening on %s...", l.Addr().String())

	baseCtx := WithLogf(ctx, c.Logf)
	s := &http.Server{
		ErrorLog:          log.New(c.Logf, "", 0),
		Handler:           Chain(c.Mux, c.Middleware...),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	initInternalRoutes(c, s)

	errCh := make(chan error, 1)
	go func() {
		if err := s.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	systemd.Notify(c.Logf, systemd.Ready, systemd.Status("Listening on "+l.Addr().String()))
	go systemd.WatchdogLoop(ctx, c.Logf)
	if c.Ready != nil {
		c.Ready()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		c.Logf("Gracefully shutting down...")
		systemd.Notify(c.Logf, systemd.Stopping)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}

	return nil
}

//go:embed static
var embedFS embed.FS

// StaticFS contains resources of the debug pages, served on /debug/static/
// with content-hashed names.
var StaticFS = hashfs.NewFS(embedFS)

func initInternalRoutes(c *ListenAndServeConfig, s *http.Server) {
	if c.Health != nil {
		c.Mux.Handle("/health", Health(c.Health))
	}
	if c.Debug == nil {
		return
	}
	subpages := []subpage{{"conns", "Connections", Conns(s)}}
	if c.Logs != nil {
		subpages = append(subpages, subpage{"logs", "Logs", c.Logs})
	}
	c.Debug.mount(c.Mux, subpages...)
	if c.MaxConns > 0 {
		c.Debug.Setting("Connection limit", c.MaxConns)
	}
}
