// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"

	"go.astrophena.name/devserve/internal/logger"
	"go.astrophena.name/devserve/internal/testutil"
)

func TestListenAndServeConfig(t *testing.T) {
	cases := map[string]struct {
		c       *ListenAndServeConfig
		wantErr error
	}{
		"no Addr": {
			c: &ListenAndServeConfig{
				Addr: "",
				Mux:  http.NewServeMux(),
			},
			wantErr: errNoAddr,
		},
		"nil Mux": {
			c: &ListenAndServeConfig{
				Addr: ":3000",
				Mux:  nil,
			},
			wantErr: errNilMux,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := ListenAndServe(context.Background(), tc.c)

			// Don't use && because we want to trap all cases where err is nil.
			if err == nil {
				if tc.wantErr != nil {
					t.Fatalf("must fail with error: %v", tc.wantErr)
				}
			}

			if err != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("got error: %v", err)
			}
		})
	}
}

func TestListenAndServeBusyAddr(t *testing.T) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	err = ListenAndServe(context.Background(), &ListenAndServeConfig{
		Addr: l.Addr().String(),
		Mux:  http.NewServeMux(),
		Logf: t.Logf,
	})
	if err == nil || !strings.Contains(err.Error(), "failed to listen") {
		t.Fatalf("want listen error, got %v", err)
	}
}

func TestListenAndServe(t *testing.T) {
	// Find a free port for us.
	port, err := getFreePort()
	if err != nil {
		t.Fatalf("Failed to find a free port: %v", err)
	}
	addr := fmt.Sprintf("localhost:%d", port)

	var wg sync.WaitGroup

	ready := make(chan struct{})
	errCh := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "app shell")
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		RespondError(w, r, errors.New("reading index.html: input/output error"))
	})
	logs := logger.NewStreamer(100)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ListenAndServe(ctx, &ListenAndServeConfig{
			Addr:       addr,
			Mux:        mux,
			Middleware: []Middleware{NoCache, SecurityHeaders},
			Logf:       logger.Tee(t.Logf, logs),
			MaxConns:   4,
			Health:     func() (string, bool) { return "index.html present", true },
			Debug:      NewDebugPage(),
			Logs:       logs,
			Ready:      func() { close(ready) },
		}); err != nil {
			errCh <- err
		}
	}()

	// Wait until the server is ready.
	select {
	case err := <-errCh:
		t.Fatalf("Test server crashed during startup or runtime: %v", err)
	case <-ready:
	}

	// Make some HTTP requests.
	urls := []struct {
		url        string
		wantStatus int
	}{
		{url: "/", wantStatus: http.StatusOK},
		{url: "/cars/42", wantStatus: http.StatusOK},
		{url: "/health", wantStatus: http.StatusOK},
		{url: "/broken", wantStatus: http.StatusInternalServerError},
		{url: "/debug/", wantStatus: http.StatusOK},
		{url: "/debug/conns?format=json", wantStatus: http.StatusOK},
		{url: "/debug/" + StaticFS.HashName("static/css/main.css"), wantStatus: http.StatusOK},
	}

	for _, u := range urls {
		resp, err := http.Get("http://" + addr + u.url)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != u.wantStatus {
			t.Fatalf("GET %s: want status code %d, got %d", u.url, u.wantStatus, resp.StatusCode)
		}
		testutil.AssertEqual(t, resp.Header.Get("Cache-Control"), "no-cache, no-store, must-revalidate")
		testutil.AssertEqual(t, resp.Header.Get("X-Content-Type-Options"), "nosniff")
	}

	lines := strings.Join(logs.Lines(), "")
	for _, want := range []string{"Listening on", "Error 500 (Internal Server Error) serving /broken: reading index.html"} {
		if !strings.Contains(lines, want) {
			t.Errorf("log stream must contain %q, got %q", want, lines)
		}
	}

	// Try to gracefully shutdown the server.
	cancel()
	// Wait until the server shuts down.
	wg.Wait()
	// See if the server failed to shutdown.
	select {
	case err := <-errCh:
		t.Fatalf("Test server crashed during shutdown: %v", err)
	default:
	}
}

// getFreePort asks the kernel for a free open port that is ready to use.
// Copied from
// https://github.com/phayes/freeport/blob/74d24b5ae9f58fbe4057614465b11352f71cdbea/freeport.go.
func getFreePort() (port int, err error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
