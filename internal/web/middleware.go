// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"net/http"
	"time"

	"go.astrophena.name/devserve/internal/logger"
)

// Middleware wraps an [http.Handler].
type Middleware func(http.Handler) http.Handler

// Chain wraps h with middleware; the first one becomes the outermost.
func Chain(h http.Handler, middleware ...Middleware) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		if middleware[i] != nil {
			h = middleware[i](h)
		}
	}
	return h
}

// NoCache is a [Middleware] that forbids browsers and intermediaries to store
// or reuse any response.
//
// The headers are set before calling the next handler and set again when the
// status line is written, so they survive handlers that clear caching headers
// on error paths (like [http.FileServer] does).
func NoCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setNoCache(w.Header())
		next.ServeHTTP(wrapWriter(w, func(h http.Header, _ int) { setNoCache(h) }), r)
	})
}

func setNoCache(h http.Header) {
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
}

// SecurityHeaders is a [Middleware] that sets headers that are safe for any
// single-page application. Content-Security-Policy is left to the application.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		next.ServeHTTP(w, r)
	})
}

// AccessLog returns a [Middleware] that logs one line per request.
func AccessLog(logf logger.Logf) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := wrapWriter(w, nil)
			next.ServeHTTP(rw, r)
			logf("%s %s %d %dB %s %s", r.Method, r.URL.RequestURI(), rw.status(), rw.size, time.Since(start).Round(time.Microsecond), r.RemoteAddr)
		})
	}
}

// responseWriter records the status and size of a response and lets a hook
// adjust headers right before they are sent.
type responseWriter struct {
	http.ResponseWriter
	onHeader func(h http.Header, code int)
	code     int
	size     int64
}

func wrapWriter(w http.ResponseWriter, onHeader func(http.Header, int)) *responseWriter {
	return &responseWriter{ResponseWriter: w, onHeader: onHeader}
}

func (w *responseWriter) WriteHeader(code int) {
	if w.code != 0 {
		w.ResponseWriter.WriteHeader(code) // let net/http complain
		return
	}
	if code >= 200 || code == http.StatusSwitchingProtocols {
		w.code = code
		if w.onHeader != nil {
			w.onHeader(w.ResponseWriter.Header(), code)
		}
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if w.code == 0 {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.size += int64(n)
	return n, err
}

// Flush implements [http.Flusher].
func (w *responseWriter) Flush() {
	if w.code == 0 {
		w.WriteHeader(http.StatusOK)
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap is used by [http.ResponseController].
func (w *responseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *responseWriter) status() int {
	if w.code == 0 {
		return http.StatusOK
	}
	return w.code
}
