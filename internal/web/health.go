// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"net/http"
	"time"
)

// HealthFunc reports whether the document root can still answer requests.
// It must be safe for concurrent use.
type HealthFunc func() (status string, ok bool)

// HealthResponse represents a response of the /health endpoint.
type HealthResponse struct {
	OK        bool          `json:"ok"`
	Docroot   CheckResponse `json:"docroot"`
	Timestamp time.Time     `json:"timestamp"`
}

// CheckResponse is the outcome of a [HealthFunc].
type CheckResponse struct {
	Status string `json:"status"`
	OK     bool   `json:"ok"`
}

// Health returns the handler served at /health. It answers 200 while check
// passes and 500 otherwise, with a [HealthResponse] as the body.
func Health(check HealthFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			RespondError(w, r, ErrMethodNotAllowed)
			return
		}

		status, ok := check()
		hr := &HealthResponse{
			OK:        ok,
			Docroot:   CheckResponse{Status: status, OK: ok},
			Timestamp: time.Now().UTC(),
		}

		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
		}
		if r.Method == http.MethodHead {
			return
		}
		RespondJSON(w, hr)
	})
}
