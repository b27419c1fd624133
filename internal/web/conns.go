// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"maps"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"go.astrophena.name/devserve/internal/syncx"
)

// Conns returns an [http.Handler] that displays the list of active
// HTTP connections of s. It replaces s.ConnState.
func Conns(s *http.Server) http.Handler {
	ch := &connsHandler{conns: make(ConnMap)}
	s.ConnState = ch.connState
	return ch
}

// ConnMap represents active connections to the HTTP server, keyed by remote
// address.
type ConnMap map[string]*Conn

// Conn represents an active HTTP connection.
type Conn struct {
	Network string         `json:"network"`
	Addr    string         `json:"addr"`
	Time    time.Time      `json:"time"`
	State   http.ConnState `json:"state"`
}

// connsHandler is inspired by https://x.com/bradfitz/status/1349825913136017415.
type connsHandler struct {
	mu    sync.Mutex
	conns ConnMap

	tpl syncx.Lazy[*template.Template]
}

func (ch *connsHandler) connState(c net.Conn, state http.ConnState) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	addr := c.RemoteAddr().String()
	if state == http.StateClosed || state == http.StateHijacked {
		delete(ch.conns, addr)
		return
	}
	ac, ok := ch.conns[addr]
	if !ok {
		ac = &Conn{
			Network: c.RemoteAddr().Network(),
			Addr:    addr,
			Time:    time.Now(),
		}
		ch.conns[addr] = ac
	}
	ac.State = state
}

func (ch *connsHandler) snapshot() []Conn {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	conns := make([]Conn, 0, len(ch.conns))
	for _, addr := range slices.Sorted(maps.Keys(ch.conns)) {
		conns = append(conns, *ch.conns[addr])
	}
	return conns
}

//go:embed templates/conns.html
var connsTemplate string

func (ch *connsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conns := ch.snapshot()

	if r.FormValue("format") == "json" {
		RespondJSON(w, conns)
		return
	}

	tpl, err := ch.tpl.GetErr(func() (*template.Template, error) {
		return template.New("conns").Funcs(template.FuncMap{
			"since": func(t time.Time) time.Duration {
				return time.Since(t).Round(time.Millisecond)
			},
		}).Parse(connsTemplate)
	})
	if err != nil {
		RespondError(w, r, fmt.Errorf("conns: failed to initialize template: %w", err))
		return
	}

	var idle int
	for _, c := range conns {
		if c.State == http.StateIdle {
			idle++
		}
	}
	data := struct {
		Conns      []Conn
		Idle       int
		Stylesheet string
	}{
		Conns:      conns,
		Idle:       idle,
		Stylesheet: "/debug/" + StaticFS.HashName("static/css/main.css"),
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		RespondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}
