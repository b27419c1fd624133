// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestConns(t *testing.T) {
	mux := http.NewServeMux()
	s := httptest.NewUnstartedServer(mux)
	mux.Handle("/", Conns(s.Config))

	s.Start()
	defer s.Close()

	resp, err := http.Get(s.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "1 connection(s)") {
		t.Fatalf("page must list our connection, got %q", b)
	}
}

func TestConns_JSON(t *testing.T) {
	mux := http.NewServeMux()
	s := httptest.NewUnstartedServer(mux)
	mux.Handle("/", Conns(s.Config))

	s.Start()
	defer s.Close()

	resp, err := http.Get(s.URL + "?format=json")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var conns []Conn
	if err := json.NewDecoder(resp.Body).Decode(&conns); err != nil {
		t.Fatal(err)
	}

	if len(conns) != 1 {
		t.Fatalf("conns should have only one connection, got %d", len(conns))
	}
	conn := conns[0]
	if conn.Network != "tcp" {
		t.Errorf("connection's network must be tcp, got %s", conn.Network)
	}
	if !strings.HasPrefix(conn.Addr, "127.0.0.1") {
		t.Errorf("connection's address must begin from 127.0.0.1, got %s", conn.Addr)
	}
}
