// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package web

import (
	"bytes"
	"cmp"
	_ "embed"
	"fmt"
	"html/template"
	"net/http"
	"net/http/pprof"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/hashfs"

	"go.astrophena.name/devserve/internal/syncx"
	"go.astrophena.name/devserve/internal/version"
)

//go:embed templates/debug.html
var debugTemplate string

// DebugPage is the status page of a running server, served at /debug/ when
// passed to [ListenAndServe].
//
// It has three parts: settings fixed at startup, gauges read on every render,
// and tables of recent activity. Pages that ListenAndServe mounts under
// /debug/ (connections, logs, pprof) are linked from the top.
//
// Methods of DebugPage can be safely called by multiple goroutines.
type DebugPage struct {
	mu       sync.RWMutex
	settings []setting
	gauges   []gauge
	tables   []table
	pages    []page
	started  time.Time

	tpl syncx.Lazy[*template.Template]
}

type (
	setting struct {
		name  string
		value any
	}
	gauge struct {
		name string
		read func() any
	}
	table struct {
		title string
		cols  []string
		rows  func() [][]string
	}
	page struct{ Path, Title string }
)

// NewDebugPage returns an empty DebugPage.
func NewDebugPage() *DebugPage {
	return &DebugPage{started: time.Now()}
}

// Setting shows value under name. Settings are listed in the order they were
// added.
func (d *DebugPage) Setting(name string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settings = append(d.settings, setting{name, value})
}

// Gauge shows the result of read under name. read is called on every render.
func (d *DebugPage) Gauge(name string, read func() any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gauges = append(d.gauges, gauge{name, read})
}

// Table shows a table with the given columns. rows is called on every render.
func (d *DebugPage) Table(title string, cols []string, rows func() [][]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables = append(d.tables, table{title, cols, rows})
}

// subpage is a page mounted at /debug/<slug> and linked from [DebugPage].
type subpage struct {
	slug, title string
	h           http.Handler
}

// mount registers the page, its stylesheet, pprof and subpages on mux.
func (d *DebugPage) mount(mux *http.ServeMux, subpages ...subpage) {
	mux.Handle("/debug/", d)
	mux.Handle("/debug/static/", http.StripPrefix("/debug", hashfs.FileServer(StaticFS)))
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages = append(d.pages, page{"/debug/pprof/", "pprof"})
	for _, sp := range subpages {
		mux.Handle("/debug/"+sp.slug, sp.h)
		d.pages = append(d.pages, page{"/debug/" + sp.slug, sp.title})
	}
	slices.SortFunc(d.pages, func(a, b page) int { return cmp.Compare(a.Title, b.Title) })
}

type (
	debugRow struct {
		Name  string
		Value any
	}
	debugTable struct {
		Title string
		Cols  []string
		Rows  [][]string
	}
)

// ServeHTTP implements the [http.Handler] interface.
func (d *DebugPage) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/debug/" {
		RespondError(w, r, ErrNotFound)
		return
	}

	tpl, err := d.tpl.GetErr(func() (*template.Template, error) {
		return template.New("debug").Parse(debugTemplate)
	})
	if err != nil {
		RespondError(w, r, fmt.Errorf("debug: failed to initialize template: %w", err))
		return
	}

	d.mu.RLock()
	settings := make([]debugRow, 0, len(d.settings))
	for _, s := range d.settings {
		settings = append(settings, debugRow{s.name, s.value})
	}
	gauges := []debugRow{
		{"Uptime", time.Since(d.started).Round(time.Second)},
		{"Goroutines", runtime.NumGoroutine()},
	}
	for _, g := range d.gauges {
		gauges = append(gauges, debugRow{g.name, g.read()})
	}
	tables := make([]debugTable, 0, len(d.tables))
	for _, t := range d.tables {
		tables = append(tables, debugTable{t.title, t.cols, t.rows()})
	}
	pages := slices.Clone(d.pages)
	d.mu.RUnlock()

	data := struct {
		Version    version.Info
		Pages      []page
		Settings   []debugRow
		Gauges     []debugRow
		Tables     []debugTable
		Stylesheet string
	}{
		Version:    version.Version(),
		Pages:      pages,
		Settings:   settings,
		Gauges:     gauges,
		Tables:     tables,
		Stylesheet: "/debug/" + StaticFS.HashName("static/css/main.css"),
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, &data); err != nil {
		RespondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}
