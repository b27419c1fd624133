// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package spa serves the build output of a single-page application.
//
// Requests for files that exist are answered with those files. Any other path
// is answered with the entry document, so the application's client-side
// router can handle it, unless the path lies under the reserved static
// prefix, where missing files are real 404s.
package spa

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/lo"

	"go.astrophena.name/devserve/internal/syncx"
	"go.astrophena.name/devserve/internal/web"
)

// Script, style and manifest types are pinned because some systems map these
// extensions to something browsers refuse to execute.
func init() {
	for ext, typ := range map[string]string{
		".css":         "text/css; charset=utf-8",
		".js":          "text/javascript; charset=utf-8",
		".json":        "application/json",
		".map":         "application/json",
		".mjs":         "text/javascript; charset=utf-8",
		".svg":         "image/svg+xml",
		".wasm":        "application/wasm",
		".webmanifest": "application/manifest+json",
	} {
		mime.AddExtensionType(ext, typ)
	}
}

const (
	// DefaultIndex is the default entry document.
	DefaultIndex = "index.html"
	// DefaultStaticPrefix is the default reserved prefix, where bundlers put
	// hashed assets.
	DefaultStaticPrefix = "/static"

	dirIndex = "index.html"

	// recentSize is how many answered requests [Handler.Recent] remembers.
	recentSize = 20
)

// Config configures a [Handler].
type Config struct {
	// Root is the document root.
	Root fs.FS
	// Index is the entry document, relative to Root. Defaults to
	// DefaultIndex.
	Index string
	// StaticPrefix is the reserved path prefix exempt from the fallback. It
	// matches whole path segments. Empty means nothing is reserved.
	StaticPrefix string
}

// Handler is an [http.Handler] serving a single-page application. It is safe
// for concurrent use. Its configuration never changes after [New].
type Handler struct {
	root   fs.FS
	index  string
	prefix string

	reserveAll bool // StaticPrefix is "/"

	files, fallbacks, notFound, failed atomic.Int64
	recent                             *syncx.Protected[*lookups]
}

// New returns a Handler for c.
func New(c Config) *Handler {
	h := &Handler{
		root:   c.Root,
		index:  strings.TrimPrefix(path.Clean("/"+c.Index), "/"),
		prefix: strings.TrimRight(c.StaticPrefix, "/"),
		recent: syncx.Protect(new(lookups)),
	}
	if c.Index == "" {
		h.index = DefaultIndex
	}
	if c.StaticPrefix != "" && h.prefix == "" {
		h.reserveAll = true
	}
	if h.prefix != "" && !strings.HasPrefix(h.prefix, "/") {
		h.prefix = "/" + h.prefix
	}
	return h
}

// Target is the file that answers a request.
type Target struct {
	// Name of the file in the document root.
	Name string
	// Fallback is set when Name is the entry document standing in for a
	// missing path.
	Fallback bool
	// Dir is set when the request named a directory and Name is its index.
	Dir bool
}

// Resolve maps a request path to the file that answers it.
//
// Errors wrap [web.ErrNotFound] for missing paths under the static prefix,
// [web.ErrForbidden] for permission problems, and are left as they are for
// other filesystem failures.
func (h *Handler) Resolve(urlPath string) (Target, error) {
	p := path.Clean("/" + urlPath)
	name := strings.TrimPrefix(p, "/")
	if name == "" {
		name = "."
	}

	fi, err := fs.Stat(h.root, name)
	switch {
	case err == nil && !fi.IsDir():
		return Target{Name: name}, nil
	case err == nil:
		idx := path.Join(name, dirIndex)
		fi, err := fs.Stat(h.root, idx)
		if err == nil && !fi.IsDir() {
			return Target{Name: idx, Dir: true}, nil
		}
		if err != nil && !missing(err) {
			return Target{}, statError(p, err)
		}
		// A directory without an index is not listed.
	case missing(err):
	default:
		return Target{}, statError(p, err)
	}

	if h.reserved(p) {
		return Target{}, fmt.Errorf("%s: %w", p, web.ErrNotFound)
	}
	return Target{Name: h.index, Fallback: true}, nil
}

func missing(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

func statError(p string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%s: %w", p, web.ErrForbidden)
	}
	return fmt.Errorf("reading file info of %s: %w", p, err)
}

func (h *Handler) reserved(p string) bool {
	if h.reserveAll {
		return true
	}
	return h.prefix != "" && (p == h.prefix || strings.HasPrefix(p, h.prefix+"/"))
}

// ServeHTTP implements the [http.Handler] interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		web.RespondError(w, r, web.ErrMethodNotAllowed)
		return
	}

	t, err := h.Resolve(r.URL.Path)
	if err != nil {
		h.record(r.URL.Path, "", err)
		web.RespondError(w, r, err)
		return
	}

	// Relative links in a directory index need the trailing slash.
	if t.Dir && !strings.HasSuffix(r.URL.Path, "/") {
		u := *r.URL
		u.Path += "/"
		http.Redirect(w, r, u.RequestURI(), http.StatusMovedPermanently)
		return
	}

	err = h.serveFile(w, r, t.Name)
	h.record(r.URL.Path, lo.Ternary(t.Fallback, t.Name+" (fallback)", t.Name), err)
	switch {
	case err != nil:
		web.RespondError(w, r, err)
	case t.Fallback:
		h.fallbacks.Add(1)
	default:
		h.files.Add(1)
	}
}

// Stats counts how requests were answered since [New].
type Stats struct {
	// Files is the number of requests answered with the file they named.
	Files int64
	// Fallbacks is the number of requests answered with the entry document.
	Fallbacks int64
	// NotFound is the number of 404s, missing files under the static prefix
	// or a missing entry document.
	NotFound int64
	// Failed is the number of other failures (403 and 500).
	Failed int64
}

// Stats returns the request counters.
func (h *Handler) Stats() Stats {
	return Stats{
		Files:     h.files.Load(),
		Fallbacks: h.fallbacks.Load(),
		NotFound:  h.notFound.Load(),
		Failed:    h.failed.Load(),
	}
}

// Lookup is a request answered by the handler.
type Lookup struct {
	Time time.Time
	Path string
	// Answer is the served file, or the error status when nothing was.
	Answer string
}

type lookups struct {
	buf  [recentSize]Lookup
	next int
	n    int
}

func (h *Handler) record(urlPath, answer string, err error) {
	if err != nil {
		var se web.StatusErr
		if !errors.As(err, &se) {
			se = web.ErrInternalServerError
		}
		if se == web.ErrNotFound {
			h.notFound.Add(1)
		} else {
			h.failed.Add(1)
		}
		answer = fmt.Sprintf("%d %s", se, http.StatusText(int(se)))
	}
	h.recent.Access(func(l *lookups) {
		l.buf[l.next] = Lookup{Time: time.Now(), Path: urlPath, Answer: answer}
		l.next = (l.next + 1) % recentSize
		l.n = min(l.n+1, recentSize)
	})
}

// Recent returns the last answered requests, newest first.
func (h *Handler) Recent() []Lookup {
	var out []Lookup
	h.recent.RAccess(func(l *lookups) {
		out = make([]Lookup, 0, l.n)
		for i := 1; i <= l.n; i++ {
			out = append(out, l.buf[(l.next-i+recentSize)%recentSize])
		}
	})
	return out
}

// serveFile writes name to w. Errors are returned only if nothing was written
// yet.
func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, name string) error {
	f, err := h.root.Open(name)
	switch {
	case err == nil:
	case missing(err):
		// The entry document is gone, or the file was removed by a rebuild
		// after Resolve.
		return fmt.Errorf("opening %s: %w", name, web.ErrNotFound)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("opening %s: %w", name, web.ErrForbidden)
	default:
		return fmt.Errorf("opening %s: %w", name, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("reading file info of %s: %w", name, err)
	}

	content, ok := f.(io.ReadSeeker)
	if !ok {
		b, err := io.ReadAll(f)
		if err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}
		content = bytes.NewReader(b)
	}
	http.ServeContent(w, r, fi.Name(), fi.ModTime(), content)
	return nil
}

// Check reports whether the entry document is present. It has the signature
// of a [web.HealthFunc].
func (h *Handler) Check() (status string, ok bool) {
	fi, err := fs.Stat(h.root, h.index)
	switch {
	case err != nil:
		return fmt.Sprintf("%s: %v", h.index, err), false
	case fi.IsDir():
		return h.index + " is a directory", false
	}
	return h.index + " present", true
}
