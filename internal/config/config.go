// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package config holds the devserve configuration and loads it from a TOML
// file.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrInvalid is returned, wrapped, when the configuration fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Environment variables that override defaults and the configuration file.
const (
	EnvPort   = "PORT"
	EnvHost   = "DEVSERVE_HOST"
	EnvDir    = "DEVSERVE_DIR"
	EnvConfig = "DEVSERVE_CONFIG"
)

// Config is the devserve configuration. It doesn't change after startup.
type Config struct {
	Host         string
	Port         int
	PortWindow   int
	Dir          string
	Index        string
	StaticPrefix string
	Name         string
	MaxConns     int
	IdleTimeout  time.Duration
	Health       bool
	Debug        bool
	Quiet        bool
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         3003,
		PortWindow:   10,
		Dir:          "build",
		Index:        "index.html",
		StaticPrefix: "/static",
	}
}

// Validate reports all problems found in c. The returned error wraps
// [ErrInvalid].
func (c Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}
	if c.Port < 1 || c.Port > 65535 {
		invalid("port %d out of range 1-65535", c.Port)
	}
	if c.PortWindow < 1 {
		invalid("port window must be positive, got %d", c.PortWindow)
	}
	if c.Dir == "" {
		invalid("document root is empty")
	}
	if c.Index == "" || filepath.IsAbs(c.Index) || slices.Contains(strings.Split(filepath.ToSlash(c.Index), "/"), "..") {
		invalid("entry document %q must be a path inside the document root", c.Index)
	}
	switch {
	case c.StaticPrefix == "":
	case !strings.HasPrefix(c.StaticPrefix, "/"):
		invalid("static prefix %q must start with a slash", c.StaticPrefix)
	case strings.Trim(c.StaticPrefix, "/") == "":
		invalid("static prefix %q must name a directory; use an empty prefix to reserve nothing", c.StaticPrefix)
	}
	if c.MaxConns < 0 {
		invalid("connection limit can't be negative, got %d", c.MaxConns)
	}
	if c.IdleTimeout < 0 {
		invalid("idle timeout can't be negative, got %v", c.IdleTimeout)
	}
	return errors.Join(errs...)
}

// DefaultName returns the display name for a document root: the name of the
// directory containing it, usually the project directory.
func DefaultName(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = filepath.Clean(dir)
	}
	name := filepath.Base(filepath.Dir(abs))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "app"
	}
	return name
}

// File is the shape of the configuration file. Only the keys that are present
// override lower-priority values.
type File struct {
	Host         *string   `toml:"host"`
	Port         *int      `toml:"port"`
	PortWindow   *int      `toml:"port_window"`
	Dir          *string   `toml:"dir"`
	Index        *string   `toml:"index"`
	StaticPrefix *string   `toml:"static_prefix"`
	Name         *string   `toml:"name"`
	MaxConns     *int      `toml:"max_conns"`
	IdleTimeout  *Duration `toml:"idle_timeout"`
	Health       *bool     `toml:"health"`
	Debug        *bool     `toml:"debug"`
	Quiet        *bool     `toml:"quiet"`

	dir string // directory of the file
}

// Duration is a [time.Duration] written as a string, like "15m".
type Duration struct{ time.Duration }

// UnmarshalText implements the [encoding.TextUnmarshaler] interface.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// LoadFile reads the configuration file at path. Unknown keys are an error.
func LoadFile(path string) (*File, error) {
	f := new(File)
	md, err := toml.DecodeFile(path, f)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: %s: unknown keys: %s", ErrInvalid, path, strings.Join(keys, ", "))
	}
	f.dir = filepath.Dir(path)
	return f, nil
}

// Apply copies the values set in f into c. Values for which explicit returns
// true, keyed by flag name, were given on the command line or in the
// environment and are left alone.
//
// A relative dir in the file is resolved against the file's directory.
func (f *File) Apply(c *Config, explicit func(flag string) bool) {
	if explicit == nil {
		explicit = func(string) bool { return false }
	}
	set := func(flag string, dst, src any) {
		if explicit(flag) {
			return
		}
		switch src := src.(type) {
		case *string:
			if src != nil {
				*dst.(*string) = *src
			}
		case *int:
			if src != nil {
				*dst.(*int) = *src
			}
		case *bool:
			if src != nil {
				*dst.(*bool) = *src
			}
		case *Duration:
			if src != nil {
				*dst.(*time.Duration) = src.Duration
			}
		}
	}

	var dir *string
	if f.Dir != nil {
		d := *f.Dir
		if !filepath.IsAbs(d) && f.dir != "" {
			d = filepath.Join(f.dir, d)
		}
		dir = &d
	}

	set("host", &c.Host, f.Host)
	set("port", &c.Port, f.Port)
	set("port-window", &c.PortWindow, f.PortWindow)
	set("dir", &c.Dir, dir)
	set("index", &c.Index, f.Index)
	set("static-prefix", &c.StaticPrefix, f.StaticPrefix)
	set("name", &c.Name, f.Name)
	set("max-conns", &c.MaxConns, f.MaxConns)
	set("idle-timeout", &c.IdleTimeout, f.IdleTimeout)
	set("health", &c.Health, f.Health)
	set("debug", &c.Debug, f.Debug)
	set("quiet", &c.Quiet, f.Quiet)
}
