// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package version reports the build information of the running binary.
package version

import (
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"

	"go.astrophena.name/devserve/internal/syncx"
)

// Info is the version and build information of the current binary.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`   // vcs.revision
	BuiltAt string `json:"built_at,omitempty"` // vcs.time
	Dirty   bool   `json:"dirty,omitempty"`    // vcs.modified
	Go      string `json:"go"`
}

// String implements the [fmt.Stringer] interface.
func (i Info) String() string {
	var sb strings.Builder
	sb.WriteString(i.Short() + " (" + i.Go + ", " + runtime.GOOS + "/" + runtime.GOARCH + ")\n")
	if i.Commit != "" {
		sb.WriteString("commit " + i.Commit)
		if i.Dirty {
			sb.WriteString(" (dirty)")
		}
		sb.WriteString("\n")
	}
	if i.BuiltAt != "" {
		sb.WriteString("built at " + i.BuiltAt + "\n")
	}
	return sb.String()
}

// Short returns the name and version, like "devserve v0.1.0".
func (i Info) Short() string { return i.Name + " " + i.Version }

var info syncx.Lazy[Info]

// Version returns the version and build information of the current binary.
func Version() Info {
	return info.Get(func() Info {
		bi, _ := debug.ReadBuildInfo()
		exe, _ := os.Executable()
		return load(bi, exe)
	})
}

// CmdName returns the base name of the current binary.
func CmdName() string { return Version().Name }

func load(bi *debug.BuildInfo, exe string) Info {
	i := Info{
		Name:    "devserve",
		Version: "devel",
		Go:      runtime.Version(),
	}
	if exe != "" {
		i.Name = strings.TrimSuffix(filepath.Base(exe), ".exe")
	}
	if bi == nil {
		return i
	}
	if v := bi.Main.Version; v != "" && v != "(devel)" {
		i.Version = v
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			i.Commit = s.Value
		case "vcs.time":
			i.BuiltAt = s.Value
		case "vcs.modified":
			i.Dirty = s.Value == "true"
		}
	}
	return i
}
