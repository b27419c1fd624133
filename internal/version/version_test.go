// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"

	"go.astrophena.name/devserve/internal/testutil"
)

func TestLoad(t *testing.T) {
	cases := map[string]struct {
		bi   *debug.BuildInfo
		exe  string
		want Info
	}{
		"no build info": {
			exe: "/usr/local/bin/devserve",
			want: Info{
				Name:    "devserve",
				Version: "devel",
				Go:      runtime.Version(),
			},
		},
		"devel build with vcs": {
			bi: &debug.BuildInfo{
				Main: debug.Module{Version: "(devel)"},
				Settings: []debug.BuildSetting{
					{Key: "vcs.revision", Value: "abcdef"},
					{Key: "vcs.time", Value: "2025-01-02T03:04:05Z"},
					{Key: "vcs.modified", Value: "true"},
				},
			},
			exe: `C:\tools\devserve.exe`,
			want: Info{
				Name:    "devserve",
				Version: "devel",
				Commit:  "abcdef",
				BuiltAt: "2025-01-02T03:04:05Z",
				Dirty:   true,
				Go:      runtime.Version(),
			},
		},
		"tagged release": {
			bi:  &debug.BuildInfo{Main: debug.Module{Version: "v0.3.0"}},
			exe: "/home/user/go/bin/spa",
			want: Info{
				Name:    "spa",
				Version: "v0.3.0",
				Go:      runtime.Version(),
			},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if runtime.GOOS != "windows" && strings.Contains(tc.exe, `\`) {
				// filepath.Base doesn't split on backslashes here.
				tc.exe = "/tools/devserve.exe"
			}
			testutil.AssertEqual(t, load(tc.bi, tc.exe), tc.want)
		})
	}
}

func TestInfoString(t *testing.T) {
	i := Info{Name: "devserve", Version: "v1.0.0", Commit: "abc", Dirty: true, Go: "go1.22.0"}
	got := i.String()
	for _, want := range []string{"devserve v1.0.0 (go1.22.0, ", "commit abc (dirty)\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("%q must contain %q", got, want)
		}
	}
	if strings.Contains(got, "built at") {
		t.Errorf("%q must not mention build time", got)
	}
}
