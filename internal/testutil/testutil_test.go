// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/tools/txtar"
)

func TestExtractTxtar(t *testing.T) {
	ar := txtar.Parse([]byte(`-- index.html --
<div id="root"></div>
-- static/js/main.js --
console.log("hi");
-- assets/ --
`))
	dir := t.TempDir()
	path := filepath.Join(dir, "build.txtar")
	if err := os.WriteFile(path, txtar.Format(ar), 0o644); err != nil {
		t.Fatal(err)
	}

	root := TxtarDir(t, path)

	b, err := os.ReadFile(filepath.Join(root, "static", "js", "main.js"))
	if err != nil {
		t.Fatal(err)
	}
	AssertEqual(t, string(b), "console.log(\"hi\");\n")

	fi, err := os.Stat(filepath.Join(root, "assets"))
	if err != nil {
		t.Fatal(err)
	}
	AssertEqual(t, fi.IsDir(), true)
}
