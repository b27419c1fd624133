// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package testutil contains common testing helpers.
package testutil

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/tools/txtar"
)

// AssertEqual compares two values and if they differ, fails the test and
// prints the difference between them.
func AssertEqual(t testing.TB, got, want any) {
	t.Helper()
	if diff := cmp.Diff(got, want); diff != "" {
		t.Fatalf("(-got +want):\n%s", diff)
	}
}

// AssertContains fails the test if v is not present in s.
func AssertContains[S ~[]V, V comparable](t testing.TB, s S, v V) {
	t.Helper()
	if !slices.Contains(s, v) {
		t.Fatalf("%v is not present in %v", v, s)
	}
}

// ExtractTxtar extracts a txtar archive to dir.
func ExtractTxtar(t testing.TB, ar *txtar.Archive, dir string) {
	t.Helper()
	for _, file := range ar.Files {
		name := filepath.Join(dir, filepath.FromSlash(file.Name))
		if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(name, file.Data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// TxtarDir parses the txtar archive at path and extracts it into a fresh
// temporary directory, returning that directory. Files whose names end with
// a slash create empty directories.
func TxtarDir(t testing.TB, path string) string {
	t.Helper()
	ar, err := txtar.ParseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	var files []txtar.File
	for _, f := range ar.Files {
		if len(f.Name) > 0 && f.Name[len(f.Name)-1] == '/' {
			if err := os.MkdirAll(filepath.Join(dir, filepath.FromSlash(f.Name)), 0o755); err != nil {
				t.Fatal(err)
			}
			continue
		}
		files = append(files, f)
	}
	ExtractTxtar(t, &txtar.Archive{Files: files}, dir)
	return dir
}
