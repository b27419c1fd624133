// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package clitest runs command-line applications against table-driven cases
// with an isolated [cli.Env].
package clitest

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.astrophena.name/devserve/internal/cli"
)

// Case is one invocation of an application.
type Case[App cli.App] struct {
	// Args are the command-line arguments.
	Args []string
	// Env is the whole environment the application sees.
	Env map[string]string

	// WantErr is matched against the returned error with errors.Is. Nil
	// means the application must succeed.
	WantErr error
	// Silent requires both stdout and stderr to stay empty, as they do when
	// startup fails before anything is announced.
	Silent bool
	// Stdout lists substrings that must appear in stdout in this order.
	Stdout []string
	// Stderr lists substrings that must appear in stderr in this order.
	Stderr []string
	// Check, if set, inspects the application and its output after it
	// returned.
	Check func(t *testing.T, app App, out Output)
}

// Output is what an application printed.
type Output struct {
	Stdout, Stderr string
}

// Run runs each case in parallel on a fresh App made by setup.
func Run[App cli.App](t *testing.T, setup func(*testing.T) App, cases map[string]Case[App]) {
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			app := setup(t)
			out, err := Exec(app, tc.Args, tc.Env)
			checkErr(t, err, tc.WantErr, out)

			if tc.Silent && (out.Stdout != "" || out.Stderr != "") {
				t.Errorf("must print nothing, got:\nstdout: %q\nstderr: %q", out.Stdout, out.Stderr)
			}
			ContainsInOrder(t, "stdout", out.Stdout, tc.Stdout...)
			ContainsInOrder(t, "stderr", out.Stderr, tc.Stderr...)

			if tc.Check != nil {
				tc.Check(t, app, out)
			}
		})
	}
}

// Exec runs app once with args and env and returns what it printed.
func Exec(app cli.App, args []string, env map[string]string) (Output, error) {
	var stdout, stderr bytes.Buffer
	err := cli.Run(cli.WithEnv(context.Background(), &cli.Env{
		Args:   args,
		Getenv: func(name string) string { return env[name] },
		Stdin:  strings.NewReader(""),
		Stdout: &stdout,
		Stderr: &stderr,
	}), app)
	return Output{Stdout: stdout.String(), Stderr: stderr.String()}, err
}

func checkErr(t *testing.T, err, want error, out Output) {
	t.Helper()
	switch {
	case err == nil && want != nil:
		t.Fatalf("must fail with error: %v", want)
	case err != nil && want == nil:
		t.Fatalf("unexpected error: %v\nstderr:\n%s", err, out.Stderr)
	case err != nil && !errors.Is(err, want):
		t.Fatalf("want error %v, got: %v", want, err)
	}
}

// ContainsInOrder reports an error unless s contains every one of subs, each
// after the end of the previous one.
func ContainsInOrder(t testing.TB, name, s string, subs ...string) {
	t.Helper()
	rest := s
	for _, sub := range subs {
		i := strings.Index(rest, sub)
		if i < 0 {
			t.Errorf("%s must contain %q after the previous match, got:\n%s", name, sub, s)
			return
		}
		rest = rest[i+len(sub):]
	}
}
