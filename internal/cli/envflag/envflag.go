// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package envflag lets environment variables provide values for flags that
// were not given on the command line.
package envflag

import (
	"flag"
	"fmt"
	"slices"
	"sort"
)

// Apply sets each flag named in vars, which maps flag names to environment
// variable names, from its environment variable, unless the flag was given on
// the command line or the variable is empty. fs must already be parsed.
//
// It returns the names of the flags it set, sorted. An environment value the
// flag rejects is an error.
func Apply(fs *flag.FlagSet, getenv func(string) string, vars map[string]string) ([]string, error) {
	passed := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { passed[f.Name] = true })

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	var set []string
	for _, name := range names {
		envName := vars[name]
		if passed[name] {
			continue
		}
		if fs.Lookup(name) == nil {
			return nil, fmt.Errorf("envflag: flag -%s for %s is not defined", name, envName)
		}
		v := getenv(envName)
		if v == "" {
			continue
		}
		if err := fs.Set(name, v); err != nil {
			return nil, fmt.Errorf("invalid value %q for %s: %w", v, envName, err)
		}
		set = append(set, name)
	}
	return slices.Clip(set), nil
}

// Usage appends a note about the environment variable to a flag usage string.
func Usage(usage, envName string) string {
	return usage + " Can be overridden by " + envName + " environment variable."
}
