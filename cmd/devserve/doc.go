// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Devserve serves the build output of a single-page application on the local
network, for trying a production build on other devices.

# Usage

	$ devserve [flags...] [dir]

dir is the document root, "build" by default. It must exist: devserve doesn't
build anything, so run the frontend build (for example, npm run build) first.

Devserve picks the first free port starting at 3003 (see -port and
-port-window) and prints the addresses it can be reached at:

	Starting car-marketplace on port 3003...
	  Local:   http://localhost:3003
	  Local:   http://127.0.0.1:3003
	  Network: http://192.168.1.20:3003
	Press Ctrl+C to stop the server
	==================================================

Every response tells browsers not to cache it. Paths that don't name a file
are answered with the entry document (index.html), so the application's
client-side router handles them, except under the static prefix (/static),
where a missing file is a 404.

# Environment Variables

  - PORT: first port to try.
  - DEVSERVE_HOST: address to bind to, "0.0.0.0" by default.
  - DEVSERVE_DIR: document root.
  - DEVSERVE_CONFIG: path to the configuration file.
  - NO_COLOR: disables colored output.

Command-line flags take precedence over environment variables.

# Configuration

Settings can also be read from a TOML file passed with -config:

	port = 4000
	dir = "dist"
	static_prefix = "/assets"
	idle_timeout = "30m"
	health = true

A relative dir is resolved against the directory of the file. Environment
variables and flags override the file.

# Endpoints

With -health, /health reports whether the entry document is present. With
-debug, /debug/ shows what is being served, how requests were answered
(files, fallbacks to the entry document, 404s) and the last requests, and
links pprof profiles, open connections and recent logs.

# Sandboxing

On Linux, devserve uses Landlock to restrict itself to reading the document
root and listening on the chosen port once it starts serving.
*/
package main

import (
	_ "embed"

	"go.astrophena.name/devserve/internal/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
