// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/landlock-lsm/go-landlock/landlock"
	"github.com/samber/lo"

	"go.astrophena.name/devserve/internal/cli"
	"go.astrophena.name/devserve/internal/cli/envflag"
	"go.astrophena.name/devserve/internal/config"
	"go.astrophena.name/devserve/internal/idle"
	"go.astrophena.name/devserve/internal/localnet"
	"go.astrophena.name/devserve/internal/logger"
	"go.astrophena.name/devserve/internal/restrict"
	"go.astrophena.name/devserve/internal/spa"
	"go.astrophena.name/devserve/internal/web"
)

func main() { cli.Main(new(engine)) }

// ErrMissingBuildOutput is returned when the document root doesn't exist.
var ErrMissingBuildOutput = errors.New("build output not found")

const logLines = 1000

type engine struct {
	cfg        config.Config
	configPath string

	// used in tests
	noServerStart bool
	outboundIP    func(context.Context) string
	ready         func(baseURL string)
}

func (e *engine) Flags(fs *flag.FlagSet) {
	e.cfg = config.Default()
	fs.IntVar(&e.cfg.Port, "port", e.cfg.Port, envflag.Usage("First `port` to try.", config.EnvPort))
	fs.IntVar(&e.cfg.PortWindow, "port-window", e.cfg.PortWindow, "How many consecutive ports to try.")
	fs.StringVar(&e.cfg.Host, "host", e.cfg.Host, envflag.Usage("Bind to `address`.", config.EnvHost))
	fs.StringVar(&e.cfg.Dir, "dir", e.cfg.Dir, envflag.Usage("Serve from `dir`, the build output.", config.EnvDir))
	fs.StringVar(&e.cfg.Index, "index", e.cfg.Index, "Entry `document`, relative to the document root.")
	fs.StringVar(&e.cfg.StaticPrefix, "static-prefix", e.cfg.StaticPrefix, "Path `prefix` where missing files are 404s instead of the entry document. Empty disables.")
	fs.StringVar(&e.cfg.Name, "name", "", "Application `name` shown at startup. Defaults to the name of the directory containing the document root.")
	fs.IntVar(&e.cfg.MaxConns, "max-conns", e.cfg.MaxConns, "Limit simultaneous connections to `n`. Zero means no limit.")
	fs.DurationVar(&e.cfg.IdleTimeout, "idle-timeout", e.cfg.IdleTimeout, "Stop after no requests for `duration`. Zero disables.")
	fs.BoolVar(&e.cfg.Health, "health", e.cfg.Health, "Serve health status at /health.")
	fs.BoolVar(&e.cfg.Debug, "debug", e.cfg.Debug, "Serve debug pages at /debug/.")
	fs.BoolVar(&e.cfg.Quiet, "quiet", e.cfg.Quiet, "Don't log requests.")
	fs.StringVar(&e.configPath, "config", "", envflag.Usage("Read settings from TOML `file`.", config.EnvConfig))
}

func (e *engine) EnvFlags() map[string]string {
	return map[string]string{
		"port":   config.EnvPort,
		"host":   config.EnvHost,
		"dir":    config.EnvDir,
		"config": config.EnvConfig,
	}
}

func (e *engine) Run(ctx context.Context, env *cli.Env) error {
	if err := e.loadConfig(env); err != nil {
		return err
	}
	c := e.cfg

	if err := checkRoot(c.Dir); err != nil {
		return err
	}

	port, err := localnet.FreePort(c.Host, c.Port, c.PortWindow)
	if err != nil {
		return err
	}

	if e.outboundIP == nil {
		e.outboundIP = localnet.OutboundIP
	}
	ip := e.outboundIP(ctx)

	printBanner(env.Stdout, c, port, ip, useColor(env))

	if e.noServerStart {
		return nil
	}

	logf := logger.Logf(env.Logf)
	var logs *logger.Streamer
	if c.Debug {
		logs = logger.NewStreamer(logLines)
		logf = logger.Tee(logf, logs)
	}

	serveCtx, stop := context.WithCancel(ctx)
	defer stop()
	tracker := idle.NewTracker(c.IdleTimeout, stop)
	go tracker.Run(serveCtx)

	h := spa.New(spa.Config{
		Root:         os.DirFS(c.Dir),
		Index:        c.Index,
		StaticPrefix: c.StaticPrefix,
	})
	mux := http.NewServeMux()
	mux.Handle("/", h)
	var health web.HealthFunc
	if c.Health {
		health = h.Check
	}
	var dbg *web.DebugPage
	if c.Debug {
		dbg = debugPage(c, port, h, tracker)
	}

	sandbox(ctx, c.Dir, port)

	var accessLog web.Middleware
	if !c.Quiet {
		accessLog = web.AccessLog(logf)
	}

	addr := net.JoinHostPort(c.Host, strconv.Itoa(port))
	err = web.ListenAndServe(serveCtx, &web.ListenAndServeConfig{
		Addr: addr,
		Mux:  mux,
		Middleware: []web.Middleware{
			web.NoCache,
			web.SecurityHeaders,
			accessLog,
			tracker.Handler,
		},
		Logf:     logf,
		MaxConns: c.MaxConns,
		Health:   health,
		Debug:    dbg,
		Logs:     logs,
		Ready: func() {
			if e.ready != nil {
				e.ready("http://" + net.JoinHostPort(dialHost(c.Host), strconv.Itoa(port)))
			}
		},
	})

	// A serve fault ends the same way as an interrupt: it is reported once
	// and the process exits cleanly.
	switch {
	case err != nil:
		logf("Server error on %s: %v", addr, err)
	case ctx.Err() != nil:
		fmt.Fprintln(env.Stdout, "Server stopped by user.")
	case serveCtx.Err() != nil:
		fmt.Fprintf(env.Stdout, "Server stopped after %v without requests.\n", c.IdleTimeout)
	}
	fmt.Fprintln(env.Stdout, "Server shutdown complete.")
	return nil
}

// loadConfig merges the configuration file into the configuration parsed from
// flags and the environment, which take precedence.
func (e *engine) loadConfig(env *cli.Env) error {
	positional := false
	switch len(env.Args) {
	case 0:
	case 1:
		e.cfg.Dir = env.Args[0]
		positional = true
	default:
		return fmt.Errorf("%w: at most one document root is allowed, got %q", cli.ErrInvalidArgs, env.Args)
	}

	if e.configPath != "" {
		f, err := config.LoadFile(e.configPath)
		if err != nil {
			return err
		}
		f.Apply(&e.cfg, func(flag string) bool {
			if flag == "dir" && positional {
				return true
			}
			return env.FlagPassed(flag) || env.FlagFromEnv(flag)
		})
	}

	if e.cfg.Name == "" {
		e.cfg.Name = config.DefaultName(e.cfg.Dir)
	}
	return e.cfg.Validate()
}

func checkRoot(dir string) error {
	fi, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s doesn't exist; run the frontend build (for example, npm run build) first", ErrMissingBuildOutput, dir)
	case err != nil:
		return fmt.Errorf("checking document root: %w", err)
	case !fi.IsDir():
		return fmt.Errorf("%w: %s is not a directory", ErrMissingBuildOutput, dir)
	}
	return nil
}

// sandbox limits the process to reading the document root and binding the
// chosen port.
func sandbox(ctx context.Context, dir string, port int) {
	if root, err := filepath.EvalSymlinks(dir); err == nil {
		dir = root
	}
	// Both are read from /etc on first use.
	mime.TypeByExtension(".html")
	time.Now().Zone()

	restrict.DoUnlessTesting(ctx,
		landlock.RODirs(dir),
		landlock.BindTCP(uint16(port)),
	)
}

func debugPage(c config.Config, port int, h *spa.Handler, tracker *idle.Tracker) *web.DebugPage {
	dbg := web.NewDebugPage()
	if abs, err := filepath.Abs(c.Dir); err == nil {
		dbg.Setting("Document root", abs)
	}
	dbg.Setting("Entry document", c.Index)
	dbg.Setting("Static prefix", lo.Ternary(c.StaticPrefix == "", "(none)", c.StaticPrefix))
	dbg.Setting("Port", port)
	if c.IdleTimeout > 0 {
		dbg.Setting("Idle timeout", c.IdleTimeout)
		dbg.Gauge("Idle for", func() any { return tracker.Idle().Round(time.Second) })
	}

	dbg.Gauge("Files served", func() any { return h.Stats().Files })
	dbg.Gauge("Fallbacks to entry document", func() any { return h.Stats().Fallbacks })
	dbg.Gauge("Not found", func() any { return h.Stats().NotFound })
	dbg.Gauge("Failed", func() any { return h.Stats().Failed })
	dbg.Gauge("Entry document check", func() any {
		status, _ := h.Check()
		return status
	})
	dbg.Table("Recent requests", []string{"Time", "Path", "Answer"}, func() [][]string {
		return lo.Map(h.Recent(), func(l spa.Lookup, _ int) []string {
			return []string{l.Time.Format(time.TimeOnly), l.Path, l.Answer}
		})
	})
	return dbg
}

type endpoint struct{ label, host string }

func isWildcard(host string) bool {
	return lo.Contains([]string{"", "0.0.0.0", "::"}, host)
}

// endpoints lists where the server can be reached when bound to host.
func endpoints(host, ip string) []endpoint {
	switch {
	case isWildcard(host):
		return []endpoint{
			{"Local", "localhost"},
			{"Local", localnet.Loopback},
			{"Network", ip},
		}
	case host == "localhost" || net.ParseIP(host).IsLoopback():
		return []endpoint{{"Local", host}}
	default:
		return []endpoint{{"Network", host}}
	}
}

func dialHost(host string) string {
	if isWildcard(host) {
		return localnet.Loopback
	}
	return host
}

func useColor(env *cli.Env) bool {
	if color.NoColor || env.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := env.Stdout.(*os.File)
	return ok && f == os.Stdout
}

func printBanner(w io.Writer, c config.Config, port int, ip string, colored bool) {
	title := color.New(color.Bold)
	label := color.New(color.FgGreen)
	link := color.New(color.FgCyan)
	if !colored {
		lo.ForEach([]*color.Color{title, label, link}, func(c *color.Color, _ int) { c.DisableColor() })
	}

	title.Fprintf(w, "Starting %s on port %d...\n", c.Name, port)
	urls := lo.Map(endpoints(c.Host, ip), func(ep endpoint, _ int) string {
		return fmt.Sprintf("  %s %s", label.Sprintf("%-8s", ep.label+":"), link.Sprint("http://"+net.JoinHostPort(ep.host, strconv.Itoa(port))))
	})
	fmt.Fprintln(w, strings.Join(urls, "\n"))
	fmt.Fprintln(w, "Press Ctrl+C to stop the server")
	fmt.Fprintln(w, strings.Repeat("=", 50))
}
