package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/lakukan/drive-web/internal/buildcfg"
	"github.com/lakukan/drive-web/internal/bundler"
	"github.com/lakukan/drive-web/internal/devproxy"
	"github.com/lakukan/drive-web/internal/runtimecfg"
	"github.com/lakukan/drive-web/internal/server"
	"github.com/spf13/cobra"
)

// rebuildDelay coalesces the bursts of events editors emit on save.
const rebuildDelay = 150 * time.Millisecond

type devFlags struct {
	listen        string
	runtimeConfig string
	envFile       string
}

func newDevCmd(ctx context.Context, stop context.CancelFunc, g *globalFlags) *cobra.Command {
	f := &devFlags{}
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Run the development server, rebuilding on change and proxying the API",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return runDev(ctx, stop, g, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.listen, "http", "", "Address to listen on; defaults to the project's listen address")
	fl.StringVar(&f.runtimeConfig, "runtime-config", "", "JSON file holding the object injected as window.LakukanDrive")
	fl.StringVar(&f.envFile, "env-file", ".env", "Environment file read before "+buildcfg.EnvBackendURL+" and "+buildcfg.EnvBackendWSURL+"; the process environment wins")
	return cmd
}

func runDev(ctx context.Context, stop context.CancelFunc, g *globalFlags, f *devFlags) error {
	if f.envFile != "" {
		if err := godotenv.Load(f.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	p, err := buildcfg.LoadProject(g.project)
	if err != nil {
		return err
	}
	cfg, err := buildcfg.Load(buildcfg.ModeDevelop, p, os.LookupEnv)
	if err != nil {
		return err
	}
	dev := cfg.Mode.(*buildcfg.Development)
	rc, err := loadRuntimeConfig(f.runtimeConfig)
	if err != nil {
		return err
	}
	outDir, err := os.MkdirTemp("", "drive-web-dev-")
	if err != nil {
		return err
	}
	defer func() { _ = os.RemoveAll(outDir) }()
	opts, err := bundler.DevelopmentOptions(cfg, p, outDir)
	if err != nil {
		return err
	}

	ds := &devServer{opts: opts, runtime: rc}
	ds.rebuild(ctx)
	if err := ds.watch(ctx, cfg.Root, filepath.Join(cfg.Root, p.OutDir)); err != nil {
		return err
	}
	if err := watchExecutable(ctx, stop); err != nil {
		return err
	}
	router, err := devproxy.New(dev, ds)
	if err != nil {
		return err
	}
	for _, r := range dev.Proxy {
		slog.InfoContext(ctx, "Proxy", "path", r.Path, "target", r.Target.String(), "stream", r.Stream)
	}
	addr := dev.Listen
	if f.listen != "" {
		addr = f.listen
	}
	return runHTTP(ctx, addr, server.Wrap(router, nil))
}

// devServer serves the latest successful development build.
type devServer struct {
	opts    bundler.Options
	runtime *runtimecfg.Config
	current atomic.Pointer[server.Handler]
}

func (d *devServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h := d.current.Load()
	if h == nil {
		http.Error(w, "The build failed, see the dev server log.", http.StatusServiceUnavailable)
		return
	}
	h.ServeHTTP(w, r)
}

// rebuild builds and swaps the handler. A failed build keeps the previous
// one.
func (d *devServer) rebuild(ctx context.Context) {
	if _, err := bundler.Build(ctx, d.opts); err != nil {
		slog.ErrorContext(ctx, "Build failed", "err", err)
		return
	}
	h, err := server.NewHandler(os.DirFS(d.opts.OutDir), d.runtime, server.Options{NoCache: true})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load build", "err", err)
		return
	}
	d.current.Store(h)
}

// skipDirs are never watched.
var skipDirs = []string{"node_modules", ".git"}

// watch rebuilds whenever a file under root changes, ignoring skip.
func (d *devServer) watch(ctx context.Context, root, skip string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	add := func(dir string) error {
		return filepath.WalkDir(dir, func(p string, e fs.DirEntry, err error) error {
			if err != nil || !e.IsDir() {
				return err
			}
			if p == skip || slices.Contains(skipDirs, e.Name()) {
				return filepath.SkipDir
			}
			return w.Add(p)
		})
	}
	if err := add(root); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		timer := time.NewTimer(time.Hour)
		timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Create) {
					if st, err := os.Stat(event.Name); err == nil && st.IsDir() {
						if err := add(event.Name); err != nil {
							slog.WarnContext(ctx, "Failed to watch directory", "dir", event.Name, "err", err)
						}
					}
				}
				if event.Has(fsnotify.Chmod) {
					continue
				}
				slog.DebugContext(ctx, "Source changed", "path", event.Name, "op", event.Op.String())
				timer.Reset(rebuildDelay)
			case <-timer.C:
				start := time.Now()
				d.rebuild(ctx)
				slog.InfoContext(ctx, "Rebuilt", "dur", time.Since(start).Round(time.Millisecond))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching sources", "err", err)
			}
		}
	}()
	return nil
}
