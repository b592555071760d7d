package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/lakukan/drive-web/frontend"
	"github.com/lakukan/drive-web/internal/server"
	"github.com/lakukan/drive-web/internal/server/ratelimit"
	"github.com/spf13/cobra"
)

type serveFlags struct {
	http          string
	dir           string
	runtimeConfig string
	rateLimit     string
	watch         bool
}

func newServeCmd(ctx context.Context, stop context.CancelFunc) *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a build output with the runtime config injected",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return runServe(ctx, stop, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.http, "http", "localhost:8080", "Address to listen on (e.g., localhost:8080, :8080, 0.0.0.0:8080)")
	fl.StringVar(&f.dir, "dir", "", "Serve this build output instead of the embedded one")
	fl.StringVar(&f.runtimeConfig, "runtime-config", "", "JSON file holding the object injected as window.LakukanDrive")
	fl.StringVar(&f.rateLimit, "rate-limit", ratelimit.DefaultRate.String(), "Per client budget as <requests>/<window>[:<burst>]; empty disables")
	fl.BoolVar(&f.watch, "watch-exe", false, "Exit when the executable is replaced")
	return cmd
}

func runServe(ctx context.Context, stop context.CancelFunc, f *serveFlags) error {
	cfg, err := loadRuntimeConfig(f.runtimeConfig)
	if err != nil {
		return err
	}
	var fsys fs.FS
	if f.dir != "" {
		fsys = os.DirFS(f.dir)
	} else {
		fsys = frontend.Dist()
	}
	h, err := server.NewHandler(fsys, cfg, server.Options{})
	if err != nil {
		return err
	}
	var tier *ratelimit.Tier
	if f.rateLimit != "" {
		r, err := ratelimit.ParseRate(f.rateLimit)
		if err != nil {
			return err
		}
		tier = ratelimit.NewTier("static", ratelimit.ScopeIP, r)
		defer tier.Close()
	}
	if f.watch {
		if err := watchExecutable(ctx, stop); err != nil {
			return fmt.Errorf("failed to watch executable: %w", err)
		}
	}
	slog.InfoContext(ctx, "Serving", "dir", f.dir, "static", cfg.StaticURL(), "rate", f.rateLimit)
	return runHTTP(ctx, f.http, server.Wrap(h, tier))
}
