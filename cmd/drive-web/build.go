package main

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/lakukan/drive-web/internal/buildcfg"
	"github.com/lakukan/drive-web/internal/buildlog"
	"github.com/lakukan/drive-web/internal/bundler"
	"github.com/spf13/cobra"
)

func newBuildCmd(g *globalFlags) *cobra.Command {
	var strict, noHistory bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Produce the deployable output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := buildcfg.LoadProject(g.project)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("strict-chunks") {
				p.StrictChunks = strict
			}
			// The environment is only read in development mode.
			cfg, err := buildcfg.Load(buildcfg.ModeBuild, p, nil)
			if err != nil {
				return err
			}
			opts, err := bundler.ProductionOptions(cfg)
			if err != nil {
				return err
			}
			start := time.Now()
			res, err := bundler.Build(cmd.Context(), opts)
			if err != nil {
				return err
			}
			printSummary(opts.OutDir, res)
			if noHistory {
				return nil
			}
			l, err := buildlog.Open(g.project, buildlog.DefaultKeep)
			if err != nil {
				return err
			}
			return l.Record(buildlog.NewEntry(opts.OutDir, res, time.Since(start)))
		},
	}
	cmd.Flags().BoolVar(&strict, "strict-chunks", false, "Fail when a chunk rule matches no module")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the build in "+buildlog.File)
	return cmd
}

func newHistoryCmd(g *globalFlags) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the most recent builds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := buildlog.Open(g.project, buildlog.DefaultKeep)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, e := range l.Last(n) {
				rev := e.Revision
				if len(rev) > 12 {
					rev = rev[:12]
				}
				if e.Dirty {
					rev += "+"
				}
				_, _ = fmt.Fprintf(w, "%s  %s  %-13s %4d files  %s\n", e.ID, e.Created.Local().Format(time.DateTime), rev, e.Files, e.Duration)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "count", "n", 10, "Number of builds to list")
	return cmd
}

func printSummary(outDir string, res *bundler.Result) {
	cwd, _ := os.Getwd()
	if rel, err := filepath.Rel(cwd, outDir); err == nil && !strings.HasPrefix(rel, "..") {
		outDir = rel
	}
	m := res.Manifest
	fmt.Printf("%s: build %s, %d files\n", outDir, m.ID, len(res.Files))
	if m.Revision != "" {
		dirty := ""
		if m.Dirty {
			dirty = " (modified)"
		}
		fmt.Printf("  revision %s%s\n", m.Revision, dirty)
	}
	for _, name := range slices.Sorted(maps.Keys(m.Chunks)) {
		g := m.Chunks[name]
		fmt.Printf("  chunk %-8s %d modules in %s\n", name, len(g.Inputs), strings.Join(g.Outputs, ", "))
	}
	for _, w := range res.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
}
