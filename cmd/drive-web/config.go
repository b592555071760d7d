package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/lakukan/drive-web/internal/runtimecfg"
	"github.com/spf13/cobra"
)

func newConfigCmd(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "config <url|file>",
		Short: "Print the runtime config a served page injects",
		Long: "Fetches the page, or reads it from a file, and prints the window." + runtimecfg.GlobalName +
			" object as the application sees it, defaults applied.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := readPageConfig(ctx, args[0])
			if err != nil {
				return err
			}
			return printConfig(cmd.OutOrStdout(), c)
		},
	}
}

func readPageConfig(ctx context.Context, src string) (*runtimecfg.Config, error) {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		f, err := os.Open(src) //nolint:gosec // G304: path comes from the command line
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		return runtimecfg.FromHTML(f)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %s", src, resp.Status)
	}
	c, err := runtimecfg.FromHTML(resp.Body)
	if err != nil {
		return nil, err
	}
	origin := resp.Request.URL.Scheme + "://" + resp.Request.URL.Host
	return c.WithOrigin(origin), nil
}

// configView is the printed form: the settings plus the derived values.
type configView struct {
	runtimecfg.Settings
	Origin      string `json:"origin,omitempty"`
	LogoURL     string `json:"logoURL"`
	TusEndpoint string `json:"tusEndpoint"`
}

func printConfig(w io.Writer, c *runtimecfg.Config) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(configView{
		Settings:    c.Settings(),
		Origin:      c.Origin(),
		LogoURL:     c.LogoURL(),
		TusEndpoint: c.TusEndpoint(),
	})
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the runtime config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(runtimecfg.Schema())
		},
	}
}
