package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-boot/loader"
)

func newInspectCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect [url]",
		Short: "List a module's imports, exports, entry point and hook wiring without running it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := c.moduleURL(args)
			if err != nil {
				return err
			}
			logger, err := newLogger(c.cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			setLoggers(logger)

			info, err := inspect(cmd.Context(), c, url)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			printInfo(cmd.OutOrStdout(), info)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func inspect(ctx context.Context, c *cli, url string) (*loader.Info, error) {
	l, err := loader.New(ctx, c.cfg.LoaderOptions())
	if err != nil {
		return nil, err
	}
	defer func() { _ = l.Close(context.Background()) }()
	return l.Inspect(ctx, url)
}

func printInfo(w io.Writer, info *loader.Info) {
	r := lipgloss.NewRenderer(w)
	title := r.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#7D56F4")).Padding(0, 1)
	name := r.NewStyle().Foreground(lipgloss.Color("#98FB98"))
	typ := r.NewStyle().Foreground(lipgloss.Color("#87CEEB"))
	bad := r.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))

	sig := func(params, results []string) string {
		s := "(" + typ.Render(strings.Join(params, ", ")) + ")"
		if len(results) > 0 {
			s += " -> " + typ.Render(strings.Join(results, ", "))
		}
		return s
	}

	fmt.Fprintf(w, "%s %s\n", title.Render("Module"), info.URL)
	fmt.Fprintf(w, "Size: %d bytes\n", info.Size)

	entry := info.Entry
	if entry == "" {
		entry = "(none)"
	}
	fmt.Fprintf(w, "Entry point: %s\n", entry)
	fmt.Fprintf(w, "Publishes hook: %t\n", info.PublishesHook)
	fmt.Fprintf(w, "Exports hook: %t\n", info.ExportsHook)
	if len(info.Memories) > 0 {
		fmt.Fprintf(w, "Memories: %s\n", strings.Join(info.Memories, ", "))
	}

	fmt.Fprintf(w, "\nImports:\n")
	for _, imp := range info.Imports {
		line := fmt.Sprintf("  %s.%s%s", imp.Module, name.Render(imp.Name), sig(imp.Params, imp.Results))
		if !imp.Resolved {
			line += " " + bad.Render("missing")
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintf(w, "\nExports:\n")
	for _, exp := range info.Exports {
		fmt.Fprintf(w, "  %s%s\n", name.Render(exp.Name), sig(exp.Params, exp.Results))
	}
}
