package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/teamsbot/internal/config"
	"github.com/nextlevelbuilder/teamsbot/internal/plugins"
)

func pluginsCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Load the plugin directory and print the help listing",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if dir == "" {
				dir = cfg.Plugins.Dir
			}
			return printPlugins(cmd.Context(), os.Stdout, dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "plugin manifest directory (default: plugins.dir from config)")
	return cmd
}

func printPlugins(ctx context.Context, w io.Writer, dir string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	catalog := newCatalog()
	registry := plugins.NewRegistry(catalog, dir)
	if err := registry.Load(ctx); err != nil {
		return err
	}
	table := registry.Table()

	fmt.Fprintf(w, "Directory: %s\n", dir)
	fmt.Fprintf(w, "Unit kinds: %s\n", strings.Join(catalog.Kinds(), ", "))
	fmt.Fprintf(w, "Commands: %s\n\n", strings.Join(table.Commands(), " "))
	if help := table.Help(); help != "" {
		fmt.Fprintln(w, help)
	} else {
		fmt.Fprintln(w, "(no plugin capabilities loaded)")
	}
	return nil
}
