package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/teamsbot/internal/config"
)

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return printConfig(os.Stdout, cfg)
		},
	}
}

// printConfig writes the config hash followed by the masked config as JSON.
func printConfig(w io.Writer, cfg *config.Config) error {
	data, err := json.MarshalIndent(cfg.MaskedCopy(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	fmt.Fprintf(w, "# hash %s\n", cfg.Hash())
	fmt.Fprintln(w, string(data))
	return nil
}
