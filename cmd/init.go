package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"aetherlens/internal/config"
)

func newInitCmd() *cobra.Command {
	var strategy, endpointStrategy, allureStrategy string
	var force bool

	cmd := &cobra.Command{
		Use:   "init [target-dir]",
		Short: "Write a default config file into a project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targetDir := targetDirArg(args)
			path := filepath.Join(targetDir, config.ConfigFileName)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			path, err := config.WriteDefault(targetDir, strategy, endpointStrategy, allureStrategy)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "Initial analysis strategy (default: auto)")
	cmd.Flags().StringVar(&endpointStrategy, "endpoint", "", "Initial endpoint strategy: local, docker, kubernetes, or dry-run")
	cmd.Flags().StringVar(&allureStrategy, "allure", "", "Report export mode (default: none)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}
