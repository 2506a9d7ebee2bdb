package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"aetherlens/internal/pipeline"
	"aetherlens/internal/report"
)

func newReportCmd() *cobra.Command {
	var exportAllure bool

	cmd := &cobra.Command{
		Use:   "report [target-dir]",
		Short: "Show the latest pipeline session for a project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targetDir := targetDirArg(args)

			session, err := pipeline.LoadLatestSession(targetDir)
			if err != nil {
				return err
			}
			fmt.Fprint(os.Stdout, report.Summary(session))

			if exportAllure {
				if err := report.NewAllureExporter().Export(targetDir, session); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&exportAllure, "allure", false, "Also export the session in allure result format")
	return cmd
}
