package cmd

import (
	"fmt"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"aetherlens/internal/config"
	"aetherlens/internal/endpoint"
	"aetherlens/internal/events"
	"aetherlens/internal/lifecycle"
	"aetherlens/internal/pipeline"
	"aetherlens/internal/report"
	"aetherlens/internal/tui"
)

// runFlags carries the run command's override flags.
type runFlags struct {
	diff              string
	force             bool
	strategy          string
	customInstruction string
	executionEnv      string
	endpointStrategy  string
	endpointURL       string
	launch            bool
	appURL            string
	allure            string
	useTUI            bool
	yes               bool
}

// overrides converts flag values into config overrides.
func (f *runFlags) overrides(cmd *cobra.Command) config.Overrides {
	o := config.Overrides{
		Strategy:          f.strategy,
		CustomInstruction: f.customInstruction,
		ExecutionEnv:      f.executionEnv,
		EndpointStrategy:  f.endpointStrategy,
		EndpointURL:       f.endpointURL,
		AppURL:            f.appURL,
		AllureStrategy:    f.allure,
	}
	if cmd.Flags().Changed("launch") {
		launch := f.launch
		o.Launch = &launch
	}
	return o
}

// confirmFunc picks the confirmation behavior for this invocation.
func (f *runFlags) confirmFunc() endpoint.ConfirmFunc {
	if f.yes || f.useTUI {
		return endpoint.AutoConfirm
	}
	return promptConfirm
}

func newRunCmd() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [target-dir]",
		Short: "Run the test pipeline once against a project",
		Long: `Runs all pipeline phases against the target directory: prepare services,
analyze pending changes, run quality checks, execute the recommended tests,
and clean up. With no changes and no --force the run is a no-op.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targetDir := targetDirArg(args)
			registry := lifecycle.NewRegistry()
			emitter := events.NewEmitter()
			ctrl := pipeline.NewController(registry, emitter, report.NewAllureExporter(), flags.confirmFunc())

			opts := pipeline.Options{
				Diff:      flags.diff,
				Force:     flags.force,
				Overrides: flags.overrides(cmd),
			}

			var results []events.Result
			var runErr error
			if flags.useTUI {
				program := tea.NewProgram(tui.NewModel(targetDir))
				emitter.AddSink(tui.Sink(program))

				var wg sync.WaitGroup
				wg.Add(1)
				go func() {
					defer wg.Done()
					results, runErr = ctrl.RunPipeline(cmd.Context(), targetDir, opts)
					emitter.Close() // flush the final ResultEvent into the dashboard
				}()
				if _, err := program.Run(); err != nil {
					return err
				}
				wg.Wait()
			} else {
				emitter.AddSink(events.NewJSONLinesSink(os.Stdout))
				results, runErr = ctrl.RunPipeline(cmd.Context(), targetDir, opts)
				emitter.Close()
			}
			if runErr != nil {
				return runErr
			}

			failed := 0
			for _, r := range results {
				if r.Status == events.StatusFailed {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d test(s) failed", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.diff, "diff", "", "Change set to analyze instead of reading version control")
	cmd.Flags().BoolVar(&flags.force, "force", false, "Run the plan even when no changes are detected")
	cmd.Flags().StringVar(&flags.strategy, "strategy", "", "Analysis strategy override (comma-separated labels allowed)")
	cmd.Flags().StringVar(&flags.customInstruction, "instruction", "", "Extra instruction passed to the planner")
	cmd.Flags().StringVar(&flags.executionEnv, "env", "", "Execution environment: local, docker, or k8s")
	cmd.Flags().StringVar(&flags.endpointStrategy, "endpoint", "", "Endpoint strategy: local, docker, kubernetes, or dry-run")
	cmd.Flags().StringVar(&flags.endpointURL, "endpoint-url", "", "Attach to an existing automation endpoint")
	cmd.Flags().BoolVar(&flags.launch, "launch", false, "Spawn the endpoint container instead of attaching")
	cmd.Flags().StringVar(&flags.appURL, "app-url", "", "Base URL of the application under test")
	cmd.Flags().StringVar(&flags.allure, "allure", "", "Report export mode (none to disable)")
	cmd.Flags().BoolVar(&flags.useTUI, "tui", false, "Show the interactive dashboard instead of the JSONL stream")
	cmd.Flags().BoolVarP(&flags.yes, "yes", "y", false, "Answer confirmation prompts with their defaults")
	return cmd
}
