package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"aetherlens/internal/config"
	"aetherlens/internal/endpoint"
	"aetherlens/internal/events"
	"aetherlens/internal/lifecycle"
	"aetherlens/internal/pipeline"
	"aetherlens/internal/report"
	"aetherlens/pkg/logging"
)

// pidFileName records the watch process so `aether-lens stop` can find it
// from another terminal.
const pidFileName = ".aether/watch.pid"

func newWatchCmd() *cobra.Command {
	var strategy string

	cmd := &cobra.Command{
		Use:   "watch [target-dir]",
		Short: "Watch a project and re-run the pipeline on changes",
		Long: `Starts the dev loop: file changes under the target directory (debounced,
ignoring build and VCS artifacts) trigger a pipeline run with a fresh diff.
Runs until interrupted or until 'aether-lens stop' is invoked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targetDir := targetDirArg(args)

			registry := lifecycle.NewRegistry()
			emitter := events.NewEmitter(events.NewJSONLinesSink(os.Stdout))
			defer emitter.Close()
			ctrl := pipeline.NewController(registry, emitter, report.NewAllureExporter(), endpoint.AutoConfirm)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := pipeline.Options{Overrides: config.Overrides{Strategy: strategy}}
			if err := ctrl.StartWatch(ctx, targetDir, opts); err != nil {
				return err
			}
			if err := writePidFile(targetDir); err != nil {
				logging.Warn("Watch", "could not record watch pid: %v", err)
			}
			defer removePidFile(targetDir)

			fmt.Fprintf(os.Stderr, "Watching %s, press Ctrl+C to stop\n", targetDir)
			<-ctx.Done()

			ctrl.StopWatch(targetDir)
			registry.StopAll()
			return nil
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "Analysis strategy override for triggered runs")
	return cmd
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop [target-dir]",
		Short: "Stop the watch running on a project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targetDir := targetDirArg(args)

			pid, err := readPidFile(targetDir)
			if err != nil {
				return fmt.Errorf("no watch recorded for %s", targetDir)
			}
			if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
				removePidFile(targetDir)
				return fmt.Errorf("watch process %d is gone", pid)
			}
			fmt.Fprintf(os.Stderr, "Stopped watch (pid %d) on %s\n", pid, targetDir)
			return nil
		},
	}
}

func pidFilePath(targetDir string) string {
	return filepath.Join(targetDir, pidFileName)
}

func writePidFile(targetDir string) error {
	path := pidFilePath(targetDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func readPidFile(targetDir string) (int, error) {
	data, err := os.ReadFile(pidFilePath(targetDir))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePidFile(targetDir string) {
	if err := os.Remove(pidFilePath(targetDir)); err != nil && !os.IsNotExist(err) {
		logging.Debug("Watch", "removing pid file: %v", err)
	}
}
