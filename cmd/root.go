package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"aetherlens/pkg/logging"
)

// rootDebug enables verbose logging across the application.
var rootDebug bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "aether-lens",
	Short: "Change-aware test pipeline for web projects",
	Long: `aether-lens watches a project, analyzes pending changes, and runs the
right tests for them: shell commands in local, compose, or cluster
environments, plus visual checks against a provisioned browser endpoint.

Results stream as JSON lines on stdout so editors and agents can consume
them; diagnostics go to stderr.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. invalid arguments, failed provisioning)
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.LevelInfo
		if rootDebug {
			level = logging.LevelDebug
		}
		logging.Init(level, os.Stderr)
	},
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "aether-lens version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&rootDebug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// targetDirArg resolves the optional positional target directory.
func targetDirArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}
