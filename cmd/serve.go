package cmd

import (
	"github.com/spf13/cobra"

	"aetherlens/internal/endpoint"
	"aetherlens/internal/events"
	"aetherlens/internal/lifecycle"
	"aetherlens/internal/mcpserver"
	"aetherlens/internal/pipeline"
	"aetherlens/internal/report"
	"aetherlens/pkg/logging"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve pipeline operations over MCP on stdio",
		Long: `Exposes run_pipeline, get_insight, get_pipeline_history, start_watch,
stop_watch, list_watches, and init_lens as Model Context Protocol tools for
AI assistants.

Stdout carries the protocol, so pipeline events are mirrored to the log on
stderr instead of the usual JSONL stream.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := lifecycle.NewRegistry()
			defer registry.StopAll()

			emitter := events.NewEmitter(events.CallbackSink(logSink))
			defer emitter.Close()

			ctrl := pipeline.NewController(registry, emitter, report.NewAllureExporter(), endpoint.AutoConfirm)
			return mcpserver.New(ctrl, rootCmd.Version).Serve()
		},
	}
}

// logSink mirrors test lifecycle events onto the diagnostic log. The MCP
// transport owns stdout, so this is where they surface during serve. Log
// events are not mirrored; the controller already writes those to the log.
func logSink(ev events.Event) {
	switch ev := ev.(type) {
	case events.TestStarted:
		logging.Info("Pipeline", "started %s (%s)", ev.Label, ev.Kind)
	case events.TestFinished:
		logging.Info("Pipeline", "%s: %s", ev.Label, ev.Status)
	}
}
