package main

import (
	"github.com/spf13/cobra"

	"github.com/dusk-indust/py2graph/internal/mcptools"
	"github.com/dusk-indust/py2graph/internal/orchestrator"
)

var flagAddr string

var serveCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Serve the ingestion tools over MCP",
	Long:  "Runs an MCP server over streamable HTTP exposing build_graph, apply_diff and related_files against the configured store and cache.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", ":8090", "listen address")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	// Tools name their project per call; the config only selects storage.
	cfg, err := loadConfig(".")
	if err != nil {
		return err
	}
	env, err := orchestrator.OpenEnv(cfg, logger)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, stop := runContext(cmd)
	defer stop()

	return mcptools.RunMCPServer(ctx, mcptools.NewGraphService(env, logger), flagAddr)
}
