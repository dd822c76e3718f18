package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"finrag/internal/bootstrap"
	mcptransport "finrag/internal/transport/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve filing search over MCP (stdio)",
	Long: `Runs a Model Context Protocol server on stdin/stdout exposing the
search_filings and filing_stats tools. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	app, err := bootstrap.New(ctx, bootstrap.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error().Err(err).Msg("close resources failed")
		}
	}()

	server, err := mcptransport.NewServer(app.Search, app.Ingest)
	if err != nil {
		return err
	}
	log.Info().Str("version", mcptransport.Version).Msg("mcp server starting on stdio")
	return server.Run(ctx)
}
