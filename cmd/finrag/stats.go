package main

import (
	"maps"
	"slices"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"finrag/internal/bootstrap"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show indexed chunk counts",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
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

	stats, err := app.Ingest.Stats(ctx)
	if err != nil {
		return err
	}
	if statsJSON {
		return printJSON(cmd, stats)
	}

	cmd.Printf("table:     %s\n", stats.TableName)
	cmd.Printf("model:     %s (%d dims)\n", stats.EmbeddingModel, stats.Dimension)
	cmd.Printf("documents: %d\n", stats.TotalDocuments)
	for _, ticker := range slices.Sorted(maps.Keys(stats.ByTicker)) {
		cmd.Printf("  %-8s %d\n", ticker, stats.ByTicker[ticker])
	}
	return nil
}
