package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"finrag/internal/bootstrap"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume ingest jobs from RabbitMQ",
	Args:  cobra.NoArgs,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	app, err := bootstrap.New(ctx, bootstrap.Options{StartWorker: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error().Err(err).Msg("close resources failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("worker stopping")
	return nil
}
