package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	appsvc "finrag/internal/app"
	"finrag/internal/bootstrap"
	"finrag/internal/pkg/filing"
)

var (
	ingestDir        string
	ingestTickers    []string
	ingestFiscalYear string
	ingestEnqueue    bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Chunk, embed and store 10-K filings",
	Long: `Reads <dir>/<TICKER>/{business,risk_factors,mda}.{txt,pdf} and replaces
the stored chunks for each ticker. Without --ticker every subdirectory of
--dir is ingested. With --enqueue the filings are queued for a worker
instead of being processed here.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDir, "dir", "", "filings root directory (default from config)")
	ingestCmd.Flags().StringSliceVarP(&ingestTickers, "ticker", "t", nil, "tickers to ingest")
	ingestCmd.Flags().StringVar(&ingestFiscalYear, "fiscal-year", "", "fiscal year recorded in chunk metadata")
	ingestCmd.Flags().BoolVar(&ingestEnqueue, "enqueue", false, "publish ingest jobs instead of ingesting in-process")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	app, err := bootstrap.New(ctx, bootstrap.Options{Queue: ingestEnqueue})
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error().Err(err).Msg("close resources failed")
		}
	}()

	dir := ingestDir
	if dir == "" {
		dir = app.Config.Ingestion.DocumentsDir
	}
	tickers := ingestTickers
	if len(tickers) == 0 {
		tickers, err = filing.ListTickers(dir)
		if err != nil {
			return err
		}
	}
	if len(tickers) == 0 {
		return fmt.Errorf("no ticker directories under %s", dir)
	}

	var failed []string
	for _, ticker := range tickers {
		if err := ingestTicker(ctx, cmd, app, dir, ticker); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Str("ticker", ticker).Msg("ingest ticker failed")
			failed = append(failed, ticker)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("ingest failed for %s", strings.Join(failed, ", "))
	}
	return nil
}

func ingestTicker(ctx context.Context, cmd *cobra.Command, app *bootstrap.App, dir, ticker string) error {
	sections, err := filing.LoadTicker(dir, ticker)
	if err != nil {
		return err
	}
	input := appsvc.IngestInput{
		Ticker:     ticker,
		FiscalYear: ingestFiscalYear,
		Sections:   make([]appsvc.SectionInput, 0, len(sections)),
	}
	for _, sec := range sections {
		input.Sections = append(input.Sections, appsvc.SectionInput{Name: sec.Name, Text: sec.Text})
	}

	if ingestEnqueue {
		if app.Jobs == nil {
			return errors.New("job queue not configured")
		}
		job, err := app.Jobs.Enqueue(ctx, input)
		if err != nil {
			return err
		}
		cmd.Printf("%s: queued job %s\n", job.Ticker, job.ID)
		return nil
	}

	result, err := app.Ingest.Ingest(ctx, input)
	if err != nil {
		return err
	}
	cmd.Printf("%s: %d chunks stored (%d replaced)\n", result.Ticker, result.ChunkCount, result.Replaced)
	return nil
}
