package main

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	appsvc "finrag/internal/app"
	"finrag/internal/bootstrap"
)

var (
	searchTicker    string
	searchLimit     int
	searchThreshold float64
	searchJSON      bool
	searchContext   bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Find filing chunks similar to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchTicker, "ticker", "t", "", "restrict results to one ticker")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum number of results (default from config)")
	searchCmd.Flags().Float64Var(&searchThreshold, "threshold", 0, "minimum similarity (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().BoolVar(&searchContext, "context", false, "print the formatted LLM context block")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
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

	input := appsvc.SearchInput{
		Query:  strings.Join(args, " "),
		Limit:  searchLimit,
		Ticker: searchTicker,
	}
	if cmd.Flags().Changed("threshold") {
		input.Threshold = &searchThreshold
	}

	text, results, err := app.Search.Context(ctx, input)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	switch {
	case searchJSON:
		return printJSON(cmd, results)
	case searchContext:
		cmd.Println(text)
		return nil
	}

	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	for i, r := range results {
		section, _ := r.Metadata["section"].(string)
		cmd.Printf("[%d] %s %s (%.4f)\n", i+1, r.Ticker, section, r.Similarity)
		cmd.Printf("    %s\n", snippet(r.Content, 160))
	}
	return nil
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
