package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"finrag/internal/app"
	"finrag/internal/retrieval"
)

type SearchFilingsInput struct {
	Query     string   `json:"query" jsonschema:"natural language question about company filings"`
	Ticker    string   `json:"ticker,omitempty" jsonschema:"restrict results to one ticker, e.g. AAPL"`
	Limit     int      `json:"limit,omitempty" jsonschema:"maximum number of chunks to return"`
	Threshold *float64 `json:"threshold,omitempty" jsonschema:"minimum cosine similarity in [0,1]"`
}

type SearchFilingsOutput struct {
	Context string             `json:"context"`
	Results []retrieval.Result `json:"results"`
	Count   int                `json:"count"`
}

type FilingStatsInput struct{}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_filings",
		Description: "Find 10-K filing passages semantically similar to a question",
	}, s.handleSearchFilings)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "filing_stats",
		Description: "Report how many filing chunks are indexed, per ticker",
	}, s.handleFilingStats)
}

func (s *Server) handleSearchFilings(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchFilingsInput,
) (*mcp.CallToolResult, SearchFilingsOutput, error) {
	text, results, err := s.searcher.Context(ctx, app.SearchInput{
		Query:     input.Query,
		Threshold: input.Threshold,
		Limit:     input.Limit,
		Ticker:    input.Ticker,
	})
	if err != nil {
		return nil, SearchFilingsOutput{}, err
	}
	output := SearchFilingsOutput{
		Context: text,
		Results: results,
		Count:   len(results),
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, output, nil
}

func (s *Server) handleFilingStats(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ FilingStatsInput,
) (*mcp.CallToolResult, app.StatsResult, error) {
	stats, err := s.stats.Stats(ctx)
	if err != nil {
		return nil, app.StatsResult{}, err
	}
	return nil, *stats, nil
}
