package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"finrag/internal/app"
	"finrag/internal/retrieval"
	"finrag/internal/transport/http/response"
)

type Searcher interface {
	Match(ctx context.Context, input app.MatchInput) ([]retrieval.Result, error)
	Search(ctx context.Context, input app.SearchInput) ([]retrieval.Result, error)
	Context(ctx context.Context, input app.SearchInput) (string, []retrieval.Result, error)
}

type StatsProvider interface {
	Stats(ctx context.Context) (*app.StatsResult, error)
}

type SearchHandler struct {
	searcher Searcher
	stats    StatsProvider
}

// MatchRequest carries the match_documents arguments as-is.
type MatchRequest struct {
	QueryEmbedding []float32 `json:"query_embedding" binding:"required"`
	MatchThreshold *float64  `json:"match_threshold" binding:"required"`
	MatchCount     *int      `json:"match_count" binding:"required"`
	FilterTicker   string    `json:"filter_ticker"`
}

type SearchRequest struct {
	Query     string   `json:"query" binding:"required,max=4000"`
	Threshold *float64 `json:"threshold"`
	Limit     int      `json:"limit" binding:"min=0"`
	Ticker    string   `json:"ticker" binding:"max=16"`
}

type ContextResponse struct {
	Context string             `json:"context"`
	Results []retrieval.Result `json:"results"`
}

func NewSearchHandler(searcher Searcher, stats StatsProvider) *SearchHandler {
	return &SearchHandler{searcher: searcher, stats: stats}
}

func (h *SearchHandler) Match(c *gin.Context) {
	var req MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	results, err := h.searcher.Match(c.Request.Context(), app.MatchInput{
		QueryEmbedding: req.QueryEmbedding,
		MatchThreshold: *req.MatchThreshold,
		MatchCount:     *req.MatchCount,
		FilterTicker:   req.FilterTicker,
	})
	if err != nil {
		writeError(c, err, "match failed")
		return
	}
	response.OK(c, results)
}

func (h *SearchHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	results, err := h.searcher.Search(c.Request.Context(), req.toInput())
	if err != nil {
		writeError(c, err, "search failed")
		return
	}
	response.OK(c, results)
}

func (h *SearchHandler) Context(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	text, results, err := h.searcher.Context(c.Request.Context(), req.toInput())
	if err != nil {
		writeError(c, err, "search failed")
		return
	}
	response.OK(c, ContextResponse{Context: text, Results: results})
}

func (h *SearchHandler) Stats(c *gin.Context) {
	stats, err := h.stats.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err, "stats failed")
		return
	}
	response.OK(c, stats)
}

func (r SearchRequest) toInput() app.SearchInput {
	return app.SearchInput{
		Query:     r.Query,
		Threshold: r.Threshold,
		Limit:     r.Limit,
		Ticker:    r.Ticker,
	}
}
