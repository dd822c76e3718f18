package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"finrag/internal/app"
	"finrag/internal/retrieval"
)

const Version = "0.1.0"

type Searcher interface {
	Context(ctx context.Context, input app.SearchInput) (string, []retrieval.Result, error)
}

type StatsProvider interface {
	Stats(ctx context.Context) (*app.StatsResult, error)
}

// Server exposes filing search to MCP clients.
type Server struct {
	searcher Searcher
	stats    StatsProvider
	server   *mcp.Server
}

func NewServer(searcher Searcher, stats StatsProvider) (*Server, error) {
	if searcher == nil || stats == nil {
		return nil, errors.New("mcp server needs a searcher and a stats provider")
	}
	s := &Server{
		searcher: searcher,
		stats:    stats,
		server:   mcp.NewServer(&mcp.Implementation{Name: "finrag", Version: Version}, nil),
	}
	s.registerTools()
	return s, nil
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
