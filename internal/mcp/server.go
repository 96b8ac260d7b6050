package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/rag-server/internal/domain"
	"github.com/bull/rag-server/internal/jobs"
)

// Answerer answers chat queries.
type Answerer interface {
	Answer(ctx context.Context, q domain.ChatQuery) (*domain.Answer, error)
}

// Ingester accepts documents and reports job progress.
type Ingester interface {
	Submit(ctx context.Context, docs []domain.Document) (*jobs.Job, error)
	Get(ctx context.Context, jobID string) (*jobs.Job, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Answerer Answerer
	Ingester Ingester
	Version  string
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	server := mcp.NewServer(&mcp.Implementation{Name: "rag-server", Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_question",
		Description: "Answer a question using only the indexed documents. Returns the answer with citations to the source spans it used.",
	}, makeAskHandler(cfg.Answerer))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_text",
		Description: "Queue a text, markdown, CSV or TSV document for indexing. Returns a job id; poll get_ingest_status for progress.",
	}, makeIngestHandler(cfg.Ingester))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_ingest_status",
		Description: "Get the status of an ingestion job, including per-document outcomes and errors.",
	}, makeStatusHandler(cfg.Ingester))

	return &Server{server: server}
}

// Run serves over stdio and blocks until the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
