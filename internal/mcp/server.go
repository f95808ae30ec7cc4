package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/docqa/internal/document"
	ghclient "github.com/bull/docqa/internal/github"
	"github.com/bull/docqa/internal/rag"
	"github.com/bull/docqa/internal/summarizer"
)

// Server wraps the MCP server with dependencies.
type Server struct {
	server  *mcp.Server
	session *rag.Session
}

// Config holds server dependencies.
type Config struct {
	Session    *rag.Session
	Summarizer *summarizer.Summarizer
	Extractor  document.Extractor
	// SummaryOptions carries the configured chunking for summaries.
	SummaryOptions summarizer.Options
	// Fetcher enables list_repository_pdfs when set.
	Fetcher *ghclient.Fetcher
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	impl := &mcp.Implementation{
		Name:    "docqa",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "load_document",
		Description: "Load a PDF and index it for questions. Replaces any previously loaded document.",
	}, makeLoadHandler(cfg.Session))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_question",
		Description: "Answer a question strictly from the loaded document. Returns the answer and the pages it was grounded on.",
	}, makeAskHandler(cfg.Session))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_sources",
		Description: "Return the document passages that would be used to answer a question, without generating an answer.",
	}, makeSourcesHandler(cfg.Session))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "summarize_document",
		Description: "Summarize a document, or selected pages of it, as flat bullet lists. Overwrites the summary file.",
	}, makeSummarizeHandler(cfg.Session, cfg.Summarizer, cfg.Extractor, cfg.SummaryOptions))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_session_status",
		Description: "Get the state of the question-answering session and the loaded document.",
	}, makeStatusHandler(cfg.Session))

	if cfg.Fetcher != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name:        "list_repository_pdfs",
			Description: "List PDF files in a GitHub repository directory as loadable github:// locations.",
		}, makeListPDFsHandler(cfg.Fetcher))
	}

	return &Server{
		server:  server,
		session: cfg.Session,
	}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
