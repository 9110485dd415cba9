package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/evidence-engine/internal/core/ports"
)

// Server exposes evidence retrieval as an MCP tool over stdio, so agent
// frontends can call the pipeline without going through the HTTP API.
type Server struct {
	retriever ports.EvidenceRetriever
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

func NewServer(retriever ports.EvidenceRetriever, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		retriever: retriever,
		logger:    logger,
		mcpServer: server.NewMCPServer("evidence-engine", version),
	}

	tool := mcp.NewTool("search_evidence",
		mcp.WithDescription("Retrieve ranked evidence chunks for a question from the indexed corpus."),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to retrieve evidence for."),
		),
		mcp.WithString("tag",
			mcp.Description("Optional topic tag steering channel weights and query hints."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of evidence documents to return."),
		),
	)
	s.mcpServer.AddTool(tool, s.handleSearchEvidence)
	return s
}

func (s *Server) handleSearchEvidence(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tag := request.GetString("tag", "")
	limit := request.GetInt("limit", 0)

	result, err := s.retriever.Retrieve(ctx, question, tag, limit)
	if err != nil {
		s.logger.Warn("search_evidence_failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("retrieve evidence: %v", err)), nil
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
