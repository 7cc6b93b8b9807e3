// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes nbsync tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/nbsync/internal/docservice"
)

// Server wraps the MCP server with nbsync tools.
type Server struct {
	mcp *server.MCPServer
	svc *docservice.Service
}

// New creates a new MCP server with all nbsync tools registered.
func New(svc *docservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"nbsync",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List all documents in the workspace with their sync state."),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read a document in its flat text form: a hash header line "+
			"followed by blocks separated by '# %%' markers. Read the contract first via "+
			"the get_flat_format_contract tool or the nbsync://flat-format resource."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Document name (filename stem, e.g. experiments/analysis)")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("sync_documents",
		mcp.WithDescription("Run one reconciliation pass. With a name, syncs that single "+
			"document; without, syncs the whole workspace."),
		mcp.WithString("name", mcp.Description("Optional document name (empty for all)")),
	), s.syncDocuments)

	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Full-text search through document content and titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchDocuments)

	s.mcp.AddTool(mcp.NewTool("get_sync_history",
		mcp.WithDescription("List sync journal entries, newest first, including conflicts and failures."),
		mcp.WithString("name", mcp.Description("Optional document name to filter by (empty for all)")),
	), s.getSyncHistory)

	s.mcp.AddTool(mcp.NewTool("get_flat_format_contract",
		mcp.WithDescription("Returns the canonical flat text format contract. "+
			"Call this before editing flat documents to ensure correct structure."),
	), s.getFlatFormatContract)

	// Resource: flat format contract.
	s.mcp.AddResource(
		mcp.NewResource("nbsync://flat-format", "Flat Format Contract",
			mcp.WithResourceDescription("Canonical flat text format produced and consumed by the sync pass."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFlatFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.svc.ListDocuments(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(items, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := s.svc.FlatText(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", name)), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) syncDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := ""
	if n, err := req.RequireString("name"); err == nil {
		name = n
	}

	if name != "" {
		outcome, err := s.svc.SyncOne(ctx, name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%s: %s", name, outcome)), nil
	}

	res, err := s.svc.SyncAll(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "processed: %d", res.Processed)
	if len(res.Conflicts) > 0 {
		fmt.Fprintf(&b, "\nconflicts: %s", strings.Join(res.Conflicts, ", "))
	}
	if len(res.Failed) > 0 {
		fmt.Fprintf(&b, "\nfailed: %s", strings.Join(res.Failed, ", "))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) searchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getSyncHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := ""
	if n, err := req.RequireString("name"); err == nil {
		name = n
	}
	records, err := s.svc.History(ctx, name, 50)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(records) == 0 {
		return mcp.NewToolResultText("no history"), nil
	}
	out, _ := json.MarshalIndent(records, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getFlatFormatContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(FlatFormatContract), nil
}

func (s *Server) readFlatFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "nbsync://flat-format",
			MIMEType: "text/markdown",
			Text:     FlatFormatContract,
		},
	}, nil
}
