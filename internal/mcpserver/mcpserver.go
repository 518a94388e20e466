// Package mcpserver exposes the CV chat as Model Context Protocol tools over stdio.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/phuslu/log"

	"cvrag/internal/domain"
)

// Backend is what the tools need from the chat service.
type Backend interface {
	Handle(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)
	Retrieve(ctx context.Context, query string, topK int) ([]domain.SearchResult, error)
}

// New registers the CV tools on a fresh MCP server.
func New(name, version string, backend Backend, samples []string) *server.MCPServer {
	s := server.NewMCPServer(name, version, server.WithToolCapabilities(true))
	s.AddTool(askTool(), handleAsk(backend))
	s.AddTool(searchTool(), handleSearch(backend))
	s.AddTool(sampleQuestionsTool(), handleSampleQuestions(samples))
	return s
}

// Serve blocks on stdio until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func askTool() mcp.Tool {
	return mcp.NewTool("ask_cv",
		mcp.WithDescription("Ask a question about the CV; answers are grounded in retrieved CV sections"),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("Question about the candidate's experience, skills or education"),
		),
		mcp.WithString("session_id",
			mcp.Description("Conversation id returned by a previous call, to keep context"),
		),
	)
}

func searchTool() mcp.Tool {
	return mcp.NewTool("search_cv",
		mcp.WithDescription("Return the CV chunks most relevant to a query, without calling the language model"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum chunks to return (default: 4, max: 20)"),
		),
	)
}

func sampleQuestionsTool() mcp.Tool {
	return mcp.NewTool("sample_questions",
		mcp.WithDescription("List example questions the CV assistant can answer"),
	)
}

func handleAsk(backend Backend) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := request.RequireString("question")
		if err != nil || strings.TrimSpace(question) == "" {
			return mcp.NewToolResultError("Error: question parameter is required"), nil
		}
		resp, err := backend.Handle(ctx, domain.ChatRequest{
			Message:   question,
			SessionID: request.GetString("session_id", ""),
		})
		if err != nil {
			var ve *domain.ValidationError
			if errors.As(err, &ve) {
				return mcp.NewToolResultError("Error: " + ve.Reason), nil
			}
			log.Error().Err(err).Msg("ask_cv failed")
			return mcp.NewToolResultError("Sorry, I encountered an error while answering."), nil
		}
		var b strings.Builder
		b.WriteString(resp.Response)
		if len(resp.Sources) > 0 {
			fmt.Fprintf(&b, "\n\nSources: %s", strings.Join(resp.Sources, ", "))
		}
		fmt.Fprintf(&b, "\nsession_id: %s", resp.SessionID)
		return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(b.String())}}, nil
	}
}

func handleSearch(backend Backend) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("Error: query parameter is required"), nil
		}
		limit := request.GetInt("limit", 4)
		if limit <= 0 {
			limit = 4
		}
		if limit > 20 {
			limit = 20
		}
		results, err := backend.Retrieve(ctx, query, limit)
		if err != nil {
			log.Error().Err(err).Msg("search_cv failed")
			return mcp.NewToolResultError("Search failed"), nil
		}
		return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(formatResults(query, results))}}, nil
	}
}

func handleSampleQuestions(samples []string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var b strings.Builder
		for i, q := range samples {
			fmt.Fprintf(&b, "%d. %s\n", i+1, q)
		}
		return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(b.String())}}, nil
	}
}

func formatResults(query string, results []domain.SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No CV content found for %q.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Results for %q\n", query)
	for i, r := range results {
		section := r.Chunk.Section
		if section == "" {
			section = "CV Section"
		}
		fmt.Fprintf(&b, "\n## %d. %s (score %.3f)\n\n%s\n", i+1, section, r.Score, strings.TrimSpace(r.Chunk.Text))
	}
	return b.String()
}
