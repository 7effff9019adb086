package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/veibelle/skinmatch/internal/history"
	"github.com/veibelle/skinmatch/internal/query"
	"github.com/veibelle/skinmatch/internal/recommend"
)

// MCPRecommender abstracts the recommendation fetch for the MCP layer.
type MCPRecommender interface {
	Fetch(ctx context.Context, params map[string]string) recommend.Outcome
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	History     *history.Reconciler
	Recommender MCPRecommender
	TopN        int
}

// NewMCPServer creates an MCP server with all skinmatch tools and
// resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"skinmatch",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("skinmatch — skincare recommendation finder with local quiz history."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("get_recommendations",
			mcp.WithDescription("Fetch skincare product recommendations for a given profile without going through the quiz."),
			mcp.WithString("skin_type", mcp.Description("Skin type, e.g. Oily Skin")),
			mcp.WithString("product_type", mcp.Description("Product type, e.g. Cleanser")),
			mcp.WithString("concerns", mcp.Description("Comma- or slash-separated skin concerns")),
			mcp.WithString("allergens", mcp.Description("Comma- or slash-separated ingredients to avoid")),
			mcp.WithString("pregnancy_safe", mcp.Description("yes or no")),
			mcp.WithNumber("top_n", mcp.Description("Maximum number of results")),
		),
		mcpGetRecommendations(deps),
	)

	s.AddTool(
		mcp.NewTool("list_history",
			mcp.WithDescription("List locally recorded quiz sessions, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of sessions (default 10)")),
		),
		mcpListHistory(deps),
	)

	s.AddTool(
		mcp.NewTool("latest_session",
			mcp.WithDescription("Return the most recently completed quiz session with its recommendations."),
		),
		mcpLatestSession(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"skinmatch://history",
			"Quiz History",
			mcp.WithResourceDescription("Recent quiz sessions as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceHistory(deps),
	)

	return s
}

func mcpGetRecommendations(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		topN := req.GetInt("top_n", deps.TopN)
		params := query.FromRaw(
			req.GetString("skin_type", ""),
			req.GetString("product_type", ""),
			req.GetString("concerns", ""),
			req.GetString("allergens", ""),
			req.GetString("pregnancy_safe", ""),
			topN,
		)

		outcome := deps.Recommender.Fetch(ctx, params)
		if !outcome.OK() {
			return mcpError(outcome.Failure.Message), nil
		}

		b, err := json.Marshal(map[string]any{
			"results": outcome.Products,
			"message": outcome.Note,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 50 {
			limit = 50
		}

		entries, err := deps.History.Local(limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list history: %v", err)), nil
		}
		if len(entries) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(historySummaries(entries))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal history: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpLatestSession(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		entry, err := deps.History.Latest()
		if err != nil {
			return mcpError(fmt.Sprintf("no session available: %v", err)), nil
		}

		b, err := json.Marshal(entry)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal session: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

type sessionSummary struct {
	SessionID   string `json:"session_id"`
	CreatedAt   string `json:"created_at"`
	SkinType    string `json:"skin_type"`
	ProductType string `json:"product_type"`
	Results     int    `json:"results"`
}

func historySummaries(entries []history.Entry) []sessionSummary {
	summaries := make([]sessionSummary, len(entries))
	for i, e := range entries {
		summaries[i] = sessionSummary{
			SessionID:   e.SessionID,
			CreatedAt:   e.Timestamp.Format(time.RFC3339),
			SkinType:    e.Profile.SkinType,
			ProductType: e.Profile.ProductType,
			Results:     len(e.Results),
		}
	}
	return summaries
}

func mcpResourceHistory(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		entries, err := deps.History.Local(10)
		if err != nil {
			return nil, fmt.Errorf("failed to list history: %w", err)
		}

		b, err := json.Marshal(historySummaries(entries))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal history: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
