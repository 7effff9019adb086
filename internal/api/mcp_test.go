package api

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/veibelle/skinmatch/internal/history"
	"github.com/veibelle/skinmatch/internal/identity"
	"github.com/veibelle/skinmatch/internal/quiz"
	"github.com/veibelle/skinmatch/internal/recommend"
	"github.com/veibelle/skinmatch/internal/storage"
)

// --- mocks ---

type mockRecommender struct {
	outcome recommend.Outcome
	params  map[string]string
}

func (m *mockRecommender) Fetch(_ context.Context, params map[string]string) recommend.Outcome {
	m.params = params
	return m.outcome
}

type noRemote struct{}

func (noRemote) Fetch(ctx context.Context, email string) ([]history.Entry, error) {
	return nil, nil
}

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *history.Reconciler) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	reconciler := history.NewReconciler(store, noRemote{}, identity.NewStoreProvider(store))
	return MCPDeps{
		History:     reconciler,
		Recommender: &mockRecommender{},
		TopN:        5,
	}, reconciler
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func seedSession(t *testing.T, r *history.Reconciler, id string, ts time.Time) {
	t.Helper()
	err := r.Append(history.Entry{
		SessionID: id,
		Profile:   quiz.Profile{SkinType: "Oily Skin", ProductType: "Cleanser"},
		Results:   []recommend.Product{{Name: "Gentle Foam", Brand: "VeiBelle"}},
		Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("seeding session: %v", err)
	}
}

// --- tests ---

func TestMCPTool_GetRecommendations(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	rec := &mockRecommender{outcome: recommend.Outcome{
		Products: []recommend.Product{{Name: "Gentle Foam", Brand: "VeiBelle", Similarity: 0.9}},
	}}
	deps.Recommender = rec
	handler := mcpGetRecommendations(deps)

	req := makeCallToolRequest("get_recommendations", map[string]interface{}{
		"skin_type":    "Oily Skin",
		"product_type": "Cleanser",
		"concerns":     "Acne / Blackheads",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var decoded struct {
		Results []recommend.Product `json:"results"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &decoded); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if len(decoded.Results) != 1 || decoded.Results[0].Name != "Gentle Foam" {
		t.Errorf("results = %+v", decoded.Results)
	}

	if rec.params["skin_type"] != "Oily Skin" {
		t.Errorf("params = %v", rec.params)
	}
	// The slash-separated concern splits into keyword items.
	if rec.params["concerns"] != "acne,blackheads" {
		t.Errorf("concerns param = %q", rec.params["concerns"])
	}
	// Default top_n applied.
	if rec.params["top_n"] != "5" {
		t.Errorf("top_n = %q, want 5", rec.params["top_n"])
	}
}

func TestMCPTool_GetRecommendations_BackendDown(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Recommender = &mockRecommender{outcome: recommend.Outcome{
		Failure: &recommend.Failure{Message: recommend.FailureMessage},
	}}
	handler := mcpGetRecommendations(deps)

	result, err := handler(context.Background(), makeCallToolRequest("get_recommendations", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if toolText(t, result) != recommend.FailureMessage {
		t.Errorf("text = %q, want stable failure message", toolText(t, result))
	}
}

func TestMCPTool_ListHistory(t *testing.T) {
	deps, reconciler := newTestMCPDeps(t)
	base := time.Date(2025, 11, 2, 10, 0, 0, 0, time.UTC)
	seedSession(t, reconciler, "sess-1", base)
	seedSession(t, reconciler, "sess-2", base.Add(time.Hour))

	handler := mcpListHistory(deps)
	result, err := handler(context.Background(), makeCallToolRequest("list_history", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var summaries []sessionSummary
	if err := json.Unmarshal([]byte(toolText(t, result)), &summaries); err != nil {
		t.Fatalf("decoding summaries: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}
	if summaries[0].SessionID != "sess-2" {
		t.Errorf("summaries[0] = %+v, want newest first", summaries[0])
	}
	if summaries[0].Results != 1 || summaries[0].SkinType != "Oily Skin" {
		t.Errorf("summary = %+v", summaries[0])
	}
}

func TestMCPTool_ListHistory_Empty(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpListHistory(deps)

	result, err := handler(context.Background(), makeCallToolRequest("list_history", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toolText(t, result) != "[]" {
		t.Errorf("text = %q, want []", toolText(t, result))
	}
}

func TestMCPTool_LatestSession(t *testing.T) {
	deps, reconciler := newTestMCPDeps(t)
	handler := mcpLatestSession(deps)

	// Empty store: tool error, not a transport error.
	result, err := handler(context.Background(), makeCallToolRequest("latest_session", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error on empty store")
	}

	seedSession(t, reconciler, "sess-1", time.Now().UTC())
	result, err = handler(context.Background(), makeCallToolRequest("latest_session", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var entry history.Entry
	if err := json.Unmarshal([]byte(toolText(t, result)), &entry); err != nil {
		t.Fatalf("decoding entry: %v", err)
	}
	if entry.SessionID != "sess-1" {
		t.Errorf("entry = %+v", entry)
	}
}
