package mcp_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/service/mcp"
)

type mockRetriever struct {
	lastText string
	lastOpts model.QueryOptions
}

func (m *mockRetriever) Query(ctx context.Context, text string, opts model.QueryOptions) (*model.QueryResult, error) {
	m.lastText = text
	m.lastOpts = opts
	if len(text) < 3 {
		return nil, goerr.New("query is too short", goerr.T(model.ErrTagValidation))
	}
	return &model.QueryResult{
		Answer:     "Biến là vùng nhớ có tên.",
		Confidence: 0.92,
		Sources: []*model.Source{
			{Title: "Bài 2", FileName: "bai2.pdf", Similarity: 0.92, Excerpt: "Biến..."},
		},
	}, nil
}

func (m *mockRetriever) Stats(ctx context.Context) (*model.Stats, error) {
	return &model.Stats{TotalDocuments: 12, Status: "ready", Initialized: true}, nil
}

func connect(t *testing.T, retriever *mockRetriever) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()

	server := mcp.NewServer(retriever, "test")
	serverTransport, clientTransport := mcpsdk.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	gt.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	gt.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func textOf(t *testing.T, result *mcpsdk.CallToolResult) string {
	t.Helper()
	gt.A(t, result.Content).Length(1)
	text, ok := result.Content[0].(*mcpsdk.TextContent)
	gt.True(t, ok)
	return text.Text
}

func TestListTools(t *testing.T) {
	session := connect(t, &mockRetriever{})

	tools, err := session.ListTools(context.Background(), nil)
	gt.NoError(t, err)
	gt.A(t, tools.Tools).Length(2)

	names := map[string]bool{}
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	gt.True(t, names[mcp.ToolQuery])
	gt.True(t, names[mcp.ToolStats])
}

func TestQueryKnowledge(t *testing.T) {
	retriever := &mockRetriever{}
	session := connect(t, retriever)

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name: mcp.ToolQuery,
		Arguments: map[string]any{
			"query":      "Biến là gì?",
			"maxResults": 3,
			"language":   "vi",
		},
	})
	gt.NoError(t, err)
	gt.False(t, result.IsError)

	var qr model.QueryResult
	gt.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &qr))
	gt.Equal(t, qr.Answer, "Biến là vùng nhớ có tên.")
	gt.A(t, qr.Sources).Length(1)

	gt.Equal(t, retriever.lastText, "Biến là gì?")
	gt.Equal(t, retriever.lastOpts.MaxResults, 3)
	gt.True(t, retriever.lastOpts.ExcludeEmbeddings)
}

func TestQueryKnowledgeToolError(t *testing.T) {
	session := connect(t, &mockRetriever{})

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      mcp.ToolQuery,
		Arguments: map[string]any{"query": "hi"},
	})
	gt.NoError(t, err)
	gt.True(t, result.IsError)
	gt.S(t, textOf(t, result)).Contains("too short")
}

func TestKnowledgeStats(t *testing.T) {
	session := connect(t, &mockRetriever{})

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      mcp.ToolStats,
		Arguments: map[string]any{},
	})
	gt.NoError(t, err)

	var stats model.Stats
	gt.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &stats))
	gt.Equal(t, stats.TotalDocuments, 12)
}

func TestHTTPHandler(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(mcp.HTTPHandler(mcp.NewServer(&mockRetriever{}, "test")))
	defer srv.Close()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &mcpsdk.StreamableClientTransport{Endpoint: srv.URL}, nil)
	gt.NoError(t, err)
	defer session.Close()

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: mcp.ToolStats, Arguments: map[string]any{}})
	gt.NoError(t, err)
	gt.S(t, textOf(t, result)).Contains("totalDocuments")
}
