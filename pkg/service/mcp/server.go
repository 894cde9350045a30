// Package mcp publishes the knowledge base as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/interfaces"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/utils/logging"
)

const (
	ToolQuery = "query_knowledge"
	ToolStats = "knowledge_stats"
)

// QueryInput is the argument object of the query_knowledge tool
type QueryInput struct {
	Query               string   `json:"query" jsonschema:"question to answer from the knowledge base, at least 3 characters"`
	MaxResults          int      `json:"maxResults,omitempty" jsonschema:"maximum number of source documents, 1 to 100 (default 5)"`
	SimilarityThreshold *float64 `json:"similarityThreshold,omitempty" jsonschema:"minimum cosine similarity, 0 to 1 (default 0.5)"`
	Language            string   `json:"language,omitempty" jsonschema:"answer language, vi or en (default vi)"`
}

func (in QueryInput) options() model.QueryOptions {
	return model.QueryOptions{
		MaxResults:          in.MaxResults,
		SimilarityThreshold: in.SimilarityThreshold,
		Language:            model.Language(in.Language),
		ExcludeEmbeddings:   true,
	}
}

// StatsInput takes no arguments
type StatsInput struct{}

// NewServer builds an MCP server exposing retriever
func NewServer(retriever interfaces.Retriever, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "ragdrive",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolQuery,
		Description: "Answer a question using documents synchronized from Google Drive. Returns the answer with its source documents and similarity scores.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in QueryInput) (*mcp.CallToolResult, any, error) {
		result, err := retriever.Query(ctx, strings.TrimSpace(in.Query), in.options())
		if err != nil {
			logging.From(ctx).Warn("query tool failed", "error", err, "kind", model.ErrorKind(err))
			return nil, nil, err
		}
		return jsonResult(result)
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolStats,
		Description: "Report the number of documents in the knowledge base and its status.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in StatsInput) (*mcp.CallToolResult, any, error) {
		stats, err := retriever.Stats(ctx)
		if err != nil {
			return nil, nil, err
		}
		return jsonResult(stats)
	})

	return server
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to marshal tool result")
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(raw)},
		},
	}, nil, nil
}

// ServeStdio runs server on stdin/stdout until ctx is cancelled or the client disconnects
func ServeStdio(ctx context.Context, server *mcp.Server) error {
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return goerr.Wrap(err, "mcp server stopped")
	}
	return nil
}

// HTTPHandler serves server over the streamable HTTP transport
func HTTPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return server
	}, nil)
}
