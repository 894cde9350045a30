package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/server"
)

type mockRetriever struct {
	result   *model.QueryResult
	err      error
	lastText string
	lastOpts model.QueryOptions
}

func (m *mockRetriever) Query(ctx context.Context, text string, opts model.QueryOptions) (*model.QueryResult, error) {
	m.lastText = text
	m.lastOpts = opts
	return m.result, m.err
}

func (m *mockRetriever) Stats(ctx context.Context) (*model.Stats, error) {
	return &model.Stats{TotalDocuments: 7, Status: "ready", Initialized: true}, nil
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func do(t *testing.T, srv *server.Server, method, path, body string) (int, apiResponse) {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var resp apiResponse
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestHealth(t *testing.T) {
	srv := server.New(&mockRetriever{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	gt.Equal(t, rec.Code, http.StatusOK)
	var body map[string]any
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	gt.Equal(t, body["status"], any("ok"))
	gt.Equal(t, body["service"], any(server.ServiceName))
}

func TestStats(t *testing.T) {
	code, resp := do(t, server.New(&mockRetriever{}), http.MethodGet, "/api/stats", "")
	gt.Equal(t, code, http.StatusOK)
	gt.True(t, resp.Success)

	var stats model.Stats
	gt.NoError(t, json.Unmarshal(resp.Data, &stats))
	gt.Equal(t, stats.TotalDocuments, 7)
	gt.Equal(t, stats.Status, "ready")
}

func TestQuery(t *testing.T) {
	retriever := &mockRetriever{result: &model.QueryResult{Answer: "Rau hữu cơ là...", Confidence: 0.8, Sources: []*model.Source{}}}
	srv := server.New(retriever)

	code, resp := do(t, srv, http.MethodPost, "/api/query", `{"query":"Rau củ hữu cơ là gì?","options":{"maxResults":3,"language":"vi","excludeEmbeddings":true}}`)
	gt.Equal(t, code, http.StatusOK)
	gt.True(t, resp.Success)
	gt.Equal(t, retriever.lastText, "Rau củ hữu cơ là gì?")
	gt.Equal(t, retriever.lastOpts.MaxResults, 3)
	gt.True(t, retriever.lastOpts.ExcludeEmbeddings)

	var result model.QueryResult
	gt.NoError(t, json.Unmarshal(resp.Data, &result))
	gt.Equal(t, result.Answer, "Rau hữu cơ là...")
}

func TestChatAcceptsMessage(t *testing.T) {
	retriever := &mockRetriever{result: &model.QueryResult{Answer: "ok"}}
	code, resp := do(t, server.New(retriever), http.MethodPost, "/api/chat", `{"message":"xin chào bạn"}`)
	gt.Equal(t, code, http.StatusOK)
	gt.True(t, resp.Success)
	gt.Equal(t, retriever.lastText, "xin chào bạn")
}

func TestQueryBadRequests(t *testing.T) {
	testCases := map[string]struct {
		body   string
		expect string
	}{
		"too short":    {body: `{"query":"hi"}`, expect: "Query too short"},
		"empty":        {body: `{"query":""}`, expect: "Invalid input"},
		"missing":      {body: `{}`, expect: "Invalid input"},
		"invalid json": {body: `{"query":`, expect: "Invalid input"},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			retriever := &mockRetriever{}
			code, resp := do(t, server.New(retriever), http.MethodPost, "/api/query", tc.body)
			gt.Equal(t, code, http.StatusBadRequest)
			gt.False(t, resp.Success)
			gt.Equal(t, resp.Error, tc.expect)
			gt.Equal(t, retriever.lastText, "")
		})
	}
}

func TestQueryErrors(t *testing.T) {
	t.Run("validation error is 400", func(t *testing.T) {
		retriever := &mockRetriever{err: goerr.New("maxResults must be between 1 and 100", goerr.T(model.ErrTagValidation))}
		code, resp := do(t, server.New(retriever), http.MethodPost, "/api/query", `{"query":"question","options":{"maxResults":500}}`)
		gt.Equal(t, code, http.StatusBadRequest)
		gt.S(t, resp.Message).Contains("maxResults")
	})

	t.Run("upstream error is 500", func(t *testing.T) {
		retriever := &mockRetriever{err: goerr.Wrap(errors.New("quota exceeded"), "failed to embed query", goerr.T(model.ErrTagUpstream))}
		code, resp := do(t, server.New(retriever), http.MethodPost, "/api/query", `{"query":"question"}`)
		gt.Equal(t, code, http.StatusInternalServerError)
		gt.False(t, resp.Success)
		gt.Equal(t, resp.Error, "Failed to process query")
		gt.S(t, resp.Message).Contains("quota exceeded")
	})
}

func TestDocs(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/docs", nil)
	rec := httptest.NewRecorder()
	server.New(&mockRetriever{}).Handler().ServeHTTP(rec, req)

	gt.Equal(t, rec.Code, http.StatusOK)
	gt.S(t, rec.Body.String()).Contains("POST /api/query")
	gt.S(t, rec.Body.String()).Contains("similarityThreshold")
}

func TestNotFound(t *testing.T) {
	code, resp := do(t, server.New(&mockRetriever{}), http.MethodGet, "/api/unknown", "")
	gt.Equal(t, code, http.StatusNotFound)
	gt.False(t, resp.Success)
	gt.Equal(t, resp.Error, "Not found")
	gt.S(t, resp.Message).Contains("/api/unknown")
}

func TestRunShutsDownOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	gt.NoError(t, err)
	addr := l.Addr().String()
	gt.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.New(&mockRetriever{}, server.WithShutdownTimeout(time.Second)).Run(ctx, addr)
	}()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + addr + "/health")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	gt.NoError(t, err)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		gt.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
