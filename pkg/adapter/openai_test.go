package adapter_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/adapter"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
)

func newOpenAIServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIEmbed(t *testing.T) {
	var received map[string]any
	srv := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.URL.Path, "/embeddings")
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2,0.3]}],"model":"text-embedding-3-small","usage":{"prompt_tokens":3,"total_tokens":3}}`))
	})

	client, err := adapter.NewOpenAI("test-key", srv.URL+"/")
	gt.NoError(t, err)

	vec, err := client.Embed(context.Background(), "hello")
	gt.NoError(t, err)
	gt.A(t, vec).Length(3)
	gt.Equal(t, vec[1], float32(0.2))
	gt.Equal(t, received["model"], any("text-embedding-3-small"))
	gt.Equal(t, received["dimensions"], any(float64(model.EmbeddingDimension)))
}

func TestOpenAIGenerate(t *testing.T) {
	srv := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.URL.Path, "/chat/completions")
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gt.Equal(t, req.Model, "custom-model")
		gt.A(t, req.Messages).Length(2)
		gt.Equal(t, req.Messages[0].Role, "system")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Xin chào"},"finish_reason":"stop"}]}`))
	})

	client, err := adapter.NewOpenAI("test-key", srv.URL,
		adapter.WithOpenAIGenerativeModel("custom-model"),
		adapter.WithOpenAISystemMessage("You are a teaching assistant."),
	)
	gt.NoError(t, err)
	gt.Equal(t, client.Model(), "custom-model")

	answer, err := client.Generate(context.Background(), "hi")
	gt.NoError(t, err)
	gt.Equal(t, answer, "Xin chào")
}

func TestOpenAIUpstreamError(t *testing.T) {
	srv := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
	})

	client, err := adapter.NewOpenAI("test-key", srv.URL)
	gt.NoError(t, err)

	_, err = client.Embed(context.Background(), "hello")
	gt.Error(t, err)
	gt.Equal(t, model.ErrorKind(err), "upstream")
}

func TestOpenAIEmptyEmbedding(t *testing.T) {
	srv := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[],"model":"m"}`))
	})

	client, err := adapter.NewOpenAI("test-key", srv.URL)
	gt.NoError(t, err)

	_, err = client.Embed(context.Background(), "hello")
	gt.Error(t, err)
	gt.Equal(t, model.ErrorKind(err), "upstream")
}

func TestOpenAIRequiresKeyOrEndpoint(t *testing.T) {
	_, err := adapter.NewOpenAI("", "")
	gt.Error(t, err)
	gt.Equal(t, model.ErrorKind(err), "config")
}
