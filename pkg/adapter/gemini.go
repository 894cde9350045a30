package adapter

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
	"google.golang.org/genai"
)

const (
	DefaultGeminiGenerativeModel = "gemini-2.5-flash"
	DefaultGeminiEmbeddingModel  = "text-embedding-004"
)

// GeminiClient embeds text and generates answers with Gemini models, either through the
// Gemini API (API key) or through Vertex AI (project and location).
type GeminiClient struct {
	client          *genai.Client
	generativeModel string
	embeddingModel  string
	dimensions      int32
	temperature     float32
}

type GeminiOption func(*GeminiClient)

func WithGenerativeModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.generativeModel = model
	}
}

func WithEmbeddingModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		g.embeddingModel = model
	}
}

// WithEmbeddingDimensions sets the requested output dimensionality. Zero keeps the model default.
func WithEmbeddingDimensions(n int) GeminiOption {
	return func(g *GeminiClient) {
		g.dimensions = int32(n)
	}
}

func WithTemperature(t float32) GeminiOption {
	return func(g *GeminiClient) {
		g.temperature = t
	}
}

// NewGemini creates a client backed by Vertex AI.
func NewGemini(ctx context.Context, projectID, location string, opts ...GeminiOption) (*GeminiClient, error) {
	if projectID == "" {
		return nil, goerr.New("gemini project ID is required", goerr.T(model.ErrTagConfig))
	}
	if location == "" {
		location = "us-central1"
	}
	return newGemini(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	}, opts...)
}

// NewGeminiWithAPIKey creates a client backed by the Gemini API.
func NewGeminiWithAPIKey(ctx context.Context, apiKey string, opts ...GeminiOption) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, goerr.New("gemini API key is required", goerr.T(model.ErrTagConfig))
	}
	return newGemini(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}, opts...)
}

func newGemini(ctx context.Context, cfg *genai.ClientConfig, opts ...GeminiOption) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client", goerr.T(model.ErrTagConfig))
	}

	g := &GeminiClient{
		client:          client,
		generativeModel: DefaultGeminiGenerativeModel,
		embeddingModel:  DefaultGeminiEmbeddingModel,
		dimensions:      model.EmbeddingDimension,
		temperature:     0.3,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// Model returns the generative model name.
func (g *GeminiClient) Model() string {
	return g.generativeModel
}

func (g *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	cfg := &genai.EmbedContentConfig{}
	if g.dimensions > 0 {
		cfg.OutputDimensionality = genai.Ptr(g.dimensions)
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, genai.Text(text), cfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content",
			goerr.V("service", "gemini"),
			goerr.V("model", g.embeddingModel),
			goerr.T(model.ErrTagUpstream))
	}

	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, goerr.New("empty embedding in response",
			goerr.V("service", "gemini"),
			goerr.V("model", g.embeddingModel),
			goerr.T(model.ErrTagUpstream))
	}

	return resp.Embeddings[0].Values, nil
}

func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, contents, config)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate content",
			goerr.V("service", "gemini"),
			goerr.V("model", g.generativeModel),
			goerr.T(model.ErrTagUpstream))
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", goerr.New("no candidates in response",
			goerr.V("service", "gemini"),
			goerr.T(model.ErrTagUpstream))
	}

	var texts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" && !part.Thought {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, ""), nil
}
