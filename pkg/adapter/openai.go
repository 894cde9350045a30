package adapter

import (
	"context"
	"errors"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sashabaranov/go-openai"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
)

const (
	DefaultOpenAIGenerativeModel = "gpt-4o-mini"
	DefaultOpenAIEmbeddingModel  = "text-embedding-3-small"
)

// OpenAIClient talks to any OpenAI compatible endpoint.
type OpenAIClient struct {
	client          *openai.Client
	generativeModel string
	embeddingModel  string
	dimensions      int
	temperature     float32
	systemMessage   string
}

type OpenAIOption func(*OpenAIClient)

func WithOpenAIGenerativeModel(model string) OpenAIOption {
	return func(c *OpenAIClient) {
		c.generativeModel = model
	}
}

func WithOpenAIEmbeddingModel(model string) OpenAIOption {
	return func(c *OpenAIClient) {
		c.embeddingModel = model
	}
}

// WithOpenAIEmbeddingDimensions sets the requested output dimensionality. Zero keeps the model default.
func WithOpenAIEmbeddingDimensions(n int) OpenAIOption {
	return func(c *OpenAIClient) {
		c.dimensions = n
	}
}

func WithOpenAISystemMessage(msg string) OpenAIOption {
	return func(c *OpenAIClient) {
		c.systemMessage = msg
	}
}

// NewOpenAI creates a client. An empty baseURL uses the public OpenAI endpoint.
func NewOpenAI(apiKey, baseURL string, opts ...OpenAIOption) (*OpenAIClient, error) {
	if apiKey == "" && baseURL == "" {
		return nil, goerr.New("openai API key is required", goerr.T(model.ErrTagConfig))
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}

	c := &OpenAIClient{
		client:          openai.NewClientWithConfig(cfg),
		generativeModel: DefaultOpenAIGenerativeModel,
		embeddingModel:  DefaultOpenAIEmbeddingModel,
		dimensions:      model.EmbeddingDimension,
		temperature:     0.3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *OpenAIClient) Model() string {
	return c.generativeModel
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(c.embeddingModel),
		Input:      []string{text},
		Dimensions: c.dimensions,
	})
	if err != nil {
		return nil, c.wrap(err, "failed to create embedding", c.embeddingModel)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, goerr.New("no embedding in response",
			goerr.V("service", "openai"),
			goerr.V("model", c.embeddingModel),
			goerr.T(model.ErrTagUpstream))
	}

	return resp.Data[0].Embedding, nil
}

func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	var messages []openai.ChatCompletionMessage
	if c.systemMessage != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: c.systemMessage})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.generativeModel,
		Messages:    messages,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", c.wrap(err, "failed to create chat completion", c.generativeModel)
	}

	if len(resp.Choices) == 0 {
		return "", goerr.New("no choices in response",
			goerr.V("service", "openai"),
			goerr.V("model", c.generativeModel),
			goerr.T(model.ErrTagUpstream))
	}

	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) wrap(err error, msg, modelName string) error {
	opts := []goerr.Option{
		goerr.V("service", "openai"),
		goerr.V("model", modelName),
		goerr.T(model.ErrTagUpstream),
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		opts = append(opts, goerr.V("status", apiErr.HTTPStatusCode), goerr.V("type", apiErr.Type))
	}
	return goerr.Wrap(err, msg, opts...)
}
