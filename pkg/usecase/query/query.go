package query

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/extract"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/interfaces"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/utils/logging"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/vector"
)

const DefaultTimeout = 30 * time.Second

// UseCase answers questions from the synchronized knowledge base
type UseCase struct {
	store     interfaces.Store
	embedder  interfaces.Embedder
	generator interfaces.Generator

	timeout   time.Duration
	floor     float64
	maxChars  int
	modelName string
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithTimeout bounds each call to the embedder, the store and the generator
func WithTimeout(d time.Duration) Option {
	return func(uc *UseCase) {
		uc.timeout = d
	}
}

// WithSimilarityFloor sets the minimum similarity applied before the caller threshold.
// Zero leaves only the caller threshold.
func WithSimilarityFloor(f float64) Option {
	return func(uc *UseCase) {
		uc.floor = f
	}
}

// WithMaxContextChars sets the per-document character budget of the prompt context
func WithMaxContextChars(n int) Option {
	return func(uc *UseCase) {
		uc.maxChars = n
	}
}

// WithModelName sets the model name reported in query metadata
func WithModelName(name string) Option {
	return func(uc *UseCase) {
		uc.modelName = name
	}
}

// New creates a new query UseCase instance
func New(
	store interfaces.Store,
	embedder interfaces.Embedder,
	generator interfaces.Generator,
	opts ...Option,
) *UseCase {
	uc := &UseCase{
		store:     store,
		embedder:  embedder,
		generator: generator,
		timeout:   DefaultTimeout,
		floor:     vector.DefaultFloor,
		maxChars:  DefaultMaxContextChars,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}

// Query embeds text, ranks the stored corpus against it and generates an answer grounded on the
// relevant documents. Any collaborator failure aborts the call without a partial answer.
func (uc *UseCase) Query(ctx context.Context, text string, opts model.QueryOptions) (*model.QueryResult, error) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < model.MinQueryLength {
		return nil, goerr.Wrap(model.ErrQueryTooShort, "invalid query",
			goerr.V("length", utf8.RuneCountInString(text)),
			goerr.V("min", model.MinQueryLength),
			goerr.T(model.ErrTagValidation))
	}

	opts = opts.Normalize()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	logger := logging.From(ctx).With("query", text)
	started := time.Now()

	// Step 1: embed the question
	queryVec, err := withTimeout(ctx, uc.timeout, func(ctx context.Context) ([]float32, error) {
		return uc.embedder.Embed(ctx, text)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query", goerr.T(model.ErrTagUpstream))
	}
	embeddingTime := time.Since(started)

	// Step 2: rank the corpus
	searchStarted := time.Now()
	records, err := withTimeout(ctx, uc.timeout, uc.store.ScanWithEmbeddings)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to scan knowledge base", goerr.T(model.ErrTagStore))
	}
	found := vector.Rank(queryVec, records, recordVector, uc.floor, opts.MaxResults)
	relevant := vector.Filter(found, opts.Threshold())
	searchTime := time.Since(searchStarted)

	logger.Debug("ranked documents",
		"scanned", len(records),
		"found", len(found),
		"relevant", len(relevant),
		"threshold", opts.Threshold())

	result := &model.QueryResult{
		Sources:        []*model.Source{},
		QueryEmbedding: queryVec,
		Metadata: model.QueryMetadata{
			EmbeddingTimeMs:     embeddingTime.Milliseconds(),
			SearchTimeMs:        searchTime.Milliseconds(),
			DocumentsFound:      len(found),
			RelevantDocuments:   len(relevant),
			EmbeddingDimensions: len(queryVec),
			Model:               uc.modelName,
		},
	}

	if len(relevant) == 0 {
		logger.Info("no relevant documents found", "documents_found", len(found))
		result.Answer = model.NoInformationAnswer(opts.Language)
		result.Metadata.ProcessingTimeMs = time.Since(started).Milliseconds()
		return finish(result, opts), nil
	}

	// Step 3: generate the answer from the relevant documents
	prompt, err := BuildPrompt(opts.Language, BuildContext(relevant, opts.MaxResults, uc.maxChars), text)
	if err != nil {
		return nil, err
	}

	genStarted := time.Now()
	answer, err := withTimeout(ctx, uc.timeout, func(ctx context.Context) (string, error) {
		return uc.generator.Generate(ctx, prompt)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate answer", goerr.T(model.ErrTagUpstream))
	}

	result.Answer = answer
	result.Confidence = vector.Mean(relevant)
	for _, doc := range relevant {
		result.Sources = append(result.Sources, newSource(doc, opts.WithMetadata()))
	}
	result.Metadata.GenerationTimeMs = time.Since(genStarted).Milliseconds()
	result.Metadata.ProcessingTimeMs = time.Since(started).Milliseconds()

	logger.Info("query answered",
		"relevant", len(relevant),
		"confidence", result.Confidence,
		"processing_ms", result.Metadata.ProcessingTimeMs)

	return finish(result, opts), nil
}

func finish(result *model.QueryResult, opts model.QueryOptions) *model.QueryResult {
	if opts.ExcludeEmbeddings {
		result.StripEmbeddings()
	}
	return result
}

func recordVector(r *model.KnowledgeRecord) []float32 {
	return r.Embedding
}

func newSource(doc vector.Scored[*model.KnowledgeRecord], withMetadata bool) *model.Source {
	r := doc.Item
	excerpt, _ := extract.Truncate(r.Content, model.ExcerptLength)

	src := &model.Source{
		Title:      titleOf(r),
		FileName:   r.FileName,
		FileType:   r.FileType,
		URL:        r.FileURL,
		Similarity: doc.Similarity,
		Excerpt:    excerpt + "...",
	}
	if withMetadata {
		meta := r.Metadata
		src.Metadata = &meta
		src.Embedding = r.Embedding
	}
	return src
}

// Stats reports the size of the knowledge base. Store failures are reported through Status.
func (uc *UseCase) Stats(ctx context.Context) (*model.Stats, error) {
	count, err := withTimeout(ctx, uc.timeout, uc.store.Count)
	if err != nil {
		logging.From(ctx).Warn("failed to count documents", "error", err)
		return &model.Stats{Status: "error", Initialized: true}, nil
	}

	return &model.Stats{
		TotalDocuments: count,
		Status:         "ready",
		Initialized:    true,
	}, nil
}
