package model

import (
	"github.com/m-mizutani/goerr/v2"
)

type Language string

const (
	LanguageVI Language = "vi"
	LanguageEN Language = "en"
)

const (
	DefaultMaxResults          = 5
	DefaultSimilarityThreshold = 0.5
	MaxMaxResults              = 100
	MinQueryLength             = 3
	ExcerptLength              = 200
)

// NoInformationAnswer returns the fixed answer used when no document passes the threshold.
func NoInformationAnswer(lang Language) string {
	if lang == LanguageEN {
		return "Sorry, I could not find relevant information for your question in the database."
	}
	return "Xin lỗi, tôi không tìm thấy thông tin liên quan đến câu hỏi của bạn trong cơ sở dữ liệu."
}

// QueryOptions controls a single retrieval call. Zero values are replaced by defaults in Normalize.
type QueryOptions struct {
	MaxResults          int      `json:"maxResults,omitempty" jsonschema:"maximum number of sources, 1 to 100 (default 5)"`
	SimilarityThreshold *float64 `json:"similarityThreshold,omitempty" jsonschema:"minimum cosine similarity, 0 to 1 (default 0.5)"`
	IncludeMetadata     *bool    `json:"includeMetadata,omitempty" jsonschema:"include source metadata and embeddings (default true)"`
	Language            Language `json:"language,omitempty" jsonschema:"answer language: vi or en (default vi)"`
	ExcludeEmbeddings   bool     `json:"excludeEmbeddings,omitempty" jsonschema:"strip embedding vectors from the response"`
}

// Normalize returns a copy with defaults applied.
func (o QueryOptions) Normalize() QueryOptions {
	if o.MaxResults == 0 {
		o.MaxResults = DefaultMaxResults
	}
	if o.SimilarityThreshold == nil {
		v := DefaultSimilarityThreshold
		o.SimilarityThreshold = &v
	}
	if o.IncludeMetadata == nil {
		v := true
		o.IncludeMetadata = &v
	}
	if o.Language == "" {
		o.Language = LanguageVI
	}
	return o
}

func (o QueryOptions) Validate() error {
	if o.MaxResults < 1 || o.MaxResults > MaxMaxResults {
		return goerr.New("maxResults must be between 1 and 100", goerr.T(ErrTagValidation), goerr.V("maxResults", o.MaxResults))
	}
	if o.SimilarityThreshold != nil && (*o.SimilarityThreshold < 0 || *o.SimilarityThreshold > 1) {
		return goerr.New("similarityThreshold must be between 0 and 1", goerr.T(ErrTagValidation), goerr.V("similarityThreshold", *o.SimilarityThreshold))
	}
	switch o.Language {
	case LanguageVI, LanguageEN:
	default:
		return goerr.New("language must be vi or en", goerr.T(ErrTagValidation), goerr.V("language", o.Language))
	}
	return nil
}

// Threshold returns the caller threshold, or the default when unset.
func (o QueryOptions) Threshold() float64 {
	if o.SimilarityThreshold == nil {
		return DefaultSimilarityThreshold
	}
	return *o.SimilarityThreshold
}

// WithMetadata reports whether sources should carry metadata and embeddings.
func (o QueryOptions) WithMetadata() bool {
	return o.IncludeMetadata == nil || *o.IncludeMetadata
}

type Source struct {
	Title      string          `json:"title"`
	FileName   string          `json:"fileName"`
	FileType   FileType        `json:"fileType"`
	URL        string          `json:"url,omitempty"`
	Similarity float64         `json:"similarity"`
	Excerpt    string          `json:"excerpt"`
	Metadata   *RecordMetadata `json:"metadata,omitempty"`
	Embedding  []float32       `json:"embedding,omitempty"`
}

type QueryMetadata struct {
	EmbeddingTimeMs     int64  `json:"embeddingTime"`
	SearchTimeMs        int64  `json:"searchTime"`
	GenerationTimeMs    int64  `json:"generationTime"`
	ProcessingTimeMs    int64  `json:"processingTime"`
	DocumentsFound      int    `json:"documentsFound"`
	RelevantDocuments   int    `json:"relevantDocuments"`
	EmbeddingDimensions int    `json:"embeddingDimensions"`
	Model               string `json:"model,omitempty"`
}

type QueryResult struct {
	Answer         string        `json:"answer"`
	Sources        []*Source     `json:"sources"`
	Confidence     float64       `json:"confidence"`
	Metadata       QueryMetadata `json:"metadata"`
	QueryEmbedding []float32     `json:"queryEmbedding,omitempty"`
}

// StripEmbeddings removes vector payloads from the result in place.
func (r *QueryResult) StripEmbeddings() {
	r.QueryEmbedding = nil
	for _, s := range r.Sources {
		s.Embedding = nil
	}
}

type Stats struct {
	TotalDocuments int    `json:"totalDocuments"`
	Status         string `json:"status"`
	Initialized    bool   `json:"initialized"`
}
