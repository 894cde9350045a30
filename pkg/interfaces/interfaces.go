package interfaces

import (
	"context"

	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
)

// Store persists knowledge records keyed by file name.
type Store interface {
	// FindByKey returns the record for fileName, or (nil, nil) when none exists
	FindByKey(ctx context.Context, fileName string) (*model.KnowledgeRecord, error)

	// Upsert inserts the record or fully replaces the existing one with the same file name in a
	// single atomic operation. The stored record (with ID and UpdatedAt) is returned.
	Upsert(ctx context.Context, record *model.KnowledgeRecord) (*model.KnowledgeRecord, error)

	// ScanWithEmbeddings returns every record that has a non-empty embedding
	ScanWithEmbeddings(ctx context.Context) ([]*model.KnowledgeRecord, error)

	// Count returns the number of stored records
	Count(ctx context.Context) (int, error)

	// Delete removes the record for fileName
	Delete(ctx context.Context, fileName string) error

	Close() error
}

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator produces an answer for a fully rendered prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Source lists and fetches files from a document store such as Google Drive.
type Source interface {
	// ListFiles walks root recursively and returns every syncable file
	ListFiles(ctx context.Context, root string) ([]*model.SourceFile, error)

	// Fetch downloads the file content. The returned MIME type is the format of the bytes,
	// which differs from file.MIMEType for exported native documents.
	Fetch(ctx context.Context, file *model.SourceFile) ([]byte, string, error)

	Kind() model.SourceKind
}

// Extractor converts raw bytes of the given MIME type into plain text.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType string) (string, error)
}

// RunReporter receives the summary of a finished sync run.
type RunReporter interface {
	Report(ctx context.Context, summary *model.SyncSummary) error
}

// FileFilter decides whether a discovered file may be synchronized.
type FileFilter interface {
	// Allow returns false with reasons when the file must be skipped
	Allow(ctx context.Context, file *model.SourceFile) (bool, []string, error)
}

// Retriever answers questions from the knowledge base. Served over HTTP, MCP and the CLI.
type Retriever interface {
	Query(ctx context.Context, text string, opts model.QueryOptions) (*model.QueryResult, error)
	Stats(ctx context.Context) (*model.Stats, error)
}
