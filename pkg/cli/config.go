package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/adapter"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/interfaces"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/repository"
	"github.com/urfave/cli/v3"
)

const (
	providerGemini = "gemini"
	providerOpenAI = "openai"
)

// config holds configuration values
type config struct {
	// Store
	store               string
	sqlitePath          string
	databaseURL         string
	firestoreProject    string
	firestoreDatabase   string
	firestoreCollection string

	// LLM
	llmProvider     string
	geminiAPIKey    string
	geminiProject   string
	geminiLocation  string
	openaiAPIKey    string
	openaiBaseURL   string
	generativeModel string
	embeddingModel  string
}

// llm is a model client able to both embed and generate
type llm interface {
	interfaces.Embedder
	interfaces.Generator
	Model() string
}

func configError(msg string, values ...goerr.Option) error {
	return goerr.New(msg, append(values, goerr.T(model.ErrTagConfig))...)
}

// storeFlags returns flags selecting the document store backend
func storeFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "store",
			Usage:       "Document store backend (sqlite, postgres, firestore, memory)",
			Value:       string(repository.KindSQLite),
			Sources:     cli.EnvVars("RAGDRIVE_STORE"),
			Destination: &cfg.store,
		},
		&cli.StringFlag{
			Name:        "sqlite-path",
			Usage:       "SQLite database file",
			Value:       "ragdrive.db",
			Sources:     cli.EnvVars("SQLITE_PATH"),
			Destination: &cfg.sqlitePath,
			TakesFile:   true,
		},
		&cli.StringFlag{
			Name:        "database-url",
			Usage:       "PostgreSQL connection string (pgvector extension required)",
			Sources:     cli.EnvVars("DATABASE_URL"),
			Destination: &cfg.databaseURL,
		},
		&cli.StringFlag{
			Name:        "firestore-project",
			Usage:       "Google Cloud project ID of the Firestore database",
			Sources:     cli.EnvVars("FIRESTORE_PROJECT_ID", "GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.firestoreProject,
		},
		&cli.StringFlag{
			Name:        "firestore-database",
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.firestoreDatabase,
		},
		&cli.StringFlag{
			Name:        "firestore-collection",
			Usage:       "Firestore collection holding knowledge records",
			Value:       "knowledge_base",
			Sources:     cli.EnvVars("FIRESTORE_COLLECTION"),
			Destination: &cfg.firestoreCollection,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "llm-provider",
			Usage:       "Model provider (gemini, openai)",
			Value:       providerGemini,
			Sources:     cli.EnvVars("LLM_PROVIDER"),
			Destination: &cfg.llmProvider,
		},
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key. Vertex AI is used when empty",
			Sources:     cli.EnvVars("GEMINI_API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini on Vertex AI",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini on Vertex AI",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "API key of the OpenAI compatible endpoint",
			Sources:     cli.EnvVars("OPENAI_API_KEY"),
			Destination: &cfg.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "openai-base-url",
			Usage:       "Base URL of the OpenAI compatible endpoint",
			Sources:     cli.EnvVars("OPENAI_BASE_URL"),
			Destination: &cfg.openaiBaseURL,
		},
		&cli.StringFlag{
			Name:        "generative-model",
			Usage:       "Override the answer generation model",
			Sources:     cli.EnvVars("GENERATIVE_MODEL"),
			Destination: &cfg.generativeModel,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Override the embedding model",
			Sources:     cli.EnvVars("EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
	}
}

// newStore creates the configured document store
func (cfg *config) newStore(ctx context.Context) (interfaces.Store, error) {
	switch repository.Kind(cfg.store) {
	case repository.KindSQLite:
		if cfg.sqlitePath == "" {
			return nil, configError("sqlite-path is required")
		}
		return repository.NewSQLite(cfg.sqlitePath)

	case repository.KindPostgres:
		if cfg.databaseURL == "" {
			return nil, configError("database-url is required")
		}
		return repository.NewPostgres(ctx, cfg.databaseURL)

	case repository.KindFirestore:
		if cfg.firestoreProject == "" {
			return nil, configError("firestore-project is required")
		}
		return repository.NewFirestore(ctx, cfg.firestoreProject, cfg.firestoreDatabase,
			repository.WithCollection(cfg.firestoreCollection))

	case repository.KindMemory:
		return repository.NewMemory(), nil

	default:
		return nil, configError("unknown store", goerr.V("store", cfg.store))
	}
}

// newLLM creates the configured model client
func (cfg *config) newLLM(ctx context.Context) (llm, error) {
	switch cfg.llmProvider {
	case providerGemini:
		var opts []adapter.GeminiOption
		if cfg.generativeModel != "" {
			opts = append(opts, adapter.WithGenerativeModel(cfg.generativeModel))
		}
		if cfg.embeddingModel != "" {
			opts = append(opts, adapter.WithEmbeddingModel(cfg.embeddingModel))
		}

		if cfg.geminiAPIKey != "" {
			return adapter.NewGeminiWithAPIKey(ctx, cfg.geminiAPIKey, opts...)
		}
		if cfg.geminiProject == "" {
			return nil, configError("gemini-api-key or gemini-project is required")
		}
		return adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, opts...)

	case providerOpenAI:
		var opts []adapter.OpenAIOption
		if cfg.generativeModel != "" {
			opts = append(opts, adapter.WithOpenAIGenerativeModel(cfg.generativeModel))
		}
		if cfg.embeddingModel != "" {
			opts = append(opts, adapter.WithOpenAIEmbeddingModel(cfg.embeddingModel))
		}
		return adapter.NewOpenAI(cfg.openaiAPIKey, cfg.openaiBaseURL, opts...)

	default:
		return nil, configError("unknown llm provider", goerr.V("provider", cfg.llmProvider))
	}
}
