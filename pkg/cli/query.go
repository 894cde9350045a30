package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/interfaces"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/usecase/query"
	"github.com/urfave/cli/v3"
)

// queryFlags returns the per-request retrieval options
func queryFlags(opts *queryOptions) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "max-results",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of source documents (1 to 100)",
			Value:       model.DefaultMaxResults,
			Destination: &opts.maxResults,
		},
		&cli.FloatFlag{
			Name:        "threshold",
			Usage:       "Minimum cosine similarity of a relevant document (0 to 1)",
			Value:       model.DefaultSimilarityThreshold,
			Destination: &opts.threshold,
		},
		&cli.StringFlag{
			Name:        "language",
			Aliases:     []string{"l"},
			Usage:       "Answer language (vi, en)",
			Value:       string(model.LanguageVI),
			Sources:     cli.EnvVars("RAGDRIVE_LANGUAGE"),
			Destination: &opts.language,
		},
	}
}

type queryOptions struct {
	maxResults int64
	threshold  float64
	language   string
}

func (o *queryOptions) toModel() model.QueryOptions {
	threshold := o.threshold
	return model.QueryOptions{
		MaxResults:          int(o.maxResults),
		SimilarityThreshold: &threshold,
		Language:            model.Language(o.language),
		ExcludeEmbeddings:   true,
	}
}

// newRetriever wires the store and the model client into the query use case
func (cfg *config) newRetriever(ctx context.Context) (*query.UseCase, func() error, error) {
	store, err := cfg.newStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	client, err := cfg.newLLM(ctx)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	return query.New(store, client, client, query.WithModelName(client.Model())), store.Close, nil
}

func queryCommand() *cli.Command {
	var (
		cfg     config
		opts    queryOptions
		jsonOut bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Print the full result as JSON",
			Destination: &jsonOut,
		},
	}
	flags = append(flags, queryFlags(&opts)...)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "query",
		Usage:     "Answer a question from the knowledge base",
		ArgsUsage: "<question>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if text == "" {
				return goerr.New("question is required", goerr.T(model.ErrTagValidation))
			}

			uc, closeFn, err := cfg.newRetriever(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := uc.Query(ctx, text, opts.toModel())
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(c.Root().Writer, result)
			}
			printResult(c.Root().Writer, result)
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return goerr.Wrap(err, "failed to encode output")
	}
	return nil
}

func printResult(w io.Writer, result *model.QueryResult) {
	fmt.Fprintf(w, "%s\n", result.Answer)
	if len(result.Sources) == 0 {
		return
	}

	fmt.Fprintf(w, "\nSources (confidence %.2f):\n", result.Confidence)
	for i, src := range result.Sources {
		fmt.Fprintf(w, "  %d. %s (%s) similarity=%.3f\n", i+1, src.Title, src.FileName, src.Similarity)
		if src.URL != "" {
			fmt.Fprintf(w, "     %s\n", src.URL)
		}
	}
}

func statsCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "stats",
		Usage: "Show the number of documents in the knowledge base",
		Flags: storeFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			store, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := query.New(store, nil, nil).Stats(ctx)
			if err != nil {
				return err
			}
			return writeJSON(c.Root().Writer, stats)
		},
	}
}

func deleteCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "delete",
		Usage:     "Remove a document from the knowledge base by file name",
		ArgsUsage: "<file-name>",
		Flags:     storeFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			fileName := c.Args().First()
			if fileName == "" {
				return goerr.New("file name is required", goerr.T(model.ErrTagValidation))
			}

			store, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			return deleteRecord(ctx, store, fileName, c.Root().Writer)
		},
	}
}

func deleteRecord(ctx context.Context, store interfaces.Store, fileName string, w io.Writer) error {
	if err := store.Delete(ctx, fileName); err != nil {
		return goerr.Wrap(err, "failed to delete document", goerr.V("file_name", fileName))
	}
	fmt.Fprintf(w, "Deleted %s\n", fileName)
	return nil
}
