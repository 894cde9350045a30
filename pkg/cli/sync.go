package cli

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/adapter"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/extract"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/policy"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/scheduler"
	syncuc "github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/usecase/sync"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func syncCommand() *cli.Command {
	var (
		cfg       config
		src       sourceConfig
		once      bool
		schedule  string
		onStartup bool
		workers   int64
		interval  time.Duration
		timeout   time.Duration
		listLimit time.Duration
		policyDir string

		bqProject string
		bqDataset string
		bqTable   string
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "once",
			Usage:       "Run a single sync and exit instead of scheduling",
			Sources:     cli.EnvVars("SYNC_ONCE"),
			Destination: &once,
		},
		&cli.StringFlag{
			Name:        "schedule",
			Usage:       "Cron expression of scheduled runs",
			Value:       scheduler.DefaultSchedule,
			Sources:     cli.EnvVars("CRON_SCHEDULE"),
			Destination: &schedule,
		},
		&cli.BoolFlag{
			Name:        "run-on-startup",
			Usage:       "Run a sync immediately when the scheduler starts",
			Value:       true,
			Sources:     cli.EnvVars("CRON_RUN_ON_STARTUP"),
			Destination: &onStartup,
		},
		&cli.IntFlag{
			Name:        "workers",
			Usage:       "Files processed concurrently (1 to 4)",
			Value:       syncuc.DefaultWorkers,
			Sources:     cli.EnvVars("SYNC_WORKERS"),
			Destination: &workers,
		},
		&cli.DurationFlag{
			Name:        "interval",
			Usage:       "Minimum delay between two file starts",
			Value:       syncuc.DefaultInterval,
			Sources:     cli.EnvVars("SYNC_INTERVAL"),
			Destination: &interval,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "Deadline of each external call (store, source, embedder, run report)",
			Value:       syncuc.DefaultTimeout,
			Sources:     cli.EnvVars("SYNC_TIMEOUT"),
			Destination: &timeout,
		},
		&cli.DurationFlag{
			Name:        "list-timeout",
			Usage:       "Deadline of the whole listing phase; 0 uses --timeout",
			Sources:     cli.EnvVars("SYNC_LIST_TIMEOUT"),
			Destination: &listLimit,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego policies deciding which files are synchronized",
			Sources:     cli.EnvVars("SYNC_POLICY_DIR"),
			Destination: &policyDir,
			TakesFile:   true,
		},
		&cli.StringFlag{
			Name:        "bigquery-project",
			Usage:       "Google Cloud project of the run summary table",
			Sources:     cli.EnvVars("BIGQUERY_PROJECT_ID"),
			Destination: &bqProject,
		},
		&cli.StringFlag{
			Name:        "bigquery-dataset",
			Usage:       "BigQuery dataset of the run summary table",
			Sources:     cli.EnvVars("BIGQUERY_DATASET_ID"),
			Destination: &bqDataset,
		},
		&cli.StringFlag{
			Name:        "bigquery-table",
			Usage:       "BigQuery table receiving one row per sync run",
			Sources:     cli.EnvVars("BIGQUERY_TABLE_ID"),
			Destination: &bqTable,
		},
	}
	flags = append(flags, sourceFlags(&src)...)
	flags = append(flags, storeFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "sync",
		Usage: "Mirror source folders into the knowledge base, on a schedule or once",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.From(ctx)

			// Configuration errors surface before any work starts.
			targets, err := src.targets()
			if err != nil {
				return err
			}

			var runs []*syncRun
			s, err := scheduler.New(func(ctx context.Context) error { return runAll(ctx, runs) },
				scheduler.WithSchedule(schedule),
				scheduler.WithRunOnStartup(onStartup),
				scheduler.WithLogger(logger),
			)
			if err != nil {
				return err
			}

			store, err := cfg.newStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			client, err := cfg.newLLM(ctx)
			if err != nil {
				return err
			}

			opts := []syncuc.Option{
				syncuc.WithWorkers(int(workers)),
				syncuc.WithInterval(interval),
				syncuc.WithTimeout(timeout),
				syncuc.WithListTimeout(listLimit),
			}

			if policyDir != "" {
				filter, err := policy.Load(ctx, policyDir)
				if err != nil {
					return err
				}
				if filter != nil {
					opts = append(opts, syncuc.WithFilter(filter))
				}
			}

			if bqProject != "" || bqDataset != "" || bqTable != "" {
				reporter, err := adapter.NewBigQueryReporter(ctx, bqProject, bqDataset, bqTable)
				if err != nil {
					return err
				}
				defer reporter.Close()
				if err := reporter.EnsureTable(ctx); err != nil {
					return err
				}
				opts = append(opts, syncuc.WithReporter(reporter))
			}

			for _, t := range targets {
				source, closeSource, err := src.newSource(ctx, t)
				if err != nil {
					return err
				}
				defer closeSource()

				ucOpts := append(opts[:len(opts):len(opts)], syncuc.WithTags(t.TeacherID, t.UserID))
				runs = append(runs, &syncRun{
					target: t,
					uc:     syncuc.New(store, source, extract.New(), client, ucOpts...),
				})
			}

			if once {
				return runAll(ctx, runs)
			}
			return s.Start(ctx)
		},
	}
}

type syncRun struct {
	target target
	uc     *syncuc.UseCase
}

// runAll syncs every target in order. A failing target does not stop the others.
func runAll(ctx context.Context, runs []*syncRun) error {
	logger := logging.From(ctx)

	var failed []string
	for _, r := range runs {
		if ctx.Err() != nil {
			return goerr.Wrap(ctx.Err(), "sync cancelled")
		}

		summary, err := r.uc.Run(ctx, r.target.Root)
		if err != nil {
			logger.Error("sync failed", "source", r.target.Name, "error", err)
			failed = append(failed, r.target.Name)
			continue
		}
		logger.Info("sync finished",
			"source", r.target.Name,
			"processed", summary.Processed,
			"skipped", summary.Skipped,
			"errors", summary.Errors,
		)
	}

	if len(failed) > 0 {
		return goerr.New("sync failed for some sources",
			goerr.V("failed", failed),
			goerr.V("total", len(runs)))
	}
	return nil
}
