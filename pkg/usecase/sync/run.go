package sync

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Run synchronizes every file under root. A failing file is counted and logged without stopping
// the run. Listing failure and cancellation end the run with an error; the summary is returned in
// every case. Files that were never started when the run stops are counted as failed.
func (uc *UseCase) Run(ctx context.Context, root string) (*model.SyncSummary, error) {
	stats := model.NewSyncStats()
	logger := logging.From(ctx).With("run_id", stats.RunID, "root", root)
	ctx = logging.With(ctx, logger)

	logger.Info("sync started",
		"source", uc.source.Kind(),
		"workers", uc.workers,
		"interval", uc.interval)

	files, err := withTimeout(ctx, uc.listingTimeout(), func(ctx context.Context) ([]*model.SourceFile, error) {
		return uc.source.ListFiles(ctx, root)
	})
	if err != nil {
		summary := uc.finish(ctx, stats, root)
		return summary, goerr.Wrap(err, "failed to list source files",
			goerr.V("root", root),
			goerr.T(model.ErrTagUpstream))
	}
	logger.Info("listed source files", "count", len(files))

	limit := rate.Inf
	if uc.interval > 0 {
		limit = rate.Every(uc.interval)
	}
	limiter := rate.NewLimiter(limit, 1)

	var eg errgroup.Group
	eg.SetLimit(uc.workers)

	var stopErr error
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			stopErr = err
			uc.abandon(ctx, stats, files[i:], err)
			break
		}

		if ok, reasons, err := uc.allow(ctx, file); err != nil {
			logger.Error("failed to evaluate filter policy", "file_name", file.Name, "error", err)
			stats.Record(model.FileResult{FileName: file.Name, State: model.FileStateFailed, Err: err})
			continue
		} else if !ok {
			logger.Info("file denied by policy", "file_name", file.Name, "reasons", strings.Join(reasons, "; "))
			stats.Record(model.FileResult{FileName: file.Name, State: model.FileStateSkipped})
			continue
		}

		// Wait fails early when the deadline of ctx cannot cover the delay.
		if err := limiter.Wait(ctx); err != nil {
			stopErr = err
			uc.abandon(ctx, stats, files[i:], err)
			break
		}

		eg.Go(func() error {
			stats.Record(uc.processFile(ctx, file))
			return nil
		})
	}
	_ = eg.Wait()

	summary := uc.finish(ctx, stats, root)
	if stopErr == nil {
		stopErr = ctx.Err()
	}
	if stopErr != nil {
		return summary, goerr.Wrap(stopErr, "sync stopped before all files were processed",
			goerr.V("root", root),
			goerr.V("listed", len(files)))
	}
	return summary, nil
}

// abandon records files that will not be started in this run.
func (uc *UseCase) abandon(ctx context.Context, stats *model.SyncStats, files []*model.SourceFile, cause error) {
	logging.From(ctx).Warn("sync stopped early", "not_started", len(files), "error", cause)
	for _, file := range files {
		stats.Record(model.FileResult{
			FileName: file.Name,
			State:    model.FileStateFailed,
			Err:      goerr.Wrap(cause, "file not started", goerr.V("file_name", file.Name)),
		})
	}
}

func (uc *UseCase) allow(ctx context.Context, file *model.SourceFile) (bool, []string, error) {
	if uc.filter == nil {
		return true, nil, nil
	}
	return uc.filter.Allow(ctx, file)
}

func (uc *UseCase) finish(ctx context.Context, stats *model.SyncStats, root string) *model.SyncSummary {
	summary := stats.Finish()
	summary.Root = root

	logger := logging.From(ctx)
	logger.Info("sync finished",
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"errors", summary.Errors,
		"total", summary.Total,
		"duration_ms", summary.DurationMs,
		"skip_ratio", summary.SkipRatio)

	for _, r := range stats.Results() {
		if r.State == model.FileStateFailed {
			logger.Warn("file failed", "file_name", r.FileName, "reached", r.Reached.String(), "error", r.Err)
		}
	}

	if uc.reporter != nil {
		// Reporting runs after cancellation too.
		_, err := withTimeout(context.WithoutCancel(ctx), uc.timeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, uc.reporter.Report(ctx, summary)
		})
		if err != nil {
			logger.Error("failed to report sync run", "error", err)
		}
	}

	return summary
}
