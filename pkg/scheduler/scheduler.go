// Package scheduler runs a job on a cron schedule. Runs never overlap: a trigger that fires
// while the previous run is still going is dropped.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/robfig/cron/v3"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/utils/logging"
)

const DefaultSchedule = "0 2 * * *"

// Job is the unit of scheduled work. Its error is logged, never propagated.
type Job func(ctx context.Context) error

type Scheduler struct {
	job          Job
	schedule     string
	runOnStartup bool
	location     *time.Location
	logger       *slog.Logger
}

type Option func(*Scheduler)

// WithSchedule sets a standard five-field cron expression or a descriptor such as "@hourly"
func WithSchedule(spec string) Option {
	return func(s *Scheduler) {
		s.schedule = spec
	}
}

func WithRunOnStartup(b bool) Option {
	return func(s *Scheduler) {
		s.runOnStartup = b
	}
}

func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		s.location = loc
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// New validates the schedule and returns a Scheduler for job
func New(job Job, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		job:          job,
		schedule:     DefaultSchedule,
		runOnStartup: true,
		location:     time.Local,
		logger:       logging.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return nil, goerr.Wrap(err, "invalid cron schedule",
			goerr.V("schedule", s.schedule),
			goerr.T(model.ErrTagConfig))
	}

	return s, nil
}

// Start runs the scheduler until ctx is cancelled, then waits for a running job to return.
// The context passed to jobs is ctx, so cancellation also reaches an in-flight run.
func (s *Scheduler) Start(ctx context.Context) error {
	logger := &cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	id, err := c.AddFunc(s.schedule, func() { s.run(ctx) })
	if err != nil {
		return goerr.Wrap(err, "failed to register job", goerr.V("schedule", s.schedule))
	}
	entry := c.Entry(id)

	c.Start()
	s.logger.Info("scheduler started",
		"schedule", s.schedule,
		"run_on_startup", s.runOnStartup,
		"next", c.Entry(id).Next,
	)

	var startup sync.WaitGroup
	if s.runOnStartup {
		// The wrapped job shares the skip guard with scheduled triggers.
		startup.Add(1)
		go func() {
			defer startup.Done()
			entry.WrappedJob.Run()
		}()
	}

	<-ctx.Done()
	s.logger.Info("stopping scheduler")
	<-c.Stop().Done()
	startup.Wait()
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	started := time.Now()
	s.logger.Info("scheduled job started")
	if err := s.job(ctx); err != nil {
		s.logger.Error("scheduled job failed", "error", err, "duration", time.Since(started))
		return
	}
	s.logger.Info("scheduled job finished", "duration", time.Since(started))
}

// cronLogger adapts slog to cron.Logger
type cronLogger struct {
	logger *slog.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(fmt.Sprintf("cron: %s", msg), append([]any{"error", err}, keysAndValues...)...)
}
