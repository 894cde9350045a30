// Package sync mirrors a source folder tree into the knowledge base. Each run lists the whole
// tree first, then processes files on a bounded worker pool under a shared rate ceiling.
package sync

import (
	"context"
	"time"

	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/interfaces"
)

const (
	DefaultWorkers       = 2
	MaxWorkers           = 4
	DefaultInterval      = 500 * time.Millisecond
	DefaultTimeout       = 60 * time.Second
	DefaultMaxTextLength = 20000
	DefaultMinTextLength = 10
)

// UseCase provides knowledge base synchronization
type UseCase struct {
	store     interfaces.Store
	source    interfaces.Source
	extractor interfaces.Extractor
	embedder  interfaces.Embedder

	filter   interfaces.FileFilter
	reporter interfaces.RunReporter

	workers     int
	interval    time.Duration
	timeout     time.Duration
	listTimeout time.Duration
	maxText     int
	minText     int
	teacherID   string
	userID      string
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithWorkers sets the number of files processed concurrently, clamped to 1..4
func WithWorkers(n int) Option {
	return func(uc *UseCase) {
		uc.workers = min(max(n, 1), MaxWorkers)
	}
}

// WithInterval sets the minimum delay between two file starts across all workers.
// Zero removes the ceiling.
func WithInterval(d time.Duration) Option {
	return func(uc *UseCase) {
		uc.interval = d
	}
}

// WithTimeout bounds each call to the store, the source, the embedder and the run reporter
func WithTimeout(d time.Duration) Option {
	return func(uc *UseCase) {
		uc.timeout = d
	}
}

// WithListTimeout bounds the whole listing phase. Zero uses the per-call timeout.
func WithListTimeout(d time.Duration) Option {
	return func(uc *UseCase) {
		uc.listTimeout = d
	}
}

func WithMaxTextLength(n int) Option {
	return func(uc *UseCase) {
		uc.maxText = n
	}
}

func WithMinTextLength(n int) Option {
	return func(uc *UseCase) {
		uc.minText = n
	}
}

func WithFilter(f interfaces.FileFilter) Option {
	return func(uc *UseCase) {
		uc.filter = f
	}
}

func WithReporter(r interfaces.RunReporter) Option {
	return func(uc *UseCase) {
		uc.reporter = r
	}
}

// WithTags sets the owner tags written to every record
func WithTags(teacherID, userID string) Option {
	return func(uc *UseCase) {
		uc.teacherID = teacherID
		uc.userID = userID
	}
}

// New creates a new sync UseCase instance
func New(
	store interfaces.Store,
	source interfaces.Source,
	extractor interfaces.Extractor,
	embedder interfaces.Embedder,
	opts ...Option,
) *UseCase {
	uc := &UseCase{
		store:     store,
		source:    source,
		extractor: extractor,
		embedder:  embedder,
		workers:   DefaultWorkers,
		interval:  DefaultInterval,
		timeout:   DefaultTimeout,
		maxText:   DefaultMaxTextLength,
		minText:   DefaultMinTextLength,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

func (uc *UseCase) listingTimeout() time.Duration {
	if uc.listTimeout > 0 {
		return uc.listTimeout
	}
	return uc.timeout
}

func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}
