package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/model"
	"github.com/tomnyson/rag-ooogle-driver-retrieve/pkg/scheduler"
)

func startAsync(ctx context.Context, s *scheduler.Scheduler) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx)
	}()
	return done
}

func waitDone(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		gt.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestRunOnStartup(t *testing.T) {
	ran := make(chan struct{}, 1)
	var calls atomic.Int32
	s, err := scheduler.New(func(ctx context.Context) error {
		calls.Add(1)
		ran <- struct{}{}
		return nil
	})
	gt.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := startAsync(ctx, s)

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("startup run did not happen")
	}
	cancel()
	waitDone(t, done)
	gt.Equal(t, calls.Load(), int32(1))
}

func TestWithoutRunOnStartup(t *testing.T) {
	var calls atomic.Int32
	s, err := scheduler.New(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}, scheduler.WithRunOnStartup(false))
	gt.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := startAsync(ctx, s)
	time.Sleep(100 * time.Millisecond)
	cancel()
	waitDone(t, done)
	gt.Equal(t, calls.Load(), int32(0))
}

func TestStopWaitsForRunningJob(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool
	s, err := scheduler.New(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		return ctx.Err()
	})
	gt.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := startAsync(ctx, s)
	<-started
	cancel()
	waitDone(t, done)
	gt.True(t, finished.Load())
}

func TestJobErrorDoesNotStopScheduler(t *testing.T) {
	ran := make(chan struct{}, 1)
	s, err := scheduler.New(func(ctx context.Context) error {
		ran <- struct{}{}
		return errors.New("listing failed")
	})
	gt.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := startAsync(ctx, s)
	<-ran

	select {
	case <-done:
		t.Fatal("scheduler stopped after job error")
	case <-time.After(50 * time.Millisecond):
	}
	cancel()
	waitDone(t, done)
}

func TestInvalidSchedule(t *testing.T) {
	_, err := scheduler.New(func(ctx context.Context) error { return nil },
		scheduler.WithSchedule("every night"))
	gt.Error(t, err)
	gt.Equal(t, model.ErrorKind(err), "config")
}

func TestScheduledTrigger(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a real cron tick")
	}

	ran := make(chan struct{}, 4)
	s, err := scheduler.New(func(ctx context.Context) error {
		ran <- struct{}{}
		return nil
	},
		scheduler.WithSchedule("@every 1s"),
		scheduler.WithRunOnStartup(false),
	)
	gt.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := startAsync(ctx, s)

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled run did not happen")
	}
	cancel()
	waitDone(t, done)
}
