package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amaumene/debridstrm/internal/controllers"
	"github.com/amaumene/debridstrm/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnerFunc func(ctx context.Context) (*controllers.CycleSummary, error)

func (f runnerFunc) RunCycle(ctx context.Context) (*controllers.CycleSummary, error) {
	return f(ctx)
}

func TestStartRunsImmediately(t *testing.T) {
	ran := make(chan struct{}, 1)
	s := NewScheduler(runnerFunc(func(ctx context.Context) (*controllers.CycleSummary, error) {
		ran <- struct{}{}
		return &controllers.CycleSummary{}, nil
	}), time.Hour, utils.NewDiscardLogger())

	s.Start()
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("initial cycle did not run")
	}
}

func TestStopCancelsRunningCycle(t *testing.T) {
	started := make(chan struct{})
	var canceled atomic.Bool
	s := NewScheduler(runnerFunc(func(ctx context.Context) (*controllers.CycleSummary, error) {
		close(started)
		<-ctx.Done()
		canceled.Store(true)
		return nil, ctx.Err()
	}), time.Hour, utils.NewDiscardLogger())

	s.Start()
	<-started

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.True(t, canceled.Load())
}

func TestCycleErrorsDoNotStopScheduler(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler(runnerFunc(func(ctx context.Context) (*controllers.CycleSummary, error) {
		calls.Add(1)
		return nil, errors.New("remote unavailable")
	}), time.Second, utils.NewDiscardLogger())

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)
}

func TestCyclePanicIsRecovered(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler(runnerFunc(func(ctx context.Context) (*controllers.CycleSummary, error) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return &controllers.CycleSummary{}, nil
	}), time.Second, utils.NewDiscardLogger())

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)
}

func TestSchedulerSurvivesRepeatedPanics(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler(runnerFunc(func(ctx context.Context) (*controllers.CycleSummary, error) {
		if calls.Add(1)%2 == 1 {
			panic("cycle exploded")
		}
		return &controllers.CycleSummary{}, nil
	}), time.Second, utils.NewDiscardLogger())

	s.Start()
	defer s.Stop()

	// initial run and the first tick both panic; later ticks must still fire
	require.Eventually(t, func() bool { return calls.Load() >= 4 }, 8*time.Second, 50*time.Millisecond)
}

func TestCyclesDoNotOverlap(t *testing.T) {
	var running, overlaps, calls atomic.Int32
	s := NewScheduler(runnerFunc(func(ctx context.Context) (*controllers.CycleSummary, error) {
		if running.Add(1) > 1 {
			overlaps.Add(1)
		}
		calls.Add(1)
		select {
		case <-time.After(1500 * time.Millisecond):
		case <-ctx.Done():
		}
		running.Add(-1)
		return &controllers.CycleSummary{}, nil
	}), time.Second, utils.NewDiscardLogger())

	s.Start()
	time.Sleep(3500 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, calls.Load(), int32(1))
	assert.Equal(t, int32(0), overlaps.Load())
}
