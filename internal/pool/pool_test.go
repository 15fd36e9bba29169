package pool

import (
	"context"
	"errors"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/profile-matcher/internal/metrics"
)

func TestPoolRunsEveryTaskOnce(t *testing.T) {
	p := New(Options{})
	require.Equal(t, DefaultSize, p.Size())

	var mu sync.Mutex
	seen := map[string]int{}

	for i := 0; i < 100; i++ {
		id := strconv.Itoa(i)
		require.NoError(t, p.Submit(id, func() error {
			mu.Lock()
			defer mu.Unlock()
			seen[id]++
			return nil
		}))
	}
	require.NoError(t, p.CloseSubmissions())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Wait(ctx))

	assert.True(t, p.IsTerminated())
	assert.Equal(t, 0, p.Pending())
	assert.Len(t, seen, 100)
	for id, count := range seen {
		assert.Equalf(t, 1, count, "task %s executed %d times", id, count)
	}
}

func TestPoolLifecycle(t *testing.T) {
	p := New(Options{Size: 2})
	assert.Equal(t, StateOpen, p.State())

	release := make(chan struct{})
	require.NoError(t, p.Submit("blocked", func() error {
		<-release
		return nil
	}))

	require.NoError(t, p.CloseSubmissions())
	assert.Equal(t, StateClosed, p.State())
	assert.False(t, p.IsTerminated(), "pool must not terminate while a task is running")

	err := p.Submit("late", func() error { return nil })
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, p.CloseSubmissions(), ErrClosed)

	close(release)
	require.NoError(t, p.Wait(context.Background()))
	assert.Equal(t, StateTerminated, p.State())
	assert.Equal(t, "terminated", p.State().String())
}

func TestPoolTerminatesImmediatelyWhenEmpty(t *testing.T) {
	p := New(Options{Size: 1})
	require.NoError(t, p.CloseSubmissions())
	assert.True(t, p.IsTerminated())
	require.NoError(t, p.Wait(context.Background()))
}

func TestPoolSubmitDoesNotBlock(t *testing.T) {
	p := New(Options{Size: 1})
	release := make(chan struct{})

	submitted := make(chan struct{})
	go func() {
		defer close(submitted)
		for i := 0; i < 50; i++ {
			_ = p.Submit(strconv.Itoa(i), func() error {
				<-release
				return nil
			})
		}
		_ = p.CloseSubmissions()
	}()

	select {
	case <-submitted:
	case <-time.After(2 * time.Second):
		t.Fatalf("submission blocked on a busy pool")
	}

	assert.False(t, p.IsTerminated())
	assert.Equal(t, 50, p.Pending())

	close(release)
	require.NoError(t, p.Wait(context.Background()))
}

func TestPoolRecordsFaultsWithoutStoppingSiblings(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	m := metrics.New("test")
	p := New(Options{Size: 3, Logger: zap.New(core), Metrics: m})

	boom := errors.New("boom")
	var succeeded atomic.Int32

	require.NoError(t, p.Submit("err", func() error { return boom }))
	require.NoError(t, p.Submit("panic", func() error { panic("kaboom") }))
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit("ok-"+strconv.Itoa(i), func() error {
			succeeded.Add(1)
			return nil
		}))
	}
	require.NoError(t, p.CloseSubmissions())
	require.NoError(t, p.Wait(context.Background()))

	assert.EqualValues(t, 10, succeeded.Load())

	faults := p.Faults()
	require.Len(t, faults, 2)
	ids := map[string]error{}
	for _, f := range faults {
		ids[f.TaskID] = f.Err
	}
	assert.ErrorIs(t, ids["err"], boom)
	assert.ErrorContains(t, ids["panic"], "panic: kaboom")

	err := p.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 2, logs.FilterMessage("task failed").Len())
	assert.EqualValues(t, 12, testutil.ToFloat64(m.TasksSubmitted))
	assert.EqualValues(t, 2, testutil.ToFloat64(m.TasksFinished.WithLabelValues(metrics.StatusFailed)))
	assert.EqualValues(t, 10, testutil.ToFloat64(m.TasksFinished.WithLabelValues(metrics.StatusSuccess)))
	assert.EqualValues(t, 0, testutil.ToFloat64(m.ActiveWorkers))
}

func TestPoolErrIsNilWithoutFaults(t *testing.T) {
	p := New(Options{})
	require.NoError(t, p.CloseSubmissions())
	assert.NoError(t, p.Err())
	assert.Empty(t, p.Faults())
}

func TestPoolWaitHonoursContext(t *testing.T) {
	p := New(Options{Size: 1})
	release := make(chan struct{})
	defer close(release)

	require.NoError(t, p.Submit("slow", func() error {
		<-release
		return nil
	}))
	require.NoError(t, p.CloseSubmissions())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, p.IsTerminated())
}

func TestPoolRejectsNilTask(t *testing.T) {
	p := New(Options{})
	assert.Error(t, p.Submit("nil", nil))
	require.NoError(t, p.CloseSubmissions())
}

func TestUnusedPoolHoldsNoWorkers(t *testing.T) {
	before := runtime.NumGoroutine()

	pools := make([]*Pool, 0, 50)
	for i := 0; i < 50; i++ {
		pools = append(pools, New(Options{}))
	}

	assert.LessOrEqual(t, runtime.NumGoroutine(), before+2)
	for _, p := range pools {
		assert.Equal(t, StateOpen, p.State())
	}
}

func TestPoolWorkersExitAfterTermination(t *testing.T) {
	before := runtime.NumGoroutine()

	p := New(Options{Size: 8})
	require.NoError(t, p.Submit("a", func() error { return nil }))
	require.NoError(t, p.CloseSubmissions())
	require.NoError(t, p.Wait(context.Background()))

	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+2
	}, 2*time.Second, 10*time.Millisecond)
}
