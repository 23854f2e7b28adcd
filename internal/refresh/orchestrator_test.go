package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veirt/weathr/internal/models"
	"github.com/Veirt/weathr/internal/service"
)

var berlin = models.WeatherLocation{Latitude: 52.52, Longitude: 13.41}

type fakeFetcher struct {
	mu       sync.Mutex
	requests []service.Request
	inFlight atomic.Int32
	fn       func(ctx context.Context, n int, req service.Request) (models.WeatherData, error)
}

func (f *fakeFetcher) GetWeather(ctx context.Context, req service.Request) (models.WeatherData, error) {
	f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	f.mu.Unlock()
	if f.fn == nil {
		return models.WeatherData{Temperature: float64(n)}, nil
	}
	return f.fn(ctx, n, req)
}

func (f *fakeFetcher) calls() []service.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]service.Request(nil), f.requests...)
}

// blockUntilCanceled models a fetch stuck on the network that honours cancellation.
func blockUntilCanceled(ctx context.Context, _ int, _ service.Request) (models.WeatherData, error) {
	<-ctx.Done()
	return models.WeatherData{}, ctx.Err()
}

func closeOrchestrator(t *testing.T, o *Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, o.Close(ctx))
}

func pollEventually(t *testing.T, o *Orchestrator) Result {
	t.Helper()
	var got Result
	require.Eventually(t, func() bool {
		r, ok := o.Poll()
		if ok {
			got = r
		}
		return ok
	}, 2*time.Second, time.Millisecond)
	return got
}

func TestOrchestrator_StartDeliversFirstResult(t *testing.T) {
	f := &fakeFetcher{}
	o := New(f, nil)
	defer closeOrchestrator(t, o)

	assert.Equal(t, StateIdle, o.State())
	require.NoError(t, o.Start(berlin, models.UnitsMetric))
	assert.Equal(t, StateRunning, o.State())

	r := pollEventually(t, o)
	require.NoError(t, r.Err)
	assert.Equal(t, 1.0, r.Data.Temperature)
	assert.False(t, r.Manual)

	_, ok := o.Poll()
	assert.False(t, ok, "one result per fetch")

	calls := f.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, berlin, calls[0].Location)
	assert.False(t, calls[0].BypassCache)
}

func TestOrchestrator_StartTwice(t *testing.T) {
	o := New(&fakeFetcher{}, nil)
	defer closeOrchestrator(t, o)

	require.NoError(t, o.Start(berlin, models.UnitsMetric))
	assert.ErrorIs(t, o.Start(berlin, models.UnitsMetric), ErrStarted)
}

func TestOrchestrator_NoFetcher(t *testing.T) {
	o := New(nil, nil)
	assert.ErrorIs(t, o.Start(berlin, models.UnitsMetric), ErrNoFetcher)
	assert.False(t, o.ManualRefresh())
	_, ok := o.Poll()
	assert.False(t, ok)
	assert.Equal(t, StateIdle, o.State())
}

func TestOrchestrator_PeriodicFetch(t *testing.T) {
	f := &fakeFetcher{}
	o := New(f, nil, WithInterval(5*time.Millisecond))
	defer closeOrchestrator(t, o)

	require.NoError(t, o.Start(berlin, models.UnitsMetric))
	first := pollEventually(t, o)
	second := pollEventually(t, o)
	assert.Greater(t, second.Data.Temperature, first.Data.Temperature)
}

func TestOrchestrator_FailuresAreDeliveredAndLoopContinues(t *testing.T) {
	boom := errors.New("upstream down")
	proceed := make(chan struct{})
	f := &fakeFetcher{fn: func(ctx context.Context, n int, req service.Request) (models.WeatherData, error) {
		if n == 1 {
			return models.WeatherData{}, boom
		}
		select {
		case <-proceed:
		case <-ctx.Done():
			return models.WeatherData{}, ctx.Err()
		}
		return models.WeatherData{Temperature: 9}, nil
	}}
	o := New(f, nil, WithInterval(5*time.Millisecond))
	defer closeOrchestrator(t, o)

	require.NoError(t, o.Start(berlin, models.UnitsMetric))
	r := pollEventually(t, o)
	assert.ErrorIs(t, r.Err, boom)

	close(proceed)
	r = pollEventually(t, o)
	require.NoError(t, r.Err)
	assert.Equal(t, 9.0, r.Data.Temperature)
}

func TestOrchestrator_ManualRefreshBypassesCache(t *testing.T) {
	f := &fakeFetcher{}
	o := New(f, nil)
	defer closeOrchestrator(t, o)

	require.NoError(t, o.Start(berlin, models.UnitsMetric))
	pollEventually(t, o)

	require.True(t, o.ManualRefresh())
	assert.True(t, o.Refreshing())

	r := pollEventually(t, o)
	assert.True(t, r.Manual)
	assert.False(t, o.Refreshing(), "receiving a result clears refreshing")
	assert.Equal(t, StateRunning, o.State())

	calls := f.calls()
	require.Len(t, calls, 2)
	assert.True(t, calls[1].BypassCache)
}

// TestOrchestrator_DoubleManualRefreshLeavesOneTask verifies that back-to-back manual
// refreshes cancel their predecessors so only one task survives.
func TestOrchestrator_DoubleManualRefreshLeavesOneTask(t *testing.T) {
	f := &fakeFetcher{fn: blockUntilCanceled}
	o := New(f, nil)
	defer closeOrchestrator(t, o)

	require.NoError(t, o.Start(berlin, models.UnitsMetric))
	require.True(t, o.ManualRefresh())
	require.True(t, o.ManualRefresh())

	require.Eventually(t, func() bool { return o.Active() == 1 }, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return f.inFlight.Load() == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, StateRefreshing, o.State())
}

// TestOrchestrator_StaleTaskNeverReachesConsumer covers a task that ignores
// cancellation and finishes its fetch after being replaced.
func TestOrchestrator_StaleTaskNeverReachesConsumer(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	f := &fakeFetcher{fn: func(ctx context.Context, n int, req service.Request) (models.WeatherData, error) {
		if n == 1 {
			close(entered)
			<-release
			return models.WeatherData{Temperature: -100}, nil
		}
		return models.WeatherData{Temperature: 21}, nil
	}}
	o := New(f, nil)
	defer closeOrchestrator(t, o)

	require.NoError(t, o.Start(berlin, models.UnitsMetric))
	<-entered
	require.True(t, o.ManualRefresh())

	r := pollEventually(t, o)
	assert.Equal(t, 21.0, r.Data.Temperature)

	close(release)
	require.Eventually(t, func() bool { return o.Active() == 1 }, 2*time.Second, time.Millisecond)
	_, ok := o.Poll()
	assert.False(t, ok, "retired task result must be dropped")
}

func TestOrchestrator_CloseWaitsForTasks(t *testing.T) {
	f := &fakeFetcher{fn: blockUntilCanceled}
	o := New(f, nil)

	require.NoError(t, o.Start(berlin, models.UnitsMetric))
	require.Eventually(t, func() bool { return f.inFlight.Load() == 1 }, 2*time.Second, time.Millisecond)

	closeOrchestrator(t, o)
	assert.Equal(t, 0, o.Active())
	assert.Equal(t, StateIdle, o.State())
	assert.False(t, o.ManualRefresh())
	assert.ErrorIs(t, o.Start(berlin, models.UnitsMetric), ErrClosed)
}

func TestTask_DeliverLatestWins(t *testing.T) {
	tk := &task{results: make(chan Result, 1), retired: make(chan struct{}), cancel: func() {}}

	require.True(t, tk.deliver(Result{Data: models.WeatherData{Temperature: 1}}))
	require.True(t, tk.deliver(Result{Data: models.WeatherData{Temperature: 2}}))

	r := <-tk.results
	assert.Equal(t, 2.0, r.Data.Temperature)
	select {
	case <-tk.results:
		t.Fatal("older result should have been replaced")
	default:
	}

	tk.retire()
	tk.retire()
	assert.False(t, tk.deliver(Result{}))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "refreshing", StateRefreshing.String())
	assert.Equal(t, "unknown", State(42).String())
}
