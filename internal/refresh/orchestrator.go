// Package refresh owns the background weather refresh task: a periodic fetch
// loop whose results reach a single foreground consumer through a capacity-1,
// latest-wins channel, plus manual refresh by abort-and-respawn.
package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Veirt/weathr/internal/models"
	"github.com/Veirt/weathr/internal/observability"
	"github.com/Veirt/weathr/internal/service"
)

// DefaultInterval is the time between periodic fetches.
const DefaultInterval = 300 * time.Second

var (
	// ErrNoFetcher is returned by Start when the orchestrator has nothing to fetch with.
	ErrNoFetcher = errors.New("refresh: no fetcher configured")
	// ErrStarted is returned by Start when a task is already live.
	ErrStarted = errors.New("refresh: already started")
	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("refresh: closed")
)

// Fetcher produces one weather reading. *service.WeatherService satisfies it.
type Fetcher interface {
	GetWeather(ctx context.Context, req service.Request) (models.WeatherData, error)
}

// State is the orchestrator lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Result is one completed fetch. Exactly one of Data and Err is meaningful.
type Result struct {
	Data      models.WeatherData
	Err       error
	Manual    bool
	FetchedAt time.Time
}

// Orchestrator runs at most one live refresh task. Start, ManualRefresh, Poll and
// Close are safe for concurrent use, but results are meant for one consumer.
type Orchestrator struct {
	fetcher  Fetcher
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	state  State
	req    service.Request
	cur    *task
	closed bool

	wg     sync.WaitGroup
	active atomic.Int32
}

type Option func(*Orchestrator)

// WithInterval overrides DefaultInterval. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.interval = d
		}
	}
}

// New creates an idle orchestrator. A nil fetcher makes Start fail and
// ManualRefresh a no-op, as in simulation mode.
func New(fetcher Fetcher, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		fetcher:  fetcher,
		interval: DefaultInterval,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// task is one spawned fetch loop and the channel it reports on. Once retired, the
// channel is abandoned: the loop stops sending and Poll no longer reads it.
type task struct {
	id         string
	cancel     context.CancelFunc
	results    chan Result
	retired    chan struct{}
	retireOnce sync.Once
}

func (t *task) retire() {
	t.retireOnce.Do(func() {
		close(t.retired)
		t.cancel()
	})
}

func (t *task) isRetired() bool {
	select {
	case <-t.retired:
		return true
	default:
		return false
	}
}

// deliver publishes r, replacing any unread older result. It reports false when
// the task has been retired. Each channel has a single sender, so the loop ends
// after at most one drain.
func (t *task) deliver(r Result) bool {
	for {
		if t.isRetired() {
			return false
		}
		select {
		case t.results <- r:
			return true
		default:
		}
		select {
		case <-t.results:
		default:
		}
	}
}

// Start moves Idle to Running and spawns the periodic task for loc in units.
func (o *Orchestrator) Start(loc models.WeatherLocation, units models.Units) error {
	if o.fetcher == nil {
		return ErrNoFetcher
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if o.state != StateIdle {
		return ErrStarted
	}
	o.req = service.Request{Location: loc, Units: units}
	o.cur = o.spawnLocked(false)
	o.state = StateRunning
	observability.RefreshesTotal.WithLabelValues("start").Inc()
	return nil
}

// ManualRefresh cancels and retires the live task and spawns a new one whose first
// fetch bypasses the weather cache. It reports whether a refresh was started.
func (o *Orchestrator) ManualRefresh() bool {
	if o.fetcher == nil {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.state == StateIdle {
		return false
	}
	if o.cur != nil {
		o.cur.retire()
	}
	o.cur = o.spawnLocked(true)
	o.state = StateRefreshing
	observability.RefreshesTotal.WithLabelValues("manual").Inc()
	o.logger.Info("Manual refresh", zap.String("task_id", o.cur.id))
	return true
}

// Poll returns the latest undelivered result, if any, without blocking.
func (o *Orchestrator) Poll() (Result, bool) {
	o.mu.Lock()
	t := o.cur
	o.mu.Unlock()
	if t == nil {
		return Result{}, false
	}

	select {
	case r := <-t.results:
		o.mu.Lock()
		if o.cur == t && o.state == StateRefreshing {
			o.state = StateRunning
		}
		o.mu.Unlock()
		return r, true
	default:
		return Result{}, false
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Refreshing reports whether a manual refresh is awaiting its first result.
func (o *Orchestrator) Refreshing() bool {
	return o.State() == StateRefreshing
}

// Active is the number of task goroutines that have not exited yet, including
// retired ones still unwinding.
func (o *Orchestrator) Active() int {
	return int(o.active.Load())
}

// Close retires the live task and waits for every task goroutine to exit or ctx to end.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	if o.cur != nil {
		o.cur.retire()
	}
	o.state = StateIdle
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// spawnLocked must be called with mu held.
func (o *Orchestrator) spawnLocked(bypassFirst bool) *task {
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		id:      uuid.NewString(),
		cancel:  cancel,
		results: make(chan Result, 1),
		retired: make(chan struct{}),
	}
	req := o.req
	req.BypassCache = bypassFirst

	o.wg.Add(1)
	o.active.Add(1)
	go o.run(ctx, t, req)
	return t
}

func (o *Orchestrator) run(ctx context.Context, t *task, req service.Request) {
	defer o.wg.Done()
	defer o.active.Add(-1)
	defer t.cancel()

	logger := o.logger.With(zap.String("task_id", t.id))
	logger.Debug("Refresh task started", zap.Bool("bypass_cache", req.BypassCache))
	manual := req.BypassCache

	timer := time.NewTimer(o.interval)
	timer.Stop()
	defer timer.Stop()

	for {
		data, err := o.fetcher.GetWeather(ctx, req)
		r := Result{Data: data, Err: err, Manual: manual, FetchedAt: time.Now()}

		if !t.deliver(r) {
			observability.RefreshResultsTotal.WithLabelValues("discarded").Inc()
			logger.Debug("Refresh task retired")
			return
		}
		if err != nil {
			observability.RefreshResultsTotal.WithLabelValues("error").Inc()
			logger.Warn("Weather refresh failed", zap.Error(err))
		} else {
			observability.RefreshResultsTotal.WithLabelValues("success").Inc()
		}

		req.BypassCache = false
		manual = false

		timer.Reset(o.interval)
		select {
		case <-ctx.Done():
			return
		case <-t.retired:
			return
		case <-timer.C:
		}
		observability.RefreshesTotal.WithLabelValues("interval").Inc()
	}
}
