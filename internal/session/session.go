// Package session is the single consumer of refresh results. It keeps the
// reading on screen, the offline flag and the last failure message, and hands
// renderers and the status server an immutable Snapshot.
package session

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Veirt/weathr/internal/client"
	"github.com/Veirt/weathr/internal/models"
	"github.com/Veirt/weathr/internal/observability"
	"github.com/Veirt/weathr/internal/offline"
	"github.com/Veirt/weathr/internal/refresh"
	"github.com/Veirt/weathr/internal/traffic"
)

// Refresher is the part of refresh.Orchestrator the session drives.
type Refresher interface {
	Poll() (refresh.Result, bool)
	ManualRefresh() bool
	Refreshing() bool
}

// Snapshot is a copy of the session state for display.
type Snapshot struct {
	Weather     *models.WeatherData `json:"weather,omitempty"`
	Location    string              `json:"location,omitempty"`
	Units       models.Units        `json:"units"`
	Offline     bool                `json:"offline"`
	Refreshing  bool                `json:"refreshing"`
	Simulated   bool                `json:"simulated"`
	Message     string              `json:"message,omitempty"`
	Attribution string              `json:"attribution,omitempty"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

type Options struct {
	// Location is the display label; empty when hidden.
	Location string
	Units    models.Units
	Logger   *zap.Logger
	Rand     *rand.Rand
	Now      func() time.Time
	// Outcomes, when set, records every consumed result for /health.
	Outcomes *traffic.Tracker
}

func (o *Options) defaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Units == "" {
		o.Units = models.UnitsMetric
	}
}

// Session is safe for one Tick caller plus any number of Snapshot readers.
type Session struct {
	refresher Refresher
	opts      Options

	mu        sync.RWMutex
	weather   *models.WeatherData
	offline   bool
	message   string
	simulated bool
	updatedAt time.Time
}

// New creates a session fed by r.
func New(r Refresher, opts Options) *Session {
	opts.defaults()
	return &Session{refresher: r, opts: opts}
}

// NewSimulated creates a session showing a fixed reading for condition. It has
// no refresher, so Refresh is a no-op.
func NewSimulated(condition models.Condition, night bool, opts Options) *Session {
	opts.defaults()
	w := SimulatedWeather(condition, night)
	return &Session{
		opts:      opts,
		weather:   &w,
		simulated: true,
		updatedAt: opts.Now(),
	}
}

// SimulatedWeather is the fixed reading used for --simulate.
func SimulatedWeather(condition models.Condition, night bool) models.WeatherData {
	precipitation := 0.0
	if condition.IsRaining() {
		precipitation = 2.5
	}
	wind := 10.0
	if condition.IsThunderstorm() {
		wind = 45
	}
	return models.WeatherData{
		Condition:           condition,
		Temperature:         20,
		ApparentTemperature: 19,
		Humidity:            65,
		Precipitation:       precipitation,
		WindSpeed:           wind,
		WindDirection:       225,
		CloudCover:          50,
		Pressure:            1013,
		Visibility:          models.Float64(10000),
		IsDay:               !night,
		MoonPhase:           models.Float64(0.5),
		Timestamp:           "simulated",
	}
}

// Tick consumes at most one refresh result. It reports whether the snapshot changed.
func (s *Session) Tick() bool {
	if s.refresher == nil {
		return false
	}
	r, ok := s.refresher.Poll()
	if !ok {
		return false
	}
	s.apply(r)
	return true
}

func (s *Session) apply(r refresh.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updatedAt = s.opts.Now()

	if r.Err == nil {
		s.opts.Outcomes.RecordSuccess()
		w := r.Data
		s.weather = &w
		s.offline = false
		s.message = ""
		return
	}

	s.opts.Outcomes.RecordFailure()
	s.message = client.UserMessage(r.Err)
	s.offline = true
	s.opts.Logger.Warn("Weather unavailable",
		zap.String("category", string(client.CategorizeError(r.Err))),
		zap.Error(r.Err),
	)
	if s.weather == nil {
		w := offline.Synthesize(s.opts.Rand, s.opts.Now())
		s.weather = &w
		observability.OfflineFallbacksTotal.Inc()
		s.opts.Logger.Info("Showing synthesized offline weather", zap.String("condition", string(w.Condition)))
	}
}

// Refresh requests a manual refresh. It reports false in simulation mode.
func (s *Session) Refresh() bool {
	if s.refresher == nil {
		return false
	}
	return s.refresher.ManualRefresh()
}

func (s *Session) Simulated() bool {
	return s.simulated
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Location:  s.opts.Location,
		Units:     s.opts.Units,
		Offline:   s.offline,
		Simulated: s.simulated,
		Message:   s.message,
		UpdatedAt: s.updatedAt,
	}
	if s.refresher != nil {
		snap.Refreshing = s.refresher.Refreshing()
	}
	if s.weather != nil {
		w := *s.weather
		snap.Weather = &w
		snap.Attribution = w.Attribution
	}
	return snap
}
