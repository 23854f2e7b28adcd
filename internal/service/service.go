// Package service turns provider readings into models.WeatherData using a
// cache-aside read of the weather cache kind.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Veirt/weathr/internal/cache"
	"github.com/Veirt/weathr/internal/client"
	"github.com/Veirt/weathr/internal/models"
	"github.com/Veirt/weathr/internal/observability"
	"github.com/Veirt/weathr/internal/provider"
)

// Request describes one weather read.
type Request struct {
	Location models.WeatherLocation
	Units    models.Units
	// BypassCache skips the cache read. The result is still written back.
	BypassCache bool
}

// WeatherService orchestrates weather data retrieval using the cache-aside pattern
// with a retried provider call on miss.
type WeatherService struct {
	provider provider.Provider
	store    *cache.Store
	policy   client.RetryPolicy
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*WeatherService)

// WithRetryPolicy overrides the default three-attempt policy.
func WithRetryPolicy(p client.RetryPolicy) Option {
	return func(s *WeatherService) { s.policy = p }
}

// WithClock overrides time.Now for the day/night fallback.
func WithClock(now func() time.Time) Option {
	return func(s *WeatherService) { s.now = now }
}

// NewWeatherService creates a WeatherService. A nil store disables caching.
func NewWeatherService(p provider.Provider, store *cache.Store, logger *zap.Logger, opts ...Option) *WeatherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &WeatherService{
		provider: p,
		store:    store,
		policy:   client.DefaultRetryPolicy(),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Identity is the provider identity used in weather cache keys. Units are part of
// it so a metric reading is never served to an imperial request.
func (s *WeatherService) Identity(units models.Units) string {
	return s.provider.Name() + "/" + string(units)
}

// Attribution is the provider's attribution text.
func (s *WeatherService) Attribution() string {
	return s.provider.Attribution()
}

// GetWeather returns the cached reading when fresh, otherwise fetches from the
// provider with retry and writes the result behind.
func (s *WeatherService) GetWeather(ctx context.Context, req Request) (models.WeatherData, error) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx, s.logger)
	identity := s.Identity(req.Units)

	if !req.BypassCache {
		if cached, ok := s.store.LoadWeather(ctx, req.Location, identity); ok {
			logger.Debug("weather served",
				zap.String("location", req.Location.Key()),
				zap.Bool("cached", true),
				zap.Duration("duration", time.Since(start)),
			)
			return cached, nil
		}
		logger.Debug("cache miss, fetching upstream", zap.String("location", req.Location.Key()))
	}

	resp, err := client.FetchWithRetry(ctx, s.policy, client.IsTerminal, func(ctx context.Context) (provider.Response, error) {
		return s.provider.CurrentWeather(ctx, req.Location, req.Units)
	})
	if err != nil {
		return models.WeatherData{}, fmt.Errorf("fetch weather for %s: %w", req.Location.Key(), err)
	}

	data := s.normalize(resp)
	s.store.SaveWeather(data, req.Location, identity)

	logger.Debug("weather served",
		zap.String("location", req.Location.Key()),
		zap.String("provider", identity),
		zap.Bool("cached", false),
		zap.Duration("duration", time.Since(start)),
	)
	return data, nil
}

func (s *WeatherService) normalize(r provider.Response) models.WeatherData {
	data := models.WeatherData{
		Condition:           r.Condition,
		Temperature:         r.Temperature,
		ApparentTemperature: r.ApparentTemperature,
		Humidity:            r.Humidity,
		Precipitation:       r.Precipitation,
		WindSpeed:           r.WindSpeed,
		WindDirection:       r.WindDirection,
		CloudCover:          r.CloudCover,
		Pressure:            r.Pressure,
		Visibility:          r.Visibility,
		MoonPhase:           r.MoonPhase,
		Timestamp:           r.Timestamp,
		Attribution:         s.provider.Attribution(),
	}
	if data.Condition == "" {
		data.Condition = models.ConditionFromWMO(r.WeatherCode)
	}
	if r.IsDay != nil {
		data.IsDay = *r.IsDay
	} else {
		data.IsDay = IsDaytime(s.now())
	}
	return data
}

// IsDaytime is the fallback day/night rule: local hour in [6, 18).
func IsDaytime(t time.Time) bool {
	h := t.Hour()
	return h >= 6 && h < 18
}
