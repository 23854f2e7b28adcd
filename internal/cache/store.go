package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Veirt/weathr/internal/models"
	"github.com/Veirt/weathr/internal/observability"
)

// Kind names one of the three cached artifacts. Each kind occupies a single slot.
type Kind string

const (
	KindLocation Kind = "location"
	KindGeocode  Kind = "geocode"
	KindWeather  Kind = "weather"
)

const (
	LocationTTL = 24 * time.Hour
	GeocodeTTL  = 24 * time.Hour
	WeatherTTL  = 5 * time.Minute

	writeTimeout = 5 * time.Second
)

// TTL returns how long an entry of kind k stays valid after it was written.
func (k Kind) TTL() time.Duration {
	switch k {
	case KindLocation:
		return LocationTTL
	case KindGeocode:
		return GeocodeTTL
	default:
		return WeatherTTL
	}
}

// Entry is the persisted record: the value, when it was written (unix seconds),
// and the key it was written for.
type Entry[T any] struct {
	Value    T      `json:"value"`
	CachedAt uint64 `json:"cached_at"`
	Key      string `json:"key"`
}

// Store is the typed TTL cache over a Backend. Reads never fail: absent, expired,
// mismatched and unreadable entries are all misses. Writes run detached and their
// errors are logged and dropped.
type Store struct {
	backend Backend
	logger  *zap.Logger
	now     func() time.Time
	pending sync.WaitGroup
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the wall clock used for TTL checks and timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore wraps backend. A nil backend yields a store that always misses.
func NewStore(backend Backend, logger *zap.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{backend: backend, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the value stored under kind if it was written for key less than
// kind.TTL() ago.
func Load[T any](ctx context.Context, s *Store, kind Kind, key string) (T, bool) {
	var zero T
	if s == nil || s.backend == nil {
		return zero, false
	}

	data, err := s.backend.Get(ctx, string(kind))
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			s.logger.Debug("cache read failed", zap.String("kind", string(kind)), zap.Error(err))
		}
		return zero, s.miss(kind)
	}

	var entry Entry[T]
	if err := json.Unmarshal(data, &entry); err != nil {
		s.logger.Debug("cache entry unreadable", zap.String("kind", string(kind)), zap.Error(err))
		return zero, s.miss(kind)
	}
	if entry.Key != key {
		return zero, s.miss(kind)
	}

	now := s.now().Unix()
	if now < 0 || entry.CachedAt > uint64(now) {
		return zero, s.miss(kind)
	}
	if uint64(now)-entry.CachedAt >= uint64(kind.TTL()/time.Second) {
		return zero, s.miss(kind)
	}

	observability.CacheHitsTotal.WithLabelValues(string(kind)).Inc()
	return entry.Value, true
}

func (s *Store) miss(kind Kind) bool {
	observability.CacheMissesTotal.WithLabelValues(string(kind)).Inc()
	return false
}

// Save writes value under kind for key without blocking the caller.
func Save[T any](s *Store, kind Kind, key string, value T) {
	if s == nil || s.backend == nil {
		return
	}
	entry := Entry[T]{Value: value, CachedAt: uint64(s.now().Unix()), Key: key}
	data, err := json.Marshal(entry)
	if err != nil {
		s.logger.Debug("cache entry not serializable", zap.String("kind", string(kind)), zap.Error(err))
		return
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := s.backend.Set(ctx, string(kind), data, kind.TTL()); err != nil {
			observability.CacheWriteErrorsTotal.WithLabelValues(string(kind)).Inc()
			s.logger.Debug("cache write failed", zap.String("kind", string(kind)), zap.Error(err))
		}
	}()
}

// Flush waits for detached writes to finish or ctx to end.
func (s *Store) Flush(ctx context.Context) error {
	if s == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GeocodeKey identifies a reverse-geocoded name by rounded location and language.
func GeocodeKey(lat, lon float64, language string) string {
	return models.LocationKey(lat, lon) + "|" + language
}

// WeatherKey identifies a weather reading by rounded location and provider identity.
func WeatherKey(loc models.WeatherLocation, provider string) string {
	return loc.Key() + "|" + provider
}

// LoadLocation returns the last detected location.
func (s *Store) LoadLocation(ctx context.Context) (models.GeoLocation, bool) {
	return Load[models.GeoLocation](ctx, s, KindLocation, "")
}

func (s *Store) SaveLocation(loc models.GeoLocation) {
	Save(s, KindLocation, "", loc)
}

// LoadGeocode returns the cached place name for the coordinates in language.
func (s *Store) LoadGeocode(ctx context.Context, lat, lon float64, language string) (string, bool) {
	return Load[string](ctx, s, KindGeocode, GeocodeKey(lat, lon, language))
}

func (s *Store) SaveGeocode(name string, lat, lon float64, language string) {
	Save(s, KindGeocode, GeocodeKey(lat, lon, language), name)
}

// LoadWeather returns the cached reading for loc produced by provider.
func (s *Store) LoadWeather(ctx context.Context, loc models.WeatherLocation, provider string) (models.WeatherData, bool) {
	return Load[models.WeatherData](ctx, s, KindWeather, WeatherKey(loc, provider))
}

func (s *Store) SaveWeather(data models.WeatherData, loc models.WeatherLocation, provider string) {
	Save(s, KindWeather, WeatherKey(loc, provider), data)
}
