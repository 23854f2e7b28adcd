package geocoding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veirt/weathr/internal/cache"
	"github.com/Veirt/weathr/internal/client"
	"github.com/Veirt/weathr/internal/models"
)

func noSleepPolicy() *client.RetryPolicy {
	return &client.RetryPolicy{
		MaxAttempts:  client.MaxRetries,
		InitialDelay: client.InitialRetryDelay,
		Sleep:        func(context.Context, time.Duration) error { return nil },
	}
}

func TestGeocodeCity(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		q := r.URL.Query()
		assert.Equal(t, "St. John's", q.Get("name"))
		assert.Equal(t, "1", q.Get("count"))
		assert.Equal(t, "en", q.Get("language"))
		_, _ = w.Write([]byte(`{"results":[{"latitude":47.56,"longitude":-52.71,"name":"St. John's","country":"Canada"}]}`))
	}))
	defer server.Close()

	g := New(Options{SearchURL: server.URL, Retry: noSleepPolicy()})
	loc, err := g.GeocodeCity(context.Background(), "  St. John's ")
	require.NoError(t, err)
	assert.Equal(t, 47.56, loc.Latitude)
	assert.Equal(t, -52.71, loc.Longitude)
	assert.Equal(t, "St. John's, Canada", loc.Label())
	assert.Equal(t, models.GeoLocation{Latitude: 47.56, Longitude: -52.71, City: "St. John's, Canada"}, loc.GeoLocation())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGeocodeCity_NotFoundIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"generationtime_ms":0.4}`))
	}))
	defer server.Close()

	g := New(Options{SearchURL: server.URL, Retry: noSleepPolicy()})
	_, err := g.GeocodeCity(context.Background(), "Atlantis")
	assert.ErrorIs(t, err, client.ErrNotFound)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGeocodeCity_RetriesTransientFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"latitude":52.52,"longitude":13.41,"name":"Berlin"}]}`))
	}))
	defer server.Close()

	g := New(Options{SearchURL: server.URL, Retry: noSleepPolicy()})
	loc, err := g.GeocodeCity(context.Background(), "Berlin")
	require.NoError(t, err)
	assert.Equal(t, "Berlin", loc.Label())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGeocodeCity_ExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	g := New(Options{SearchURL: server.URL, Retry: noSleepPolicy()})
	_, err := g.GeocodeCity(context.Background(), "Berlin")
	assert.ErrorIs(t, err, client.ErrRetriesExhausted)
	assert.ErrorIs(t, err, client.ErrNetwork)
}

func TestGeocodeCity_RejectsInvalidInput(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	g := New(Options{SearchURL: server.URL, Retry: noSleepPolicy()})
	_, err := g.GeocodeCity(context.Background(), "ber/lin")
	assert.ErrorIs(t, err, client.ErrConfig)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestReverseGeocode_ReadsThroughCache(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		q := r.URL.Query()
		assert.Equal(t, "jsonv2", q.Get("format"))
		assert.Equal(t, "de", q.Get("accept-language"))
		_, _ = w.Write([]byte(`{"name":"Mitte","address":{"city":"Berlin","country":"Deutschland"}}`))
	}))
	defer server.Close()

	store := cache.NewStore(cache.NewMemoryBackend(), nil)
	g := New(Options{ReverseURL: server.URL, Retry: noSleepPolicy(), Store: store})
	loc := models.WeatherLocation{Latitude: 52.52, Longitude: 13.41}

	name, err := g.ReverseGeocode(context.Background(), loc, "de")
	require.NoError(t, err)
	assert.Equal(t, "Berlin", name)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, store.Flush(ctx))

	// Rounds to the same key, so the second lookup never leaves the process.
	name, err = g.ReverseGeocode(context.Background(), models.WeatherLocation{Latitude: 52.5249, Longitude: 13.4120}, "de")
	require.NoError(t, err)
	assert.Equal(t, "Berlin", name)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestReverseGeocode_Labels(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"town", `{"address":{"town":"Whitby"}}`, "Whitby"},
		{"village", `{"address":{"village":"Hallstatt"}}`, "Hallstatt"},
		{"name fallback", `{"name":"Nowhere Station","address":{"county":"Outback"}}`, "Nowhere Station"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			g := New(Options{ReverseURL: server.URL, Retry: noSleepPolicy()})
			got, err := g.ReverseGeocode(context.Background(), models.WeatherLocation{}, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReverseGeocode_UnableToGeocode(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"error":"Unable to geocode"}`))
	}))
	defer server.Close()

	g := New(Options{ReverseURL: server.URL, Retry: noSleepPolicy()})
	_, err := g.ReverseGeocode(context.Background(), models.WeatherLocation{Latitude: 0, Longitude: -140}, "en")
	assert.ErrorIs(t, err, client.ErrNotFound)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
