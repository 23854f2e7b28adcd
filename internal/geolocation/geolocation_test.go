package geolocation

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

func TestDetect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ip":"203.0.113.9","city":"Berlin","country":"DE","loc":"52.5244,13.4105"}`))
	}))
	defer server.Close()

	d := New(Options{URL: server.URL, Retry: noSleepPolicy()})
	loc, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.GeoLocation{Latitude: 52.5244, Longitude: 13.4105, City: "Berlin"}, loc)
}

func TestDetect_MalformedLocIsTerminal(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"city":"Nowhere","loc":"north"}`))
	}))
	defer server.Close()

	d := New(Options{URL: server.URL, Retry: noSleepPolicy()})
	_, err := d.Detect(context.Background())
	assert.ErrorIs(t, err, client.ErrProviderMapping)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDetect_Bogon(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ip":"10.0.0.1","bogon":true}`))
	}))
	defer server.Close()

	_, err := New(Options{URL: server.URL, Retry: noSleepPolicy()}).Detect(context.Background())
	assert.ErrorIs(t, err, client.ErrNotFound)
}

func TestDetectCached(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"city":"Oslo","loc":"59.91,10.75"}`))
	}))
	defer server.Close()

	store := cache.NewStore(cache.NewMemoryBackend(), nil)
	d := New(Options{URL: server.URL, Retry: noSleepPolicy(), Store: store})

	first, err := d.DetectCached(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, store.Flush(ctx))

	second, err := d.DetectCached(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestParseLoc(t *testing.T) {
	tests := []struct {
		in      string
		lat     float64
		lon     float64
		wantErr bool
	}{
		{"52.52,13.41", 52.52, 13.41, false},
		{" -33.87 , 151.21 ", -33.87, 151.21, false},
		{"", 0, 0, true},
		{"91,0", 0, 0, true},
		{"1,abc", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			lat, lon, err := parseLoc(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.lat, lat)
			assert.Equal(t, tt.lon, lon)
		})
	}
}
