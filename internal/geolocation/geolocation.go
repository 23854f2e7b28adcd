// Package geolocation detects the machine's approximate location from its public IP.
package geolocation

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Veirt/weathr/internal/cache"
	"github.com/Veirt/weathr/internal/client"
	"github.com/Veirt/weathr/internal/models"
)

const (
	IPInfoURL      = "https://ipinfo.io/json"
	DefaultTimeout = 10 * time.Second
)

type Options struct {
	URL     string
	Timeout time.Duration
	Retry   *client.RetryPolicy
	Store   *cache.Store
	Logger  *zap.Logger
}

// Detector looks up the public IP's location via ipinfo.io.
type Detector struct {
	client *client.Client
	url    string
	policy client.RetryPolicy
	store  *cache.Store
	logger *zap.Logger
}

func New(opts Options) *Detector {
	if opts.URL == "" {
		opts.URL = IPInfoURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	policy := client.DefaultRetryPolicy()
	if opts.Retry != nil {
		policy = *opts.Retry
	}
	return &Detector{
		client: client.New("ipinfo", opts.Timeout),
		url:    opts.URL,
		policy: policy,
		store:  opts.Store,
		logger: opts.Logger,
	}
}

type ipinfoResponse struct {
	Loc     string `json:"loc"`
	City    string `json:"city"`
	Country string `json:"country"`
	Bogon   bool   `json:"bogon"`
}

// Detect performs a retried lookup without consulting the cache.
func (d *Detector) Detect(ctx context.Context) (models.GeoLocation, error) {
	loc, err := client.FetchWithRetry(ctx, d.policy, client.IsTerminal, func(ctx context.Context) (models.GeoLocation, error) {
		var resp ipinfoResponse
		if err := d.client.GetJSON(ctx, d.url, &resp); err != nil {
			return models.GeoLocation{}, err
		}
		if resp.Bogon {
			return models.GeoLocation{}, fmt.Errorf("%w: ipinfo: address is not publicly routable", client.ErrNotFound)
		}
		lat, lon, err := parseLoc(resp.Loc)
		if err != nil {
			return models.GeoLocation{}, fmt.Errorf("%w: ipinfo loc %q: %v", client.ErrProviderMapping, resp.Loc, err)
		}
		return models.GeoLocation{Latitude: lat, Longitude: lon, City: resp.City}, nil
	})
	if err != nil {
		d.logger.Warn("IP geolocation failed", zap.Error(err))
		return models.GeoLocation{}, err
	}
	return loc, nil
}

// DetectCached returns the cached location when fresh, otherwise detects and
// saves the result.
func (d *Detector) DetectCached(ctx context.Context) (models.GeoLocation, error) {
	if loc, ok := d.store.LoadLocation(ctx); ok {
		d.logger.Debug("Using cached location", zap.String("city", loc.City))
		return loc, nil
	}
	loc, err := d.Detect(ctx)
	if err != nil {
		return models.GeoLocation{}, err
	}
	d.store.SaveLocation(loc)
	return loc, nil
}

// parseLoc parses ipinfo's "lat,lon" field.
func parseLoc(s string) (float64, float64, error) {
	latStr, lonStr, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("expected \"lat,lon\"")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return 0, 0, err
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return 0, 0, err
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, fmt.Errorf("coordinates out of range")
	}
	return lat, lon, nil
}
