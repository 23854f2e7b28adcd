// Package geocoding resolves city names to coordinates (Open-Meteo geocoding API)
// and coordinates back to a display label (OpenStreetMap Nominatim).
package geocoding

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Veirt/weathr/internal/cache"
	"github.com/Veirt/weathr/internal/client"
	"github.com/Veirt/weathr/internal/models"
	"github.com/Veirt/weathr/internal/validation"
)

const (
	SearchURL  = "https://geocoding-api.open-meteo.com/v1/search"
	ReverseURL = "https://nominatim.openstreetmap.org/reverse"

	// DefaultTimeout applies to both geocoding upstreams.
	DefaultTimeout = 10 * time.Second

	// DefaultLanguage is the result language for forward lookups.
	DefaultLanguage = "en"
)

// Location is a forward geocoding match.
type Location struct {
	Latitude  float64
	Longitude float64
	Name      string
	Country   string
}

// GeoLocation converts the match into the form cached as the last known location.
func (l Location) GeoLocation() models.GeoLocation {
	return models.GeoLocation{Latitude: l.Latitude, Longitude: l.Longitude, City: l.Label()}
}

// Label is "Name, Country", or just Name when the country is unknown.
func (l Location) Label() string {
	if l.Country == "" {
		return l.Name
	}
	return l.Name + ", " + l.Country
}

// Options configures a Geocoder. Zero values use the public endpoints and defaults.
type Options struct {
	SearchURL  string
	ReverseURL string
	Timeout    time.Duration
	Retry      *client.RetryPolicy
	Store      *cache.Store
	Logger     *zap.Logger
}

// Geocoder performs forward and reverse lookups. Forward lookups are retried with
// not-found as the only terminal class; reverse lookups go through the geocode cache.
type Geocoder struct {
	search     *client.Client
	reverse    *client.Client
	searchURL  string
	reverseURL string
	policy     client.RetryPolicy
	store      *cache.Store
	logger     *zap.Logger
}

func New(opts Options) *Geocoder {
	if opts.SearchURL == "" {
		opts.SearchURL = SearchURL
	}
	if opts.ReverseURL == "" {
		opts.ReverseURL = ReverseURL
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
	return &Geocoder{
		search:     client.New("geocoding", opts.Timeout),
		reverse:    client.New("nominatim", opts.Timeout),
		searchURL:  opts.SearchURL,
		reverseURL: opts.ReverseURL,
		policy:     policy,
		store:      opts.Store,
		logger:     opts.Logger,
	}
}

type searchResponse struct {
	Results []struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Name      string  `json:"name"`
		Country   string  `json:"country"`
	} `json:"results"`
}

// GeocodeCity returns the best match for city. An unknown city yields
// client.ErrNotFound without retrying.
func (g *Geocoder) GeocodeCity(ctx context.Context, city string) (Location, error) {
	name, err := validation.ValidateCity(city, validation.DefaultCityMinLen, validation.DefaultCityMaxLen)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", client.ErrConfig, err)
	}

	params := url.Values{}
	params.Set("name", name)
	params.Set("count", "1")
	params.Set("language", DefaultLanguage)
	reqURL := g.searchURL + "?" + params.Encode()

	loc, err := client.FetchWithRetry(ctx, g.policy, client.IsNotFound, func(ctx context.Context) (Location, error) {
		var resp searchResponse
		if err := g.search.GetJSON(ctx, reqURL, &resp); err != nil {
			return Location{}, err
		}
		if len(resp.Results) == 0 {
			return Location{}, fmt.Errorf("%w: city %q", client.ErrNotFound, name)
		}
		r := resp.Results[0]
		return Location{Latitude: r.Latitude, Longitude: r.Longitude, Name: r.Name, Country: r.Country}, nil
	})
	if err != nil {
		g.logger.Warn("Geocoding failed", zap.String("city", name), zap.Error(err))
		return Location{}, err
	}
	g.logger.Debug("Geocoded city",
		zap.String("city", name),
		zap.Float64("latitude", loc.Latitude),
		zap.Float64("longitude", loc.Longitude),
	)
	return loc, nil
}

type reverseResponse struct {
	Error   string `json:"error"`
	Name    string `json:"name"`
	Address struct {
		City         string `json:"city"`
		Town         string `json:"town"`
		Village      string `json:"village"`
		Municipality string `json:"municipality"`
		County       string `json:"county"`
		Country      string `json:"country"`
	} `json:"address"`
}

func (r reverseResponse) label() string {
	a := r.Address
	for _, s := range []string{a.City, a.Town, a.Village, a.Municipality, r.Name, a.County} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// ReverseGeocode returns a city label for loc in language. Fresh cached labels are
// returned without a request; successful lookups are written back to the cache.
func (g *Geocoder) ReverseGeocode(ctx context.Context, loc models.WeatherLocation, language string) (string, error) {
	if language == "" {
		language = DefaultLanguage
	}
	if name, ok := g.store.LoadGeocode(ctx, loc.Latitude, loc.Longitude, language); ok {
		return name, nil
	}

	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("lat", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	params.Set("zoom", "10")
	params.Set("accept-language", language)
	reqURL := g.reverseURL + "?" + params.Encode()

	name, err := client.FetchWithRetry(ctx, g.policy, client.IsTerminal, func(ctx context.Context) (string, error) {
		var resp reverseResponse
		if err := g.reverse.GetJSON(ctx, reqURL, &resp); err != nil {
			return "", err
		}
		if resp.Error != "" {
			return "", fmt.Errorf("%w: nominatim: %s", client.ErrNotFound, resp.Error)
		}
		label := resp.label()
		if label == "" {
			return "", fmt.Errorf("%w: nominatim returned no place name for %s", client.ErrNotFound, loc.Key())
		}
		return label, nil
	})
	if err != nil {
		return "", err
	}

	g.store.SaveGeocode(name, loc.Latitude, loc.Longitude, language)
	return name, nil
}
