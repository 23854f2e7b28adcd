package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Veirt/weathr/internal/client"
	"github.com/Veirt/weathr/internal/models"
	"github.com/Veirt/weathr/internal/observability"
)

const (
	MetOfficeName        = "met-office"
	MetOfficeURL         = "https://data.hub.api.metoffice.gov.uk/sitespecific/v0/point/hourly"
	metOfficeAttribution = "Data supplied by the Met Office"
	defaultDataSource    = "BD1"
)

// MetOfficeConfig holds the site-specific API credentials and request options.
type MetOfficeConfig struct {
	APIKey              string
	IncludeLocationName bool
	DataSource          string
	BaseURL             string
}

// MetOffice queries the Met Office site-specific hourly API. The API is rate
// limited, so the last successful response is memoized and reused while one of
// its hourly entries still covers the current time.
type MetOffice struct {
	client *client.Client
	cfg    MetOfficeConfig
	now    func() time.Time

	// mu guards last. Callers that find it held fetch independently rather than wait.
	mu   sync.Mutex
	last *metOfficeResponse
}

// NewMetOffice validates the API key and builds the provider. The key must be
// non-empty printable ASCII since it travels in a header.
func NewMetOffice(cfg MetOfficeConfig, timeout time.Duration) (*MetOffice, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: Met Office API key is required", client.ErrConfig)
	}
	for _, r := range cfg.APIKey {
		if r < 32 || r > 126 {
			return nil, fmt.Errorf("%w: Met Office API key contains invalid characters", client.ErrConfig)
		}
	}
	if cfg.DataSource == "" {
		cfg.DataSource = defaultDataSource
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = MetOfficeURL
	}

	return &MetOffice{
		client: client.New(MetOfficeName, timeout, client.WithHeader("apikey", cfg.APIKey)),
		cfg:    cfg,
		now:    time.Now,
	}, nil
}

func (p *MetOffice) Name() string { return MetOfficeName }

func (p *MetOffice) Attribution() string { return metOfficeAttribution }

type metOfficeParameter struct {
	Description string `json:"description"`
	Type        string `json:"type"`
	Unit        struct {
		Label  string            `json:"label"`
		Symbol map[string]string `json:"symbol"`
	} `json:"unit"`
}

type metOfficeTimeSeries struct {
	Time                   string   `json:"time"`
	ScreenTemperature      *float64 `json:"screenTemperature"`
	FeelsLikeTemperature   *float64 `json:"feelsLikeTemperature"`
	ScreenRelativeHumidity float64  `json:"screenRelativeHumidity"`
	WindSpeed10m           float64  `json:"windSpeed10m"`
	WindDirectionFrom10m   float64  `json:"windDirectionFrom10m"`
	WindGustSpeed10m       float64  `json:"windGustSpeed10m"`
	MSLP                   float64  `json:"mslp"`
	Visibility             *float64 `json:"visibility"`
	PrecipitationRate      float64  `json:"precipitationRate"`
	SignificantWeatherCode *int     `json:"significantWeatherCode"`
	UVIndex                float64  `json:"uvIndex"`
}

type metOfficeResponse struct {
	Features []struct {
		Properties struct {
			Location   map[string]string     `json:"location"`
			TimeSeries []metOfficeTimeSeries `json:"timeSeries"`
		} `json:"properties"`
	} `json:"features"`
	Parameters []map[string]metOfficeParameter `json:"parameters"`
}

// CurrentWeather returns the reading for the hour covering now.
func (p *MetOffice) CurrentWeather(ctx context.Context, loc models.WeatherLocation, units models.Units) (Response, error) {
	now := p.now()

	if !p.mu.TryLock() {
		observability.ProviderMemoTotal.WithLabelValues(MetOfficeName, "contended").Inc()
		data, err := p.fetch(ctx, loc)
		if err != nil {
			return Response{}, err
		}
		return p.respond(data, now, units)
	}
	defer p.mu.Unlock()

	if p.last != nil {
		if _, ok := currentTimeSeries(p.last, now); ok {
			observability.ProviderMemoTotal.WithLabelValues(MetOfficeName, "hit").Inc()
			return p.respond(p.last, now, units)
		}
		observability.ProviderMemoTotal.WithLabelValues(MetOfficeName, "stale").Inc()
	}

	data, err := p.fetch(ctx, loc)
	if err != nil {
		return Response{}, err
	}
	p.last = data
	return p.respond(data, now, units)
}

func (p *MetOffice) fetch(ctx context.Context, loc models.WeatherLocation) (*metOfficeResponse, error) {
	var data metOfficeResponse
	if err := p.client.GetJSON(ctx, p.buildURL(loc), &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (p *MetOffice) buildURL(loc models.WeatherLocation) string {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	params.Set("includeLocationName", strconv.FormatBool(p.cfg.IncludeLocationName))
	params.Set("dataSource", p.cfg.DataSource)
	return p.cfg.BaseURL + "?" + params.Encode()
}

func (p *MetOffice) respond(data *metOfficeResponse, now time.Time, units models.Units) (Response, error) {
	ts, ok := currentTimeSeries(data, now)
	if !ok {
		return Response{}, fmt.Errorf("%w: met office response has no time series covering %s", client.ErrProviderMapping, now.UTC().Format(time.RFC3339))
	}
	if ts.ScreenTemperature == nil || ts.SignificantWeatherCode == nil {
		return Response{}, fmt.Errorf("%w: met office time series missing screenTemperature or significantWeatherCode", client.ErrProviderMapping)
	}

	temperature := normalizeScreenTemperature(*ts.ScreenTemperature, data.Parameters, units)
	apparent := temperature
	if ts.FeelsLikeTemperature != nil {
		apparent = normalizeScreenTemperature(*ts.FeelsLikeTemperature, data.Parameters, units)
	}
	condition := conditionFromMetOffice(*ts.SignificantWeatherCode)

	return Response{
		Condition:           condition,
		WeatherCode:         *ts.SignificantWeatherCode,
		Temperature:         temperature,
		ApparentTemperature: apparent,
		Humidity:            ts.ScreenRelativeHumidity,
		Precipitation:       units.PrecipitationFromMillimetres(ts.PrecipitationRate),
		WindSpeed:           units.WindSpeedFromMetresPerSecond(ts.WindSpeed10m),
		WindDirection:       ts.WindDirectionFrom10m,
		CloudCover:          cloudCoverFor(condition),
		Pressure:            ts.MSLP / 100,
		Visibility:          ts.Visibility,
		Timestamp:           ts.Time,
	}, nil
}

// currentTimeSeries finds the hourly entry whose [start, start+1h] bucket contains now.
func currentTimeSeries(data *metOfficeResponse, now time.Time) (metOfficeTimeSeries, bool) {
	for _, feature := range data.Features {
		for _, ts := range feature.Properties.TimeSeries {
			start, err := parseMetOfficeTime(ts.Time)
			if err != nil {
				continue
			}
			if !now.Before(start) && !now.After(start.Add(time.Hour)) {
				return ts, true
			}
		}
	}
	return metOfficeTimeSeries{}, false
}

// parseMetOfficeTime accepts RFC 3339 and the API's seconds-less "2024-05-01T12:00Z" form.
func parseMetOfficeTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, strings.Replace(s, "Z", ":00Z", 1))
}

// normalizeScreenTemperature converts a Met Office temperature into units. Without a
// unit definition the value is taken as Celsius.
func normalizeScreenTemperature(v float64, params []map[string]metOfficeParameter, units models.Units) float64 {
	for _, group := range params {
		param, ok := group["screenTemperature"]
		if !ok || param.Type != "Parameter" {
			continue
		}
		if param.Unit.Label == "degrees Celsius" {
			return units.TemperatureFromCelsius(v)
		}
		return units.TemperatureFromCelsius(models.FahrenheitToCelsius(v))
	}
	return units.TemperatureFromCelsius(v)
}

// conditionFromMetOffice maps significant weather codes (0-30, -1 trace rain).
func conditionFromMetOffice(code int) models.Condition {
	switch code {
	case 0, 1:
		return models.ConditionClear
	case 2, 3:
		return models.ConditionPartlyCloudy
	case 5, 6:
		return models.ConditionFog
	case 7:
		return models.ConditionCloudy
	case 8:
		return models.ConditionOvercast
	case -1, 11:
		return models.ConditionDrizzle
	case 9, 10, 13, 14:
		return models.ConditionRainShowers
	case 12, 15:
		return models.ConditionRain
	case 16, 17, 18:
		return models.ConditionFreezingRain
	case 19, 20, 21:
		return models.ConditionThunderstormHail
	case 22, 23, 25, 26:
		return models.ConditionSnowShowers
	case 24, 27:
		return models.ConditionSnow
	case 28, 29, 30:
		return models.ConditionThunderstorm
	default:
		return models.ConditionCloudy
	}
}

// cloudCoverFor estimates cloud cover percent; the hourly product has no cloud field.
func cloudCoverFor(c models.Condition) float64 {
	switch c {
	case models.ConditionClear:
		return 5
	case models.ConditionPartlyCloudy:
		return 40
	case models.ConditionCloudy:
		return 75
	default:
		return 95
	}
}
