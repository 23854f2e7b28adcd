package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Veirt/weathr/internal/client"
	"github.com/Veirt/weathr/internal/models"
)

const (
	OpenMeteoName        = "open-meteo"
	OpenMeteoURL         = "https://api.open-meteo.com/v1/forecast"
	openMeteoAttribution = "Weather data by Open-Meteo.com"
)

var openMeteoCurrentFields = []string{
	"temperature_2m",
	"relative_humidity_2m",
	"apparent_temperature",
	"is_day",
	"precipitation",
	"weather_code",
	"cloud_cover",
	"pressure_msl",
	"wind_speed_10m",
	"wind_direction_10m",
	"visibility",
}

// OpenMeteo is the keyless default provider.
type OpenMeteo struct {
	client  *client.Client
	baseURL string
}

// NewOpenMeteo creates the provider. An empty baseURL uses the public API.
func NewOpenMeteo(baseURL string, timeout time.Duration) *OpenMeteo {
	if baseURL == "" {
		baseURL = OpenMeteoURL
	}
	return &OpenMeteo{
		client:  client.New(OpenMeteoName, timeout),
		baseURL: baseURL,
	}
}

func (p *OpenMeteo) Name() string { return OpenMeteoName }

func (p *OpenMeteo) Attribution() string { return openMeteoAttribution }

type openMeteoResponse struct {
	CurrentUnits map[string]string `json:"current_units"`
	Current      struct {
		Time                string   `json:"time"`
		Temperature         *float64 `json:"temperature_2m"`
		RelativeHumidity    *float64 `json:"relative_humidity_2m"`
		ApparentTemperature *float64 `json:"apparent_temperature"`
		IsDay               *int     `json:"is_day"`
		Precipitation       float64  `json:"precipitation"`
		WeatherCode         *int     `json:"weather_code"`
		CloudCover          float64  `json:"cloud_cover"`
		PressureMSL         float64  `json:"pressure_msl"`
		WindSpeed           float64  `json:"wind_speed_10m"`
		WindDirection       float64  `json:"wind_direction_10m"`
		Visibility          *float64 `json:"visibility"`
	} `json:"current"`
}

// CurrentWeather performs one forecast request for the current hour.
func (p *OpenMeteo) CurrentWeather(ctx context.Context, loc models.WeatherLocation, units models.Units) (Response, error) {
	reqURL, err := p.buildURL(loc, units)
	if err != nil {
		return Response{}, err
	}

	var raw openMeteoResponse
	if err := p.client.GetJSON(ctx, reqURL, &raw); err != nil {
		return Response{}, err
	}
	return mapOpenMeteo(raw, units)
}

func (p *OpenMeteo) buildURL(loc models.WeatherLocation, units models.Units) (string, error) {
	base, err := url.Parse(p.baseURL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid Open-Meteo URL: %v", client.ErrConfig, err)
	}

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	params.Set("current", strings.Join(openMeteoCurrentFields, ","))
	params.Set("timezone", "auto")
	if loc.Elevation != nil {
		params.Set("elevation", strconv.FormatFloat(*loc.Elevation, 'f', -1, 64))
	}
	if units == models.UnitsImperial {
		params.Set("temperature_unit", "fahrenheit")
		params.Set("wind_speed_unit", "mph")
		params.Set("precipitation_unit", "inch")
	} else {
		params.Set("temperature_unit", "celsius")
		params.Set("wind_speed_unit", "kmh")
		params.Set("precipitation_unit", "mm")
	}
	base.RawQuery = params.Encode()
	return base.String(), nil
}

func mapOpenMeteo(raw openMeteoResponse, units models.Units) (Response, error) {
	cur := raw.Current
	var missing []string
	if cur.Temperature == nil {
		missing = append(missing, "temperature_2m")
	}
	if cur.ApparentTemperature == nil {
		missing = append(missing, "apparent_temperature")
	}
	if cur.RelativeHumidity == nil {
		missing = append(missing, "relative_humidity_2m")
	}
	if cur.WeatherCode == nil {
		missing = append(missing, "weather_code")
	}
	if cur.IsDay == nil {
		missing = append(missing, "is_day")
	}
	if len(missing) > 0 {
		return Response{}, fmt.Errorf("%w: open-meteo response missing %s", client.ErrProviderMapping, strings.Join(missing, ", "))
	}

	declared := raw.CurrentUnits["temperature_2m"]
	resp := Response{
		Condition:           models.ConditionFromWMO(*cur.WeatherCode),
		WeatherCode:         *cur.WeatherCode,
		Temperature:         normalizeTemperature(*cur.Temperature, declared, units),
		ApparentTemperature: normalizeTemperature(*cur.ApparentTemperature, raw.CurrentUnits["apparent_temperature"], units),
		Humidity:            *cur.RelativeHumidity,
		Precipitation:       cur.Precipitation,
		WindSpeed:           cur.WindSpeed,
		WindDirection:       cur.WindDirection,
		CloudCover:          cur.CloudCover,
		Pressure:            cur.PressureMSL,
		Visibility:          cur.Visibility,
		IsDay:               boolPtr(*cur.IsDay == 1),
		Timestamp:           cur.Time,
	}
	return resp, nil
}

// normalizeTemperature converts v from the declared unit label into units.
// An empty or unrecognized label is trusted to already be in units.
func normalizeTemperature(v float64, declared string, units models.Units) float64 {
	switch {
	case strings.Contains(declared, "F") || strings.Contains(strings.ToLower(declared), "fahrenheit"):
		if units == models.UnitsImperial {
			return v
		}
		return models.FahrenheitToCelsius(v)
	case strings.Contains(declared, "C") || strings.Contains(strings.ToLower(declared), "celsius"):
		return units.TemperatureFromCelsius(v)
	}
	return v
}
