// Package provider abstracts the remote weather sources. Each implementation turns
// one upstream's payload into a Response; the service layer normalizes Responses
// into models.WeatherData.
package provider

import (
	"context"

	"github.com/Veirt/weathr/internal/models"
)

// Response is one provider's current-conditions reading in the requested units.
// IsDay and MoonPhase are nil when the upstream cannot supply them.
type Response struct {
	Condition           models.Condition
	WeatherCode         int
	Temperature         float64
	ApparentTemperature float64
	Humidity            float64
	Precipitation       float64
	WindSpeed           float64
	WindDirection       float64
	CloudCover          float64
	Pressure            float64
	Visibility          *float64
	IsDay               *bool
	MoonPhase           *float64
	Timestamp           string
}

// Provider fetches current weather from one upstream. Implementations make a
// single attempt per call; retrying belongs to the caller.
type Provider interface {
	// Name identifies the provider in cache keys, metrics and configuration.
	Name() string
	CurrentWeather(ctx context.Context, loc models.WeatherLocation, units models.Units) (Response, error)
	Attribution() string
}

// SupplementaryRequest names a field group a supplementary provider can fill.
type SupplementaryRequest string

const (
	RequestPhasesOfMoon        SupplementaryRequest = "phases_of_moon"
	RequestSunAndMoonForOneDay SupplementaryRequest = "sun_and_moon_for_one_day"
)

// SupplementaryResponse carries only the fields the request could resolve.
type SupplementaryResponse struct {
	IsDay     *bool
	MoonPhase *float64
}

// SupplementaryProvider fills fields a primary provider lacks.
type SupplementaryProvider interface {
	Name() string
	Supplement(ctx context.Context, loc models.WeatherLocation, units models.Units, req SupplementaryRequest) (SupplementaryResponse, error)
	Capabilities() []SupplementaryRequest
	Attribution() string
}

func boolPtr(b bool) *bool { return &b }
