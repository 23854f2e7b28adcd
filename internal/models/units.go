package models

import (
	"fmt"
	"strings"
)

// Units selects the measurement system for temperature, wind and precipitation.
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

// ParseUnits accepts "metric" or "imperial"; an empty string yields metric.
func ParseUnits(s string) (Units, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "metric":
		return UnitsMetric, nil
	case "imperial":
		return UnitsImperial, nil
	}
	return "", fmt.Errorf("unknown units %q", s)
}

func (u Units) TemperatureSymbol() string {
	if u == UnitsImperial {
		return "°F"
	}
	return "°C"
}

func (u Units) WindSpeedSymbol() string {
	if u == UnitsImperial {
		return "mph"
	}
	return "km/h"
}

func (u Units) PrecipitationSymbol() string {
	if u == UnitsImperial {
		return "in"
	}
	return "mm"
}

func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

func FahrenheitToCelsius(f float64) float64 {
	return (f - 32) * 5 / 9
}

// TemperatureFromCelsius converts a Celsius reading into u.
func (u Units) TemperatureFromCelsius(c float64) float64 {
	if u == UnitsImperial {
		return CelsiusToFahrenheit(c)
	}
	return c
}

// WindSpeedFromMetresPerSecond converts m/s into km/h or mph.
func (u Units) WindSpeedFromMetresPerSecond(ms float64) float64 {
	if u == UnitsImperial {
		return ms * 2.236936
	}
	return ms * 3.6
}

// PrecipitationFromMillimetres converts mm into mm or inches.
func (u Units) PrecipitationFromMillimetres(mm float64) float64 {
	if u == UnitsImperial {
		return mm / 25.4
	}
	return mm
}
