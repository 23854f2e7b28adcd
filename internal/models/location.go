package models

import "fmt"

// WeatherLocation is the point weather is requested for.
type WeatherLocation struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Elevation *float64 `json:"elevation,omitempty"`
}

// Key is the cache identity of the location: coordinates rounded to two decimals.
// Locations closer than roughly a kilometre share cached data.
func (l WeatherLocation) Key() string {
	return LocationKey(l.Latitude, l.Longitude)
}

func LocationKey(lat, lon float64) string {
	return fmt.Sprintf("%.2f,%.2f", lat, lon)
}

// GeoLocation is a resolved location with an optional display name, as produced
// by IP detection or forward geocoding.
type GeoLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city,omitempty"`
}

func (g GeoLocation) WeatherLocation() WeatherLocation {
	return WeatherLocation{Latitude: g.Latitude, Longitude: g.Longitude}
}
