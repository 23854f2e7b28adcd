package models

// WeatherData is the normalized current-conditions reading handed to the renderer
// and persisted in the weather cache.
type WeatherData struct {
	Condition           Condition `json:"condition"`
	Temperature         float64   `json:"temperature"`
	ApparentTemperature float64   `json:"apparent_temperature"`
	Humidity            float64   `json:"humidity"`
	Precipitation       float64   `json:"precipitation"`
	WindSpeed           float64   `json:"wind_speed"`
	WindDirection       float64   `json:"wind_direction"`
	CloudCover          float64   `json:"cloud_cover"`
	Pressure            float64   `json:"pressure"`
	Visibility          *float64  `json:"visibility,omitempty"`
	IsDay               bool      `json:"is_day"`
	MoonPhase           *float64  `json:"moon_phase,omitempty"`
	Timestamp           string    `json:"timestamp"`
	Attribution         string    `json:"attribution,omitempty"`
}

// Float64 returns a pointer to v. Used for the optional fields of WeatherData.
func Float64(v float64) *float64 {
	return &v
}
