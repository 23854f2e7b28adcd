// Package offline synthesizes a plausible reading for sessions whose first fetch
// failed and that have nothing cached to show.
package offline

import (
	"math/rand"
	"time"

	"github.com/Veirt/weathr/internal/models"
)

// Attribution marks synthesized readings.
const Attribution = "Offline: simulated weather"

var conditions = []models.Condition{
	models.ConditionClear,
	models.ConditionPartlyCloudy,
	models.ConditionCloudy,
	models.ConditionRain,
}

// Synthesize draws a reading from rng. Day is a local hour in [6, 18).
func Synthesize(rng *rand.Rand, now time.Time) models.WeatherData {
	condition := conditions[rng.Intn(len(conditions))]
	hour := now.Hour()

	precipitation := 0.0
	if condition.IsRaining() {
		precipitation = between(rng, 1, 5)
	}

	return models.WeatherData{
		Condition:           condition,
		Temperature:         between(rng, 10, 25),
		ApparentTemperature: between(rng, 10, 25),
		Humidity:            between(rng, 40, 80),
		Precipitation:       precipitation,
		WindSpeed:           between(rng, 5, 15),
		WindDirection:       between(rng, 0, 360),
		CloudCover:          between(rng, 20, 80),
		Pressure:            between(rng, 1000, 1020),
		Visibility:          models.Float64(10000),
		IsDay:               hour >= 6 && hour < 18,
		MoonPhase:           models.Float64(0.5),
		Timestamp:           now.Format(time.RFC3339),
		Attribution:         Attribution,
	}
}

// between returns a value in [lo, hi).
func between(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
