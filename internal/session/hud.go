package session

import (
	"fmt"
	"strings"
)

// HUD renders the one-line status shown by the headless renderer.
func HUD(s Snapshot) string {
	var parts []string
	if s.Location != "" {
		parts = append(parts, s.Location)
	}

	if w := s.Weather; w != nil {
		parts = append(parts,
			fmt.Sprintf("%s %.1f%s (feels %.1f%s)",
				w.Condition, w.Temperature, s.Units.TemperatureSymbol(),
				w.ApparentTemperature, s.Units.TemperatureSymbol()),
			fmt.Sprintf("humidity %.0f%%", w.Humidity),
			fmt.Sprintf("wind %.1f %s %.0f°", w.WindSpeed, s.Units.WindSpeedSymbol(), w.WindDirection),
		)
		if w.Precipitation > 0 {
			parts = append(parts, fmt.Sprintf("precip %.1f %s", w.Precipitation, s.Units.PrecipitationSymbol()))
		}
		if w.IsDay {
			parts = append(parts, "day")
		} else {
			parts = append(parts, "night")
		}
	} else {
		parts = append(parts, "Loading weather...")
	}

	switch {
	case s.Simulated:
		parts = append(parts, "[simulated]")
	case s.Offline:
		parts = append(parts, "[offline]")
	}
	if s.Message != "" {
		parts = append(parts, s.Message)
	}

	line := strings.Join(parts, " | ")
	if s.Refreshing {
		line = "[Refreshing...] " + line
	}
	return line
}
