package models

import (
	"fmt"
	"strings"
)

// Condition is the normalized weather condition shared by every provider.
type Condition string

const (
	ConditionClear            Condition = "clear"
	ConditionPartlyCloudy     Condition = "partly-cloudy"
	ConditionCloudy           Condition = "cloudy"
	ConditionOvercast         Condition = "overcast"
	ConditionFog              Condition = "fog"
	ConditionDrizzle          Condition = "drizzle"
	ConditionRain             Condition = "rain"
	ConditionFreezingRain     Condition = "freezing-rain"
	ConditionRainShowers      Condition = "rain-showers"
	ConditionSnow             Condition = "snow"
	ConditionSnowGrains       Condition = "snow-grains"
	ConditionSnowShowers      Condition = "snow-showers"
	ConditionThunderstorm     Condition = "thunderstorm"
	ConditionThunderstormHail Condition = "thunderstorm-hail"
)

// AllConditions lists every condition in display order.
var AllConditions = []Condition{
	ConditionClear, ConditionPartlyCloudy, ConditionCloudy, ConditionOvercast,
	ConditionFog, ConditionDrizzle, ConditionRain, ConditionFreezingRain,
	ConditionRainShowers, ConditionSnow, ConditionSnowGrains, ConditionSnowShowers,
	ConditionThunderstorm, ConditionThunderstormHail,
}

// IsRaining reports whether the condition produces liquid precipitation.
func (c Condition) IsRaining() bool {
	switch c {
	case ConditionDrizzle, ConditionRain, ConditionFreezingRain, ConditionRainShowers,
		ConditionThunderstorm, ConditionThunderstormHail:
		return true
	}
	return false
}

func (c Condition) IsSnowing() bool {
	switch c {
	case ConditionSnow, ConditionSnowGrains, ConditionSnowShowers:
		return true
	}
	return false
}

func (c Condition) IsThunderstorm() bool {
	return c == ConditionThunderstorm || c == ConditionThunderstormHail
}

// ConditionFromWMO maps a WMO weather interpretation code to a Condition.
// Unknown codes fall back to clear.
func ConditionFromWMO(code int) Condition {
	switch code {
	case 0:
		return ConditionClear
	case 1, 2:
		return ConditionPartlyCloudy
	case 3:
		return ConditionOvercast
	case 45, 48:
		return ConditionFog
	case 51, 53, 55:
		return ConditionDrizzle
	case 56, 57, 66, 67:
		return ConditionFreezingRain
	case 61, 63, 65:
		return ConditionRain
	case 71, 73, 75:
		return ConditionSnow
	case 77:
		return ConditionSnowGrains
	case 80, 81, 82:
		return ConditionRainShowers
	case 85, 86:
		return ConditionSnowShowers
	case 95:
		return ConditionThunderstorm
	case 96, 99:
		return ConditionThunderstormHail
	default:
		return ConditionClear
	}
}

// ParseCondition accepts the canonical names plus a few common aliases
// ("sunny", "storm", "showers"). Matching ignores case, spaces and underscores.
func ParseCondition(s string) (Condition, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", "-", " ", "-").Replace(norm)
	for _, c := range AllConditions {
		if string(c) == norm || strings.ReplaceAll(string(c), "-", "") == norm {
			return c, nil
		}
	}
	switch norm {
	case "sunny":
		return ConditionClear, nil
	case "storm":
		return ConditionThunderstorm, nil
	case "showers":
		return ConditionRainShowers, nil
	case "hail":
		return ConditionThunderstormHail, nil
	}
	return "", fmt.Errorf("unknown weather condition %q", s)
}
