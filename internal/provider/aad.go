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
	AADName = "aad"
	AADURL  = "https://aa.usno.navy.mil/api/"
)

var moonPhases = map[string]float64{
	"New Moon":        0.0,
	"Waxing Crescent": 0.15,
	"First Quarter":   0.25,
	"Waxing Gibbous":  0.35,
	"Full Moon":       0.5,
	"Waning Gibbous":  0.65,
	"Last Quarter":    0.75,
	"Waning Crescent": 0.85,
}

// MoonPhaseFromName maps a USNO phase name onto [0, 1). Unknown names read as new moon.
func MoonPhaseFromName(name string) float64 {
	return moonPhases[strings.TrimSpace(name)]
}

// AAD is the supplementary provider backed by the US Naval Observatory
// Astronomical Applications API. It needs no key.
type AAD struct {
	client  *client.Client
	baseURL string
	now     func() time.Time
}

func NewAAD(baseURL string, timeout time.Duration) *AAD {
	if baseURL == "" {
		baseURL = AADURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &AAD{
		client:  client.New(AADName, timeout),
		baseURL: baseURL,
		now:     time.Now,
	}
}

func (p *AAD) Name() string { return AADName }

func (p *AAD) Attribution() string {
	return "Astronomical data by the U.S. Naval Observatory"
}

func (p *AAD) Capabilities() []SupplementaryRequest {
	return []SupplementaryRequest{RequestPhasesOfMoon, RequestSunAndMoonForOneDay}
}

type aadPhasesResponse struct {
	PhaseData []struct {
		Phase string `json:"phase"`
	} `json:"phasedata"`
}

type aadOneDayResponse struct {
	Properties struct {
		Data struct {
			CurPhase string `json:"curphase"`
			SunData  []struct {
				Phen string `json:"phen"`
				Time string `json:"time"`
			} `json:"sundata"`
		} `json:"data"`
	} `json:"properties"`
}

// Supplement answers req for loc on the local calendar day.
func (p *AAD) Supplement(ctx context.Context, loc models.WeatherLocation, units models.Units, req SupplementaryRequest) (SupplementaryResponse, error) {
	now := p.now()
	reqURL, err := p.buildURL(req, loc, now)
	if err != nil {
		return SupplementaryResponse{}, err
	}

	switch req {
	case RequestPhasesOfMoon:
		var raw aadPhasesResponse
		if err := p.client.GetJSON(ctx, reqURL, &raw); err != nil {
			return SupplementaryResponse{}, err
		}
		if len(raw.PhaseData) == 0 {
			return SupplementaryResponse{}, fmt.Errorf("%w: aad phasedata is empty", client.ErrProviderMapping)
		}
		phase := MoonPhaseFromName(raw.PhaseData[0].Phase)
		return SupplementaryResponse{MoonPhase: &phase}, nil

	case RequestSunAndMoonForOneDay:
		var raw aadOneDayResponse
		if err := p.client.GetJSON(ctx, reqURL, &raw); err != nil {
			return SupplementaryResponse{}, err
		}
		data := raw.Properties.Data
		if data.CurPhase == "" {
			return SupplementaryResponse{}, fmt.Errorf("%w: aad response missing curphase", client.ErrProviderMapping)
		}
		var rise, set string
		for _, sd := range data.SunData {
			switch sd.Phen {
			case "Rise":
				rise = sd.Time
			case "Set":
				set = sd.Time
			}
		}
		riseMin, err := parseClockMinutes(rise)
		if err != nil {
			return SupplementaryResponse{}, fmt.Errorf("%w: aad sunrise: %v", client.ErrProviderMapping, err)
		}
		setMin, err := parseClockMinutes(set)
		if err != nil {
			return SupplementaryResponse{}, fmt.Errorf("%w: aad sunset: %v", client.ErrProviderMapping, err)
		}

		cur := now.Hour()*60 + now.Minute()
		phase := MoonPhaseFromName(data.CurPhase)
		return SupplementaryResponse{
			IsDay:     boolPtr(cur > riseMin && cur < setMin),
			MoonPhase: &phase,
		}, nil
	}
	return SupplementaryResponse{}, fmt.Errorf("%w: aad cannot answer %q", client.ErrConfig, req)
}

func (p *AAD) buildURL(req SupplementaryRequest, loc models.WeatherLocation, now time.Time) (string, error) {
	date := now.Format("2006-01-02")
	params := url.Values{}
	params.Set("date", date)

	switch req {
	case RequestPhasesOfMoon:
		params.Set("nump", "1")
		return p.baseURL + "moon/phases/date?" + params.Encode(), nil
	case RequestSunAndMoonForOneDay:
		tz, dst := standardOffsetHours(now)
		params.Set("coords", strconv.FormatFloat(loc.Latitude, 'f', -1, 64)+","+strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
		params.Set("tz", strconv.FormatFloat(tz, 'f', -1, 64))
		params.Set("dst", strconv.FormatBool(dst))
		return p.baseURL + "rstt/oneday?" + params.Encode(), nil
	}
	return "", fmt.Errorf("%w: unsupported supplementary request %q", client.ErrConfig, req)
}

// standardOffsetHours returns the zone's standard-time UTC offset in hours and whether
// daylight saving is in effect. USNO applies the DST hour itself when dst=true.
func standardOffsetHours(t time.Time) (float64, bool) {
	_, offset := t.Zone()
	dst := t.IsDST()
	if dst {
		offset -= 3600
	}
	return float64(offset) / 3600, dst
}

// parseClockMinutes parses "HH:MM", ignoring trailing markers such as " ST".
func parseClockMinutes(s string) (int, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, fmt.Errorf("missing time")
	}
	t, err := time.Parse("15:04", fields[0])
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
