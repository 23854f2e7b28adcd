package provider

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/Veirt/weathr/internal/circuitbreaker"
	"github.com/Veirt/weathr/internal/models"
)

// Supplemented wraps a primary Provider and fills IsDay and MoonPhase from a
// SupplementaryProvider when the primary leaves them unset. Supplementary
// failures are logged and dropped; the primary reading is always returned.
type Supplemented struct {
	primary Provider
	extra   SupplementaryProvider
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewSupplemented builds the wrapper. A nil breaker calls the supplementary source
// unguarded.
func NewSupplemented(primary Provider, extra SupplementaryProvider, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *Supplemented {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supplemented{primary: primary, extra: extra, breaker: breaker, logger: logger}
}

// Name is the primary's name; the supplementary source does not change the reading's identity.
func (s *Supplemented) Name() string { return s.primary.Name() }

// Attribution joins both sources' attributions.
func (s *Supplemented) Attribution() string {
	parts := []string{s.primary.Attribution()}
	if a := s.extra.Attribution(); a != "" {
		parts = append(parts, a)
	}
	return strings.Join(parts, ". ")
}

func (s *Supplemented) CurrentWeather(ctx context.Context, loc models.WeatherLocation, units models.Units) (Response, error) {
	resp, err := s.primary.CurrentWeather(ctx, loc, units)
	if err != nil {
		return Response{}, err
	}

	req, ok := s.requestFor(resp)
	if !ok {
		return resp, nil
	}

	var extra SupplementaryResponse
	call := func() error {
		var callErr error
		extra, callErr = s.extra.Supplement(ctx, loc, units, req)
		return callErr
	}
	if s.breaker != nil {
		err = s.breaker.Call(ctx, call)
	} else {
		err = call()
	}
	if err != nil {
		s.logger.Warn("Supplementary lookup failed",
			zap.String("provider", s.extra.Name()),
			zap.String("request", string(req)),
			zap.Error(err),
		)
		return resp, nil
	}

	if resp.IsDay == nil && extra.IsDay != nil {
		resp.IsDay = extra.IsDay
	}
	if resp.MoonPhase == nil && extra.MoonPhase != nil {
		resp.MoonPhase = extra.MoonPhase
	}
	return resp, nil
}

// requestFor picks the single supplementary request that covers what resp lacks.
func (s *Supplemented) requestFor(resp Response) (SupplementaryRequest, bool) {
	if resp.IsDay != nil && resp.MoonPhase != nil {
		return "", false
	}
	caps := s.extra.Capabilities()
	has := func(r SupplementaryRequest) bool {
		for _, c := range caps {
			if c == r {
				return true
			}
		}
		return false
	}
	if resp.IsDay == nil && has(RequestSunAndMoonForOneDay) {
		return RequestSunAndMoonForOneDay, true
	}
	if resp.MoonPhase == nil && has(RequestPhasesOfMoon) {
		return RequestPhasesOfMoon, true
	}
	return "", false
}
