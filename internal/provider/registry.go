package provider

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Veirt/weathr/internal/circuitbreaker"
	"github.com/Veirt/weathr/internal/client"
	"github.com/Veirt/weathr/internal/observability"
)

// DefaultTimeout applies to weather and supplementary requests.
const DefaultTimeout = 30 * time.Second

// SupplementaryNone disables the supplementary source.
const SupplementaryNone = "none"

// Settings selects and configures a provider. Empty URLs use the public endpoints.
type Settings struct {
	Name          string
	Supplementary string
	MetOffice     MetOfficeConfig
	OpenMeteoURL  string
	AADURL        string
	Timeout       time.Duration

	BreakerFailureThreshold int
	BreakerCoolDown         time.Duration

	Logger *zap.Logger
}

// Names lists the registered primary providers.
func Names() []string {
	return []string{OpenMeteoName, MetOfficeName}
}

// New builds the provider named in s. Met Office gets the AAD supplement unless
// s.Supplementary is "none", since it has no day/night or moon data.
func New(s Settings) (Provider, error) {
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}

	name := strings.ToLower(strings.TrimSpace(s.Name))
	var primary Provider
	switch name {
	case "", OpenMeteoName:
		primary = NewOpenMeteo(s.OpenMeteoURL, s.Timeout)
	case MetOfficeName, "metoffice":
		mo, err := NewMetOffice(s.MetOffice, s.Timeout)
		if err != nil {
			return nil, err
		}
		primary = mo
	default:
		return nil, fmt.Errorf("%w: unknown weather provider %q (known: %s)", client.ErrConfig, s.Name, strings.Join(Names(), ", "))
	}

	supp := strings.ToLower(strings.TrimSpace(s.Supplementary))
	if supp == "" && primary.Name() == MetOfficeName {
		supp = AADName
	}
	switch supp {
	case "", SupplementaryNone:
		return primary, nil
	case AADName:
		breaker := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: s.BreakerFailureThreshold,
			Timeout:          s.BreakerCoolDown,
			Component:        AADName,
			OnStateChange: func(component string, from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition(component, from.String(), to.String(), int(to))
				s.Logger.Info("Circuit breaker state change",
					zap.String("component", component),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		})
		return NewSupplemented(primary, NewAAD(s.AADURL, s.Timeout), breaker, s.Logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown supplementary provider %q", client.ErrConfig, s.Supplementary)
	}
}
