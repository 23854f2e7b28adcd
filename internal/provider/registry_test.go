package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veirt/weathr/internal/client"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		wantName string
		wantType any
		wantErr  error
	}{
		{"default is open-meteo", Settings{}, OpenMeteoName, &OpenMeteo{}, nil},
		{"open-meteo by name", Settings{Name: "Open-Meteo"}, OpenMeteoName, &OpenMeteo{}, nil},
		{"open-meteo with aad", Settings{Name: OpenMeteoName, Supplementary: AADName}, OpenMeteoName, &Supplemented{}, nil},
		{"met office gets aad", Settings{Name: MetOfficeName, MetOffice: MetOfficeConfig{APIKey: "k"}}, MetOfficeName, &Supplemented{}, nil},
		{"met office bare", Settings{Name: "metoffice", Supplementary: SupplementaryNone, MetOffice: MetOfficeConfig{APIKey: "k"}}, MetOfficeName, &MetOffice{}, nil},
		{"met office without key", Settings{Name: MetOfficeName}, "", nil, client.ErrConfig},
		{"unknown provider", Settings{Name: "accuweather"}, "", nil, client.ErrConfig},
		{"unknown supplementary", Settings{Supplementary: "sky"}, "", nil, client.ErrConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.settings)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name())
			assert.IsType(t, tt.wantType, p)
		})
	}
}
