package config_test

import (
	"testing"
	"time"

	"github.com/Rin111124/fastfood-geo/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMustLoad_Defaults(t *testing.T) {
	cfg := config.MustLoad()

	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, 8080, cfg.APIPort)
	assert.Equal(t, 9090, cfg.MonitorPort)
	assert.Equal(t, "vi", cfg.Lang)
	assert.Equal(t, "vn", cfg.Country)
	assert.Empty(t, cfg.StoreAddress)
	assert.InDelta(t, 21.0395625, cfg.StoreLat, 1e-9)
	assert.InDelta(t, 105.7854375, cfg.StoreLon, 1e-9)
	assert.InDelta(t, 7, cfg.BiasRadiusKm, 1e-9)
	assert.InDelta(t, 3, cfg.FreeRadiusKm, 1e-9)
	assert.EqualValues(t, 5000, cfg.FeePerKm)
	assert.InDelta(t, 7, cfg.MaxRadiusKm, 1e-9)
	assert.InDelta(t, 25, cfg.ApproxSpeedKmh, 1e-9)
	assert.True(t, cfg.AllowApproximate)
	assert.Equal(t, 300*time.Millisecond, cfg.Debounce)
}

func TestMustLoad_Overrides(t *testing.T) {
	t.Setenv("FASTFOOD_ENV", "local")
	t.Setenv("FASTFOOD_API_PORT", "3000")
	t.Setenv("FASTFOOD_STORE_ADDRESS", "8 Tôn Thất Thuyết, Hà Nội")
	t.Setenv("FASTFOOD_FEE_PER_KM", "7000")
	t.Setenv("FASTFOOD_MAX_RADIUS_KM", "10.5")
	t.Setenv("FASTFOOD_ALLOW_APPROX", "false")
	t.Setenv("FASTFOOD_SUGGEST_DEBOUNCE", "250ms")
	t.Setenv("FASTFOOD_OSRM_PRIMARY_URL", "http://osrm.internal:5000")

	cfg := config.MustLoad()

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, 3000, cfg.APIPort)
	assert.Equal(t, "8 Tôn Thất Thuyết, Hà Nội", cfg.StoreAddress)
	assert.EqualValues(t, 7000, cfg.FeePerKm)
	assert.InDelta(t, 10.5, cfg.MaxRadiusKm, 1e-9)
	assert.False(t, cfg.AllowApproximate)
	assert.Equal(t, 250*time.Millisecond, cfg.Debounce)
	assert.Equal(t, "http://osrm.internal:5000", cfg.OSRMPrimaryURL)
	assert.Empty(t, cfg.PhotonURL)
}

func TestMustLoad_InvalidValuesPanic(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "non-integer port", key: "FASTFOOD_API_PORT", value: "eighty"},
		{name: "non-numeric latitude", key: "FASTFOOD_STORE_LAT", value: "north"},
		{name: "non-boolean approx flag", key: "FASTFOOD_ALLOW_APPROX", value: "maybe"},
		{name: "non-duration debounce", key: "FASTFOOD_SUGGEST_DEBOUNCE", value: "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			require.Panics(t, func() { config.MustLoad() })
		})
	}
}
