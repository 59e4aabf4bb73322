package detector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "hue out of range", mutate: func(c *Config) { c.Color.HueHigh = 181 }, wantErr: true},
		{name: "inverted saturation", mutate: func(c *Config) { c.Color.SatLow, c.Color.SatHigh = 200, 100 }, wantErr: true},
		{name: "inverted value", mutate: func(c *Config) { c.Color.ValLow = 255; c.Color.ValHigh = 0 }, wantErr: true},
		{name: "equal bounds", mutate: func(c *Config) { c.Color.HueLow, c.Color.HueHigh = 70, 70 }},
		{name: "zero kernel", mutate: func(c *Config) { c.Color.KernelSize = 0 }, wantErr: true},
		{name: "no close", mutate: func(c *Config) { c.Color.CloseIterations = 0 }},
		{name: "negative min width", mutate: func(c *Config) { c.MinWidth = -1 }, wantErr: true},
		{name: "zero gear spacing", mutate: func(c *Config) { c.GearSpacing = 0 }, wantErr: true},
		{name: "negative tolerance", mutate: func(c *Config) { c.Tolerance.X = -1 }, wantErr: true},
		{name: "missing fov", mutate: func(c *Config) { c.Camera.HFOV = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))
		})
	}
}

func TestColorConfigFromHex(t *testing.T) {
	base := DefaultConfig().Color

	got, err := ColorConfigFromHex("#00ff00", 10, base)
	require.NoError(t, err)

	assert.Equal(t, 50, got.HueLow)
	assert.Equal(t, 70, got.HueHigh)
	assert.Equal(t, 245, got.SatLow)
	assert.Equal(t, 255, got.SatHigh)
	assert.Equal(t, 245, got.ValLow)
	assert.Equal(t, 255, got.ValHigh)
	assert.Equal(t, base.KernelSize, got.KernelSize)
	assert.Equal(t, base.CloseIterations, got.CloseIterations)

	cfg := DefaultConfig()
	cfg.Color = got
	assert.NoError(t, cfg.Validate())

	_, err = ColorConfigFromHex("not-a-color", 10, base)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMockDetector(t *testing.T) {
	m := NewMockDetector()

	res, err := m.Detect(nil, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)

	m.SetResult(LockedResult())
	cfg := DefaultConfig()
	cfg.MinWidth = 42
	res, err = m.Detect(nil, cfg)
	require.NoError(t, err)
	assert.Equal(t, LockedResult(), res)
	assert.Equal(t, 42, m.LastConfig().MinWidth)

	m.SetError(ErrInvalidInput)
	res, err = m.Detect(nil, cfg)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.False(t, res.Present)

	assert.Equal(t, 3, m.Calls())
	assert.NoError(t, m.Close())
}
