package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()

	v := viper.New()
	setDefaults(v)

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	return &cfg
}

func TestDefaults_AreValid(t *testing.T) {
	cfg := defaultConfig(t)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "en", cfg.Pipeline.WorkingLanguage)
	assert.Equal(t, 12*time.Second, cfg.Pipeline.PipelineDeadline())
	assert.Equal(t, 8*time.Second, cfg.Pipeline.PerToolTimeout())
	assert.Equal(t, "merged", cfg.Pipeline.MultiIntent)
	assert.Equal(t, []string{"Rice", "Wheat"}, cfg.Market.DefaultCommodities)
	assert.Empty(t, cfg.Admin.Token)
}

func TestCacheTTL(t *testing.T) {
	cfg := defaultConfig(t)

	assert.Equal(t, time.Hour, cfg.Pipeline.CacheTTL("weather", time.Minute))
	assert.Equal(t, 24*time.Hour, cfg.Pipeline.CacheTTL("market_price", time.Minute))
	assert.Equal(t, time.Minute, cfg.Pipeline.CacheTTL("unknown", time.Minute))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{
			name:    "zero token budget",
			mutate:  func(c *Config) { c.Pipeline.TokenBudget = 0 },
			wantErr: ErrInvalidTokenBudget,
		},
		{
			name:    "zero tool timeout",
			mutate:  func(c *Config) { c.Pipeline.PerToolTimeoutMs = 0 },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "reserve larger than deadline",
			mutate:  func(c *Config) { c.Pipeline.SynthesisReserveMs = c.Pipeline.PipelineDeadlineMs },
			wantErr: ErrDeadlineTooShort,
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.Pipeline.ClassifierConfidenceThreshold = 1.5 },
			wantErr: ErrInvalidThreshold,
		},
		{
			name:    "unknown multi intent mode",
			mutate:  func(c *Config) { c.Pipeline.MultiIntent = "separate" },
			wantErr: ErrInvalidMultiIntent,
		},
		{
			name:    "missing working language",
			mutate:  func(c *Config) { c.Pipeline.WorkingLanguage = "" },
			wantErr: ErrMissingWorkingLang,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.wantErr)
		})
	}
}
