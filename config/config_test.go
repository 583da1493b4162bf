package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViper_Defaults(t *testing.T) {
	cfg := FromViper(viper.New())

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "stock.db", cfg.Database.Path)
	assert.Equal(t, "additive", cfg.App.ExceptionPolicy)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 30, cfg.Classifier.MinObservations)
	assert.InDelta(t, 0.3, cfg.Classifier.SeasonalityThreshold, 1e-9)
	assert.Equal(t, 90, cfg.Classifier.WindowDays)
	assert.Equal(t, []string{"http://localhost:5173", "http://localhost:8080"}, cfg.Server.AllowedOrigins)
}

func TestFromViper_EnvironmentOverrides(t *testing.T) {
	// GIVEN: Environment overrides
	t.Setenv("DB_PATH", ":memory:")
	t.Setenv("EXCEPTION_POLICY", "REJECT")
	t.Setenv("CACHE_ENABLED", "true")
	t.Setenv("CLASSIFIER_WINDOW_DAYS", "120")

	// WHEN: Building the config
	cfg := FromViper(viper.New())

	// THEN: Overrides win over defaults
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.Equal(t, "reject", cfg.App.ExceptionPolicy)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 120, cfg.Classifier.WindowDays)
}
