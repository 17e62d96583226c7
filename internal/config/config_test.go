package config

import (
	"testing"

	"github.com/kelseyhightower/envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Дефолты конфигурации без обращения к файлам секретов.
func TestConfig_Defaults(t *testing.T) {
	var cfg Config
	require.NoError(t, envconfig.Process("", &cfg))

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "2025-11-01", cfg.ChallengeStart)
	assert.Equal(t, 30, cfg.ChallengeDays)
	assert.Equal(t, 3, cfg.AIMaxAttempts)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSAllowedOrigins)
}

func TestConfig_StartDate(t *testing.T) {
	cfg := Config{ChallengeStart: "2025-11-01"}
	start, err := cfg.StartDate()
	require.NoError(t, err)
	assert.Equal(t, 2025, start.Year())

	cfg.ChallengeStart = "not-a-date"
	_, err = cfg.StartDate()
	assert.Error(t, err)
}
