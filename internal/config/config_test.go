package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Store:      StoreConfig{Driver: "postgres", DatabaseURL: "postgres://localhost/directory"},
		Classifier: ClassifierConfig{BaseURL: "https://classifier.internal", Key: "secret", PollIntervalSecs: 2, PollTimeoutSecs: 300},
		Enrich:     EnrichConfig{MinConfidence: 0.7},
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Classifier.PollIntervalSecs)
	assert.Equal(t, 300, cfg.Classifier.PollTimeoutSecs)
	assert.InDelta(t, 0.7, cfg.Enrich.MinConfidence, 0.001)
	assert.Equal(t, 5, cfg.Enrich.MaxConcurrent)
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_MissingClassifier(t *testing.T) {
	cfg := validConfig()
	cfg.Classifier.BaseURL = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Classifier.Key = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_BadDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "oracle"
	assert.Error(t, cfg.Validate())
}

func TestValidate_ConfidenceRange(t *testing.T) {
	cfg := validConfig()
	cfg.Enrich.MinConfidence = 1.5
	assert.Error(t, cfg.Validate())
}

func TestPollDurations(t *testing.T) {
	c := ClassifierConfig{PollIntervalSecs: 2, PollTimeoutSecs: 300}
	assert.Equal(t, "2s", c.PollInterval().String())
	assert.Equal(t, "5m0s", c.PollTimeout().String())
}
