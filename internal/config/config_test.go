package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Pipeline.UseVision)
	assert.True(t, cfg.Pipeline.UseMultiProviderConsensus)
	assert.Equal(t, 0.75, cfg.Pipeline.ConfidenceThreshold)
	assert.Equal(t, 100, cfg.Pipeline.RetrainingThreshold)
	assert.Equal(t, 0.7, cfg.Consensus.MinConfidence)
	assert.Equal(t, 0.5, cfg.Consensus.MinAgreement)
	assert.Equal(t, "heuristic", cfg.Classifier.Analyzer)
	assert.Equal(t, "local", cfg.OCR.Provider)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DOCEXTRACT_PIPELINE_CONFIDENCE_THRESHOLD", "0.9")
	t.Setenv("DOCEXTRACT_STORE_DRIVER", "postgres")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.Pipeline.ConfidenceThreshold)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.Error(t, InitLogger(LogConfig{Level: "nope"}))
}

func TestAttemptTimeout(t *testing.T) {
	p := PipelineConfig{AttemptTimeoutSecs: 30}
	assert.Equal(t, "30s", p.AttemptTimeout().String())
}
