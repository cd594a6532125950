package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "google", cfg.EmbedProvider)
	assert.Equal(t, "text-embedding-004", cfg.EmbedModel)
	assert.Equal(t, 768, cfg.EmbedDim)
	assert.Equal(t, "google", cfg.DefaultProvider)
	assert.Equal(t, "gemini-2.0-flash", cfg.DefaultModel)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.BackoffBase)
	assert.Equal(t, 45*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 6, cfg.TopK)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "9999")
	t.Setenv("CHUNK_SIZE", "250")
	t.Setenv("RETRIEVAL_TOP_K", "8")
	t.Setenv("PROVIDER_BACKOFF_BASE", "100ms")
	t.Setenv("FALLBACK_PROVIDER", "openai")
	t.Setenv("FALLBACK_MODEL", "gpt-4o-mini")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, 250, cfg.ChunkSize)
	assert.Equal(t, 8, cfg.TopK)
	assert.Equal(t, 100*time.Millisecond, cfg.BackoffBase)
	assert.Equal(t, "openai", cfg.FallbackProvider)
	assert.Equal(t, "gpt-4o-mini", cfg.FallbackModel)
}

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigFallbackPairMustBeComplete(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("FALLBACK_PROVIDER", "openai")
	t.Setenv("FALLBACK_MODEL", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigMalformedIntFallsBack(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CHUNK_SIZE", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.ChunkSize)
}
