package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	JWTSecret   string

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	// Operator-held provider credentials. The Gemini key doubles as the
	// shared free-tier credential; the rest are optional defaults that a
	// caller's personal key always overrides.
	GeminiAPIKey    string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	CohereAPIKey    string

	EmbedProvider string
	EmbedModel    string
	EmbedDim      int

	DefaultProvider  string
	DefaultModel     string
	FallbackProvider string
	FallbackModel    string

	MaxRetries      int
	BackoffBase     time.Duration
	ProviderTimeout time.Duration

	ChunkSize int
	TopK      int
}

// LoadConfig loads the environment variables and returns a validated config.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "jobfit-docs"),

		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		CohereAPIKey:    getEnv("COHERE_API_KEY", ""),

		EmbedProvider: getEnv("EMBED_PROVIDER", "google"),
		EmbedModel:    getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:      getEnvInt("EMBED_DIM", 768),

		DefaultProvider:  getEnv("DEFAULT_PROVIDER", "google"),
		DefaultModel:     getEnv("DEFAULT_MODEL", "gemini-2.0-flash"),
		FallbackProvider: getEnv("FALLBACK_PROVIDER", ""),
		FallbackModel:    getEnv("FALLBACK_MODEL", ""),

		MaxRetries:      getEnvInt("PROVIDER_MAX_RETRIES", 2),
		BackoffBase:     getEnvDuration("PROVIDER_BACKOFF_BASE", 500*time.Millisecond),
		ProviderTimeout: getEnvDuration("PROVIDER_TIMEOUT", 45*time.Second),

		ChunkSize: getEnvInt("CHUNK_SIZE", 500),
		TopK:      getEnvInt("RETRIEVAL_TOP_K", 6),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("PROVIDER_MAX_RETRIES must be >= 0")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive")
	}
	if c.TopK <= 0 {
		return fmt.Errorf("RETRIEVAL_TOP_K must be positive")
	}
	if (c.FallbackProvider == "") != (c.FallbackModel == "") {
		return fmt.Errorf("FALLBACK_PROVIDER and FALLBACK_MODEL must be set together")
	}
	return nil
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
