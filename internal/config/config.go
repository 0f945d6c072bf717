package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	// Generation providers
	ModalImageEndpoint string
	ModalAPIKey        string
	FalAPIBaseURL      string
	FalAPIKey          string
	KlingAPIBaseURL    string
	KlingAPIKey        string

	// Supabase
	SupabaseURL            string
	SupabasePublishableKey string
	SupabaseJWTSecret      string
	SupabaseStorageBucket  string

	// Database
	DatabaseURL string

	// Credits
	SignupCreditGrant int

	// Batch generation
	BatchConcurrency int

	// Server
	Port        string
	Environment string
	BaseURL     string
}

func Load() (*Config, error) {
	cfg := &Config{
		ModalImageEndpoint: getEnv("MODAL_IMAGE_ENDPOINT", ""),
		ModalAPIKey:        getEnv("MODAL_API_KEY", ""),
		FalAPIBaseURL:      getEnv("FAL_API_BASE_URL", "https://queue.fal.run"),
		FalAPIKey:          getEnv("FAL_API_KEY", ""),
		KlingAPIBaseURL:    getEnv("KLING_API_BASE_URL", "https://api.klingai.com/v1/"),
		KlingAPIKey:        getEnv("KLING_API_KEY", ""),

		SupabaseURL:            getEnv("SUPABASE_URL", ""),
		SupabasePublishableKey: getEnv("SUPABASE_PUBLISHABLE_KEY", ""),
		SupabaseJWTSecret:      getEnv("SUPABASE_JWT_SECRET", ""),
		SupabaseStorageBucket:  getEnv("SUPABASE_STORAGE_BUCKET", "generated-media"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		SignupCreditGrant: getEnvInt("SIGNUP_CREDIT_GRANT", 100),

		BatchConcurrency: getEnvInt("BATCH_CONCURRENCY", 5),

		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabasePublishableKey == "" {
		return fmt.Errorf("SUPABASE_PUBLISHABLE_KEY is required")
	}
	if c.SupabaseJWTSecret == "" {
		return fmt.Errorf("SUPABASE_JWT_SECRET is required")
	}
	if c.BatchConcurrency < 1 {
		return fmt.Errorf("BATCH_CONCURRENCY must be at least 1")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
