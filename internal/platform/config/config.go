// Copyright (c) 2026 FlowReader. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, LLM) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the FlowReader API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL with pgvector)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value store (Redis) for rate counters
	RedisURL string `env:"REDIS_URL,required"`

	// Bearer token verification (shared secret with the identity provider)
	JWTSecret string `env:"JWT_SECRET,required"`

	// Object Storage (S3-compatible) for EPUB uploads
	S3Bucket    string `env:"S3_BUCKET,required"`
	S3Region    string `env:"S3_REGION"    envDefault:"auto"`
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`

	// LLM & embedding provider (OpenAI-compatible)
	LLMAPIKey       string `env:"LLM_API_KEY,required"`
	LLMBaseURL      string `env:"LLM_BASE_URL"`
	LLMPrimaryModel string `env:"LLM_PRIMARY_MODEL"  envDefault:"gpt-4o"`
	LLMEconomyModel string `env:"LLM_ECONOMY_MODEL"  envDefault:"gpt-4o-mini"`
	EmbeddingModel  string `env:"EMBEDDING_MODEL"    envDefault:"text-embedding-3-small"`

	// EmbeddingDimensions is fixed at deployment time and must match the
	// vector column width in the schema.
	EmbeddingDimensions int `env:"EMBEDDING_DIMENSIONS" envDefault:"1536"`

	// LLMConcurrency sizes the global semaphore honoring the provider's
	// rate limit. Excess callers wait, then fail with UPSTREAM_ERROR.
	LLMConcurrency int64 `env:"LLM_CONCURRENCY" envDefault:"8"`

	// Upload limits
	MaxUploadBytes int64 `env:"MAX_UPLOAD_BYTES" envDefault:"104857600"`

	// Cost ceilings (USD per 1M tokens, used for accounting only)
	CostPerMTokenPrimary   float64 `env:"COST_PER_MTOKEN_PRIMARY"   envDefault:"10.0"`
	CostPerMTokenEconomy   float64 `env:"COST_PER_MTOKEN_ECONOMY"   envDefault:"0.6"`
	CostPerMTokenEmbedding float64 `env:"COST_PER_MTOKEN_EMBEDDING" envDefault:"0.02"`

	// Feature flags
	DisableResponseCache bool `env:"DISABLE_RESPONSE_CACHE" envDefault:"false"`

	// Cross-Origin Resource Sharing
	ExtraOrigins string `env:"EXTRA_ORIGINS"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if cfg.EmbeddingDimensions <= 0 {
		return nil, fmt.Errorf("config: EMBEDDING_DIMENSIONS must be positive")
	}

	return cfg, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
