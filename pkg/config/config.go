// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and validates the orchestration core's configuration.
//
// The recognized surface is a small, closed set of keys (see
// RecognizedEnvKeys in strict_validator.go): DATABASE_URL, EMBEDDING_BACKEND,
// PRIMARY_MODEL_BACKEND, FALLBACK_MODEL_BACKEND, JWT_SECRET, POOL_SIZE,
// REQUEST_TIMEOUT, SUMMARY_TOKEN_CEILING, RETRIEVAL_K and
// RETRIEVAL_EXPANSION_FACTOR. An unrecognized key fails start-up.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the orchestration core.
type Config struct {
	DatabaseURL string `yaml:"database_url"`

	EmbeddingBackend     EmbedderProviderConfig `yaml:"embedding_backend"`
	PrimaryModelBackend  ModelBackendConfig     `yaml:"primary_model_backend"`
	FallbackModelBackend *ModelBackendConfig    `yaml:"fallback_model_backend,omitempty"`

	JWTSecret string `yaml:"jwt_secret"`

	PoolSize       int           `yaml:"pool_size"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	SummaryTokenCeiling      int `yaml:"summary_token_ceiling"`
	RetrievalK               int `yaml:"retrieval_k"`
	RetrievalExpansionFactor int `yaml:"retrieval_expansion_factor"`

	// Server, RateLimit and VectorStore carry settings that the recognized
	// keys above don't cover directly but which the rest of the core needs
	// (listen address, TLS, CORS, rate limiting, the vector backend). They
	// are populated with defaults, never read from unrecognized env keys.
	Server      ServerConfig           `yaml:"-"`
	RateLimit   RateLimitConfig        `yaml:"-"`
	VectorStore DatabaseProviderConfig `yaml:"-"`

	// Database is derived from DatabaseURL during SetDefaults.
	Database DatabaseConfig `yaml:"-"`
}

// SetDefaults applies default values across the whole configuration tree.
func (c *Config) SetDefaults() {
	if c.PoolSize == 0 {
		c.PoolSize = 10
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.SummaryTokenCeiling == 0 {
		c.SummaryTokenCeiling = 3000
	}
	if c.RetrievalK == 0 {
		c.RetrievalK = 6
	}
	if c.RetrievalExpansionFactor == 0 {
		c.RetrievalExpansionFactor = 3
	}

	c.EmbeddingBackend.SetDefaults()
	c.PrimaryModelBackend.SetDefaults()
	if c.FallbackModelBackend != nil {
		c.FallbackModelBackend.SetDefaults()
	}
	c.VectorStore.SetDefaults()
	c.Server.SetDefaults()
	c.RateLimit.SetDefaults()

	if c.Server.Auth.Secret == "" {
		c.Server.Auth.Secret = c.JWTSecret
	}

	if c.DatabaseURL != "" {
		if db, err := ParseDatabaseURL(c.DatabaseURL); err == nil {
			c.Database = *db
			c.Database.MaxConns = c.PoolSize
			c.Database.SetDefaults()
		}
	}
}

// Validate checks the configuration for internal consistency. Unknown keys
// are rejected earlier, by the strict validator, before Validate ever runs.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if _, err := ParseDatabaseURL(c.DatabaseURL); err != nil {
		return fmt.Errorf("DATABASE_URL: %w", err)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("POOL_SIZE must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if c.SummaryTokenCeiling <= 0 {
		return fmt.Errorf("SUMMARY_TOKEN_CEILING must be positive")
	}
	if c.RetrievalK <= 0 {
		return fmt.Errorf("RETRIEVAL_K must be positive")
	}
	if c.RetrievalExpansionFactor <= 0 {
		return fmt.Errorf("RETRIEVAL_EXPANSION_FACTOR must be positive")
	}

	if err := c.EmbeddingBackend.Validate(); err != nil {
		return fmt.Errorf("EMBEDDING_BACKEND: %w", err)
	}
	if err := c.PrimaryModelBackend.Validate(); err != nil {
		return fmt.Errorf("PRIMARY_MODEL_BACKEND: %w", err)
	}
	if c.FallbackModelBackend != nil {
		if err := c.FallbackModelBackend.Validate(); err != nil {
			return fmt.Errorf("FALLBACK_MODEL_BACKEND: %w", err)
		}
	}
	if err := c.VectorStore.Validate(); err != nil {
		return fmt.Errorf("vector store: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	return nil
}
