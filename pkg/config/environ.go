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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFromEnviron builds a Config from the process environment. It loads
// .env/.env.local first (if present), rejects any CIRKELLINE_-prefixed key
// outside RecognizedEnvKeys, applies defaults, and validates the result.
func LoadFromEnviron() (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, fmt.Errorf("loading env files: %w", err)
	}

	present := map[string]string{}
	for _, key := range RecognizedEnvKeys {
		if val, ok := os.LookupEnv(key); ok {
			present[key] = val
		}
	}
	unrecognized := map[string]string{}
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		key := parts[0]
		if !strings.HasPrefix(key, "CIRKELLINE_") {
			continue
		}
		trimmed := strings.TrimPrefix(key, "CIRKELLINE_")
		unrecognized[trimmed] = ""
	}
	if err := ValidateEnvKeys(unrecognized); err != nil {
		return nil, err
	}

	cfg := &Config{}
	cfg.DatabaseURL = present["DATABASE_URL"]
	cfg.JWTSecret = present["JWT_SECRET"]

	if v, ok := present["PRIMARY_MODEL_BACKEND"]; ok {
		cfg.PrimaryModelBackend.Type = v
	}
	if v, ok := present["FALLBACK_MODEL_BACKEND"]; ok && v != "" {
		cfg.FallbackModelBackend = &ModelBackendConfig{Type: v}
	}
	if v, ok := present["EMBEDDING_BACKEND"]; ok {
		cfg.EmbeddingBackend.Type = v
	}

	if v, ok := present["POOL_SIZE"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("POOL_SIZE: %w", err)
		}
		cfg.PoolSize = n
	}
	if v, ok := present["REQUEST_TIMEOUT"]; ok {
		d, err := parseDurationSeconds(v)
		if err != nil {
			return nil, fmt.Errorf("REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}
	if v, ok := present["SUMMARY_TOKEN_CEILING"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SUMMARY_TOKEN_CEILING: %w", err)
		}
		cfg.SummaryTokenCeiling = n
	}
	if v, ok := present["RETRIEVAL_K"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("RETRIEVAL_K: %w", err)
		}
		cfg.RetrievalK = n
	}
	if v, ok := present["RETRIEVAL_EXPANSION_FACTOR"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("RETRIEVAL_EXPANSION_FACTOR: %w", err)
		}
		cfg.RetrievalExpansionFactor = n
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parseDurationSeconds accepts either a bare integer (seconds) or a Go
// duration string ("30s", "1m") for REQUEST_TIMEOUT.
func parseDurationSeconds(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}
