// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"time"
)

// AuthConfig configures bearer-token authentication for the chat surface.
//
// The identity resolver validates tokens with HMAC-SHA256 against a single
// shared secret (JWT_SECRET) rather than a JWKS endpoint — the core has one
// trusted issuer (the front-end's own sign-up/login flow), not a federation
// of external identity providers.
//
// The JWT token should be passed in the Authorization header:
//
//	Authorization: Bearer <token>
type AuthConfig struct {
	// Secret is the HMAC signing secret (JWT_SECRET). Required.
	Secret string `yaml:"secret,omitempty"`

	// TokenTTL bounds how long a minted token is valid for; tokens carrying
	// an exp claim further in the future than this are still honored, this
	// only governs tokens the core itself issues at sign-up/login.
	// Default: 24h
	TokenTTL time.Duration `yaml:"token_ttl,omitempty"`

	// AdminCacheTTL bounds how long the resolver may reuse a cached
	// is_admin flag before re-reading the authoritative value from storage.
	// Default: 1m
	AdminCacheTTL time.Duration `yaml:"admin_cache_ttl,omitempty"`

	// ExcludedPaths are paths that don't require authentication.
	// Default: ["/config"]
	ExcludedPaths []string `yaml:"excluded_paths,omitempty"`

	// AllowAnonymous permits requests with no bearer token to proceed with
	// a transient, connection-scoped caller identity.
	AllowAnonymous bool `yaml:"allow_anonymous,omitempty"`
}

// SetDefaults applies default values to AuthConfig.
func (c *AuthConfig) SetDefaults() {
	if c.TokenTTL == 0 {
		c.TokenTTL = 24 * time.Hour
	}
	if c.AdminCacheTTL == 0 {
		c.AdminCacheTTL = time.Minute
	}
	if len(c.ExcludedPaths) == 0 {
		c.ExcludedPaths = []string{"/config"}
	}
}

// Validate checks the AuthConfig for errors.
func (c *AuthConfig) Validate() error {
	if c.Secret == "" {
		return fmt.Errorf("auth secret (JWT_SECRET) is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.AdminCacheTTL <= 0 {
		return fmt.Errorf("auth.admin_cache_ttl must be positive")
	}
	return nil
}

// IsEnabled returns true if authentication is configured.
func (c *AuthConfig) IsEnabled() bool {
	return c != nil && c.Secret != ""
}

// CredentialsConfig configures credentials for outbound requests.
// Used when calling remote agents or external services.
type CredentialsConfig struct {
	// Type is the credential type: "bearer", "api_key", or "basic"
	Type string `yaml:"type,omitempty"`

	// Token is the bearer token (for type: bearer)
	Token string `yaml:"token,omitempty"`

	// APIKey is the API key (for type: api_key)
	APIKey string `yaml:"api_key,omitempty"`

	// APIKeyHeader is the header name for API key (default: X-API-Key)
	APIKeyHeader string `yaml:"api_key_header,omitempty"`

	// Username for basic auth (for type: basic)
	Username string `yaml:"username,omitempty"`

	// Password for basic auth (for type: basic)
	Password string `yaml:"password,omitempty"`
}

// SetDefaults applies default values to CredentialsConfig.
func (c *CredentialsConfig) SetDefaults() {
	if c.Type == "" {
		c.Type = "bearer"
	}
	if c.Type == "api_key" && c.APIKeyHeader == "" {
		c.APIKeyHeader = "X-API-Key"
	}
}

// Validate checks the CredentialsConfig for errors.
func (c *CredentialsConfig) Validate() error {
	if c == nil {
		return nil
	}

	switch c.Type {
	case "bearer":
		if c.Token == "" {
			return fmt.Errorf("credentials.token is required for bearer type")
		}
	case "api_key":
		if c.APIKey == "" {
			return fmt.Errorf("credentials.api_key is required for api_key type")
		}
	case "basic":
		if c.Username == "" || c.Password == "" {
			return fmt.Errorf("credentials.username and credentials.password are required for basic type")
		}
	case "":
		// No credentials configured - valid
	default:
		return fmt.Errorf("unsupported credentials.type: %s (valid: bearer, api_key, basic)", c.Type)
	}

	return nil
}
