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

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cirkelline/core/pkg/domain"
)

// ConnectionStore persists the caller/provider connection rows the Tool
// Bridge reads through a domain.ConnectionLookup, and that an out-of-core
// OAuth handshake (spec.md §1's named external collaborator) would write.
type ConnectionStore struct {
	gateway *Gateway
}

const createConnectionsTableSQL = `
CREATE TABLE IF NOT EXISTS connections (
    owner_id VARCHAR(255) NOT NULL,
    provider VARCHAR(255) NOT NULL,
    status VARCHAR(32) NOT NULL,
    credential TEXT,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (owner_id, provider)
);
`

// NewConnectionStore builds a ConnectionStore over gateway, creating its
// schema if absent.
func NewConnectionStore(gateway *Gateway) (*ConnectionStore, error) {
	if gateway == nil {
		return nil, fmt.Errorf("store: gateway is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := gateway.DB().ExecContext(ctx, createConnectionsTableSQL); err != nil {
		return nil, fmt.Errorf("store: initializing connections schema: %w", err)
	}
	return &ConnectionStore{gateway: gateway}, nil
}

func (c *ConnectionStore) placeholder(n int) string {
	if c.gateway.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Lookup reports callerID's connection status for provider, matching
// toolbridge.ConnectionLookup's signature. An absent row is
// domain.ConnectionAbsent rather than an error — there is nothing wrong
// with never having connected a provider.
func (c *ConnectionStore) Lookup(ctx context.Context, callerID, provider string) (domain.ConnectionStatus, error) {
	ctx, cancel := c.gateway.WithTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(
		"SELECT status FROM connections WHERE owner_id = %s AND provider = %s",
		c.placeholder(1), c.placeholder(2),
	)
	var status string
	err := c.gateway.db.QueryRowContext(ctx, query, callerID, provider).Scan(&status)
	if err == sql.ErrNoRows {
		return domain.ConnectionAbsent, nil
	}
	if err != nil {
		return "", domain.Wrap(domain.Internal, "looking up connection", err)
	}
	return domain.ConnectionStatus(status), nil
}

// Credential returns the opaque bearer credential the Tool Bridge's HTTP
// connectors attach to outbound requests. Absent or revoked connections
// never reach this call in practice — Bridge.checkConnection rejects
// them first — but a missing row still reports domain.NotFound rather
// than panicking on a zero value.
func (c *ConnectionStore) Credential(ctx context.Context, callerID, provider string) (string, error) {
	ctx, cancel := c.gateway.WithTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(
		"SELECT credential FROM connections WHERE owner_id = %s AND provider = %s",
		c.placeholder(1), c.placeholder(2),
	)
	var credential string
	err := c.gateway.db.QueryRowContext(ctx, query, callerID, provider).Scan(&credential)
	if err == sql.ErrNoRows {
		return "", domain.NewError(domain.NotFound, "connection not found")
	}
	if err != nil {
		return "", domain.Wrap(domain.Internal, "loading connection credential", err)
	}
	return credential, nil
}

// Upsert records callerID's connection to provider, overwriting any prior
// status/credential. The write is idempotent on its (owner_id, provider)
// key, so callers may wrap it in Gateway.RetryWrite.
func (c *ConnectionStore) Upsert(ctx context.Context, conn domain.Connection) error {
	ctx, cancel := c.gateway.WithTimeout(ctx)
	defer cancel()

	var query string
	switch c.gateway.dialect {
	case "postgres":
		query = fmt.Sprintf(
			"INSERT INTO connections (owner_id, provider, status, credential, updated_at) VALUES (%s, %s, %s, %s, %s) "+
				"ON CONFLICT (owner_id, provider) DO UPDATE SET status = EXCLUDED.status, credential = EXCLUDED.credential, updated_at = EXCLUDED.updated_at",
			c.placeholder(1), c.placeholder(2), c.placeholder(3), c.placeholder(4), c.placeholder(5),
		)
	default:
		query = "INSERT OR REPLACE INTO connections (owner_id, provider, status, credential, updated_at) VALUES (?, ?, ?, ?, ?)"
	}

	if _, err := c.gateway.db.ExecContext(ctx, query, conn.CallerID, conn.Provider, string(conn.Status), conn.Credential, time.Now()); err != nil {
		return domain.Wrap(domain.Internal, "upserting connection", err)
	}
	return nil
}

// Revoke marks callerID's connection to provider as revoked without
// deleting the row, so a later reconnect can reuse history rather than
// re-running the whole OAuth handshake from nothing.
func (c *ConnectionStore) Revoke(ctx context.Context, callerID, provider string) error {
	ctx, cancel := c.gateway.WithTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf(
		"UPDATE connections SET status = %s, updated_at = %s WHERE owner_id = %s AND provider = %s",
		c.placeholder(1), c.placeholder(2), c.placeholder(3), c.placeholder(4),
	)
	if _, err := c.gateway.db.ExecContext(ctx, query, string(domain.ConnectionRevoked), time.Now(), callerID, provider); err != nil {
		return domain.Wrap(domain.Internal, "revoking connection", err)
	}
	return nil
}
