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

// Package memory implements the Memory Store: derive, list and delete
// long-lived per-caller memories, and summarize_if_needed to bound
// session prompt growth.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cirkelline/core/pkg/domain"
)

// Store is the durable half of the Memory Store: the `memories` table and
// its owner-scoped reads/writes. Extraction (derive) and compaction
// (summarize_if_needed) are built on top of it in derive.go/summarize.go.
type Store struct {
	db      *sql.DB
	dialect string
}

const createMemoriesTableSQL = `
CREATE TABLE IF NOT EXISTS memories (
    id VARCHAR(255) PRIMARY KEY,
    owner_id VARCHAR(255) NOT NULL,
    text TEXT NOT NULL,
    source_turn_id VARCHAR(255) NOT NULL,
    family VARCHAR(32) NOT NULL,
    topics TEXT NOT NULL DEFAULT '[]',
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_owner_id ON memories(owner_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_memories_turn_family ON memories(owner_id, source_turn_id, family);
`

// New builds a Store over db, creating its schema if absent. dialect is
// one of "postgres", "mysql", "sqlite".
func New(db *sql.DB, dialect string) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("memory: database connection is required")
	}
	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("memory: unsupported dialect %q", dialect)
	}

	s := &Store{db: db, dialect: dialect}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, createMemoriesTableSQL); err != nil {
		return nil, fmt.Errorf("memory: initializing schema: %w", err)
	}
	return s, nil
}

func (s *Store) placeholder(n int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// insertIgnoringConflict inserts one memory row, silently skipping it if
// the (owner_id, source_turn_id, family) triple already exists. This is
// the idempotency guarantee derive relies on: re-running extraction over
// the same turn never produces duplicate rows.
func (s *Store) insertIgnoringConflict(ctx context.Context, m domain.Memory) error {
	topicsJSON, err := json.Marshal(m.Topics)
	if err != nil {
		return domain.Wrap(domain.Internal, "encoding memory topics", err)
	}

	var query string
	switch s.dialect {
	case "postgres":
		query = fmt.Sprintf(
			"INSERT INTO memories (id, owner_id, text, source_turn_id, family, topics, updated_at) VALUES (%s, %s, %s, %s, %s, %s, %s) ON CONFLICT (owner_id, source_turn_id, family) DO NOTHING",
			s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5), s.placeholder(6), s.placeholder(7),
		)
	case "mysql":
		query = "INSERT IGNORE INTO memories (id, owner_id, text, source_turn_id, family, topics, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)"
	default: // sqlite
		query = "INSERT OR IGNORE INTO memories (id, owner_id, text, source_turn_id, family, topics, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)"
	}

	if _, err := s.db.ExecContext(ctx, query, m.MemoryID, m.OwnerID, m.Text, m.SourceTurnID, string(m.Family), string(topicsJSON), m.UpdatedAt); err != nil {
		return domain.Wrap(domain.Internal, "inserting memory", err)
	}
	return nil
}

// Page is one page of memories returned by List.
type Page struct {
	Memories   []domain.Memory
	NextCursor string
}

// List returns caller's memories ordered by most-recently-updated,
// paginated with an opaque cursor (the updated_at of the last row seen).
func (s *Store) List(ctx context.Context, caller domain.Caller, cursor string, limit int) (Page, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows *sql.Rows
	var err error
	if cursor == "" {
		query := fmt.Sprintf(
			"SELECT id, owner_id, text, source_turn_id, family, topics, updated_at FROM memories WHERE owner_id = %s ORDER BY updated_at DESC LIMIT %s",
			s.placeholder(1), s.placeholder(2),
		)
		rows, err = s.db.QueryContext(ctx, query, caller.ID, limit)
	} else {
		cursorTime, parseErr := time.Parse(time.RFC3339Nano, cursor)
		if parseErr != nil {
			return Page{}, domain.Wrap(domain.Malformed, "invalid pagination cursor", parseErr)
		}
		query := fmt.Sprintf(
			"SELECT id, owner_id, text, source_turn_id, family, topics, updated_at FROM memories WHERE owner_id = %s AND updated_at < %s ORDER BY updated_at DESC LIMIT %s",
			s.placeholder(1), s.placeholder(2), s.placeholder(3),
		)
		rows, err = s.db.QueryContext(ctx, query, caller.ID, cursorTime, limit)
	}
	if err != nil {
		return Page{}, domain.Wrap(domain.Internal, "listing memories", err)
	}
	defer rows.Close()

	var page Page
	for rows.Next() {
		var m domain.Memory
		var family, topicsJSON string
		if err := rows.Scan(&m.MemoryID, &m.OwnerID, &m.Text, &m.SourceTurnID, &family, &topicsJSON, &m.UpdatedAt); err != nil {
			return Page{}, domain.Wrap(domain.Internal, "scanning memory row", err)
		}
		m.Family = domain.MemoryFamily(family)
		if err := json.Unmarshal([]byte(topicsJSON), &m.Topics); err != nil {
			return Page{}, domain.Wrap(domain.Internal, "decoding memory topics", err)
		}
		page.Memories = append(page.Memories, m)
	}
	if err := rows.Err(); err != nil {
		return Page{}, domain.Wrap(domain.Internal, "iterating memories", err)
	}

	if len(page.Memories) == limit {
		page.NextCursor = page.Memories[len(page.Memories)-1].UpdatedAt.Format(time.RFC3339Nano)
	}
	return page, nil
}

// Delete removes one memory, scoped to its owner. A caller that does not
// own the memory sees no error and no effect, matching the Session
// Store's no-leak ownership policy.
func (s *Store) Delete(ctx context.Context, caller domain.Caller, memoryID string) error {
	query := fmt.Sprintf("DELETE FROM memories WHERE id = %s AND owner_id = %s", s.placeholder(1), s.placeholder(2))
	if _, err := s.db.ExecContext(ctx, query, memoryID, caller.ID); err != nil {
		return domain.Wrap(domain.Internal, "deleting memory", err)
	}
	return nil
}

func newMemoryID() string {
	return uuid.NewString()
}
