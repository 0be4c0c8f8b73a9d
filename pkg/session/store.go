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

// Package session implements the Session Store: resolve-or-mint, append,
// load, list and delete for conversation sessions, scoped to their owner.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cirkelline/core/pkg/domain"
)

// Store is the Session Store (spec §4.2). It wraps a dialect-aware SQL
// connection; sessions are rows with their turns embedded as a JSON
// column, matching the persisted-state layout's "runs as an ordered
// collection of turn envelopes".
type Store struct {
	db      *sql.DB
	dialect string

	// sessionLocks serializes append_turn per session id on dialects
	// whose pool does not already impose single-writer ordering at the
	// row level (sqlite). Postgres/MySQL instead take a row lock inside
	// the transaction.
	mu           sync.Mutex
	sessionLocks map[string]*sync.Mutex
}

const createSessionsTableSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id VARCHAR(255) PRIMARY KEY,
    owner_id VARCHAR(255) NOT NULL,
    summary TEXT,
    runs TEXT NOT NULL DEFAULT '[]',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_owner_id ON sessions(owner_id);
CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
`

// New builds a Store over db, creating its schema if absent. dialect is
// one of "postgres", "mysql", "sqlite".
func New(db *sql.DB, dialect string) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("session: database connection is required")
	}
	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("session: unsupported dialect %q", dialect)
	}

	s := &Store{
		db:           db,
		dialect:      dialect,
		sessionLocks: make(map[string]*sync.Mutex),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, createSessionsTableSQL); err != nil {
		return nil, fmt.Errorf("session: initializing schema: %w", err)
	}
	return s, nil
}

func (s *Store) placeholder(n int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// ResolveOrMint returns the session id the caller should use for this
// turn. An absent, empty or not-owned incomingSessionID yields a freshly
// minted UUID; the orchestrator never receives a bare empty string to pass
// downstream.
func (s *Store) ResolveOrMint(ctx context.Context, caller domain.Caller, incomingSessionID string) (string, error) {
	if incomingSessionID == "" {
		return s.mint(ctx, caller)
	}

	owned, err := s.owns(ctx, incomingSessionID, caller.ID)
	if err != nil {
		return "", err
	}
	if !owned {
		return s.mint(ctx, caller)
	}
	return incomingSessionID, nil
}

func (s *Store) mint(ctx context.Context, caller domain.Caller) (string, error) {
	id := uuid.NewString()
	now := time.Now()

	query := fmt.Sprintf(
		"INSERT INTO sessions (id, owner_id, summary, runs, created_at, updated_at) VALUES (%s, %s, %s, %s, %s, %s)",
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5), s.placeholder(6),
	)
	if _, err := s.db.ExecContext(ctx, query, id, caller.ID, "", "[]", now, now); err != nil {
		return "", domain.Wrap(domain.Internal, "minting session", err)
	}
	return id, nil
}

func (s *Store) owns(ctx context.Context, sessionID, ownerID string) (bool, error) {
	query := fmt.Sprintf("SELECT 1 FROM sessions WHERE id = %s AND owner_id = %s", s.placeholder(1), s.placeholder(2))
	var dummy int
	err := s.db.QueryRowContext(ctx, query, sessionID, ownerID).Scan(&dummy)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, domain.Wrap(domain.Internal, "checking session ownership", err)
	}
	return true, nil
}

// lockFor returns the per-session mutex used to serialize appends on
// dialects without row-level locking support in this pool.
func (s *Store) lockFor(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.sessionLocks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.sessionLocks[sessionID] = l
	}
	return l
}

// AppendTurn appends turn to the session's ordered run log. The caller
// must own the session; a mismatch is reported as NotFound (spec §4.2:
// "any mismatch is reported as if the session did not exist"). Concurrent
// appends to the same session are serialized to a total order.
func (s *Store) AppendTurn(ctx context.Context, sessionID string, caller domain.Caller, turn domain.Turn) error {
	if s.dialect == "sqlite" {
		lock := s.lockFor(sessionID)
		lock.Lock()
		defer lock.Unlock()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Wrap(domain.Internal, "beginning transaction", err)
	}
	defer tx.Rollback()

	selectQuery := fmt.Sprintf("SELECT owner_id, runs FROM sessions WHERE id = %s", s.placeholder(1))
	if s.dialect != "sqlite" {
		selectQuery += " FOR UPDATE"
	}

	var ownerID, runsJSON string
	if err := tx.QueryRowContext(ctx, selectQuery, sessionID).Scan(&ownerID, &runsJSON); err != nil {
		if err == sql.ErrNoRows {
			return domain.NewError(domain.NotFound, "session not found")
		}
		return domain.Wrap(domain.Internal, "loading session for append", err)
	}
	if ownerID != caller.ID {
		return domain.NewError(domain.NotFound, "session not found")
	}

	var runs []domain.Turn
	if err := json.Unmarshal([]byte(runsJSON), &runs); err != nil {
		return domain.Wrap(domain.Internal, "decoding session runs", err)
	}
	runs = append(runs, turn)

	encoded, err := json.Marshal(runs)
	if err != nil {
		return domain.Wrap(domain.Internal, "encoding session runs", err)
	}

	updateQuery := fmt.Sprintf(
		"UPDATE sessions SET runs = %s, updated_at = %s WHERE id = %s",
		s.placeholder(1), s.placeholder(2), s.placeholder(3),
	)
	if _, err := tx.ExecContext(ctx, updateQuery, string(encoded), time.Now(), sessionID); err != nil {
		return domain.Wrap(domain.Internal, "appending turn", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Wrap(domain.Internal, "committing appended turn", err)
	}
	return nil
}

// Load returns the session identified by sessionID, provided caller owns
// it. Ownership mismatch and absence are both reported as NotFound.
func (s *Store) Load(ctx context.Context, sessionID string, caller domain.Caller) (domain.Session, error) {
	query := fmt.Sprintf(
		"SELECT id, owner_id, summary, runs, created_at, updated_at FROM sessions WHERE id = %s AND owner_id = %s",
		s.placeholder(1), s.placeholder(2),
	)

	var sess domain.Session
	var runsJSON string
	err := s.db.QueryRowContext(ctx, query, sessionID, caller.ID).Scan(
		&sess.SessionID, &sess.OwnerID, &sess.Summary, &runsJSON, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return domain.Session{}, domain.NewError(domain.NotFound, "session not found")
	}
	if err != nil {
		return domain.Session{}, domain.Wrap(domain.Internal, "loading session", err)
	}
	if err := json.Unmarshal([]byte(runsJSON), &sess.Runs); err != nil {
		return domain.Session{}, domain.Wrap(domain.Internal, "decoding session runs", err)
	}
	return sess, nil
}

// Page is one page of sessions returned by ListFor.
type Page struct {
	Sessions   []domain.Session
	NextCursor string
}

// ListFor returns the caller's sessions ordered by most-recently-updated,
// paginated with an opaque cursor (the updated_at of the last row seen).
func (s *Store) ListFor(ctx context.Context, caller domain.Caller, cursor string, limit int) (Page, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows *sql.Rows
	var err error
	if cursor == "" {
		query := fmt.Sprintf(
			"SELECT id, owner_id, summary, runs, created_at, updated_at FROM sessions WHERE owner_id = %s ORDER BY updated_at DESC LIMIT %s",
			s.placeholder(1), s.placeholder(2),
		)
		rows, err = s.db.QueryContext(ctx, query, caller.ID, limit)
	} else {
		cursorTime, parseErr := time.Parse(time.RFC3339Nano, cursor)
		if parseErr != nil {
			return Page{}, domain.Wrap(domain.Malformed, "invalid pagination cursor", parseErr)
		}
		query := fmt.Sprintf(
			"SELECT id, owner_id, summary, runs, created_at, updated_at FROM sessions WHERE owner_id = %s AND updated_at < %s ORDER BY updated_at DESC LIMIT %s",
			s.placeholder(1), s.placeholder(2), s.placeholder(3),
		)
		rows, err = s.db.QueryContext(ctx, query, caller.ID, cursorTime, limit)
	}
	if err != nil {
		return Page{}, domain.Wrap(domain.Internal, "listing sessions", err)
	}
	defer rows.Close()

	var page Page
	for rows.Next() {
		var sess domain.Session
		var runsJSON string
		if err := rows.Scan(&sess.SessionID, &sess.OwnerID, &sess.Summary, &runsJSON, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return Page{}, domain.Wrap(domain.Internal, "scanning session row", err)
		}
		if err := json.Unmarshal([]byte(runsJSON), &sess.Runs); err != nil {
			return Page{}, domain.Wrap(domain.Internal, "decoding session runs", err)
		}
		page.Sessions = append(page.Sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return Page{}, domain.Wrap(domain.Internal, "iterating sessions", err)
	}

	if len(page.Sessions) == limit {
		page.NextCursor = page.Sessions[len(page.Sessions)-1].UpdatedAt.Format(time.RFC3339Nano)
	}
	return page, nil
}

// Delete removes the session and its turns. Memories derived from it are
// not touched (spec §4.2: "memories are not deleted"). A caller that does
// not own the session sees no error and no effect, matching the no-leak
// ownership policy.
func (s *Store) Delete(ctx context.Context, sessionID string, caller domain.Caller) error {
	query := fmt.Sprintf("DELETE FROM sessions WHERE id = %s AND owner_id = %s", s.placeholder(1), s.placeholder(2))
	if _, err := s.db.ExecContext(ctx, query, sessionID, caller.ID); err != nil {
		return domain.Wrap(domain.Internal, "deleting session", err)
	}

	s.mu.Lock()
	delete(s.sessionLocks, sessionID)
	s.mu.Unlock()
	return nil
}

// UpdateSummary replaces the session's summary, called by the Memory
// Store's summarize_if_needed once the oldest portion of a session has
// been compressed.
func (s *Store) UpdateSummary(ctx context.Context, sessionID string, summary string) error {
	query := fmt.Sprintf("UPDATE sessions SET summary = %s, updated_at = %s WHERE id = %s", s.placeholder(1), s.placeholder(2), s.placeholder(3))
	if _, err := s.db.ExecContext(ctx, query, summary, time.Now(), sessionID); err != nil {
		return domain.Wrap(domain.Internal, "updating session summary", err)
	}
	return nil
}
