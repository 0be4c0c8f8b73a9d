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

package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/cirkelline/core/pkg/domain"
)

// SQLUserStore is the sql.DB-backed UserStore the Resolver reads through.
// It also owns sign-up and password verification, the only two operations
// that touch hashed_password directly (spec.md §6's persisted layout:
// "users.hashed_password").
type SQLUserStore struct {
	db      *sql.DB
	dialect string
}

const createUsersTableSQL = `
CREATE TABLE IF NOT EXISTS users (
    id VARCHAR(255) PRIMARY KEY,
    display_name VARCHAR(255) NOT NULL,
    hashed_password VARCHAR(255) NOT NULL,
    is_admin BOOLEAN NOT NULL DEFAULT FALSE,
    profile TEXT,
    created_at TIMESTAMP NOT NULL
);
`

// NewSQLUserStore builds a SQLUserStore over db, creating its schema if
// absent. dialect is one of "postgres", "mysql", "sqlite".
func NewSQLUserStore(db *sql.DB, dialect string) (*SQLUserStore, error) {
	if db == nil {
		return nil, fmt.Errorf("auth: database connection is required")
	}
	s := &SQLUserStore{db: db, dialect: dialect}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, createUsersTableSQL); err != nil {
		return nil, fmt.Errorf("auth: initializing schema: %w", err)
	}
	return s, nil
}

func (s *SQLUserStore) placeholder(n int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// GetUser implements UserStore, read by the Resolver on every cache miss.
func (s *SQLUserStore) GetUser(ctx context.Context, id string) (*UserRecord, error) {
	query := fmt.Sprintf(
		"SELECT id, display_name, is_admin, profile FROM users WHERE id = %s",
		s.placeholder(1),
	)
	var rec UserRecord
	var profileJSON sql.NullString
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&rec.ID, &rec.DisplayName, &rec.IsAdmin, &profileJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NewError(domain.NotFound, "user not found")
		}
		return nil, domain.Wrap(domain.Internal, "loading user", err)
	}
	if profileJSON.Valid && profileJSON.String != "" {
		var profile domain.CallerProfile
		if err := json.Unmarshal([]byte(profileJSON.String), &profile); err != nil {
			return nil, domain.Wrap(domain.Internal, "decoding caller profile", err)
		}
		rec.Profile = &profile
	}
	return &rec, nil
}

// SignUp creates a new user with a bcrypt-hashed password, returning the
// minted user id. displayName defaults to id if empty.
func (s *SQLUserStore) SignUp(ctx context.Context, displayName, password string, isAdmin bool) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", domain.Wrap(domain.Internal, "hashing password", err)
	}

	id := uuid.NewString()
	if displayName == "" {
		displayName = id
	}

	query := fmt.Sprintf(
		"INSERT INTO users (id, display_name, hashed_password, is_admin, created_at) VALUES (%s, %s, %s, %s, %s)",
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5),
	)
	if _, err := s.db.ExecContext(ctx, query, id, displayName, string(hash), isAdmin, time.Now()); err != nil {
		return "", domain.Wrap(domain.Internal, "creating user", err)
	}
	return id, nil
}

// Authenticate verifies password against the stored hash for displayName,
// returning the user id on success. A wrong password or unknown user both
// yield AuthInvalid, never leaking which one it was.
func (s *SQLUserStore) Authenticate(ctx context.Context, displayName, password string) (string, error) {
	query := fmt.Sprintf(
		"SELECT id, hashed_password FROM users WHERE display_name = %s",
		s.placeholder(1),
	)
	var id, hash string
	err := s.db.QueryRowContext(ctx, query, displayName).Scan(&id, &hash)
	if err == sql.ErrNoRows {
		return "", domain.NewError(domain.AuthInvalid, "unknown user or wrong password")
	}
	if err != nil {
		return "", domain.Wrap(domain.Internal, "loading user for authentication", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", domain.NewError(domain.AuthInvalid, "unknown user or wrong password")
	}
	return id, nil
}
