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
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/cirkelline/core/pkg/domain"
)

// UserRecord is the authoritative, storage-backed view of a user. The
// resolver re-reads IsAdmin from here on every call (subject to a short
// cache), never trusting the token payload's admin claim alone.
type UserRecord struct {
	ID          string
	DisplayName string
	IsAdmin     bool
	Profile     *domain.CallerProfile
}

// UserStore is the minimal storage dependency the resolver needs.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*UserRecord, error)
}

// Resolver is the Identity Resolver (spec §4.1). It is pure with respect to
// its inputs beyond cache read-through: the same token always maps to the
// same Caller, modulo the admin-flag cache window.
type Resolver struct {
	secret        []byte
	users         UserStore
	adminCacheTTL time.Duration

	mu        sync.Mutex
	adminCache map[string]adminCacheEntry
}

type adminCacheEntry struct {
	record    *UserRecord
	expiresAt time.Time
}

// NewResolver builds a Resolver validating tokens with HMAC-SHA256 against
// secret, re-reading user records from users with the given cache TTL.
func NewResolver(secret string, users UserStore, adminCacheTTL time.Duration) *Resolver {
	if adminCacheTTL <= 0 {
		adminCacheTTL = time.Minute
	}
	return &Resolver{
		secret:        []byte(secret),
		users:         users,
		adminCacheTTL: adminCacheTTL,
		adminCache:    make(map[string]adminCacheEntry),
	}
}

// Resolve validates bearerToken and returns the Caller it names. An empty
// bearerToken yields an anonymous Caller when allowAnonymous is true, else
// AuthMissing. A malformed or badly-signed token yields AuthInvalid; an
// expired token yields AuthExpired.
func (r *Resolver) Resolve(ctx context.Context, bearerToken string, allowAnonymous bool) (domain.Caller, error) {
	if bearerToken == "" {
		if allowAnonymous {
			return domain.Caller{ID: "anon-" + uuid.NewString(), Anonymous: true}, nil
		}
		return domain.Caller{}, domain.NewError(domain.AuthMissing, "missing bearer token")
	}

	token, err := jwt.Parse([]byte(bearerToken), jwt.WithKey(jwa.HS256, r.secret), jwt.WithValidate(false))
	if err != nil {
		return domain.Caller{}, domain.Wrap(domain.AuthInvalid, "malformed or badly-signed token", err)
	}

	if exp := token.Expiration(); !exp.IsZero() && time.Now().After(exp) {
		return domain.Caller{}, domain.NewError(domain.AuthExpired, "token expired")
	}

	subject := token.Subject()
	if subject == "" {
		return domain.Caller{}, domain.NewError(domain.AuthInvalid, "token carries no subject")
	}

	record, err := r.lookupUser(ctx, subject)
	if err != nil {
		return domain.Caller{}, domain.Wrap(domain.AuthInvalid, "subject does not resolve to a known user", err)
	}

	return domain.Caller{
		ID:          record.ID,
		DisplayName: record.DisplayName,
		IsAdmin:     record.IsAdmin,
		Profile:     record.Profile,
	}, nil
}

// lookupUser re-reads the user's record from storage, short-circuiting
// through a per-caller cache bounded by adminCacheTTL. The admin flag is a
// property of the persisted record, never the token payload.
func (r *Resolver) lookupUser(ctx context.Context, id string) (*UserRecord, error) {
	r.mu.Lock()
	if entry, ok := r.adminCache[id]; ok && time.Now().Before(entry.expiresAt) {
		r.mu.Unlock()
		return entry.record, nil
	}
	r.mu.Unlock()

	record, err := r.users.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.adminCache[id] = adminCacheEntry{record: record, expiresAt: time.Now().Add(r.adminCacheTTL)}
	r.mu.Unlock()

	return record, nil
}

// IssueToken mints a signed bearer token for id, valid for ttl. Used by the
// sign-up/login flow, not by the resolver itself.
func IssueToken(secret string, id string, ttl time.Duration) (string, error) {
	token, err := jwt.NewBuilder().
		Subject(id).
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(ttl)).
		Build()
	if err != nil {
		return "", fmt.Errorf("building token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, []byte(secret)))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}

	return string(signed), nil
}
