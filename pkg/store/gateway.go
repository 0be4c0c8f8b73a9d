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

// Package store is the Persistence Gateway (spec §4.9): the single place
// that opens a pooled SQL connection and hands it, already bounded by a
// request timeout, to the dialect-aware stores that embed their own
// schema (session.Store, memory.Store, rag.DocumentStore/LexicalIndex).
// New cross-cutting persistence — connection records, anything that does
// not already have an owning package — is built directly on the Gateway
// rather than opening its own pool.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cirkelline/core/pkg/config"
	"github.com/cirkelline/core/pkg/domain"
)

// Gateway owns one pooled *sql.DB per process, per spec §4.9's connection
// budget, and the request-scoped timeout every query through it inherits.
type Gateway struct {
	pool    *config.DBPool
	db      *sql.DB
	dialect string
	timeout time.Duration
}

// Open resolves cfg against pool — caching by DSN the way pool.Get always
// has — and wraps the result as a Gateway bounded by requestTimeout. A
// process typically owns one DBPool and calls Open once per logical
// database (the core never needs more than one).
func Open(pool *config.DBPool, cfg *config.DatabaseConfig, requestTimeout time.Duration) (*Gateway, error) {
	if pool == nil {
		return nil, fmt.Errorf("store: database pool is required")
	}
	db, err := pool.Get(cfg)
	if err != nil {
		return nil, fmt.Errorf("store: opening connection pool: %w", err)
	}
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &Gateway{pool: pool, db: db, dialect: cfg.Dialect(), timeout: requestTimeout}, nil
}

// DB returns the pooled connection for a dialect-aware store's own
// exclusive use (session.New, memory.New, rag.NewDocumentStore,
// rag.NewLexicalIndex). Nothing outside a store constructor is expected
// to call this; callers that only need to read or write rows reach for
// Scoped instead.
func (g *Gateway) DB() *sql.DB { return g.db }

// Dialect is the normalized SQL dialect name ("postgres", "mysql",
// "sqlite") every Gateway-backed store is constructed with.
func (g *Gateway) Dialect() string { return g.dialect }

// Close releases every pooled connection this Gateway's pool holds.
func (g *Gateway) Close() error { return g.pool.Close() }

// WithTimeout derives a context bounded by the Gateway's request timeout,
// the per-query deadline spec §4.9 requires of every persistence call.
func (g *Gateway) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.timeout)
}

// Scoped returns a Querier that injects caller's isolation predicate into
// every statement it builds, so call sites never hand-assemble an
// ownership WHERE clause themselves.
func (g *Gateway) Scoped(caller domain.Caller) *Querier {
	return &Querier{gateway: g, caller: caller}
}

const (
	retryAttempts = 3
	retryBaseWait = 50 * time.Millisecond
)

// RetryWrite runs fn with exponential backoff, generalizing the teacher's
// httpclient.Client retry strategy from transient HTTP failures to
// transient SQL failures (a busy sqlite pool, a postgres serialization
// conflict). fn must be idempotent — spec §4.9 only permits this for
// writes safe to repeat, such as upserts keyed by a caller-chosen id.
func (g *Gateway) RetryWrite(ctx context.Context, fn func(ctx context.Context) error) error {
	wait := retryBaseWait
	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return domain.Wrap(domain.Internal, "retrying write", ctx.Err())
			}
			wait *= 2
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryableWriteError(err) {
			return err
		}
	}
	return domain.Wrap(domain.Internal, fmt.Sprintf("write did not succeed after %d attempts", retryAttempts), lastErr)
}

// isRetryableWriteError reports whether err looks like a transient
// contention failure rather than a permanent one. Both sqlite ("database
// is locked"/"busy") and postgres/mysql (serialization failure/deadlock)
// report contention as a message substring rather than a typed error, so
// this matches on text the way the teacher's httpclient status-code
// checks match on class rather than exact code.
func isRetryableWriteError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"database is locked", "database is busy", "deadlock", "could not serialize access"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
