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
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cirkelline/core/pkg/config"
	"github.com/cirkelline/core/pkg/domain"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	cfg := &config.DatabaseConfig{Driver: "sqlite", Database: fmt.Sprintf("file:gw%d?mode=memory&cache=shared", time.Now().UnixNano())}
	cfg.SetDefaults()

	pool := config.NewDBPool()
	gw, err := Open(pool, cfg, 5*time.Second)
	if err != nil {
		t.Fatalf("opening gateway: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return gw
}

func TestGateway_DialectReflectsConfig(t *testing.T) {
	gw := newTestGateway(t)
	if gw.Dialect() != "sqlite" {
		t.Errorf("expected sqlite dialect, got %q", gw.Dialect())
	}
}

func TestGateway_RetryWriteRetriesOnLockContention(t *testing.T) {
	gw := newTestGateway(t)

	attempts := 0
	err := gw.RetryWrite(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestGateway_RetryWriteDoesNotRetryPermanentFailure(t *testing.T) {
	gw := newTestGateway(t)

	attempts := 0
	permanent := errors.New("unique constraint violated")
	err := gw.RetryWrite(context.Background(), func(ctx context.Context) error {
		attempts++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected the permanent error to surface unwrapped, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt for a non-retryable error, got %d", attempts)
	}
}

func TestGateway_RetryWriteGivesUpAfterMaxAttempts(t *testing.T) {
	gw := newTestGateway(t)

	attempts := 0
	err := gw.RetryWrite(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("deadlock detected")
	})
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
	if !domain.Is(err, domain.Internal) {
		t.Errorf("expected a domain.Internal error, got %v", err)
	}
	if attempts != retryAttempts {
		t.Errorf("expected %d attempts, got %d", retryAttempts, attempts)
	}
}

func TestQuerier_OwnerPredicateMatchesCanAccess(t *testing.T) {
	gw := newTestGateway(t)
	q := gw.Scoped(domain.Caller{ID: "u1", IsAdmin: false})

	predicate, args := q.OwnerPredicate(1)
	if predicate == "" {
		t.Fatal("expected a non-empty predicate")
	}
	if len(args) != 3 {
		t.Fatalf("expected 3 bind args, got %d", len(args))
	}
	if args[0] != "u1" || args[1] != false || args[2] != string(domain.AccessSharedWithAdmins) {
		t.Errorf("unexpected bind args: %v", args)
	}
}
