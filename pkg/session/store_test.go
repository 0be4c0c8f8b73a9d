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

package session

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cirkelline/core/pkg/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := New(db, "sqlite")
	if err != nil {
		t.Fatalf("building store: %v", err)
	}
	return store
}

func TestResolveOrMint_MintsFreshIDWhenAbsent(t *testing.T) {
	store := newTestStore(t)
	caller := domain.Caller{ID: "u1"}

	id, err := store.ResolveOrMint(context.Background(), caller, "")
	if err != nil {
		t.Fatalf("resolve_or_mint: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty minted session id")
	}
}

func TestResolveOrMint_RejectsUnownedID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := domain.Caller{ID: "u1"}
	other := domain.Caller{ID: "u2"}

	sessionID, err := store.ResolveOrMint(ctx, owner, "")
	if err != nil {
		t.Fatalf("minting: %v", err)
	}

	resolved, err := store.ResolveOrMint(ctx, other, sessionID)
	if err != nil {
		t.Fatalf("resolve_or_mint for non-owner: %v", err)
	}
	if resolved == sessionID {
		t.Fatal("expected a fresh session id for a caller that does not own the incoming one")
	}
}

func TestAppendTurnAndLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	caller := domain.Caller{ID: "u1"}

	sessionID, err := store.ResolveOrMint(ctx, caller, "")
	if err != nil {
		t.Fatalf("minting: %v", err)
	}

	turn := domain.Turn{TurnID: "t1", SessionID: sessionID, InboundMessage: "hi", OutboundMessage: "hello"}
	if err := store.AppendTurn(ctx, sessionID, caller, turn); err != nil {
		t.Fatalf("append_turn: %v", err)
	}

	loaded, err := store.Load(ctx, sessionID, caller)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Runs) != 1 || loaded.Runs[0].TurnID != "t1" {
		t.Fatalf("unexpected runs: %+v", loaded.Runs)
	}
}

func TestAppendTurn_OwnershipMismatchReportsNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := domain.Caller{ID: "u1"}
	other := domain.Caller{ID: "u2"}

	sessionID, err := store.ResolveOrMint(ctx, owner, "")
	if err != nil {
		t.Fatalf("minting: %v", err)
	}

	err = store.AppendTurn(ctx, sessionID, other, domain.Turn{TurnID: "t1"})
	if !domain.Is(err, domain.NotFound) {
		t.Fatalf("expected NotFound for ownership mismatch, got %v", err)
	}
}

func TestLoad_UnownedSessionReportsNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := domain.Caller{ID: "u1"}
	other := domain.Caller{ID: "u2"}

	sessionID, err := store.ResolveOrMint(ctx, owner, "")
	if err != nil {
		t.Fatalf("minting: %v", err)
	}

	_, err = store.Load(ctx, sessionID, other)
	if !domain.Is(err, domain.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestDelete_DoesNotAffectOtherCallersSessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := domain.Caller{ID: "u1"}
	other := domain.Caller{ID: "u2"}

	sessionID, err := store.ResolveOrMint(ctx, owner, "")
	if err != nil {
		t.Fatalf("minting: %v", err)
	}

	if err := store.Delete(ctx, sessionID, other); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := store.Load(ctx, sessionID, owner); err != nil {
		t.Fatalf("expected session to survive a non-owner delete, got %v", err)
	}
}

func TestListFor_FiltersByOwner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	u1 := domain.Caller{ID: "u1"}
	u2 := domain.Caller{ID: "u2"}

	if _, err := store.ResolveOrMint(ctx, u1, ""); err != nil {
		t.Fatalf("minting: %v", err)
	}
	if _, err := store.ResolveOrMint(ctx, u2, ""); err != nil {
		t.Fatalf("minting: %v", err)
	}

	page, err := store.ListFor(ctx, u1, "", 10)
	if err != nil {
		t.Fatalf("list_for: %v", err)
	}
	if len(page.Sessions) != 1 || page.Sessions[0].OwnerID != "u1" {
		t.Fatalf("expected exactly one session owned by u1, got %+v", page.Sessions)
	}
}
