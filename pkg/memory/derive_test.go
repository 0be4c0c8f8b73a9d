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

package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/cirkelline/core/pkg/domain"
	"github.com/cirkelline/core/pkg/llms"
)

// stubProvider is a minimal llms.LLMProvider for exercising Deriver and
// Summarizer without a network call.
type stubProvider struct {
	text string
	err  error
}

func (s *stubProvider) Generate(ctx context.Context, messages []llms.Message, tools []llms.ToolDefinition) (string, []llms.ToolCall, int, *llms.ThinkingBlock, error) {
	if s.err != nil {
		return "", nil, 0, nil, s.err
	}
	return s.text, nil, 0, nil, nil
}

func (s *stubProvider) GenerateStreaming(ctx context.Context, messages []llms.Message, tools []llms.ToolDefinition) (<-chan llms.StreamChunk, error) {
	ch := make(chan llms.StreamChunk)
	close(ch)
	return ch, nil
}

func (s *stubProvider) GetModelName() string             { return "stub" }
func (s *stubProvider) GetMaxTokens() int                { return 4096 }
func (s *stubProvider) GetTemperature() float64          { return 0 }
func (s *stubProvider) GetSupportedInputModes() []string { return []string{"text/plain"} }
func (s *stubProvider) Close() error                     { return nil }

const stubDerivationJSON = `{
  "identity": [{"text": "caller is a backend engineer", "topics": ["profession"]}],
  "emotional": [],
  "preferences": [{"text": "prefers concise answers", "topics": ["style"]}],
  "goals": [],
  "patterns": []
}`

func newTestDeriver(t *testing.T, primary llms.LLMProvider, fallback llms.LLMProvider) (*Deriver, *Store) {
	t.Helper()
	store := newTestStore(t)
	tmpl, err := NewDerivationTemplate("")
	if err != nil {
		t.Fatalf("building derivation template: %v", err)
	}
	return NewDeriver(primary, fallback, tmpl, store), store
}

func TestDerive_ExtractsAndPersistsByFamily(t *testing.T) {
	deriver, store := newTestDeriver(t, &stubProvider{text: stubDerivationJSON}, nil)
	ctx := context.Background()
	caller := domain.Caller{ID: "u1"}
	turn := domain.Turn{TurnID: "t1", InboundMessage: "I'm a backend engineer, keep it short", OutboundMessage: "Got it."}

	memories, err := deriver.Derive(ctx, caller, turn)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if len(memories) != 2 {
		t.Fatalf("expected 2 extracted memories, got %d", len(memories))
	}

	page, err := store.List(ctx, caller, "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Memories) != 2 {
		t.Fatalf("expected 2 persisted memories, got %d", len(page.Memories))
	}
}

func TestDerive_IsIdempotentAcrossRepeatedCalls(t *testing.T) {
	deriver, store := newTestDeriver(t, &stubProvider{text: stubDerivationJSON}, nil)
	ctx := context.Background()
	caller := domain.Caller{ID: "u1"}
	turn := domain.Turn{TurnID: "t1", InboundMessage: "I'm a backend engineer", OutboundMessage: "Got it."}

	if _, err := deriver.Derive(ctx, caller, turn); err != nil {
		t.Fatalf("first derive: %v", err)
	}
	if _, err := deriver.Derive(ctx, caller, turn); err != nil {
		t.Fatalf("second derive: %v", err)
	}

	page, err := store.List(ctx, caller, "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Memories) != 2 {
		t.Fatalf("expected derivation of the same turn twice to yield no duplicates, got %d rows", len(page.Memories))
	}
}

func TestDerive_FallsBackWhenPrimaryFails(t *testing.T) {
	primary := &stubProvider{err: errors.New("primary unavailable")}
	fallback := &stubProvider{text: stubDerivationJSON}
	deriver, store := newTestDeriver(t, primary, fallback)
	ctx := context.Background()
	caller := domain.Caller{ID: "u1"}
	turn := domain.Turn{TurnID: "t1", InboundMessage: "hi", OutboundMessage: "hello"}

	if _, err := deriver.Derive(ctx, caller, turn); err != nil {
		t.Fatalf("derive with fallback: %v", err)
	}

	page, err := store.List(ctx, caller, "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Memories) != 2 {
		t.Fatalf("expected fallback derivation to persist memories, got %d", len(page.Memories))
	}
}

func TestDerive_ReturnsDependencyFailureWhenBothBackendsFail(t *testing.T) {
	deriver, _ := newTestDeriver(t, &stubProvider{err: errors.New("down")}, &stubProvider{err: errors.New("also down")})
	ctx := context.Background()
	turn := domain.Turn{TurnID: "t1", InboundMessage: "hi", OutboundMessage: "hello"}

	_, err := deriver.Derive(ctx, domain.Caller{ID: "u1"}, turn)
	if !domain.Is(err, domain.DependencyFailure) {
		t.Fatalf("expected DependencyFailure, got %v", err)
	}
}

func TestDerive_MalformedResponseReturnsMalformed(t *testing.T) {
	deriver, _ := newTestDeriver(t, &stubProvider{text: "not json"}, nil)
	ctx := context.Background()
	turn := domain.Turn{TurnID: "t1", InboundMessage: "hi", OutboundMessage: "hello"}

	_, err := deriver.Derive(ctx, domain.Caller{ID: "u1"}, turn)
	if !domain.Is(err, domain.Malformed) {
		t.Fatalf("expected Malformed, got %v", err)
	}
}
