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

package specialist

import (
	"context"
	"testing"

	"github.com/cirkelline/core/pkg/domain"
	"github.com/cirkelline/core/pkg/llms"
)

// stubProvider is a package-local llms.LLMProvider fake, mirroring
// pkg/llms/registry_test.go's MockLLMProvider shape.
type stubProvider struct {
	generateText string
	streamChunks []llms.StreamChunk
	err          error
}

func (s *stubProvider) Generate(ctx context.Context, messages []llms.Message, tools []llms.ToolDefinition) (string, []llms.ToolCall, int, *llms.ThinkingBlock, error) {
	if s.err != nil {
		return "", nil, 0, nil, s.err
	}
	return s.generateText, nil, 0, nil, nil
}

func (s *stubProvider) GenerateStreaming(ctx context.Context, messages []llms.Message, tools []llms.ToolDefinition) (<-chan llms.StreamChunk, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan llms.StreamChunk, len(s.streamChunks))
	for _, c := range s.streamChunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (s *stubProvider) GetModelName() string            { return "stub" }
func (s *stubProvider) GetMaxTokens() int                { return 1000 }
func (s *stubProvider) GetTemperature() float64          { return 0 }
func (s *stubProvider) GetSupportedInputModes() []string { return []string{"text/plain"} }
func (s *stubProvider) Close() error                     { return nil }

var _ llms.LLMProvider = (*stubProvider)(nil)

var errFakeUpstream = fakeErr("upstream failure")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func domainTurn(message string) domain.Turn {
	return domain.Turn{InboundMessage: message}
}

func TestWorker_InvokeRelaysTokensThenTerminal(t *testing.T) {
	provider := &stubProvider{streamChunks: []llms.StreamChunk{
		{Type: "text", Text: "hello "},
		{Type: "text", Text: "world"},
		{Type: "done", Tokens: 12},
	}}
	w := NewWorker("greeter", "be brief", []string{"chat"}, nil, provider)

	events, err := w.Invoke(context.Background(), domainTurn("hi"))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	var collected []Event
	for e := range events {
		collected = append(collected, e)
	}
	if len(collected) != 3 {
		t.Fatalf("expected 3 events, got %d", len(collected))
	}
	if collected[2].Kind != EventTerminal || collected[2].Tokens != 12 {
		t.Errorf("expected terminal event with tokens=12, got %+v", collected[2])
	}
}

func TestWorker_InvokeRelaysErrorEvent(t *testing.T) {
	provider := &stubProvider{streamChunks: []llms.StreamChunk{
		{Type: "error", Error: errFakeUpstream},
	}}
	w := NewWorker("greeter", "be brief", nil, nil, provider)

	events, err := w.Invoke(context.Background(), domainTurn("hi"))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	e := <-events
	if e.Kind != EventError {
		t.Errorf("expected error event, got %+v", e)
	}
}
