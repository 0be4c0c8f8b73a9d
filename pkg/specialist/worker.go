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

	"github.com/cirkelline/core/pkg/domain"
	"github.com/cirkelline/core/pkg/llms"
)

// Worker is a terminal specialist: one LLM call guided by a narrow system
// instruction (audio/video/image/document processing, per spec.md §4.5).
// Grounded on the teacher's llmagent.Config, which couples a model with a
// fixed Instruction string; generalized here from the teacher's tool-
// calling agent loop down to a single streamed completion, since a worker
// is terminal by definition and does not recurse into sub-specialists.
type Worker struct {
	name             string
	instruction      string
	capabilities     []string
	toolRequirements []string
	model            llms.LLMProvider
}

// NewWorker builds a Worker. instruction is injected as the system message
// ahead of the turn's inbound message.
func NewWorker(name, instruction string, capabilities, toolRequirements []string, model llms.LLMProvider) *Worker {
	return &Worker{
		name:             name,
		instruction:      instruction,
		capabilities:     capabilities,
		toolRequirements: toolRequirements,
		model:            model,
	}
}

func (w *Worker) Name() string               { return w.name }
func (w *Worker) Kind() domain.SpecialistKind { return domain.KindWorker }
func (w *Worker) Capabilities() []string      { return w.capabilities }
func (w *Worker) ToolRequirements() []string  { return w.toolRequirements }

// Invoke streams the worker's response to turn.InboundMessage as a
// sequence of Events, ending with EventTerminal (success) or EventError.
func (w *Worker) Invoke(ctx context.Context, turn domain.Turn) (<-chan Event, error) {
	messages := []llms.Message{
		{Role: "system", Content: w.instruction},
		{Role: "user", Content: turn.InboundMessage},
	}

	chunks, err := w.model.GenerateStreaming(ctx, messages, nil)
	if err != nil {
		return nil, domain.Wrap(domain.DependencyFailure, "invoking worker specialist", err)
	}

	out := make(chan Event, 16)
	go w.relay(chunks, out)
	return out, nil
}

func (w *Worker) relay(chunks <-chan llms.StreamChunk, out chan<- Event) {
	defer close(out)
	for chunk := range chunks {
		switch chunk.Type {
		case "text":
			out <- Event{Kind: EventToken, SpecialistName: w.name, Text: chunk.Text}
		case "tool_call":
			name := ""
			if chunk.ToolCall != nil {
				name = chunk.ToolCall.Name
			}
			out <- Event{Kind: EventToolCall, SpecialistName: w.name, ToolName: name}
		case "done":
			out <- Event{Kind: EventTerminal, SpecialistName: w.name, Tokens: chunk.Tokens}
			return
		case "error":
			out <- Event{Kind: EventError, SpecialistName: w.name, Err: chunk.Error}
			return
		}
	}
}

var _ Specialist = (*Worker)(nil)
