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

// Package specialist implements the Specialist Registry: the catalogue of
// workers and teams the orchestrator routes a turn to, plus the routing
// decision itself.
package specialist

import (
	"context"

	"github.com/cirkelline/core/pkg/domain"
)

// EventKind classifies one raw event a specialist emits while handling a
// turn. The Event Filter (pkg/server/events.go) consumes these and
// decides which become envelopes forwarded to the caller.
type EventKind string

const (
	EventToken                   EventKind = "token"
	EventToolCall                EventKind = "tool_call"
	EventSubSpecialistTransition EventKind = "sub_specialist_transition"
	EventTerminal                EventKind = "terminal"
	EventError                   EventKind = "error"
)

// Event is one unit a Specialist publishes on its Invoke channel.
type Event struct {
	Kind           EventKind
	SpecialistName string
	Text           string
	ToolName       string
	Tokens         int
	Err            error
}

// Specialist is a worker or team the orchestrator can delegate a turn to.
// Team specialists compose recursively but present to their parent as one
// opaque node: the orchestrator never sees a team's children directly.
type Specialist interface {
	Name() string
	Kind() domain.SpecialistKind
	Capabilities() []string
	ToolRequirements() []string
	Invoke(ctx context.Context, turn domain.Turn) (<-chan Event, error)
}
