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
)

// Team is a nested coordinator that routes among its own child
// specialists and returns a single merged stream. To its parent registry
// a Team is one opaque node (spec.md §4.5: "teams compose recursively but
// the orchestrator treats them as opaque"); only the team's own Router
// ever sees its children.
type Team struct {
	name             string
	capabilities     []string
	toolRequirements []string
	router           *Router
}

// NewTeam builds a Team coordinating over children via router. router
// must have been built with NewRouter(children, classifier).
func NewTeam(name string, capabilities, toolRequirements []string, router *Router) *Team {
	return &Team{name: name, capabilities: capabilities, toolRequirements: toolRequirements, router: router}
}

func (t *Team) Name() string                { return t.name }
func (t *Team) Kind() domain.SpecialistKind  { return domain.KindTeam }
func (t *Team) Capabilities() []string       { return t.capabilities }
func (t *Team) ToolRequirements() []string   { return t.toolRequirements }

// Invoke routes turn among the team's children (always satisfied: tool
// preconditions are the parent orchestrator's concern, not evaluated
// again here) and relays the primary child's events relabeled under the
// team's own name, so the caller never observes an inner specialist
// transition. If the primary child fails, the first working fall-back's
// events are relayed instead, mirroring the orchestrator's own two
// fall-back cap (spec.md §4.7) one level down.
func (t *Team) Invoke(ctx context.Context, turn domain.Turn) (<-chan Event, error) {
	children, err := t.router.Route(ctx, turn, func(string) bool { return true })
	if err != nil {
		return nil, err
	}

	out := make(chan Event, 16)
	go t.relayChildren(ctx, turn, children, out)
	return out, nil
}

func (t *Team) relayChildren(ctx context.Context, turn domain.Turn, children []Specialist, out chan<- Event) {
	defer close(out)

	out <- Event{Kind: EventSubSpecialistTransition, SpecialistName: t.name, Text: children[0].Name()}

	for _, child := range children {
		events, err := child.Invoke(ctx, turn)
		if err != nil {
			continue
		}
		ok := t.relayOne(events, out)
		if ok {
			return
		}
	}
	out <- Event{Kind: EventError, SpecialistName: t.name, Err: domain.NewError(domain.DependencyFailure, "every child specialist failed")}
}

// relayOne drains events, relabeling them under the team's name, and
// reports whether the child reached a terminal event (success).
func (t *Team) relayOne(events <-chan Event, out chan<- Event) bool {
	for e := range events {
		e.SpecialistName = t.name
		out <- e
		if e.Kind == EventTerminal {
			return true
		}
		if e.Kind == EventError {
			return false
		}
	}
	return false
}

var _ Specialist = (*Team)(nil)
