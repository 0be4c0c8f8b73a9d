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

// Package server exposes the orchestration core over HTTP: the
// caller-facing POST /chat stream and the caller-scoped CRUD surfaces
// over sessions, memories and knowledge (spec.md §6).
package server

import (
	"time"

	"github.com/cirkelline/core/pkg/observability"
	"github.com/cirkelline/core/pkg/runner"
	"github.com/cirkelline/core/pkg/specialist"
)

// telemetryApp names this service in the metrics/session labels the
// observability package's Prometheus vectors carry (spec.md §2's
// "Telemetry Hook" component).
const telemetryApp = "cirkelline"

// EnvelopeType is the discriminator a caller switches on when decoding an
// SSE envelope (spec.md §4.8/§6).
type EnvelopeType string

const (
	EnvelopeToken    EnvelopeType = "token"
	EnvelopeTool     EnvelopeType = "tool"
	EnvelopeMeta     EnvelopeType = "meta"
	EnvelopeTerminal EnvelopeType = "terminal"
	EnvelopeError    EnvelopeType = "error"
)

// Envelope is the one JSON shape every SSE event on /chat takes
// (spec.md §6: "{type, content?, session_id?, citations?}"). The first
// envelope of a stream always carries SessionID so the client can
// persist it even if nothing else is known yet.
type Envelope struct {
	Type       EnvelopeType      `json:"type"`
	Content    string            `json:"content,omitempty"`
	SessionID  string            `json:"session_id,omitempty"`
	Citations  []runner.Citation `json:"citations,omitempty"`
	Specialist string            `json:"specialist,omitempty"`
}

// ForwardPolicy is the per-source filtering rule spec.md §4.8 asks for:
// "(forward tokens, forward tool calls, forward sub-specialist
// transitions, forward terminal)". A nested team's own children are
// already collapsed under the team's name by pkg/specialist.Team before
// an event ever reaches this package (its relayOne never forwards a
// child's identity separately), so the only per-source decision left at
// this layer is whether a given kind of event is visible on the stream
// at all — errors always are, regardless of policy, since a caller must
// always learn that its turn failed.
type ForwardPolicy struct {
	Tokens                   bool
	ToolCalls                bool
	SubSpecialistTransitions bool
	Terminal                 bool
}

// DefaultForwardPolicy forwards everything: the policy in force for an
// ordinary turn (primary specialist, or its fall-back once the primary
// has failed — spec.md §5's "a stream is either all-primary or, on
// primary failure, continues with fall-back events only" means the
// active source at any instant gets the full policy, never a degraded
// one).
var DefaultForwardPolicy = ForwardPolicy{
	Tokens:                   true,
	ToolCalls:                true,
	SubSpecialistTransitions: true,
	Terminal:                 true,
}

func (p ForwardPolicy) allows(kind specialist.EventKind) bool {
	switch kind {
	case specialist.EventToken:
		return p.Tokens
	case specialist.EventToolCall:
		return p.ToolCalls
	case specialist.EventSubSpecialistTransition:
		return p.SubSpecialistTransitions
	case specialist.EventTerminal:
		return p.Terminal
	case specialist.EventError:
		return true
	default:
		return false
	}
}

// eventFilter is spec.md §4.8's Event Filter: "the single source of
// truth for caller-visible output; no other component writes to the
// output stream." One is constructed per active /chat stream and run by
// a single goroutine draining the orchestrator's event channel, so two
// concurrent writes to the same ResponseWriter can never interleave.
type eventFilter struct {
	policy        ForwardPolicy
	lastTokenSpan string

	metrics          *observability.Metrics
	activeSpecialist string
	specialistStart  time.Time
}

// newEventFilter builds a filter for one /chat stream. metrics may be nil
// (observability disabled or not configured); every Metrics method is a
// nil-receiver no-op, so the filter never branches on it itself.
func newEventFilter(policy ForwardPolicy, metrics *observability.Metrics) *eventFilter {
	if policy == (ForwardPolicy{}) {
		policy = DefaultForwardPolicy
	}
	return &eventFilter{policy: policy, metrics: metrics}
}

// trackSpecialist records one specialist's wall-clock share of the turn
// (spec.md §2's Telemetry Hook covering "the orchestrator's turn
// lifecycle") each time the active specialist changes, and closes out
// whichever was active when the turn ends.
func (f *eventFilter) trackSpecialist(name string) {
	if name == "" || name == f.activeSpecialist {
		return
	}
	f.closeActiveSpecialist()
	f.activeSpecialist = name
	f.specialistStart = time.Now()
}

func (f *eventFilter) closeActiveSpecialist() {
	if f.activeSpecialist == "" {
		return
	}
	f.metrics.RecordAgentCall(f.activeSpecialist, "specialist", time.Since(f.specialistStart))
	f.activeSpecialist = ""
}

// translate maps one orchestrator event to zero or one envelopes: ok is
// false when the policy suppresses this event, or it is a token-kind
// duplicate of the immediately preceding forwarded span (spec.md §4.8:
// "duplicates of the same token span within a single forwarded stream
// are collapsed").
func (f *eventFilter) translate(e runner.Event) (Envelope, bool) {
	if !f.policy.allows(e.Kind) {
		return Envelope{}, false
	}

	f.trackSpecialist(e.SpecialistName)

	if e.Kind == specialist.EventToken {
		if e.Text != "" && e.Text == f.lastTokenSpan {
			return Envelope{}, false
		}
		f.lastTokenSpan = e.Text
	} else {
		f.lastTokenSpan = ""
	}

	env := Envelope{SessionID: e.SessionID, Specialist: e.SpecialistName}
	switch e.Kind {
	case specialist.EventToken:
		env.Type = EnvelopeToken
		env.Content = e.Text
	case specialist.EventToolCall:
		env.Type = EnvelopeTool
		env.Content = e.ToolName
		// TODO: record the call's own duration once runner.Event carries
		// one; for now only the call count is meaningful.
		f.metrics.RecordToolCall(e.ToolName, 0)
	case specialist.EventSubSpecialistTransition:
		env.Type = EnvelopeMeta
		env.Content = e.SpecialistName
	case specialist.EventTerminal:
		env.Type = EnvelopeTerminal
		env.Content = e.Text
		env.Citations = e.Citations
		f.closeActiveSpecialist()
		f.metrics.RecordSessionEvent(telemetryApp, "turn_completed")
	case specialist.EventError:
		env.Type = EnvelopeError
		if e.Err != nil {
			env.Content = e.Err.Error()
		}
		f.closeActiveSpecialist()
		f.metrics.RecordSessionEvent(telemetryApp, "turn_failed")
	}
	return env, true
}
