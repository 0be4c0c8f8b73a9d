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

// Package runner implements the Orchestrator: the per-turn state machine
// that fetches context, routes to a specialist, relays its stream and
// derives memories afterward (spec.md §4.7). It holds no shared mutable
// request state — every turn gets its own domain.RequestContext.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cirkelline/core/pkg/domain"
	"github.com/cirkelline/core/pkg/llms"
	"github.com/cirkelline/core/pkg/memory"
	"github.com/cirkelline/core/pkg/rag"
	"github.com/cirkelline/core/pkg/session"
	"github.com/cirkelline/core/pkg/specialist"
	"github.com/cirkelline/core/pkg/toolbridge"
)

// State is one node of the orchestrator's state machine (spec.md §4.7).
type State string

const (
	Admitted         State = "admitted"
	ContextAssembled State = "context_assembled"
	Routed           State = "routed"
	Streaming        State = "streaming"
	Finalized        State = "finalized"
	MemoryDerived    State = "memory_derived"
	Done             State = "done"

	Rejected  State = "rejected"
	Conflict  State = "conflict"
	Failed    State = "failed"
	Cancelled State = "cancelled"
)

// maxFallbacks is the cap on fall-back specialist attempts per turn
// (spec.md §4.7: "at most two fall-backs are attempted per turn").
const maxFallbacks = 2

// Config wires the Orchestrator's dependencies. RewriteOnlyForTeams and
// MaxFallbacks resolve two Open Questions left by spec.md §4.7 (see
// DESIGN.md): whether the second-stage rewrite always runs, and the
// fall-back depth; both default to the spec's own stated values ("always
// rewrite", two fall-backs) when left at their zero value.
type Config struct {
	Sessions    *session.Store
	Memories    *memory.Service
	Searcher    *rag.Searcher
	Specialists *specialist.Registry
	Router      *specialist.Router
	Bridge      *toolbridge.Bridge

	// Rewriter performs the second-stage rewrite in the core's own
	// conversational voice (one model call, no new retrieval) and also
	// answers turns that route to zero specialists. A nil Rewriter
	// disables rewriting; the primary's own terminal text becomes final.
	Rewriter llms.LLMProvider

	RetrievalK   int
	MaxFallbacks int // 0 defaults to 2, the spec's cap; larger values are lowered to 2

	// RewriteOnlyForTeams narrows the second-stage rewrite to turns whose
	// primary specialist was a team, instead of the spec's stated
	// default of always rewriting.
	RewriteOnlyForTeams bool
}

// Orchestrator drives one turn at a time through the state machine. It is
// safe for concurrent use by multiple in-flight turns — every Run call
// builds its own domain.RequestContext rather than touching shared state.
type Orchestrator struct {
	cfg Config
}

// New builds an Orchestrator. Sessions, Memories, Searcher, Specialists
// and Router are required; Bridge and Rewriter are optional (a nil Bridge
// means no specialist declares tool requirements; a nil Rewriter disables
// the second-stage rewrite).
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Sessions == nil || cfg.Memories == nil || cfg.Searcher == nil || cfg.Specialists == nil || cfg.Router == nil {
		return nil, fmt.Errorf("runner: sessions, memories, searcher, specialists and router are all required")
	}
	if cfg.RetrievalK <= 0 {
		cfg.RetrievalK = 6
	}
	if cfg.MaxFallbacks <= 0 || cfg.MaxFallbacks > maxFallbacks {
		cfg.MaxFallbacks = maxFallbacks
	}
	return &Orchestrator{cfg: cfg}, nil
}

// Run admits one turn and drives it through Admitted → ... → Done (or a
// terminal error state), returning a channel of Events the caller's Event
// Filter (pkg/server) relays onward. The channel is always closed, exactly
// once, by the time the turn reaches a terminal state.
func (o *Orchestrator) Run(parent context.Context, caller domain.Caller, incomingSessionID, message string, requestTimeout time.Duration) (<-chan Event, error) {
	rc := domain.NewRequestContext(parent, caller, uuid.NewString(), requestTimeout)

	sessionID, err := o.cfg.Sessions.ResolveOrMint(rc.Ctx, caller, incomingSessionID)
	if err != nil {
		rc.Cancel()
		return nil, domain.Wrap(domain.Internal, "resolving session", err)
	}

	out := make(chan Event, 32)
	go o.drive(rc, sessionID, message, out)
	return out, nil
}

func (o *Orchestrator) drive(rc *domain.RequestContext, sessionID, message string, out chan<- Event) {
	defer rc.Cancel()
	defer close(out)

	assembled, turnForRouting, err := o.assembleContext(rc, sessionID, message)
	if err != nil {
		o.emitError(out, sessionID, err)
		return
	}

	specialists, err := o.route(rc, turnForRouting)
	if err != nil {
		o.emitError(out, sessionID, err)
		return
	}

	routingTurn := domain.Turn{
		TurnID:         uuid.NewString(),
		SessionID:      sessionID,
		InboundMessage: assembled.Text,
		CreatedAt:      time.Now(),
	}

	outcome := o.stream(rc, routingTurn, specialists, assembled.Citations, out)
	if outcome.cancelled {
		return // spec.md §4.7: cancelled turns are not persisted.
	}
	if outcome.failed {
		o.emitError(out, sessionID, domain.NewError(domain.Internal, "every specialist failed for this turn"))
		return
	}

	final := o.rewrite(rc, message, outcome.text, len(specialists) > 0 && specialists[0].Kind() == domain.KindTeam)

	completed := domain.Turn{
		TurnID:             routingTurn.TurnID,
		SessionID:          sessionID,
		InboundMessage:     message,
		SpecialistsInvoked: outcome.invoked,
		OutboundMessage:    final,
		CreatedAt:          routingTurn.CreatedAt,
	}
	if err := o.cfg.Sessions.AppendTurn(rc.Ctx, sessionID, rc.Caller, completed); err != nil {
		slog.Warn("failed to persist completed turn", "session_id", sessionID, "error", err)
	}

	out <- Event{Kind: specialist.EventTerminal, Text: final, SessionID: sessionID, Citations: assembled.Citations}

	go o.deriveMemory(rc.Caller, completed)
}

// assembleContext is the Admitted → ContextAssembled transition: fetch
// memories, session summary and top-k retrieved chunks in parallel, join
// them, and assemble the deterministic prompt.
func (o *Orchestrator) assembleContext(rc *domain.RequestContext, sessionID, message string) (assembledContext, domain.Turn, error) {
	var (
		memPage   memory.Page
		sess      domain.Session
		retrieved []rag.Retrieved
	)

	g, gctx := errgroup.WithContext(rc.Ctx)
	g.Go(func() error {
		page, err := o.cfg.Memories.List(gctx, rc.Caller, "", 50)
		if err != nil {
			return err
		}
		memPage = page
		return nil
	})
	g.Go(func() error {
		s, err := o.cfg.Sessions.Load(gctx, sessionID, rc.Caller)
		if err != nil && !domain.Is(err, domain.NotFound) {
			return err
		}
		sess = s
		return nil
	})
	g.Go(func() error {
		r, err := o.cfg.Searcher.Search(gctx, rc.Caller, message, o.cfg.RetrievalK)
		if err != nil {
			// spec.md §4.4: retrieval failure degrades, never fails the turn.
			slog.Warn("retrieval failed, proceeding without context", "error", err)
			return nil
		}
		retrieved = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return assembledContext{}, domain.Turn{}, domain.Wrap(domain.Internal, "assembling turn context", err)
	}

	assembled := assemblePrompt(rc.Caller, memPage.Memories, sess, retrieved, message)
	return assembled, domain.Turn{SessionID: sessionID, InboundMessage: message}, nil
}

// route is the ContextAssembled → Routed transition.
func (o *Orchestrator) route(rc *domain.RequestContext, turn domain.Turn) ([]specialist.Specialist, error) {
	satisfied := func(tool string) bool {
		if o.cfg.Bridge == nil {
			return true
		}
		return o.cfg.Bridge.Connected(rc.Ctx, rc.Caller, tool)
	}
	specialists, err := o.cfg.Router.Route(rc.Ctx, turn, satisfied)
	if err != nil {
		// spec.md §4.7: an empty route list is handled directly, not an error.
		if domain.Is(err, domain.ToolUnavailable) {
			return nil, nil
		}
		return nil, err
	}
	return specialists, nil
}

type streamOutcome struct {
	text      string
	invoked   []string
	cancelled bool
	failed    bool
}

// stream is the Routed → Streaming → Finalized transition: invoke the
// primary, relay its events, and fall back on mid-stream failure up to
// Config.MaxFallbacks times (spec.md §4.7).
func (o *Orchestrator) stream(rc *domain.RequestContext, turn domain.Turn, specialists []specialist.Specialist, citations []Citation, out chan<- Event) streamOutcome {
	if len(specialists) == 0 {
		return o.directReply(rc, turn, out)
	}

	var invoked []string
	for attempt := 0; attempt <= o.cfg.MaxFallbacks && attempt < len(specialists); attempt++ {
		s := specialists[attempt]
		invoked = append(invoked, s.Name())
		isFallback := attempt > 0

		if isFallback {
			out <- Event{Kind: specialist.EventSubSpecialistTransition, SpecialistName: s.Name(), SessionID: turn.SessionID, IsFallback: true}
		}

		events, err := s.Invoke(rc.Ctx, turn)
		if err != nil {
			slog.Warn("specialist invocation failed", "specialist", s.Name(), "error", err)
			continue
		}

		text, ok := relay(rc.Ctx, events, turn.SessionID, isFallback, out)
		if rc.Ctx.Err() != nil {
			return streamOutcome{cancelled: true, invoked: invoked}
		}
		if ok {
			return streamOutcome{text: text, invoked: invoked}
		}
	}
	return streamOutcome{failed: true, invoked: invoked}
}

// relay forwards one specialist's events onto out, returning the
// concatenated token text and whether the specialist reached
// EventTerminal successfully.
func relay(ctx context.Context, events <-chan specialist.Event, sessionID string, isFallback bool, out chan<- Event) (string, bool) {
	var text string
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return text, false
			}
			if e.Kind == specialist.EventToken {
				text += e.Text
			}
			out <- fromSpecialistEvent(e, sessionID, isFallback)
			if e.Kind == specialist.EventTerminal {
				return text, true
			}
			if e.Kind == specialist.EventError {
				return text, false
			}
		case <-ctx.Done():
			return text, false
		}
	}
}

// directReply handles a route that returned zero specialists: the
// orchestrator answers in its own voice rather than delegating
// (spec.md §4.7).
func (o *Orchestrator) directReply(rc *domain.RequestContext, turn domain.Turn, out chan<- Event) streamOutcome {
	if o.cfg.Rewriter == nil {
		return streamOutcome{failed: true}
	}
	messages := []llms.Message{
		{Role: "system", Content: systemPreamble},
		{Role: "user", Content: turn.InboundMessage},
	}
	text, _, _, _, err := o.cfg.Rewriter.Generate(rc.Ctx, messages, nil)
	if err != nil {
		return streamOutcome{failed: true}
	}
	out <- Event{Kind: specialist.EventToken, Text: text, SessionID: turn.SessionID}
	return streamOutcome{text: text}
}

// rewrite performs the Streaming → Finalized second-stage rewrite: one
// model call, in the core's own conversational voice, no new retrieval.
// It runs on every turn by default; set Config.RewriteOnlyForTeams to
// narrow it to turns whose primary specialist was a team.
func (o *Orchestrator) rewrite(rc *domain.RequestContext, original, primaryText string, primaryWasTeam bool) string {
	if o.cfg.Rewriter == nil || primaryText == "" {
		return primaryText
	}
	if o.cfg.RewriteOnlyForTeams && !primaryWasTeam {
		return primaryText
	}

	messages := []llms.Message{
		{Role: "system", Content: "Restate the following response in your own conversational voice. Do not invent new facts or perform new research."},
		{Role: "user", Content: fmt.Sprintf("Original request: %s\n\nDraft response: %s", original, primaryText)},
	}
	text, _, _, _, err := o.cfg.Rewriter.Generate(rc.Ctx, messages, nil)
	if err != nil {
		slog.Warn("second-stage rewrite failed, using the primary's own text", "error", err)
		return primaryText
	}
	return text
}

// deriveMemory is the Finalized → MemoryDerived transition, run
// asynchronously: its failure is logged and swallowed, never affecting
// the turn's already-successful outcome (spec.md §4.3, §4.7).
func (o *Orchestrator) deriveMemory(caller domain.Caller, turn domain.Turn) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := o.cfg.Memories.Derive(ctx, caller, turn); err != nil {
		slog.Warn("memory derivation failed", "turn_id", turn.TurnID, "error", err)
		return
	}
	if err := o.cfg.Memories.SummarizeIfNeeded(ctx, turn.SessionID, caller); err != nil {
		slog.Warn("session summarization failed", "session_id", turn.SessionID, "error", err)
	}
}

func (o *Orchestrator) emitError(out chan<- Event, sessionID string, err error) {
	out <- Event{Kind: specialist.EventError, Err: err, SessionID: sessionID}
}
