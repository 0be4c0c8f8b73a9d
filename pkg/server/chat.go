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

package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cirkelline/core/pkg/domain"
	"github.com/cirkelline/core/pkg/runner"
)

// chatRequest is POST /chat's body (spec.md §6). UserHint and
// ExpensiveMode are accepted but not yet wired to a routing behavior —
// the orchestrator has no per-turn knob for either today; see DESIGN.md.
type chatRequest struct {
	Message       string `json:"message"`
	SessionID     string `json:"session_id"`
	UserHint      string `json:"user_hint"`
	Stream        *bool  `json:"stream"`
	ExpensiveMode bool   `json:"expensive_mode"`
}

func (req chatRequest) streams() bool {
	return req.Stream == nil || *req.Stream
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	caller := callerFromContext(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.Wrap(domain.Malformed, "decoding chat request body", err))
		return
	}
	if req.Message == "" {
		writeError(w, domain.NewError(domain.Malformed, "message is required"))
		return
	}

	events, err := s.deps.Orchestrator.Run(r.Context(), caller, req.SessionID, req.Message, s.deps.RequestTimeout)
	if err != nil {
		writeError(w, err)
		return
	}

	filter := newEventFilter(DefaultForwardPolicy, s.deps.Observability.Metrics())

	if !req.streams() {
		s.handleChatBuffered(w, events, filter)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, domain.NewError(domain.Internal, "response writer does not support streaming"))
		return
	}

	// Don't wrap ResponseWriter — it breaks http.Flusher for SSE.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// The eventFilter plus this handler's own goroutine is the sole
	// writer of the stream — no other component touches w after this
	// point (spec.md §4.8).
	for e := range events {
		env, ok := filter.translate(e)
		if !ok {
			continue
		}
		writeSSE(w, env)
		flusher.Flush()
	}
}

// handleChatBuffered serves stream:false by draining every envelope the
// filter would otherwise have streamed and returning only the terminal
// one as a single JSON body.
func (s *Server) handleChatBuffered(w http.ResponseWriter, events <-chan runner.Event, filter *eventFilter) {
	var terminal Envelope
	var sawTerminal bool
	for e := range events {
		env, ok := filter.translate(e)
		if !ok {
			continue
		}
		if env.Type == EnvelopeTerminal {
			terminal = env
			sawTerminal = true
		}
		if env.Type == EnvelopeError {
			writeError(w, e.Err)
			return
		}
	}
	if !sawTerminal {
		writeError(w, domain.NewError(domain.Internal, "turn ended without a terminal response"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(terminal)
}

func writeSSE(w http.ResponseWriter, env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
}
