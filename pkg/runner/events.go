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

package runner

import "github.com/cirkelline/core/pkg/specialist"

// Citation is one retrieved chunk attached to a turn's prompt, surfaced to
// the caller alongside the terminal event so it can render a source list
// without the chunk text ever being echoed verbatim (spec.md §4.7:
// "retrieval results are attached ... but never echoed verbatim").
type Citation struct {
	DocumentID   string
	DocumentName string
	Ordinal      int
}

// Event is the orchestrator's own event envelope: a specialist.Event
// widened with the session it belongs to and whether it came from a
// fall-back continuation, so pkg/server's Event Filter (spec.md §4.8) has
// everything it needs to decide what reaches the caller without reaching
// back into the orchestrator's state.
type Event struct {
	Kind           specialist.EventKind
	SpecialistName string
	Text           string
	ToolName       string
	Tokens         int
	Err            error

	SessionID  string
	Citations  []Citation
	IsFallback bool
}

func fromSpecialistEvent(e specialist.Event, sessionID string, isFallback bool) Event {
	return Event{
		Kind:           e.Kind,
		SpecialistName: e.SpecialistName,
		Text:           e.Text,
		ToolName:       e.ToolName,
		Tokens:         e.Tokens,
		Err:            e.Err,
		SessionID:      sessionID,
		IsFallback:     isFallback,
	}
}
