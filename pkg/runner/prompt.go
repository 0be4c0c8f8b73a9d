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

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cirkelline/core/pkg/domain"
	"github.com/cirkelline/core/pkg/rag"
)

// promptBudget bounds each section of the assembled prompt in characters,
// a crude but deterministic stand-in for a token counter that does not
// require pulling in a tokenizer per model family. Sections over budget
// are truncated oldest-first, per spec.md §4.7.
type promptBudget struct {
	memories    int
	summary     int
	chunks      int
	recentTurns int
}

var defaultPromptBudget = promptBudget{
	memories:    1200,
	summary:     2000,
	chunks:      4000,
	recentTurns: 4000,
}

// recentTurnWindow is how many of a session's most recent turns are
// included verbatim ahead of the new message.
const recentTurnWindow = 6

// assembledContext is the deterministically ordered material the prompt
// builder produces: system preamble, admin-profile injection if
// applicable, condensed session summary, ordered retrieved chunks with
// citations, recent turn window, new message (spec.md §4.7).
type assembledContext struct {
	Text      string
	Citations []Citation
}

func assemblePrompt(caller domain.Caller, memories []domain.Memory, sess domain.Session, retrieved []rag.Retrieved, message string) assembledContext {
	var b strings.Builder

	b.WriteString(systemPreamble)
	b.WriteString("\n\n")

	if caller.IsAdmin && caller.Profile != nil {
		writeTruncated(&b, "## Caller profile\n"+profileSection(*caller.Profile), defaultPromptBudget.memories)
		b.WriteString("\n\n")
	}

	if len(memories) > 0 {
		writeTruncated(&b, "## What you know about this caller\n"+memoriesSection(memories), defaultPromptBudget.memories)
		b.WriteString("\n\n")
	}

	if sess.Summary != "" {
		writeTruncated(&b, "## Conversation summary so far\n"+sess.Summary, defaultPromptBudget.summary)
		b.WriteString("\n\n")
	}

	var citations []Citation
	if len(retrieved) > 0 {
		chunkText, cites := chunksSection(retrieved)
		writeTruncated(&b, "## Retrieved context\n"+chunkText, defaultPromptBudget.chunks)
		b.WriteString("\n\n")
		citations = cites
	}

	if recent := recentTurnsSection(sess.Runs); recent != "" {
		writeTruncated(&b, "## Recent turns\n"+recent, defaultPromptBudget.recentTurns)
		b.WriteString("\n\n")
	}

	b.WriteString("## New message\n")
	b.WriteString(message)

	return assembledContext{Text: b.String(), Citations: citations}
}

const systemPreamble = "You are Cirkelline, a conversational assistant. Ground every " +
	"factual claim in the retrieved context provided below when it is " +
	"relevant; never quote retrieved chunks verbatim — summarize them in " +
	"your own words and let the citation list speak for provenance."

func profileSection(profile domain.CallerProfile) string {
	var b strings.Builder
	if profile.Context != "" {
		fmt.Fprintf(&b, "Context: %s\n", profile.Context)
	}
	if len(profile.Preferences) > 0 {
		prefs := make([]string, 0, len(profile.Preferences))
		for k, v := range profile.Preferences {
			prefs = append(prefs, fmt.Sprintf("%s=%s", k, v))
		}
		sort.Strings(prefs)
		fmt.Fprintf(&b, "Preferences: %s\n", strings.Join(prefs, "; "))
	}
	if len(profile.StyleHints) > 0 {
		fmt.Fprintf(&b, "Style hints: %s\n", strings.Join(profile.StyleHints, "; "))
	}
	return b.String()
}

func memoriesSection(memories []domain.Memory) string {
	var b strings.Builder
	for _, m := range memories {
		fmt.Fprintf(&b, "- [%s] %s\n", m.Family, m.Text)
	}
	return b.String()
}

func chunksSection(retrieved []rag.Retrieved) (string, []Citation) {
	var b strings.Builder
	citations := make([]Citation, 0, len(retrieved))
	for i, r := range retrieved {
		fmt.Fprintf(&b, "[%d] (%s #%d) %s\n", i+1, r.DocumentName, r.Ordinal, r.Text)
		citations = append(citations, Citation{DocumentID: r.DocumentID, DocumentName: r.DocumentName, Ordinal: r.Ordinal})
	}
	return b.String(), citations
}

func recentTurnsSection(runs []domain.Turn) string {
	if len(runs) == 0 {
		return ""
	}
	start := 0
	if len(runs) > recentTurnWindow {
		start = len(runs) - recentTurnWindow
	}
	var b strings.Builder
	for _, t := range runs[start:] {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", t.InboundMessage, t.OutboundMessage)
	}
	return b.String()
}

// writeTruncated appends section to b, dropping characters from the front
// (oldest-first) if it exceeds limit — truncation never drops the most
// recent material in a section, matching spec.md §4.7's "over-budget
// sections are truncated oldest-first".
func writeTruncated(b *strings.Builder, section string, limit int) {
	if limit <= 0 || len(section) <= limit {
		b.WriteString(section)
		return
	}
	b.WriteString("[earlier content truncated]\n")
	b.WriteString(section[len(section)-limit:])
}
