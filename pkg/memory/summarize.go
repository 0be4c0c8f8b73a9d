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

	"github.com/cirkelline/core/pkg/domain"
	"github.com/cirkelline/core/pkg/llms"
	"github.com/cirkelline/core/pkg/session"
	"github.com/cirkelline/core/pkg/utils"
)

// Token-ceiling-triggered compaction defaults, carried over from the
// teacher's summary-buffer strategy (budget/threshold/target), re-scoped
// from message counts to turn counts for this module's Session Store.
const (
	DefaultBudget                = 8000
	DefaultThreshold             = 0.85
	DefaultTarget                = 0.7
	DefaultMinTurnsBeforeSummary = 6
	DefaultMinTurnsToKeep        = 4
)

// SummarizerConfig configures a Summarizer.
type SummarizerConfig struct {
	Primary  llms.LLMProvider
	Fallback llms.LLMProvider // optional

	Sessions *session.Store
	Template *SummarizationTemplate

	// Model is used only for token counting; it need not match Primary's
	// model name exactly, since the counter is an approximation shared
	// across backends.
	Model string

	Budget                int     // default DefaultBudget
	Threshold             float64 // default DefaultThreshold
	Target                float64 // default DefaultTarget
	MinTurnsBeforeSummary int     // default DefaultMinTurnsBeforeSummary
	MinTurnsToKeep        int     // default DefaultMinTurnsToKeep
}

// Summarizer implements summarize_if_needed: it compresses the oldest
// portion of a session once its token count crosses a configured ceiling,
// leaving the raw turns untouched in the Session Store.
type Summarizer struct {
	primary  llms.LLMProvider
	fallback llms.LLMProvider
	sessions *session.Store
	template *SummarizationTemplate
	counter  *utils.TokenCounter

	budget                int
	threshold             float64
	target                float64
	minTurnsBeforeSummary int
	minTurnsToKeep        int
}

// NewSummarizer builds a Summarizer, applying defaults for any unset
// numeric fields in cfg.
func NewSummarizer(cfg SummarizerConfig) (*Summarizer, error) {
	model := cfg.Model
	if model == "" {
		model = "gpt-4"
	}
	counter, err := utils.NewTokenCounter(model)
	if err != nil {
		return nil, domain.Wrap(domain.Internal, "building token counter", err)
	}

	budget := cfg.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}
	threshold := cfg.Threshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	target := cfg.Target
	if target <= 0 || target > 1 {
		target = DefaultTarget
	}
	minBefore := cfg.MinTurnsBeforeSummary
	if minBefore <= 0 {
		minBefore = DefaultMinTurnsBeforeSummary
	}
	minKeep := cfg.MinTurnsToKeep
	if minKeep <= 0 {
		minKeep = DefaultMinTurnsToKeep
	}

	return &Summarizer{
		primary:               cfg.Primary,
		fallback:              cfg.Fallback,
		sessions:              cfg.Sessions,
		template:              cfg.Template,
		counter:               counter,
		budget:                budget,
		threshold:             threshold,
		target:                target,
		minTurnsBeforeSummary: minBefore,
		minTurnsToKeep:        minKeep,
	}, nil
}

// SummarizeIfNeeded folds the oldest turns of sessionID into its summary
// once the session's token count exceeds budget*threshold, stopping once
// the kept recent turns fit within budget*target. It is a no-op when the
// session is short or under the ceiling. Raw turns are never rewritten;
// only Session.Summary is replaced.
func (s *Summarizer) SummarizeIfNeeded(ctx context.Context, sessionID string, caller domain.Caller) error {
	sess, err := s.sessions.Load(ctx, sessionID, caller)
	if err != nil {
		return err
	}
	if len(sess.Runs) < s.minTurnsBeforeSummary {
		return nil
	}
	if len(sess.Runs) <= s.minTurnsToKeep {
		return nil
	}

	if s.tokenCount(sess.Summary, sess.Runs) <= int(float64(s.budget)*s.threshold) {
		return nil
	}

	// Fold turns from the oldest end until the kept recent turns fit
	// within the target budget, always leaving at least minTurnsToKeep.
	maxCut := len(sess.Runs) - s.minTurnsToKeep
	cut := 1
	for cut < maxCut && s.tokenCount("", sess.Runs[cut:]) > int(float64(s.budget)*s.target) {
		cut++
	}
	toFold := sess.Runs[:cut]

	prompt, err := s.template.Render(sess.Summary, toFold)
	if err != nil {
		return err
	}

	summary, err := s.generate(ctx, prompt)
	if err != nil {
		return domain.Wrap(domain.DependencyFailure, "summarizing session", err)
	}

	return s.sessions.UpdateSummary(ctx, sessionID, summary)
}

func (s *Summarizer) tokenCount(summary string, turns []domain.Turn) int {
	messages := make([]utils.Message, 0, len(turns)*2+1)
	if summary != "" {
		messages = append(messages, utils.Message{Role: "system", Content: summary})
	}
	for _, t := range turns {
		messages = append(messages, utils.Message{Role: "user", Content: t.InboundMessage})
		messages = append(messages, utils.Message{Role: "assistant", Content: t.OutboundMessage})
	}
	return s.counter.CountMessages(messages)
}

func (s *Summarizer) generate(ctx context.Context, prompt string) (string, error) {
	text, err := generateOne(ctx, s.primary, prompt)
	if err == nil {
		return text, nil
	}
	if s.fallback == nil {
		return "", err
	}
	return generateOne(ctx, s.fallback, prompt)
}
