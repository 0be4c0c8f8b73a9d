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
	"database/sql"

	"github.com/cirkelline/core/pkg/config"
	"github.com/cirkelline/core/pkg/domain"
	"github.com/cirkelline/core/pkg/llms"
	"github.com/cirkelline/core/pkg/session"
)

// ServiceConfig wires the Memory Store's dependencies: the database, the
// two configured model backends (primary/fallback), the Session Store it
// compresses into, and optional overrides for the swappable prompt
// templates (empty paths fall back to the embedded defaults).
type ServiceConfig struct {
	DB      *sql.DB
	Dialect string

	Primary  llms.LLMProvider
	Fallback llms.LLMProvider // optional

	Sessions *session.Store

	DerivationTemplatePath    string // optional override
	SummarizationTemplatePath string // optional override

	SummaryTokenCeiling int // from config.Config.SummaryTokenCeiling
	Model               string
}

// Service is the Memory Store's public surface: derive, list, delete and
// summarize_if_needed (spec §4.3), composed from Store (persistence),
// Deriver (extraction) and Summarizer (compaction).
type Service struct {
	*Store
	deriver    *Deriver
	summarizer *Summarizer
}

// NewService builds a ready-to-use Memory Store.
func NewService(cfg ServiceConfig) (*Service, error) {
	store, err := New(cfg.DB, cfg.Dialect)
	if err != nil {
		return nil, err
	}

	derivationTmpl, err := NewDerivationTemplate(cfg.DerivationTemplatePath)
	if err != nil {
		return nil, err
	}
	summarizationTmpl, err := NewSummarizationTemplate(cfg.SummarizationTemplatePath)
	if err != nil {
		return nil, err
	}

	deriver := NewDeriver(cfg.Primary, cfg.Fallback, derivationTmpl, store)

	summarizer, err := NewSummarizer(SummarizerConfig{
		Primary:  cfg.Primary,
		Fallback: cfg.Fallback,
		Sessions: cfg.Sessions,
		Template: summarizationTmpl,
		Model:    cfg.Model,
		Budget:   cfg.SummaryTokenCeiling,
	})
	if err != nil {
		return nil, err
	}

	return &Service{Store: store, deriver: deriver, summarizer: summarizer}, nil
}

// NewServiceFromConfig is a convenience constructor that reads the two
// configured model backends and the summary token ceiling straight off
// config.Config, building the primary/fallback providers through an
// llms.LLMRegistry.
func NewServiceFromConfig(db *sql.DB, dialect string, cfg *config.Config, sessions *session.Store, derivationTemplatePath, summarizationTemplatePath string) (*Service, error) {
	registry := llms.NewLLMRegistry()

	primary, err := registry.CreateLLMFromConfig("memory-primary", &cfg.PrimaryModelBackend)
	if err != nil {
		return nil, domain.Wrap(domain.Internal, "building primary model backend", err)
	}

	var fallback llms.LLMProvider
	if cfg.FallbackModelBackend != nil {
		fallback, err = registry.CreateLLMFromConfig("memory-fallback", cfg.FallbackModelBackend)
		if err != nil {
			return nil, domain.Wrap(domain.Internal, "building fallback model backend", err)
		}
	}

	return NewService(ServiceConfig{
		DB:                        db,
		Dialect:                   dialect,
		Primary:                   primary,
		Fallback:                  fallback,
		Sessions:                  sessions,
		DerivationTemplatePath:    derivationTemplatePath,
		SummarizationTemplatePath: summarizationTemplatePath,
		SummaryTokenCeiling:       cfg.SummaryTokenCeiling,
		Model:                     cfg.PrimaryModelBackend.Model,
	})
}

// Derive extracts memories from a completed turn and persists them,
// idempotently per (owner_id, source_turn_id, family).
func (s *Service) Derive(ctx context.Context, caller domain.Caller, turn domain.Turn) ([]domain.Memory, error) {
	return s.deriver.Derive(ctx, caller, turn)
}

// SummarizeIfNeeded compresses the oldest portion of a session once its
// token count exceeds the configured ceiling.
func (s *Service) SummarizeIfNeeded(ctx context.Context, sessionID string, caller domain.Caller) error {
	return s.summarizer.SummarizeIfNeeded(ctx, sessionID, caller)
}
