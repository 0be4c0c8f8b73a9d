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
	"encoding/json"
	"strings"
	"time"

	"github.com/cirkelline/core/pkg/domain"
	"github.com/cirkelline/core/pkg/llms"
)

// derivationSchema constrains GenerateStructured-capable backends to the
// five-family shape the derivation template asks for.
var derivationSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"identity":    familyItemsSchema(),
		"emotional":   familyItemsSchema(),
		"preferences": familyItemsSchema(),
		"goals":       familyItemsSchema(),
		"patterns":    familyItemsSchema(),
	},
	"required": []string{"identity", "emotional", "preferences", "goals", "patterns"},
}

func familyItemsSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "array",
		"items": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"text":   map[string]interface{}{"type": "string"},
				"topics": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			},
			"required": []string{"text"},
		},
	}
}

type derivedItem struct {
	Text   string   `json:"text"`
	Topics []string `json:"topics"`
}

type derivationResult struct {
	Identity    []derivedItem `json:"identity"`
	Emotional   []derivedItem `json:"emotional"`
	Preferences []derivedItem `json:"preferences"`
	Goals       []derivedItem `json:"goals"`
	Patterns    []derivedItem `json:"patterns"`
}

// Deriver runs the derive operation: it sends a completed turn through the
// derivation template against PRIMARY_MODEL_BACKEND (falling back to
// FALLBACK_MODEL_BACKEND on failure) and persists the extracted memories.
type Deriver struct {
	primary  llms.LLMProvider
	fallback llms.LLMProvider
	template *DerivationTemplate
	store    *Store
}

// NewDeriver builds a Deriver. fallback may be nil if no fallback backend
// is configured.
func NewDeriver(primary, fallback llms.LLMProvider, template *DerivationTemplate, store *Store) *Deriver {
	return &Deriver{primary: primary, fallback: fallback, template: template, store: store}
}

// Derive extracts memories from a completed turn and persists them.
// Derivation is idempotent per (owner_id, source_turn_id, family): calling
// Derive twice on the same turn never produces duplicate rows.
func (d *Deriver) Derive(ctx context.Context, caller domain.Caller, turn domain.Turn) ([]domain.Memory, error) {
	prompt, err := d.template.Render(turn)
	if err != nil {
		return nil, err
	}

	raw, err := d.generate(ctx, prompt)
	if err != nil {
		return nil, domain.Wrap(domain.DependencyFailure, "deriving memories", err)
	}

	result, err := parseDerivationResult(raw)
	if err != nil {
		return nil, domain.Wrap(domain.Malformed, "parsing derivation response", err)
	}

	now := time.Now()
	var memories []domain.Memory
	for family, items := range map[domain.MemoryFamily][]derivedItem{
		domain.FamilyIdentity:    result.Identity,
		domain.FamilyEmotional:   result.Emotional,
		domain.FamilyPreferences: result.Preferences,
		domain.FamilyGoals:       result.Goals,
		domain.FamilyPatterns:    result.Patterns,
	} {
		for _, item := range items {
			if strings.TrimSpace(item.Text) == "" {
				continue
			}
			m := domain.Memory{
				MemoryID:     newMemoryID(),
				OwnerID:      caller.ID,
				Text:         item.Text,
				SourceTurnID: turn.TurnID,
				Family:       family,
				Topics:       item.Topics,
				UpdatedAt:    now,
			}
			if err := d.store.insertIgnoringConflict(ctx, m); err != nil {
				return nil, err
			}
			memories = append(memories, m)
		}
	}
	return memories, nil
}

// generate calls the primary backend, falling back to the secondary one
// (if configured) when the primary errors. Structured-output-capable
// backends are constrained to derivationSchema; others fall back to plain
// generation and rely on the template's instruction to return bare JSON.
func (d *Deriver) generate(ctx context.Context, prompt string) (string, error) {
	text, err := generateOne(ctx, d.primary, prompt)
	if err == nil {
		return text, nil
	}
	if d.fallback == nil {
		return "", err
	}
	return generateOne(ctx, d.fallback, prompt)
}

func generateOne(ctx context.Context, provider llms.LLMProvider, prompt string) (string, error) {
	messages := []llms.Message{{Role: "user", Content: prompt}}

	if structured, ok := provider.(llms.StructuredOutputProvider); ok && structured.SupportsStructuredOutput() {
		text, _, _, _, err := structured.GenerateStructured(ctx, messages, nil, &llms.StructuredOutputConfig{
			Format: "json",
			Schema: derivationSchema,
		})
		return text, err
	}

	text, _, _, _, err := provider.Generate(ctx, messages, nil)
	return text, err
}

// parseDerivationResult decodes the model's JSON response, tolerating a
// response wrapped in a ```json fenced block (some backends add one
// despite the template's instruction not to).
func parseDerivationResult(raw string) (derivationResult, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var result derivationResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return derivationResult{}, err
	}
	return result, nil
}
