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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cirkelline/core/pkg/domain"
	"github.com/cirkelline/core/pkg/llms"
	"github.com/cirkelline/core/pkg/registry"
)

// Registry is the process-wide, loaded-at-start-up catalogue of
// specialists. Built on the teacher's generic registry.BaseRegistry[T],
// the same building block pkg/llms.LLMRegistry uses.
type Registry struct {
	*registry.BaseRegistry[Specialist]
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Specialist]()}
}

// RegisterSpecialist adds s to the catalogue under its own name.
func (r *Registry) RegisterSpecialist(s Specialist) error {
	if s == nil {
		return fmt.Errorf("specialist cannot be nil")
	}
	return r.Register(s.Name(), s)
}

// ListCapabilities returns every specialist's descriptor, for the routing
// classifier's capability catalogue and for discovery endpoints.
func (r *Registry) ListCapabilities() []domain.SpecialistDescriptor {
	specialists := r.List()
	descriptors := make([]domain.SpecialistDescriptor, 0, len(specialists))
	for _, s := range specialists {
		descriptors = append(descriptors, domain.SpecialistDescriptor{
			Name:             s.Name(),
			Kind:             s.Kind(),
			Capabilities:     s.Capabilities(),
			ToolRequirements: s.ToolRequirements(),
		})
	}
	return descriptors
}

// Lookup returns the named specialist, or false if it isn't registered.
func (r *Registry) Lookup(name string) (Specialist, bool) {
	return r.Get(name)
}

// Router asks a classifier model for a ranked specialist list per turn,
// then filters out any specialist whose tool requirements the caller
// hasn't satisfied — spec.md §4.5's routing contract.
type Router struct {
	registry   *Registry
	classifier llms.LLMProvider
}

// NewRouter builds a Router over registry, using classifier (typically
// the primary model backend) for the ranking prompt.
func NewRouter(reg *Registry, classifier llms.LLMProvider) *Router {
	return &Router{registry: reg, classifier: classifier}
}

// Route returns an ordered list of specialists for turn: the first
// element is the primary, the remainder pre-authorized fall-backs.
// satisfied reports whether the caller's connection state satisfies a
// given tool requirement name (e.g. "calendar"); specialists requiring
// an unsatisfied tool are never emitted, per spec.md §4.5's precondition.
func (r *Router) Route(ctx context.Context, turn domain.Turn, satisfied func(tool string) bool) ([]Specialist, error) {
	descriptors := r.registry.ListCapabilities()
	if len(descriptors) == 0 {
		return nil, domain.NewError(domain.ToolUnavailable, "no specialists registered")
	}

	ranked, err := r.classify(ctx, turn.InboundMessage, descriptors)
	if err != nil {
		// Fall back to registration order rather than fail the turn outright.
		ranked = namesOf(descriptors)
	}

	var result []Specialist
	for _, name := range ranked {
		s, ok := r.registry.Lookup(name)
		if !ok {
			continue
		}
		if !requirementsSatisfied(s.ToolRequirements(), satisfied) {
			continue
		}
		result = append(result, s)
	}
	if len(result) == 0 {
		return nil, domain.NewError(domain.ToolUnavailable, "no specialist satisfies the caller's connection state")
	}
	return result, nil
}

func requirementsSatisfied(requirements []string, satisfied func(tool string) bool) bool {
	if satisfied == nil {
		return len(requirements) == 0
	}
	for _, req := range requirements {
		if !satisfied(req) {
			return false
		}
	}
	return true
}

func namesOf(descriptors []domain.SpecialistDescriptor) []string {
	names := make([]string, len(descriptors))
	for i, d := range descriptors {
		names[i] = d.Name
	}
	return names
}

// classify asks the classifier for a JSON array of specialist names,
// ranked by relevance to message. A cheap, narrowly-scoped prompt rather
// than a full agent turn, per spec.md §4.5's "lightweight classifier".
func (r *Router) classify(ctx context.Context, message string, descriptors []domain.SpecialistDescriptor) ([]string, error) {
	var catalogue strings.Builder
	for _, d := range descriptors {
		fmt.Fprintf(&catalogue, "- %s (%s): %s\n", d.Name, d.Kind, strings.Join(d.Capabilities, ", "))
	}

	prompt := fmt.Sprintf(
		"Given the user message and the specialist catalogue below, return a JSON array "+
			"of specialist names ordered from most to least relevant. Return only the array.\n\n"+
			"Message: %s\n\nCatalogue:\n%s", message, catalogue.String(),
	)

	text, _, _, _, err := r.classifier.Generate(ctx, []llms.Message{{Role: "user", Content: prompt}}, nil)
	if err != nil {
		return nil, domain.Wrap(domain.DependencyFailure, "routing classification", err)
	}

	var names []string
	if err := json.Unmarshal([]byte(extractJSONArray(text)), &names); err != nil {
		return nil, domain.Wrap(domain.Malformed, "parsing routing classification", err)
	}
	return names, nil
}

// extractJSONArray trims any prose a classifier model wraps around the
// JSON array it was asked to return.
func extractJSONArray(text string) string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}
