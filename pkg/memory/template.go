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
	"bytes"
	_ "embed"
	"os"
	"text/template"

	"github.com/cirkelline/core/pkg/domain"
)

//go:embed templates/derivation.tmpl
var defaultDerivationTemplate string

//go:embed templates/summarization.tmpl
var defaultSummarizationTemplate string

// DerivationTemplate renders the prompt sent to the model backend for
// memory extraction. It is swappable at construction time (a file path
// overriding the embedded default) so operators can tune extraction
// wording without a code change.
type DerivationTemplate struct {
	tmpl *template.Template
}

type derivationData struct {
	Inbound  string
	Outbound string
}

// NewDerivationTemplate builds a DerivationTemplate from path, or from the
// embedded default when path is empty.
func NewDerivationTemplate(path string) (*DerivationTemplate, error) {
	text := defaultDerivationTemplate
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.Wrap(domain.Internal, "reading derivation template", err)
		}
		text = string(raw)
	}

	tmpl, err := template.New("derivation").Parse(text)
	if err != nil {
		return nil, domain.Wrap(domain.Internal, "parsing derivation template", err)
	}
	return &DerivationTemplate{tmpl: tmpl}, nil
}

// Render fills the template with the completed turn's inbound/outbound
// text.
func (d *DerivationTemplate) Render(turn domain.Turn) (string, error) {
	var buf bytes.Buffer
	if err := d.tmpl.Execute(&buf, derivationData{Inbound: turn.InboundMessage, Outbound: turn.OutboundMessage}); err != nil {
		return "", domain.Wrap(domain.Internal, "rendering derivation template", err)
	}
	return buf.String(), nil
}

// SummarizationTemplate renders the compaction prompt used by
// summarize_if_needed.
type SummarizationTemplate struct {
	tmpl *template.Template
}

type summarizationData struct {
	PriorSummary string
	Turns        []domain.Turn
}

// NewSummarizationTemplate builds a SummarizationTemplate from path, or
// from the embedded default when path is empty.
func NewSummarizationTemplate(path string) (*SummarizationTemplate, error) {
	text := defaultSummarizationTemplate
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.Wrap(domain.Internal, "reading summarization template", err)
		}
		text = string(raw)
	}

	tmpl, err := template.New("summarization").Parse(text)
	if err != nil {
		return nil, domain.Wrap(domain.Internal, "parsing summarization template", err)
	}
	return &SummarizationTemplate{tmpl: tmpl}, nil
}

// Render fills the template with the prior summary (if any) and the
// ordered turns being folded into it.
func (s *SummarizationTemplate) Render(priorSummary string, turns []domain.Turn) (string, error) {
	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, summarizationData{PriorSummary: priorSummary, Turns: turns}); err != nil {
		return "", domain.Wrap(domain.Internal, "rendering summarization template", err)
	}
	return buf.String(), nil
}
