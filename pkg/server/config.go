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

import "net/http"

// specialistSummary is the public-facing shape of a specialist's
// capabilities — deliberately narrower than domain.SpecialistDescriptor
// so GET /config never leaks internal routing details to an
// unauthenticated caller.
type specialistSummary struct {
	Name         string   `json:"name"`
	Kind         string   `json:"kind"`
	Capabilities []string `json:"capabilities"`
}

type configResponse struct {
	Version     string              `json:"version"`
	Specialists []specialistSummary `json:"specialists"`
}

// handleConfig serves GET /config: the one unauthenticated route (spec.md
// §6), reporting the core version and a capability summary so a client
// can decide what to offer before a caller has signed in.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	resp := configResponse{Version: CoreVersion}

	if s.deps.Specialists != nil {
		for _, d := range s.deps.Specialists.ListCapabilities() {
			resp.Specialists = append(resp.Specialists, specialistSummary{
				Name:         d.Name,
				Kind:         string(d.Kind),
				Capabilities: d.Capabilities,
			})
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleMetrics serves GET /metrics: the Telemetry Hook's Prometheus
// scrape target (spec.md §2). Unauthenticated, like /config — a scraper
// has no caller identity to present, and the payload carries only
// aggregate counters, never per-caller data.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.deps.Observability.MetricsHandler().ServeHTTP(w, r)
}
