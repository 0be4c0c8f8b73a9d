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
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	caller := callerFromContext(r.Context())
	cursor := r.URL.Query().Get("cursor")
	limit := queryInt(r, "limit", 20)

	page, err := s.deps.Memories.List(r.Context(), caller, cursor, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	caller := callerFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if err := s.deps.Memories.Delete(r.Context(), caller, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
