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
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cirkelline/core/pkg/domain"
)

const maxUploadBytes = 32 << 20 // 32MiB, matching multipart.Reader's own default part-size guidance.

// handleIngestKnowledge handles POST /knowledge: a multipart upload with
// an is_shared flag. is_shared=true requires an admin caller (spec.md
// §6); a non-admin attempting it is reported as Malformed rather than a
// permissions error that would confirm the flag's existence to a caller
// who can't use it.
func (s *Server) handleIngestKnowledge(w http.ResponseWriter, r *http.Request) {
	caller := callerFromContext(r.Context())

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, domain.Wrap(domain.Malformed, "parsing multipart upload", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, domain.Wrap(domain.Malformed, "reading uploaded file", err))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(w, domain.Wrap(domain.Malformed, "reading uploaded file", err))
		return
	}

	isShared, _ := strconv.ParseBool(r.FormValue("is_shared"))
	accessLevel := domain.AccessPrivate
	if isShared {
		if !caller.IsAdmin {
			writeError(w, domain.NewError(domain.Malformed, "is_shared requires an admin caller"))
			return
		}
		accessLevel = domain.AccessSharedWithAdmins
	}

	doc, err := s.deps.Indexer.Ingest(r.Context(), caller, header.Filename, content, accessLevel)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (s *Server) handleListKnowledge(w http.ResponseWriter, r *http.Request) {
	caller := callerFromContext(r.Context())
	cursor := r.URL.Query().Get("cursor")
	limit := queryInt(r, "limit", 20)

	page, err := s.deps.Documents.ListFor(r.Context(), caller, cursor, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleDeleteKnowledge(w http.ResponseWriter, r *http.Request) {
	caller := callerFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if err := s.deps.Indexer.Delete(r.Context(), id, caller); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
