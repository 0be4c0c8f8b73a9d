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

package rag

import (
	"context"
	"sort"

	"github.com/cirkelline/core/pkg/databases"
	"github.com/cirkelline/core/pkg/domain"
	"github.com/cirkelline/core/pkg/embedders"
)

// rrfConstant is the reciprocal-rank-fusion smoothing constant, grounded
// on the teacher's qdrant.go rrfK (60), chosen from the 40-80 range
// conventional for two-generator fusion.
const rrfConstant = 60

// Retrieved is one fused search result: a chunk plus the document it
// belongs to, for citation.
type Retrieved struct {
	ChunkID      string
	DocumentID   string
	DocumentName string
	Ordinal      int
	Text         string
	Score        float64
}

// Searcher runs hybrid retrieval: a dense generator (cosine similarity
// over embeddings, isolation-filtered at the query level) and a lexical
// generator (BM25 over the per-owner inverted index), fused by
// reciprocal rank fusion. Degrading to the lexical generator alone when
// the dense backend is unreachable never touches the vector store.
type Searcher struct {
	embedder        embedders.EmbedderProvider
	vectors         databases.DatabaseProvider
	lexical         *LexicalIndex
	expansionFactor int
}

// NewSearcher builds a Searcher. expansionFactor multiplies k to decide
// how many candidates each generator contributes before fusion narrows
// back down to k (spec's RETRIEVAL_EXPANSION_FACTOR, default 3).
func NewSearcher(embedder embedders.EmbedderProvider, vectors databases.DatabaseProvider, lexical *LexicalIndex, expansionFactor int) *Searcher {
	if expansionFactor <= 0 {
		expansionFactor = 3
	}
	return &Searcher{embedder: embedder, vectors: vectors, lexical: lexical, expansionFactor: expansionFactor}
}

// visibilityFilter returns the isolation predicate applied at the query
// level: the caller's own chunks, plus shared-with-admins chunks when
// the caller is an admin. The dense backend only sees one owner_id at a
// time (it does not support OR-of-AND filters in this shape), so a
// non-admin caller is filtered directly; an admin additionally receives
// the shared pool via a second dense query, merged before fusion.
func visibilityFilter(caller domain.Caller) map[string]interface{} {
	return map[string]interface{}{"owner_id": caller.ID}
}

// Search returns the top k chunks for query, visible to caller, ranked
// by fused dense+lexical relevance. It degrades to lexical-only if the
// dense backend fails, per the Knowledge Index's failure policy.
func (s *Searcher) Search(ctx context.Context, caller domain.Caller, query string, k int) ([]Retrieved, error) {
	if k <= 0 {
		k = 6
	}
	candidates := k * s.expansionFactor

	dense, denseErr := s.denseSearch(ctx, caller, query, candidates)
	lexicalResults, err := s.lexical.Search(ctx, caller.ID, query, candidates)
	if err != nil {
		return nil, err
	}

	if denseErr != nil {
		return topLexicalOnly(lexicalResults, k), nil
	}

	return fuse(dense, lexicalResults, k), nil
}

func (s *Searcher) denseSearch(ctx context.Context, caller domain.Caller, query string, n int) ([]databases.SearchResult, error) {
	vector, err := s.embedder.Embed(query)
	if err != nil {
		return nil, domain.Wrap(domain.DependencyFailure, "embedding query", err)
	}

	results, err := s.vectors.Search(ctx, knowledgeCollection, vector, n, visibilityFilter(caller))
	if err != nil {
		return nil, domain.Wrap(domain.DependencyFailure, "dense search", err)
	}

	if caller.IsAdmin {
		shared, err := s.vectors.Search(ctx, knowledgeCollection, vector, n, map[string]interface{}{"access_level": string(domain.AccessSharedWithAdmins)})
		if err == nil {
			results = append(results, shared...)
		}
	}
	return results, nil
}

func topLexicalOnly(results []LexicalResult, k int) []Retrieved {
	if len(results) > k {
		results = results[:k]
	}
	out := make([]Retrieved, 0, len(results))
	for _, r := range results {
		out = append(out, Retrieved{ChunkID: r.ChunkID, DocumentID: r.DocumentID, Text: r.Text, Score: r.Score})
	}
	return out
}

// fuse combines dense and lexical result sets by reciprocal rank fusion:
// score(chunk) = sum over generators of 1/(c + rank), rank 1-indexed.
// Ties are broken by the chunk's raw dense score, falling back to
// lexical score when the chunk never appeared in the dense results.
func fuse(dense []databases.SearchResult, lexical []LexicalResult, k int) []Retrieved {
	type accum struct {
		chunkID      string
		documentID   string
		documentName string
		ordinal      int
		text         string
		rrf          float64
		denseScore   float64
		lexicalScore float64
	}
	byID := make(map[string]*accum)

	for rank, r := range dense {
		a, ok := byID[r.ID]
		if !ok {
			documentID, _ := r.Metadata["document_id"].(string)
			documentName, _ := r.Metadata["document_name"].(string)
			ordinal, _ := r.Metadata["ordinal"].(int)
			a = &accum{chunkID: r.ID, documentID: documentID, documentName: documentName, ordinal: ordinal, text: r.Content}
			byID[r.ID] = a
		}
		a.rrf += 1.0 / float64(rrfConstant+rank+1)
		a.denseScore = float64(r.Score)
	}

	for rank, r := range lexical {
		a, ok := byID[r.ChunkID]
		if !ok {
			a = &accum{chunkID: r.ChunkID, documentID: r.DocumentID, text: r.Text}
			byID[r.ChunkID] = a
		}
		a.rrf += 1.0 / float64(rrfConstant+rank+1)
		a.lexicalScore = r.Score
	}

	fused := make([]*accum, 0, len(byID))
	for _, a := range byID {
		fused = append(fused, a)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].rrf != fused[j].rrf {
			return fused[i].rrf > fused[j].rrf
		}
		if fused[i].denseScore != fused[j].denseScore {
			return fused[i].denseScore > fused[j].denseScore
		}
		return fused[i].lexicalScore > fused[j].lexicalScore
	})

	if len(fused) > k {
		fused = fused[:k]
	}

	out := make([]Retrieved, 0, len(fused))
	for _, a := range fused {
		out = append(out, Retrieved{
			ChunkID:      a.chunkID,
			DocumentID:   a.documentID,
			DocumentName: a.documentName,
			Ordinal:      a.ordinal,
			Text:         a.text,
			Score:        a.rrf,
		})
	}
	return out
}
