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
	"testing"

	"github.com/cirkelline/core/pkg/databases"
)

func TestFuse_BoostsChunkAppearingInBothGenerators(t *testing.T) {
	dense := []databases.SearchResult{
		{ID: "only-dense", Score: 0.9, Metadata: map[string]interface{}{"document_id": "d1"}},
		{ID: "both", Score: 0.5, Metadata: map[string]interface{}{"document_id": "d1"}},
	}
	lexical := []LexicalResult{
		{ChunkID: "both", DocumentID: "d1", Score: 3.0},
		{ChunkID: "only-lexical", DocumentID: "d2", Score: 5.0},
	}

	results := fuse(dense, lexical, 10)
	if len(results) != 3 {
		t.Fatalf("expected 3 fused results, got %d", len(results))
	}
	if results[0].ChunkID != "both" {
		t.Errorf("expected the chunk present in both generators to rank first, got %s", results[0].ChunkID)
	}
}

func TestFuse_TruncatesToK(t *testing.T) {
	var dense []databases.SearchResult
	for i := 0; i < 10; i++ {
		dense = append(dense, databases.SearchResult{ID: string(rune('a' + i)), Score: float32(10 - i)})
	}

	results := fuse(dense, nil, 3)
	if len(results) != 3 {
		t.Fatalf("expected 3 results after truncation, got %d", len(results))
	}
}

func TestTopLexicalOnly_TruncatesToK(t *testing.T) {
	results := []LexicalResult{
		{ChunkID: "a", Score: 3},
		{ChunkID: "b", Score: 2},
		{ChunkID: "c", Score: 1},
	}
	out := topLexicalOnly(results, 2)
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
	if out[0].ChunkID != "a" || out[1].ChunkID != "b" {
		t.Errorf("expected top 2 by input order, got %v", out)
	}
}
