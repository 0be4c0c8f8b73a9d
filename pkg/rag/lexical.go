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
	"database/sql"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cirkelline/core/pkg/domain"
)

// LexicalIndex is a BM25-style term-frequency/inverse-document-frequency
// index over a caller's chunks, maintained independently of the dense
// vector store. Degrading to lexical-only retrieval when the dense
// backend is unreachable does not depend on that backend at all.
//
// Grounded on the teacher's reciprocal-rank-fusion constant (rrfK=60,
// formerly in pkg/databases/qdrant.go's HybridSearch) which named the
// fusion side of this design; the BM25 scoring itself is new, since the
// teacher only offered a substring-match keyword filter, not real BM25.
type LexicalIndex struct {
	db      *sql.DB
	dialect string

	mu sync.RWMutex
}

const createLexicalTablesSQL = `
CREATE TABLE IF NOT EXISTS lexical_chunks (
    chunk_id VARCHAR(255) PRIMARY KEY,
    document_id VARCHAR(255) NOT NULL,
    owner_id VARCHAR(255) NOT NULL,
    access_level VARCHAR(32) NOT NULL,
    ordinal INTEGER NOT NULL,
    text TEXT NOT NULL,
    term_count INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_lexical_chunks_owner_id ON lexical_chunks(owner_id);
CREATE INDEX IF NOT EXISTS idx_lexical_chunks_document_id ON lexical_chunks(document_id);

CREATE TABLE IF NOT EXISTS lexical_terms (
    term VARCHAR(255) NOT NULL,
    chunk_id VARCHAR(255) NOT NULL,
    owner_id VARCHAR(255) NOT NULL,
    frequency INTEGER NOT NULL,
    PRIMARY KEY (term, chunk_id)
);

CREATE INDEX IF NOT EXISTS idx_lexical_terms_owner_term ON lexical_terms(owner_id, term);
`

// BM25 tuning constants, conventional defaults for short-document corpora.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// NewLexicalIndex creates the lexical index's schema if absent.
func NewLexicalIndex(db *sql.DB, dialect string) (*LexicalIndex, error) {
	if db == nil {
		return nil, fmt.Errorf("rag: database connection is required")
	}
	idx := &LexicalIndex{db: db, dialect: dialect}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, createLexicalTablesSQL); err != nil {
		return nil, domain.Wrap(domain.Internal, "initializing lexical index schema", err)
	}
	return idx, nil
}

func (idx *LexicalIndex) placeholder(n int) string {
	if idx.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// Index adds a chunk's terms to the inverted index. Safe to call once
// per chunk; a document's chunks are indexed together as it reaches
// StatusReady, never partially.
func (idx *LexicalIndex) Index(ctx context.Context, chunk domain.Chunk) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	terms := tokenize(chunk.Text)
	counts := make(map[string]int, len(terms))
	for _, t := range terms {
		counts[t]++
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Wrap(domain.Internal, "beginning lexical index transaction", err)
	}
	defer tx.Rollback()

	chunkQuery := fmt.Sprintf(
		"INSERT INTO lexical_chunks (chunk_id, document_id, owner_id, access_level, ordinal, text, term_count) VALUES (%s, %s, %s, %s, %s, %s, %s)",
		idx.placeholder(1), idx.placeholder(2), idx.placeholder(3), idx.placeholder(4), idx.placeholder(5), idx.placeholder(6), idx.placeholder(7),
	)
	if _, err := tx.ExecContext(ctx, chunkQuery, chunk.ChunkID, chunk.DocumentID, chunk.OwnerID, string(chunk.AccessLevel), chunk.Ordinal, chunk.Text, len(terms)); err != nil {
		return domain.Wrap(domain.Internal, "indexing chunk", err)
	}

	termQuery := fmt.Sprintf(
		"INSERT INTO lexical_terms (term, chunk_id, owner_id, frequency) VALUES (%s, %s, %s, %s)",
		idx.placeholder(1), idx.placeholder(2), idx.placeholder(3), idx.placeholder(4),
	)
	for term, freq := range counts {
		if _, err := tx.ExecContext(ctx, termQuery, term, chunk.ChunkID, chunk.OwnerID, freq); err != nil {
			return domain.Wrap(domain.Internal, "indexing term", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Wrap(domain.Internal, "committing lexical index", err)
	}
	return nil
}

// ChunkIDsForDocument returns every chunk id indexed for documentID, used
// to drive deletion from the vector store (whose interface only deletes
// by id, not by filter).
func (idx *LexicalIndex) ChunkIDsForDocument(ctx context.Context, documentID string) ([]string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	query := fmt.Sprintf("SELECT chunk_id FROM lexical_chunks WHERE document_id = %s", idx.placeholder(1))
	rows, err := idx.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, domain.Wrap(domain.Internal, "listing document chunk ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.Wrap(domain.Internal, "scanning chunk id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteDocument removes all of a document's chunks from the index.
func (idx *LexicalIndex) DeleteDocument(ctx context.Context, documentID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Wrap(domain.Internal, "beginning lexical delete transaction", err)
	}
	defer tx.Rollback()

	selectQuery := fmt.Sprintf("SELECT chunk_id FROM lexical_chunks WHERE document_id = %s", idx.placeholder(1))
	rows, err := tx.QueryContext(ctx, selectQuery, documentID)
	if err != nil {
		return domain.Wrap(domain.Internal, "finding document chunks", err)
	}
	var chunkIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return domain.Wrap(domain.Internal, "scanning chunk id", err)
		}
		chunkIDs = append(chunkIDs, id)
	}
	rows.Close()

	for _, id := range chunkIDs {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM lexical_terms WHERE chunk_id = %s", idx.placeholder(1)), id); err != nil {
			return domain.Wrap(domain.Internal, "deleting chunk terms", err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM lexical_chunks WHERE document_id = %s", idx.placeholder(1)), documentID); err != nil {
		return domain.Wrap(domain.Internal, "deleting chunks", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Wrap(domain.Internal, "committing lexical delete", err)
	}
	return nil
}

// LexicalResult is one scored chunk from a lexical search.
type LexicalResult struct {
	ChunkID    string
	DocumentID string
	Text       string
	Score      float64
}

// Search scores query against every chunk owned by ownerID using Okapi
// BM25, returning the top n by score. It never touches the dense vector
// store, so it keeps working when that backend is unreachable.
func (idx *LexicalIndex) Search(ctx context.Context, ownerID string, query string, n int) ([]LexicalResult, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	queryTerms := tokenize(query)
	if len(queryTerms) == 0 || n <= 0 {
		return nil, nil
	}

	totalDocs, avgLen, err := idx.corpusStats(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if totalDocs == 0 {
		return nil, nil
	}

	scores := make(map[string]float64)
	lengths := make(map[string]int)
	texts := make(map[string]string)
	documentIDs := make(map[string]string)

	seen := make(map[string]bool)
	for _, term := range queryTerms {
		if seen[term] {
			continue
		}
		seen[term] = true

		df, postings, err := idx.postingsFor(ctx, ownerID, term)
		if err != nil {
			return nil, err
		}
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (float64(totalDocs)-float64(df)+0.5)/(float64(df)+0.5))

		for chunkID, freq := range postings {
			if _, ok := lengths[chunkID]; !ok {
				l, text, docID, err := idx.chunkInfo(ctx, chunkID)
				if err != nil {
					return nil, err
				}
				lengths[chunkID] = l
				texts[chunkID] = text
				documentIDs[chunkID] = docID
			}
			length := lengths[chunkID]
			tf := float64(freq)
			norm := tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*float64(length)/avgLen))
			scores[chunkID] += idf * norm
		}
	}

	results := make([]LexicalResult, 0, len(scores))
	for chunkID, score := range scores {
		results = append(results, LexicalResult{
			ChunkID:    chunkID,
			DocumentID: documentIDs[chunkID],
			Text:       texts[chunkID],
			Score:      score,
		})
	}

	sortLexicalResults(results)
	if len(results) > n {
		results = results[:n]
	}
	return results, nil
}

func (idx *LexicalIndex) corpusStats(ctx context.Context, ownerID string) (int, float64, error) {
	query := fmt.Sprintf("SELECT COUNT(*), COALESCE(AVG(term_count), 0) FROM lexical_chunks WHERE owner_id = %s", idx.placeholder(1))
	var count int
	var avg float64
	if err := idx.db.QueryRowContext(ctx, query, ownerID).Scan(&count, &avg); err != nil {
		return 0, 0, domain.Wrap(domain.Internal, "computing corpus stats", err)
	}
	if avg == 0 {
		avg = 1
	}
	return count, avg, nil
}

func (idx *LexicalIndex) postingsFor(ctx context.Context, ownerID, term string) (int, map[string]int, error) {
	query := fmt.Sprintf(
		"SELECT chunk_id, frequency FROM lexical_terms WHERE owner_id = %s AND term = %s",
		idx.placeholder(1), idx.placeholder(2),
	)
	rows, err := idx.db.QueryContext(ctx, query, ownerID, term)
	if err != nil {
		return 0, nil, domain.Wrap(domain.Internal, "querying postings", err)
	}
	defer rows.Close()

	postings := make(map[string]int)
	for rows.Next() {
		var chunkID string
		var freq int
		if err := rows.Scan(&chunkID, &freq); err != nil {
			return 0, nil, domain.Wrap(domain.Internal, "scanning posting", err)
		}
		postings[chunkID] = freq
	}
	return len(postings), postings, rows.Err()
}

func (idx *LexicalIndex) chunkInfo(ctx context.Context, chunkID string) (int, string, string, error) {
	query := fmt.Sprintf("SELECT term_count, text, document_id FROM lexical_chunks WHERE chunk_id = %s", idx.placeholder(1))
	var termCount int
	var text, documentID string
	if err := idx.db.QueryRowContext(ctx, query, chunkID).Scan(&termCount, &text, &documentID); err != nil {
		return 0, "", "", domain.Wrap(domain.Internal, "loading chunk info", err)
	}
	return termCount, text, documentID, nil
}

func sortLexicalResults(results []LexicalResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}
