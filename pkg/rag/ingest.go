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
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/cirkelline/core/pkg/databases"
	"github.com/cirkelline/core/pkg/domain"
	"github.com/cirkelline/core/pkg/embedders"
)

// knowledgeCollection is the single databases.DatabaseProvider collection
// backing every caller's chunks; isolation between callers is enforced by
// the owner_id/access_level filter passed to every Search, not by
// per-owner collections.
const knowledgeCollection = "knowledge_index"

// Indexer runs the ingestion pipeline: format detection and text
// extraction, chunking, dense embedding and dual persistence (vector
// store for dense retrieval, lexical index for BM25).
//
// Grounded on the teacher's pkg/rag extraction/chunking stack
// (native_parsers.go, chunker.go/chunker_simple.go, extractor.go),
// generalized from the teacher's directory/API/SQL data-source crawl to
// single-document, per-caller uploads.
type Indexer struct {
	documents  *DocumentStore
	lexical    *LexicalIndex
	extractors *ExtractorRegistry
	chunker    Chunker
	embedder   embedders.EmbedderProvider
	vectors    databases.DatabaseProvider
}

// NewIndexer builds an Indexer. chunkerCfg is typically ChunkerOverlapping
// so chunks preserve context across boundaries, per the teacher's own
// chunking guidance.
func NewIndexer(documents *DocumentStore, lexical *LexicalIndex, chunkerCfg ChunkerConfig, embedder embedders.EmbedderProvider, vectors databases.DatabaseProvider) (*Indexer, error) {
	chunker, err := NewChunker(chunkerCfg)
	if err != nil {
		return nil, domain.Wrap(domain.Internal, "building chunker", err)
	}
	return &Indexer{
		documents:  documents,
		lexical:    lexical,
		extractors: NewExtractorRegistry(),
		chunker:    chunker,
		embedder:   embedder,
		vectors:    vectors,
	}, nil
}

// Ingest runs the full pipeline asynchronously for one document: it
// returns as soon as the document row is created (StatusIngesting) and
// continues format detection/extraction/chunking/embedding/persistence
// in the background, transitioning the document to StatusReady or
// StatusFailed. Callers poll document status through DocumentStore.
func (idx *Indexer) Ingest(ctx context.Context, caller domain.Caller, name string, content []byte, accessLevel domain.AccessLevel) (domain.Document, error) {
	doc, err := idx.documents.Create(ctx, caller, name, accessLevel)
	if err != nil {
		return domain.Document{}, err
	}

	go idx.ingestBackground(context.Background(), doc, content)

	return doc, nil
}

func (idx *Indexer) ingestBackground(ctx context.Context, doc domain.Document, content []byte) {
	if err := idx.process(ctx, doc, content); err != nil {
		_ = idx.documents.UpdateStatus(ctx, doc.DocumentID, domain.StatusFailed)
		return
	}
	_ = idx.documents.UpdateStatus(ctx, doc.DocumentID, domain.StatusReady)
}

// process extracts, chunks, embeds and persists every chunk of doc.
// Failure of a single chunk fails the whole document: nothing is left
// half-indexed under StatusReady.
func (idx *Indexer) process(ctx context.Context, doc domain.Document, content []byte) error {
	text, err := idx.extract(ctx, doc.Name, content)
	if err != nil {
		return domain.Wrap(domain.DependencyFailure, "extracting document content", err)
	}

	chunks, err := idx.chunker.Chunk(text, nil)
	if err != nil {
		return domain.Wrap(domain.Internal, "chunking document", err)
	}

	for _, c := range chunks {
		if err := idx.indexChunk(ctx, doc, c); err != nil {
			return err
		}
	}
	return nil
}

func (idx *Indexer) extract(ctx context.Context, name string, content []byte) (string, error) {
	ext := filepath.Ext(name)
	switch ext {
	case ".txt", ".md", "":
		return string(content), nil
	}

	tmp, err := os.CreateTemp("", "cirkelline-ingest-*"+ext)
	if err != nil {
		return "", fmt.Errorf("creating temp file for extraction: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := tmp.Write(content); err != nil {
		return "", fmt.Errorf("writing temp file for extraction: %w", err)
	}

	extracted, err := idx.extractors.ExtractContent(ctx, tmp.Name(), "", int64(len(content)))
	if err != nil {
		return "", err
	}
	return extracted.Content, nil
}

func (idx *Indexer) indexChunk(ctx context.Context, doc domain.Document, c Chunk) error {
	vector, err := idx.embedder.Embed(c.Content)
	if err != nil {
		return domain.Wrap(domain.DependencyFailure, "embedding chunk", err)
	}

	chunk := domain.Chunk{
		ChunkID:     uuid.NewString(),
		DocumentID:  doc.DocumentID,
		OwnerID:     doc.OwnerID,
		AccessLevel: doc.AccessLevel,
		Ordinal:     c.Index,
		Text:        c.Content,
		Embedding:   vector,
	}

	metadata := map[string]interface{}{
		"document_id":   chunk.DocumentID,
		"owner_id":      chunk.OwnerID,
		"access_level":  string(chunk.AccessLevel),
		"ordinal":       chunk.Ordinal,
		"document_name": doc.Name,
		"content":       chunk.Text,
	}
	if err := idx.vectors.Upsert(ctx, knowledgeCollection, chunk.ChunkID, chunk.Embedding, metadata); err != nil {
		return domain.Wrap(domain.DependencyFailure, "persisting chunk vector", err)
	}

	if err := idx.lexical.Index(ctx, chunk); err != nil {
		return err
	}
	return nil
}

// Delete removes a document and all of its chunks from both the vector
// store and the lexical index. The caller must own the document.
func (idx *Indexer) Delete(ctx context.Context, documentID string, caller domain.Caller) error {
	doc, err := idx.documents.Get(ctx, documentID, caller)
	if err != nil {
		return err
	}
	if doc.OwnerID != caller.ID {
		return domain.NewError(domain.NotFound, "document not found")
	}

	chunkIDs, err := idx.lexical.ChunkIDsForDocument(ctx, documentID)
	if err != nil {
		return err
	}
	for _, chunkID := range chunkIDs {
		if err := idx.vectors.Delete(ctx, knowledgeCollection, chunkID); err != nil {
			return domain.Wrap(domain.DependencyFailure, "deleting document vectors", err)
		}
	}
	if err := idx.lexical.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	return idx.documents.Delete(ctx, documentID, caller)
}
