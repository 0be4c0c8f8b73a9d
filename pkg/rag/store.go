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

// Package rag implements the Knowledge Index: document ingestion (format
// detection, extraction, chunking, embedding) and hybrid dense+lexical
// retrieval, scoped per caller.
package rag

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cirkelline/core/pkg/domain"
)

// DocumentStore persists document metadata (spec.md §3's Document). Chunk
// content and dense vectors live in the configured databases.DatabaseProvider;
// chunk text and postings for lexical scoring live in LexicalIndex. This
// store only tracks the document's lifecycle: ingesting, ready, failed.
type DocumentStore struct {
	db      *sql.DB
	dialect string
}

const createDocumentsTableSQL = `
CREATE TABLE IF NOT EXISTS documents (
    id VARCHAR(255) PRIMARY KEY,
    owner_id VARCHAR(255) NOT NULL,
    name VARCHAR(1024) NOT NULL,
    access_level VARCHAR(32) NOT NULL,
    status VARCHAR(32) NOT NULL,
    ingested_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_owner_id ON documents(owner_id);
`

// NewDocumentStore builds a DocumentStore over db, creating its schema if
// absent. dialect is one of "postgres", "mysql", "sqlite".
func NewDocumentStore(db *sql.DB, dialect string) (*DocumentStore, error) {
	if db == nil {
		return nil, fmt.Errorf("rag: database connection is required")
	}
	s := &DocumentStore{db: db, dialect: dialect}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, createDocumentsTableSQL); err != nil {
		return nil, domain.Wrap(domain.Internal, "initializing document schema", err)
	}
	return s, nil
}

func (s *DocumentStore) placeholder(n int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Create inserts a new document in StatusIngesting and returns it.
func (s *DocumentStore) Create(ctx context.Context, caller domain.Caller, name string, accessLevel domain.AccessLevel) (domain.Document, error) {
	doc := domain.Document{
		DocumentID:  uuid.NewString(),
		OwnerID:     caller.ID,
		Name:        name,
		AccessLevel: accessLevel,
		IngestedAt:  time.Now(),
		Status:      domain.StatusIngesting,
	}

	query := fmt.Sprintf(
		"INSERT INTO documents (id, owner_id, name, access_level, status, ingested_at) VALUES (%s, %s, %s, %s, %s, %s)",
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5), s.placeholder(6),
	)
	if _, err := s.db.ExecContext(ctx, query, doc.DocumentID, doc.OwnerID, doc.Name, string(doc.AccessLevel), string(doc.Status), doc.IngestedAt); err != nil {
		return domain.Document{}, domain.Wrap(domain.Internal, "creating document", err)
	}
	return doc, nil
}

// UpdateStatus transitions a document to status. A chunk only becomes
// queryable once its parent document reaches StatusReady; failure of a
// single chunk fails the whole document (StatusFailed).
func (s *DocumentStore) UpdateStatus(ctx context.Context, documentID string, status domain.DocumentStatus) error {
	query := fmt.Sprintf("UPDATE documents SET status = %s WHERE id = %s", s.placeholder(1), s.placeholder(2))
	if _, err := s.db.ExecContext(ctx, query, string(status), documentID); err != nil {
		return domain.Wrap(domain.Internal, "updating document status", err)
	}
	return nil
}

// Get returns the document identified by documentID, provided caller owns
// it or it is shared-with-admins and caller is an admin. Ownership
// mismatch and absence are both reported as NotFound (no existence leak).
func (s *DocumentStore) Get(ctx context.Context, documentID string, caller domain.Caller) (domain.Document, error) {
	query := fmt.Sprintf("SELECT id, owner_id, name, access_level, status, ingested_at FROM documents WHERE id = %s", s.placeholder(1))

	var doc domain.Document
	var accessLevel, status string
	err := s.db.QueryRowContext(ctx, query, documentID).Scan(&doc.DocumentID, &doc.OwnerID, &doc.Name, &accessLevel, &status, &doc.IngestedAt)
	if err == sql.ErrNoRows {
		return domain.Document{}, domain.NewError(domain.NotFound, "document not found")
	}
	if err != nil {
		return domain.Document{}, domain.Wrap(domain.Internal, "loading document", err)
	}
	doc.AccessLevel = domain.AccessLevel(accessLevel)
	doc.Status = domain.DocumentStatus(status)

	if !domain.CanAccess(caller.ID, caller.IsAdmin, doc.OwnerID, doc.AccessLevel) {
		return domain.Document{}, domain.NewError(domain.NotFound, "document not found")
	}
	return doc, nil
}

// Page is one page of documents returned by ListFor.
type Page struct {
	Documents  []domain.Document
	NextCursor string
}

// ListFor returns documents visible to caller: its own plus any
// shared-with-admins document when caller is an admin, ordered by most
// recently ingested, paginated with an opaque cursor.
func (s *DocumentStore) ListFor(ctx context.Context, caller domain.Caller, cursor string, limit int) (Page, error) {
	if limit <= 0 {
		limit = 20
	}

	visibility := fmt.Sprintf("owner_id = %s", s.placeholder(1))
	args := []interface{}{caller.ID}
	if caller.IsAdmin {
		visibility = fmt.Sprintf("(owner_id = %s OR access_level = %s)", s.placeholder(1), s.placeholder(2))
		args = append(args, string(domain.AccessSharedWithAdmins))
	}

	var rows *sql.Rows
	var err error
	if cursor == "" {
		query := fmt.Sprintf(
			"SELECT id, owner_id, name, access_level, status, ingested_at FROM documents WHERE %s ORDER BY ingested_at DESC LIMIT %s",
			visibility, s.placeholder(len(args)+1),
		)
		args = append(args, limit)
		rows, err = s.db.QueryContext(ctx, query, args...)
	} else {
		cursorTime, parseErr := time.Parse(time.RFC3339Nano, cursor)
		if parseErr != nil {
			return Page{}, domain.Wrap(domain.Malformed, "invalid pagination cursor", parseErr)
		}
		query := fmt.Sprintf(
			"SELECT id, owner_id, name, access_level, status, ingested_at FROM documents WHERE %s AND ingested_at < %s ORDER BY ingested_at DESC LIMIT %s",
			visibility, s.placeholder(len(args)+1), s.placeholder(len(args)+2),
		)
		args = append(args, cursorTime, limit)
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return Page{}, domain.Wrap(domain.Internal, "listing documents", err)
	}
	defer rows.Close()

	var page Page
	for rows.Next() {
		var doc domain.Document
		var accessLevel, status string
		if err := rows.Scan(&doc.DocumentID, &doc.OwnerID, &doc.Name, &accessLevel, &status, &doc.IngestedAt); err != nil {
			return Page{}, domain.Wrap(domain.Internal, "scanning document row", err)
		}
		doc.AccessLevel = domain.AccessLevel(accessLevel)
		doc.Status = domain.DocumentStatus(status)
		page.Documents = append(page.Documents, doc)
	}
	if err := rows.Err(); err != nil {
		return Page{}, domain.Wrap(domain.Internal, "iterating documents", err)
	}

	if len(page.Documents) == limit {
		page.NextCursor = page.Documents[len(page.Documents)-1].IngestedAt.Format(time.RFC3339Nano)
	}
	return page, nil
}

// Delete removes the document row. The caller must own it; a mismatch
// does nothing and reports no error, matching the no-leak ownership
// policy used throughout the core.
func (s *DocumentStore) Delete(ctx context.Context, documentID string, caller domain.Caller) error {
	query := fmt.Sprintf("DELETE FROM documents WHERE id = %s AND owner_id = %s", s.placeholder(1), s.placeholder(2))
	if _, err := s.db.ExecContext(ctx, query, documentID, caller.ID); err != nil {
		return domain.Wrap(domain.Internal, "deleting document", err)
	}
	return nil
}
