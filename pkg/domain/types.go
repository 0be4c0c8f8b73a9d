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

package domain

import "time"

// Caller is the authenticated end user (or anonymous principal) on behalf
// of whom a turn executes. Id is immutable once minted at sign-up.
type Caller struct {
	ID          string
	DisplayName string
	IsAdmin     bool
	Profile     *CallerProfile
	Anonymous   bool
}

// CallerProfile carries optional admin-authored context injected into the
// prompt assembly step.
type CallerProfile struct {
	Context     string
	Preferences map[string]string
	StyleHints  []string
}

// Session is an ordered collection of turns belonging to a single caller.
type Session struct {
	SessionID string
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
	Runs      []Turn
	Summary   string
}

// Turn is one inbound message and its resulting outbound stream.
type Turn struct {
	TurnID             string
	SessionID          string
	InboundMessage     string
	SpecialistsInvoked []string
	OutboundMessage    string
	CreatedAt          time.Time
}

// MemoryFamily is one of the five extraction families the Memory Store
// derives from a completed turn.
type MemoryFamily string

const (
	FamilyIdentity    MemoryFamily = "identity"
	FamilyEmotional   MemoryFamily = "emotional"
	FamilyPreferences MemoryFamily = "preferences"
	FamilyGoals       MemoryFamily = "goals"
	FamilyPatterns    MemoryFamily = "patterns"
)

// Memory is a durable fact about a caller, derived from a completed turn.
// The triple (OwnerID, SourceTurnID, Family) is unique: derivation is
// idempotent per turn per family.
type Memory struct {
	MemoryID     string
	OwnerID      string
	Text         string
	SourceTurnID string
	Family       MemoryFamily
	Topics       []string
	UpdatedAt    time.Time
}

// AccessLevel controls document visibility beyond its owner.
type AccessLevel string

const (
	AccessPrivate          AccessLevel = "private"
	AccessSharedWithAdmins AccessLevel = "shared-with-admins"
)

// DocumentStatus tracks a document through the ingestion pipeline.
type DocumentStatus string

const (
	StatusIngesting DocumentStatus = "ingesting"
	StatusReady     DocumentStatus = "ready"
	StatusFailed    DocumentStatus = "failed"
)

// Document is an uploaded file indexed into the Knowledge Index.
type Document struct {
	DocumentID  string
	OwnerID     string
	Name        string
	AccessLevel AccessLevel
	IngestedAt  time.Time
	Status      DocumentStatus
}

// Chunk is one overlapping text window of a Document, embedded for dense
// retrieval and indexed for lexical retrieval. Its lifetime follows its
// parent document.
type Chunk struct {
	ChunkID    string
	DocumentID string
	OwnerID    string
	AccessLevel AccessLevel
	Ordinal    int
	Text       string
	Embedding  []float32
}

// SpecialistKind distinguishes a terminal worker from a composing team.
type SpecialistKind string

const (
	KindWorker SpecialistKind = "worker"
	KindTeam   SpecialistKind = "team"
)

// SpecialistDescriptor is the process-wide, immutable-after-start-up
// catalogue entry for one specialist.
type SpecialistDescriptor struct {
	Name             string
	Kind             SpecialistKind
	Capabilities     []string
	ToolRequirements []string
	ModelHint        string
}

// ConnectionStatus describes whether a caller has connected an external
// provider the Tool Bridge can use on their behalf.
type ConnectionStatus string

const (
	ConnectionAbsent    ConnectionStatus = "absent"
	ConnectionConnected ConnectionStatus = "connected"
	ConnectionRevoked   ConnectionStatus = "revoked"
)

// Connection is read-only to the orchestrator through the Tool Bridge.
type Connection struct {
	CallerID   string
	Provider   string
	Status     ConnectionStatus
	Credential string // opaque
}

// CanAccess reports whether caller may see chunk/document data owned by
// ownerID at the given access level — the isolation predicate from
// spec.md §4.4, centralized here so every store applies it identically.
func CanAccess(callerID string, callerIsAdmin bool, ownerID string, level AccessLevel) bool {
	if ownerID == callerID {
		return true
	}
	return level == AccessSharedWithAdmins && callerIsAdmin
}
