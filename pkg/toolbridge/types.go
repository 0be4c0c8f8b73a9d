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

// Package toolbridge normalizes external provider integrations (calendar,
// mail, tasks) behind a uniform discover/invoke/stream surface, gated by
// the caller's connection state. The OAuth handshake and the providers'
// own APIs are out of this core's scope (spec.md §1); this package only
// reads connection status and delegates invocations through a Connector.
package toolbridge

import (
	"context"

	"github.com/cirkelline/core/pkg/domain"
)

// ToolDescriptor is one capability a Connector exposes via Discover.
type ToolDescriptor struct {
	Name        string
	Provider    string
	Description string
	Parameters  map[string]interface{} // JSON Schema
}

// InvokeResult is the outcome of a single tool invocation.
type InvokeResult struct {
	ToolName string
	Content  string
	Metadata map[string]interface{}
}

// StreamEvent is one unit of a streaming tool invocation.
type StreamEvent struct {
	ToolName string
	Content  string
	Done     bool
	Err      error
}

// Connector is the uniform adapter surface every external provider
// implements. A provider that only supports request/response can leave
// Stream unimplemented by returning a single-event channel from Invoke's
// result, per Bridge.Stream's fallback.
type Connector interface {
	Provider() string
	Discover(ctx context.Context) ([]ToolDescriptor, error)
	Invoke(ctx context.Context, toolName string, args map[string]interface{}) (InvokeResult, error)
	Stream(ctx context.Context, toolName string, args map[string]interface{}) (<-chan StreamEvent, error)
}

// ConnectionLookup reports the caller's connection status for provider,
// sourced from the persistence gateway's users/connections rows. The
// Tool Bridge never writes connection state — spec.md §1 keeps the OAuth
// bridge and connection management out of this core's CRUD scope.
type ConnectionLookup func(ctx context.Context, callerID, provider string) (domain.ConnectionStatus, error)
