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

import (
	"context"
	"time"
)

// RequestContext is the per-turn handle the orchestrator threads through
// every stage of its state machine instead of holding any shared mutable
// state of its own (spec.md §9: "global mutable orchestrator → per-request
// context"). One is created per inbound turn and discarded once the turn
// reaches a terminal state.
type RequestContext struct {
	Ctx           context.Context
	Cancel        context.CancelFunc
	Caller        Caller
	CorrelationID string
}

// NewRequestContext derives ctx with a deadline (if timeout > 0) and binds
// it to caller and correlationID for the lifetime of one turn.
func NewRequestContext(parent context.Context, caller Caller, correlationID string, timeout time.Duration) *RequestContext {
	var ctx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	return &RequestContext{Ctx: ctx, Cancel: cancel, Caller: caller, CorrelationID: correlationID}
}
