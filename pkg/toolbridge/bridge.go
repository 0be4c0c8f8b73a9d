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

package toolbridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cirkelline/core/pkg/domain"
)

// Bridge is the uniform {discover, invoke, stream} surface over every
// registered Connector, gated per-caller by connection state (spec.md
// §4.6). It holds no connection state itself — every check goes through
// lookup, the only read path into the persistence gateway this package
// uses.
type Bridge struct {
	mu         sync.RWMutex
	connectors map[string]Connector
	lookup     ConnectionLookup
	timeout    time.Duration
}

// New builds a Bridge. timeout bounds every Invoke/Stream call; a call
// exceeding it is cancelled and reported as domain.ToolTimeout.
func New(lookup ConnectionLookup, timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Bridge{connectors: make(map[string]Connector), lookup: lookup, timeout: timeout}
}

// Register adds a Connector under its own Provider() name.
func (b *Bridge) Register(c Connector) error {
	if c == nil {
		return fmt.Errorf("connector cannot be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.connectors[c.Provider()]; exists {
		return fmt.Errorf("connector for provider %q already registered", c.Provider())
	}
	b.connectors[c.Provider()] = c
	return nil
}

// Discover returns every tool the provider's connector exposes,
// regardless of connection state (the catalogue is public; only
// invocation is gated).
func (b *Bridge) Discover(ctx context.Context, provider string) ([]ToolDescriptor, error) {
	connector, err := b.connectorFor(provider)
	if err != nil {
		return nil, err
	}
	return connector.Discover(ctx)
}

// Invoke calls toolName on provider's connector on behalf of caller. An
// absent or revoked connection yields domain.ToolUnavailable without
// ever reaching the connector; the call itself is bounded by the
// Bridge's timeout and reported as domain.ToolTimeout on expiry.
func (b *Bridge) Invoke(ctx context.Context, caller domain.Caller, provider, toolName string, args map[string]interface{}) (InvokeResult, error) {
	connector, err := b.connectorFor(provider)
	if err != nil {
		return InvokeResult{}, err
	}
	if err := b.checkConnection(ctx, caller, provider); err != nil {
		return InvokeResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	result, err := connector.Invoke(ctx, toolName, args)
	if ctx.Err() == context.DeadlineExceeded {
		return InvokeResult{}, domain.Wrap(domain.ToolTimeout, "tool invocation exceeded its deadline", ctx.Err())
	}
	if err != nil {
		return InvokeResult{}, domain.Wrap(domain.DependencyFailure, "tool invocation failed", err)
	}
	return result, nil
}

// Stream is Invoke's streaming counterpart, for connectors whose results
// arrive incrementally.
func (b *Bridge) Stream(ctx context.Context, caller domain.Caller, provider, toolName string, args map[string]interface{}) (<-chan StreamEvent, error) {
	connector, err := b.connectorFor(provider)
	if err != nil {
		return nil, err
	}
	if err := b.checkConnection(ctx, caller, provider); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	events, err := connector.Stream(ctx, toolName, args)
	if err != nil {
		cancel()
		return nil, domain.Wrap(domain.DependencyFailure, "tool stream failed to start", err)
	}

	out := make(chan StreamEvent, 16)
	go b.relay(ctx, cancel, events, out)
	return out, nil
}

func (b *Bridge) relay(ctx context.Context, cancel context.CancelFunc, events <-chan StreamEvent, out chan<- StreamEvent) {
	defer cancel()
	defer close(out)
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			out <- e
			if e.Done {
				return
			}
		case <-ctx.Done():
			out <- StreamEvent{Err: domain.Wrap(domain.ToolTimeout, "tool stream exceeded its deadline", ctx.Err()), Done: true}
			return
		}
	}
}

// Connected reports whether caller has a usable (connected) link to
// provider, for the Specialist Registry's routing preconditions (spec.md
// §4.5: "a specialist whose tool-requirements are not satisfied ... is
// never emitted by route"). Any lookup error is treated as not connected
// — routing degrades to excluding the specialist rather than failing the
// whole turn over a transient lookup error.
func (b *Bridge) Connected(ctx context.Context, caller domain.Caller, provider string) bool {
	return b.checkConnection(ctx, caller, provider) == nil
}

func (b *Bridge) connectorFor(provider string) (Connector, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.connectors[provider]
	if !ok {
		return nil, domain.NewError(domain.ToolUnavailable, fmt.Sprintf("no connector registered for provider %q", provider))
	}
	return c, nil
}

func (b *Bridge) checkConnection(ctx context.Context, caller domain.Caller, provider string) error {
	if b.lookup == nil {
		return nil
	}
	status, err := b.lookup(ctx, caller.ID, provider)
	if err != nil {
		return domain.Wrap(domain.DependencyFailure, "checking connection state", err)
	}
	if status != domain.ConnectionConnected {
		return domain.NewError(domain.ToolUnavailable, fmt.Sprintf("provider %q is not connected", provider))
	}
	return nil
}
