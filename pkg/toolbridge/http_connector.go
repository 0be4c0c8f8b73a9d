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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/cirkelline/core/pkg/httpclient"
)

// HTTPConnector adapts any REST-shaped external provider (calendar, mail,
// tasks) to the Connector surface. It reuses the teacher's
// httpclient.Client for retry/backoff on transient failures, per
// SPEC_FULL.md §4.6; the provider's own auth/API semantics are out of
// this core's scope, so requests simply carry the opaque bearer
// credential from the caller's Connection.
type HTTPConnector struct {
	provider   string
	baseURL    string
	credential string
	tools      []ToolDescriptor
	client     *httpclient.Client
}

// NewHTTPConnector builds an HTTPConnector. tools is the static catalogue
// Discover returns — provider tool surfaces are fixed at start-up, like
// the Specialist Registry's own descriptors.
func NewHTTPConnector(provider, baseURL, credential string, tools []ToolDescriptor) *HTTPConnector {
	return &HTTPConnector{
		provider:   provider,
		baseURL:    baseURL,
		credential: credential,
		tools:      tools,
		client:     httpclient.New(httpclient.WithMaxRetries(3)),
	}
}

func (c *HTTPConnector) Provider() string { return c.provider }

func (c *HTTPConnector) Discover(ctx context.Context) ([]ToolDescriptor, error) {
	return c.tools, nil
}

// Invoke POSTs args as JSON to baseURL/toolName and returns the response
// body as Content. Transient failures (5xx, rate limits) are retried by
// the underlying httpclient.Client before this call returns an error.
func (c *HTTPConnector) Invoke(ctx context.Context, toolName string, args map[string]interface{}) (InvokeResult, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return InvokeResult{}, fmt.Errorf("encoding tool arguments: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+toolName, bytes.NewReader(body))
	if err != nil {
		return InvokeResult{}, fmt.Errorf("building tool request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.credential != "" {
		req.Header.Set("Authorization", "Bearer "+c.credential)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return InvokeResult{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return InvokeResult{}, fmt.Errorf("reading tool response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return InvokeResult{}, fmt.Errorf("tool %q returned status %d", toolName, resp.StatusCode)
	}

	return InvokeResult{ToolName: toolName, Content: string(respBody)}, nil
}

// Stream wraps a single Invoke result as a one-event stream, for
// providers with no native incremental response format.
func (c *HTTPConnector) Stream(ctx context.Context, toolName string, args map[string]interface{}) (<-chan StreamEvent, error) {
	out := make(chan StreamEvent, 1)
	go func() {
		defer close(out)
		result, err := c.Invoke(ctx, toolName, args)
		if err != nil {
			out <- StreamEvent{ToolName: toolName, Err: err, Done: true}
			return
		}
		out <- StreamEvent{ToolName: toolName, Content: result.Content, Done: true}
	}()
	return out, nil
}

var _ Connector = (*HTTPConnector)(nil)
