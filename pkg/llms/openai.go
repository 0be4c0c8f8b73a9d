package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cirkelline/core/pkg/config"
	"github.com/cirkelline/core/pkg/httpclient"
)

// Constants for the OpenAI Responses API
const (
	openAIDefaultHost = "https://api.openai.com/v1"

	eventResponseCreated       = "response.created"
	eventOutputItemAdded       = "response.output_item.added"
	eventOutputItemDone        = "response.output_item.done"
	eventOutputTextDelta       = "response.output_text.delta"
	eventOutputTextDone        = "response.output_text.done"
	eventFunctionCallArgsDelta = "response.function_call_arguments.delta"
	eventFunctionCallArgsDone  = "response.function_call_arguments.done"
	eventContentPartAdded      = "response.content_part.added"
	eventContentPartDone       = "response.content_part.done"
	eventInProgress            = "response.in_progress"
	eventResponseCompleted     = "response.completed"

	maxPayloadPreviewLength = 200

	streamChannelBufferSize = 100
)

type OpenAIProvider struct {
	config     *config.ModelBackendConfig
	httpClient *httpclient.Client
}

// streamingState encapsulates the state accumulated while reading an SSE stream.
type streamingState struct {
	functionCallID   string
	functionCallName string
	functionCallArgs strings.Builder
	totalTokens      int
	emittedCallIDs   map[string]bool
}

func (s *streamingState) resetFunctionCall() {
	s.functionCallID = ""
	s.functionCallName = ""
	s.functionCallArgs.Reset()
}

func getMapKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// Responses API types.
// See: https://platform.openai.com/docs/api-reference/responses

type OpenAIResponsesRequest struct {
	Model           string                 `json:"model"`
	Input           interface{}            `json:"input,omitempty"`
	Instructions    string                 `json:"instructions,omitempty"`
	MaxOutputTokens *int                   `json:"max_output_tokens,omitempty"`
	Temperature     *float64               `json:"temperature,omitempty"`
	Tools           []OpenAIResponsesTool  `json:"tools,omitempty"`
	ToolChoice      interface{}            `json:"tool_choice,omitempty"`
	Reasoning       *OpenAIReasoningConfig `json:"reasoning,omitempty"`
	Stream          bool                   `json:"stream,omitempty"`
	Text            *OpenAITextFormat      `json:"text,omitempty"`
}

type OpenAITextFormat struct {
	Format *OpenAIJSONSchemaFormat `json:"format,omitempty"`
}

type OpenAIJSONSchemaFormat struct {
	Type   string                 `json:"type"`
	Name   string                 `json:"name"`
	Strict bool                   `json:"strict"`
	Schema map[string]interface{} `json:"schema"`
}

type OpenAIReasoningConfig struct {
	Effort string `json:"effort,omitempty"`
}

type OpenAIResponsesTool struct {
	Type        string                 `json:"type"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type OpenAIInputItem struct {
	Type      string      `json:"type"`
	ID        string      `json:"id,omitempty"`
	Role      string      `json:"role,omitempty"`
	Content   interface{} `json:"content,omitempty"`
	CallID    string      `json:"call_id,omitempty"`
	Name      string      `json:"name,omitempty"`
	Arguments string      `json:"arguments,omitempty"`
	Output    *string     `json:"output,omitempty"`
}

type OpenAIResponsesResponse struct {
	ID                string                   `json:"id"`
	Status            string                   `json:"status"`
	Error             *OpenAIError             `json:"error,omitempty"`
	IncompleteDetails *OpenAIIncompleteDetails `json:"incomplete_details,omitempty"`
	Model             string                   `json:"model"`
	Output            []OpenAIOutputItem       `json:"output"`
	Usage             OpenAIUsage              `json:"usage"`
}

type OpenAIOutputItem struct {
	Type      string      `json:"type"`
	ID        string      `json:"id,omitempty"`
	Role      string      `json:"role,omitempty"`
	Content   interface{} `json:"content,omitempty"`
	CallID    string      `json:"call_id,omitempty"`
	Name      string      `json:"name,omitempty"`
	Arguments string      `json:"arguments,omitempty"`
}

type OpenAIIncompleteDetails struct {
	Reason string `json:"reason,omitempty"`
}

type OpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
}

type OpenAIUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// NewOpenAIProvider creates a new OpenAI provider with default configuration.
func NewOpenAIProvider(apiKey string, model string) *OpenAIProvider {
	cfg := &config.ModelBackendConfig{
		Type:        "openai",
		Model:       model,
		APIKey:      apiKey,
		Host:        openAIDefaultHost,
		Temperature: 0.7,
		MaxTokens:   1000,
		Timeout:     60,
	}

	provider, err := NewOpenAIProviderFromConfig(cfg)
	if err != nil {
		slog.Error("Failed to create OpenAI provider", "error", err)
		return nil
	}
	return provider
}

func NewOpenAIProviderFromConfig(cfg *config.ModelBackendConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for OpenAI")
	}
	if cfg.Host == "" {
		cfg.Host = openAIDefaultHost
	}

	return &OpenAIProvider{
		config: cfg,
		httpClient: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{
				Timeout: time.Duration(cfg.Timeout) * time.Second,
			}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay)*time.Second),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIHeaders),
		),
	}, nil
}

func (p *OpenAIProvider) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (string, []ToolCall, int, *ThinkingBlock, error) {
	req := p.buildResponsesRequest(messages, tools, "")
	text, toolCalls, tokens, thinkingBlock, _, err := p.makeResponsesRequest(ctx, req)
	if err != nil {
		return "", nil, 0, nil, err
	}
	return text, toolCalls, tokens, thinkingBlock, nil
}

func (p *OpenAIProvider) GenerateStreaming(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	return p.generateStreaming(ctx, messages, tools, "")
}

func (p *OpenAIProvider) GenerateStructured(ctx context.Context, messages []Message, tools []ToolDefinition, structConfig *StructuredOutputConfig) (string, []ToolCall, int, *ThinkingBlock, error) {
	req := p.buildResponsesRequest(messages, tools, "")
	applyStructuredFormat(req, structConfig)

	text, toolCalls, tokens, thinkingBlock, _, err := p.makeResponsesRequest(ctx, req)
	if err != nil {
		return "", nil, 0, nil, err
	}
	return text, toolCalls, tokens, thinkingBlock, nil
}

func (p *OpenAIProvider) GenerateStructuredStreaming(ctx context.Context, messages []Message, tools []ToolDefinition, structConfig *StructuredOutputConfig) (<-chan StreamChunk, error) {
	return p.generateStreaming(ctx, messages, tools, "")
}

func applyStructuredFormat(req *OpenAIResponsesRequest, structConfig *StructuredOutputConfig) {
	if structConfig == nil || structConfig.Format != "json" {
		return
	}
	schema, ok := structConfig.Schema.(map[string]interface{})
	if !ok {
		schema = map[string]interface{}{"type": "object"}
	}
	req.Text = &OpenAITextFormat{
		Format: &OpenAIJSONSchemaFormat{
			Type:   "json_schema",
			Name:   "response",
			Strict: true,
			Schema: schema,
		},
	}
}

func (p *OpenAIProvider) GetModelName() string    { return p.config.Model }
func (p *OpenAIProvider) GetMaxTokens() int       { return p.config.MaxTokens }
func (p *OpenAIProvider) GetTemperature() float64 { return p.config.Temperature }

func (p *OpenAIProvider) GetSupportedInputModes() []string {
	return []string{"text/plain", "application/json"}
}

func (p *OpenAIProvider) Close() error { return nil }

func (p *OpenAIProvider) SupportsStructuredOutput() bool { return true }

func (p *OpenAIProvider) getResponsesURL() string {
	if p.config.Host == "" {
		return openAIDefaultHost + "/responses"
	}
	host := strings.TrimSuffix(p.config.Host, "/")
	if strings.HasSuffix(host, "/v1") {
		return fmt.Sprintf("%s/responses", host)
	}
	return fmt.Sprintf("%s/v1/responses", host)
}

func (p *OpenAIProvider) logRequestDebug(req *OpenAIResponsesRequest, reqBody []byte) {
	payloadPreview := string(reqBody)
	if len(payloadPreview) > maxPayloadPreviewLength {
		payloadPreview = payloadPreview[:maxPayloadPreviewLength] + "..."
	}
	inputItemsCount := 0
	if items, ok := req.Input.([]OpenAIInputItem); ok {
		inputItemsCount = len(items)
	}
	slog.Debug("OpenAI Responses API request",
		"model", req.Model,
		"input_items", inputItemsCount,
		"has_instructions", req.Instructions != "",
		"payload_preview", payloadPreview)
}

// makeResponsesRequest makes a non-streaming request to the Responses API.
func (p *OpenAIProvider) makeResponsesRequest(ctx context.Context, req *OpenAIResponsesRequest) (string, []ToolCall, int, *ThinkingBlock, string, error) {
	url := p.getResponsesURL()

	reqBody, err := json.Marshal(req)
	if err != nil {
		return "", nil, 0, nil, "", fmt.Errorf("failed to marshal request: %w", err)
	}
	p.logRequestDebug(req, reqBody)

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return "", nil, 0, nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", strings.TrimSpace(p.config.APIKey)))

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", nil, 0, nil, "", fmt.Errorf("openai responses API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		var errorResp OpenAIResponsesResponse
		if json.Unmarshal(bodyBytes, &errorResp) == nil && errorResp.Error != nil {
			return "", nil, 0, nil, "", fmt.Errorf("openai responses API error (HTTP %d): %s", resp.StatusCode, errorResp.Error.Message)
		}
		return "", nil, 0, nil, "", fmt.Errorf("openai responses API error (HTTP %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var responsesResp OpenAIResponsesResponse
	if err := json.NewDecoder(resp.Body).Decode(&responsesResp); err != nil {
		return "", nil, 0, nil, "", fmt.Errorf("failed to decode response: %w", err)
	}

	return p.processResponsesResponse(&responsesResp)
}

func (p *OpenAIProvider) processResponsesResponse(responsesResp *OpenAIResponsesResponse) (string, []ToolCall, int, *ThinkingBlock, string, error) {
	if responsesResp.Error != nil {
		return "", nil, 0, nil, "", fmt.Errorf("openai responses API error: %s", responsesResp.Error.Message)
	}
	if responsesResp.Status != "completed" {
		err := fmt.Errorf("openai responses API response incomplete: status=%s", responsesResp.Status)
		if responsesResp.IncompleteDetails != nil {
			err = fmt.Errorf("openai responses API response incomplete: status=%s, reason=%s", responsesResp.Status, responsesResp.IncompleteDetails.Reason)
		}
		return "", nil, 0, nil, "", err
	}
	if len(responsesResp.Output) == 0 {
		return "", nil, 0, nil, "", fmt.Errorf("no output items in response")
	}

	var text string
	var toolCalls []ToolCall

	for _, outputItem := range responsesResp.Output {
		switch outputItem.Type {
		case "message":
			text = p.extractTextFromMessageOutput(outputItem)
		case "function_call":
			toolCall, err := p.parseFunctionCallOutput(outputItem)
			if err != nil {
				slog.Warn("Failed to parse function call", "error", err, "id", outputItem.ID)
				continue
			}
			if toolCall != nil {
				toolCalls = append(toolCalls, *toolCall)
			}
		}
	}

	tokensUsed := responsesResp.Usage.TotalTokens
	return text, toolCalls, tokensUsed, nil, responsesResp.ID, nil
}

// generateStreaming makes a streaming request to the Responses API.
func (p *OpenAIProvider) generateStreaming(ctx context.Context, messages []Message, tools []ToolDefinition, effort string) (<-chan StreamChunk, error) {
	outputCh := make(chan StreamChunk, streamChannelBufferSize)

	go func() {
		defer close(outputCh)

		req := p.buildResponsesRequest(messages, tools, effort)
		req.Stream = true

		url := p.getResponsesURL()
		reqBody, err := json.Marshal(req)
		if err != nil {
			outputCh <- StreamChunk{Type: "error", Error: fmt.Errorf("failed to marshal request: %w", err)}
			return
		}
		p.logRequestDebug(req, reqBody)

		httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
		if err != nil {
			outputCh <- StreamChunk{Type: "error", Error: fmt.Errorf("failed to create request: %w", err)}
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", strings.TrimSpace(p.config.APIKey)))

		resp, err := p.httpClient.Do(httpReq)
		if err != nil {
			outputCh <- StreamChunk{Type: "error", Error: fmt.Errorf("openai responses API request failed: %w", err)}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			var errorResp OpenAIResponsesResponse
			if json.Unmarshal(bodyBytes, &errorResp) == nil && errorResp.Error != nil {
				outputCh <- StreamChunk{Type: "error", Error: fmt.Errorf("openai responses API error (HTTP %d): %s", resp.StatusCode, errorResp.Error.Message)}
				return
			}
			outputCh <- StreamChunk{Type: "error", Error: fmt.Errorf("openai responses API error (HTTP %d): %s", resp.StatusCode, string(bodyBytes))}
			return
		}

		reader := bufio.NewReader(resp.Body)
		state := &streamingState{emittedCallIDs: make(map[string]bool)}
		var currentEventType string
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				if err == io.EOF {
					break
				}
				outputCh <- StreamChunk{Type: "error", Error: fmt.Errorf("failed to read stream: %w", err)}
				return
			}

			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			if bytes.HasPrefix(line, []byte("event: ")) {
				currentEventType = string(bytes.TrimSpace(line[7:]))
				continue
			}
			if !bytes.HasPrefix(line, []byte("data: ")) {
				continue
			}
			dataLine := line[6:]

			var streamEvent map[string]interface{}
			if err := json.Unmarshal(dataLine, &streamEvent); err != nil {
				currentEventType = ""
				continue
			}

			eventType := currentEventType
			if eventType == "" {
				eventType, _ = streamEvent["type"].(string)
			}
			currentEventType = ""

			p.handleStreamEvent(eventType, streamEvent, state, outputCh)
		}

		outputCh <- StreamChunk{Type: "done", Tokens: state.totalTokens}
	}()

	return outputCh, nil
}

// handleStreamEvent dispatches one parsed SSE event into the output channel.
func (p *OpenAIProvider) handleStreamEvent(eventType string, streamEvent map[string]interface{}, state *streamingState, outputCh chan<- StreamChunk) {
	switch eventType {
	case eventOutputItemAdded:
		item, ok := streamEvent["item"].(map[string]interface{})
		if !ok {
			return
		}
		if itemType, _ := item["type"].(string); itemType == "function_call" {
			if callID, ok := item["call_id"].(string); ok {
				state.functionCallID = callID
			} else if id, ok := item["id"].(string); ok {
				state.functionCallID = id
			}
			if name, ok := item["name"].(string); ok {
				state.functionCallName = name
			}
			state.functionCallArgs.Reset()
		}
	case eventOutputItemDone:
		item, ok := streamEvent["item"].(map[string]interface{})
		if !ok {
			return
		}
		if itemType, _ := item["type"].(string); itemType == "function_call" {
			callID := ""
			if cid, ok := item["call_id"].(string); ok {
				callID = cid
			} else if id, ok := item["id"].(string); ok {
				callID = id
			}
			name, _ := item["name"].(string)
			argsStr, _ := item["arguments"].(string)
			p.emitToolCall(state, outputCh, callID, name, argsStr)
		}
	case eventOutputTextDelta:
		var deltaText string
		if delta, ok := streamEvent["delta"].(string); ok {
			deltaText = delta
		} else if text, ok := streamEvent["text"].(string); ok {
			deltaText = text
		}
		if deltaText != "" {
			outputCh <- StreamChunk{Type: "text", Text: deltaText}
		}
	case eventFunctionCallArgsDelta:
		if delta, ok := streamEvent["delta"].(string); ok {
			state.functionCallArgs.WriteString(delta)
		}
	case eventFunctionCallArgsDone:
		if state.functionCallID != "" && state.functionCallName != "" {
			p.emitToolCall(state, outputCh, state.functionCallID, state.functionCallName, state.functionCallArgs.String())
		}
	case eventResponseCompleted:
		if response, ok := streamEvent["response"].(map[string]interface{}); ok {
			if usage, ok := response["usage"].(map[string]interface{}); ok {
				if total, ok := usage["total_tokens"].(float64); ok {
					state.totalTokens = int(total)
				}
			}
		}
	case eventResponseCreated, eventContentPartAdded, eventContentPartDone, eventInProgress, eventOutputTextDone:
		// No action needed.
	default:
		if eventType != "" {
			slog.Debug("Unhandled SSE event type", "event_type", eventType, "event_keys", getMapKeys(streamEvent))
		}
	}
}

func (p *OpenAIProvider) emitToolCall(state *streamingState, outputCh chan<- StreamChunk, callID, name, argsStr string) {
	if callID == "" || name == "" || state.emittedCallIDs[callID] {
		state.resetFunctionCall()
		return
	}

	var args map[string]interface{}
	if argsStr != "" {
		if err := json.Unmarshal([]byte(argsStr), &args); err != nil {
			slog.Warn("Failed to parse function call arguments", "error", err, "call_id", callID)
			args = make(map[string]interface{})
		}
	} else {
		args = make(map[string]interface{})
	}

	state.emittedCallIDs[callID] = true
	outputCh <- StreamChunk{
		Type: "tool_call",
		ToolCall: &ToolCall{
			ID:        callID,
			Name:      name,
			Arguments: args,
			RawArgs:   argsStr,
		},
	}
	state.resetFunctionCall()
}

// buildResponsesRequest builds a request for the Responses API from the
// universal Message format.
func (p *OpenAIProvider) buildResponsesRequest(messages []Message, tools []ToolDefinition, effort string) *OpenAIResponsesRequest {
	inputItems, instructions := p.convertMessagesToInputItems(messages)

	if len(inputItems) == 0 {
		inputItems = []OpenAIInputItem{
			{Type: "message", Role: "user", Content: []map[string]interface{}{{"type": "input_text", "text": ""}}},
		}
	}

	var maxOutputTokens *int
	if p.config.MaxTokens > 0 {
		maxOutputTokens = &p.config.MaxTokens
	}

	req := &OpenAIResponsesRequest{
		Model:           p.config.Model,
		Input:           inputItems,
		MaxOutputTokens: maxOutputTokens,
	}

	if effort != "" && p.isReasoningModel(p.config.Model) {
		req.Reasoning = &OpenAIReasoningConfig{Effort: effort}
	}

	if instructions != "" {
		req.Instructions = instructions
	}

	if len(tools) > 0 {
		req.Tools = p.convertToResponsesAPITools(tools)
		req.ToolChoice = "auto"
	}

	if !p.isReasoningModel(p.config.Model) {
		temp := p.config.Temperature
		req.Temperature = &temp
	}

	return req
}

func (p *OpenAIProvider) convertToResponsesAPITools(tools []ToolDefinition) []OpenAIResponsesTool {
	result := make([]OpenAIResponsesTool, len(tools))
	for i, tool := range tools {
		result[i] = OpenAIResponsesTool{
			Type:        "function",
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		}
	}
	return result
}

// convertMessagesToInputItems converts the universal Message format into
// OpenAI Responses API input items: user/assistant messages, tool calls, and
// tool results.
func (p *OpenAIProvider) convertMessagesToInputItems(messages []Message) ([]OpenAIInputItem, string) {
	inputItems := make([]OpenAIInputItem, 0, len(messages))
	var instructions strings.Builder

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			if msg.Content != "" {
				if instructions.Len() > 0 {
					instructions.WriteString("\n")
				}
				instructions.WriteString(msg.Content)
			}
			continue

		case "tool":
			output := msg.Content
			inputItems = append(inputItems, OpenAIInputItem{
				Type:   "function_call_output",
				CallID: msg.ToolCallID,
				Output: &output,
			})
			continue

		case "assistant":
			if len(msg.ToolCalls) > 0 {
				if msg.Content != "" {
					inputItems = append(inputItems, OpenAIInputItem{
						Type:    "message",
						Role:    "assistant",
						Content: []map[string]interface{}{{"type": "output_text", "text": msg.Content}},
					})
				}
				for _, tc := range msg.ToolCalls {
					argsJSON := tc.RawArgs
					if argsJSON == "" {
						raw, _ := json.Marshal(tc.Arguments)
						argsJSON = string(raw)
					}
					inputItems = append(inputItems, OpenAIInputItem{
						Type:      "function_call",
						CallID:    tc.ID,
						Name:      tc.Name,
						Arguments: argsJSON,
					})
				}
				continue
			}
		}

		if msg.Content == "" {
			continue
		}

		textType := "input_text"
		if msg.Role == "assistant" {
			textType = "output_text"
		}

		inputItems = append(inputItems, OpenAIInputItem{
			Type:    "message",
			Role:    msg.Role,
			Content: []map[string]interface{}{{"type": textType, "text": msg.Content}},
		})
	}

	return inputItems, instructions.String()
}

func (p *OpenAIProvider) extractTextFromMessageOutput(outputItem OpenAIOutputItem) string {
	contentArray, ok := outputItem.Content.([]interface{})
	if !ok {
		return ""
	}

	var textBuilder strings.Builder
	for _, part := range contentArray {
		partMap, ok := part.(map[string]interface{})
		if !ok {
			continue
		}
		if partType, _ := partMap["type"].(string); partType == "output_text" {
			if text, ok := partMap["text"].(string); ok {
				textBuilder.WriteString(text)
			}
		}
	}
	return textBuilder.String()
}

func (p *OpenAIProvider) parseFunctionCallOutput(outputItem OpenAIOutputItem) (*ToolCall, error) {
	if outputItem.Name == "" {
		return nil, fmt.Errorf("function_call name is empty")
	}

	var args map[string]interface{}
	if outputItem.Arguments != "" {
		if err := json.Unmarshal([]byte(outputItem.Arguments), &args); err != nil {
			return nil, fmt.Errorf("failed to parse function arguments: %w", err)
		}
	} else {
		args = make(map[string]interface{})
	}

	toolCallID := outputItem.CallID
	if toolCallID == "" {
		toolCallID = outputItem.ID
	}

	return &ToolCall{
		ID:        toolCallID,
		Name:      outputItem.Name,
		Arguments: args,
		RawArgs:   outputItem.Arguments,
	}, nil
}

func (p *OpenAIProvider) isReasoningModel(modelName string) bool {
	return IsOpenAIReasoningModel(modelName)
}

// IsOpenAIReasoningModel reports whether an OpenAI model name is a reasoning model.
func IsOpenAIReasoningModel(modelName string) bool {
	modelLower := strings.ToLower(modelName)
	switch modelLower {
	case "o1", "o3", "o4", "gpt-5":
		return true
	}
	for _, prefix := range []string{"o1-", "o3-", "o4-", "gpt-5-"} {
		if strings.HasPrefix(modelLower, prefix) {
			return true
		}
	}
	return false
}
