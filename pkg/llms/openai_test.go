package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cirkelline/core/pkg/config"
	"github.com/cirkelline/core/pkg/httpclient"
)

func TestNewOpenAIProvider(t *testing.T) {
	provider := NewOpenAIProvider("sk-test-key", "gpt-4o")

	if provider == nil {
		t.Fatal("NewOpenAIProvider() returned nil provider")
	}

	if provider.GetModelName() != "gpt-4o" {
		t.Errorf("NewOpenAIProvider() model = %v, want gpt-4o", provider.GetModelName())
	}

	if provider.GetMaxTokens() != 1000 {
		t.Errorf("NewOpenAIProvider() maxTokens = %v, want 1000", provider.GetMaxTokens())
	}

	if provider.GetTemperature() != 0.7 {
		t.Errorf("NewOpenAIProvider() temperature = %v, want 0.7", provider.GetTemperature())
	}
}

func TestNewOpenAIProviderFromConfig(t *testing.T) {
	cfg := &config.ModelBackendConfig{
		Type:    "openai",
		Model:   "gpt-4o",
		Host:    "https://api.openai.com/v1",
		APIKey:  "sk-test-key",
		Timeout: 30,
	}

	provider, err := NewOpenAIProviderFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewOpenAIProviderFromConfig() error = %v, want nil", err)
	}

	if provider == nil {
		t.Fatal("NewOpenAIProviderFromConfig() returned nil provider")
	}

	if provider.GetModelName() != "gpt-4o" {
		t.Errorf("NewOpenAIProviderFromConfig() model = %v, want gpt-4o", provider.GetModelName())
	}
}

func TestNewOpenAIProviderFromConfig_MissingAPIKey(t *testing.T) {
	cfg := &config.ModelBackendConfig{
		Type:  "openai",
		Model: "gpt-4o",
	}

	_, err := NewOpenAIProviderFromConfig(cfg)
	if err == nil {
		t.Error("NewOpenAIProviderFromConfig() expected error for missing API key, got nil")
	}
}

func TestOpenAIProvider_GetModelName(t *testing.T) {
	provider := NewOpenAIProvider("sk-test-key", "gpt-4o")

	if provider.GetModelName() != "gpt-4o" {
		t.Errorf("GetModelName() = %v, want gpt-4o", provider.GetModelName())
	}
}

func TestOpenAIProvider_Close(t *testing.T) {
	provider := NewOpenAIProvider("sk-test-key", "gpt-4o")

	if err := provider.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}

func TestOpenAIProvider_Generate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if r.URL.Path != "/v1/responses" {
			t.Errorf("Expected /v1/responses, got %s", r.URL.Path)
		}

		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer sk-test-key") {
			t.Errorf("Expected Bearer token, got %s", auth)
		}

		var req OpenAIResponsesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if req.Model != "gpt-4o" {
			t.Errorf("Expected model gpt-4o, got %s", req.Model)
		}

		response := OpenAIResponsesResponse{
			ID:     "resp_123",
			Status: "completed",
			Model:  "gpt-4o",
			Output: []OpenAIOutputItem{
				{
					Type: "message",
					Role: "assistant",
					Content: []interface{}{
						map[string]interface{}{"type": "output_text", "text": "Hello! How can I help you today?"},
					},
				},
			},
			Usage: OpenAIUsage{InputTokens: 10, OutputTokens: 15, TotalTokens: 25},
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	cfg := &config.ModelBackendConfig{
		Type:   "openai",
		Model:  "gpt-4o",
		Host:   server.URL,
		APIKey: "sk-test-key",
	}

	provider, err := NewOpenAIProviderFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewOpenAIProviderFromConfig() error = %v", err)
	}

	messages := []Message{{Role: "user", Content: "Hello"}}
	tools := []ToolDefinition{}

	text, toolCalls, tokens, _, err := provider.Generate(context.Background(), messages, tools)

	if err != nil {
		t.Errorf("Generate() error = %v, want nil", err)
	}
	if text != "Hello! How can I help you today?" {
		t.Errorf("Generate() text = %v, want Hello! How can I help you today?", text)
	}
	if len(toolCalls) != 0 {
		t.Errorf("Generate() toolCalls length = %v, want 0", len(toolCalls))
	}
	if tokens != 25 {
		t.Errorf("Generate() tokens = %v, want 25", tokens)
	}
}

func TestOpenAIProvider_Generate_WithTools(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req OpenAIResponsesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}

		if len(req.Tools) != 1 {
			t.Errorf("Expected 1 tool, got %d", len(req.Tools))
		}
		if req.Tools[0].Name != "test_tool" {
			t.Errorf("Expected tool name test_tool, got %s", req.Tools[0].Name)
		}

		response := OpenAIResponsesResponse{
			ID:     "resp_456",
			Status: "completed",
			Model:  "gpt-4o",
			Output: []OpenAIOutputItem{
				{
					Type:      "function_call",
					CallID:    "call_123",
					Name:      "test_tool",
					Arguments: `{"param1": "value1"}`,
				},
			},
			Usage: OpenAIUsage{InputTokens: 20, OutputTokens: 10, TotalTokens: 30},
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	cfg := &config.ModelBackendConfig{
		Type:   "openai",
		Model:  "gpt-4o",
		Host:   server.URL,
		APIKey: "sk-test-key",
	}

	provider, err := NewOpenAIProviderFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewOpenAIProviderFromConfig() error = %v", err)
	}

	messages := []Message{{Role: "user", Content: "Use the test tool"}}
	tools := []ToolDefinition{
		{
			Name:        "test_tool",
			Description: "A test tool",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"param1": map[string]interface{}{"type": "string"},
				},
			},
		},
	}

	text, toolCalls, tokens, _, err := provider.Generate(context.Background(), messages, tools)

	if err != nil {
		t.Errorf("Generate() error = %v, want nil", err)
	}
	if text != "" {
		t.Errorf("Generate() text = %v, want empty", text)
	}
	if len(toolCalls) != 1 {
		t.Fatalf("Generate() toolCalls length = %v, want 1", len(toolCalls))
	}
	if toolCalls[0].ID != "call_123" {
		t.Errorf("Generate() toolCall ID = %v, want call_123", toolCalls[0].ID)
	}
	if toolCalls[0].Name != "test_tool" {
		t.Errorf("Generate() toolCall Name = %v, want test_tool", toolCalls[0].Name)
	}
	if tokens != 30 {
		t.Errorf("Generate() tokens = %v, want 30", tokens)
	}
}

func TestOpenAIProvider_Generate_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal Server Error"))
	}))
	defer server.Close()

	cfg := &config.ModelBackendConfig{
		Type:   "openai",
		Model:  "gpt-4o",
		Host:   server.URL,
		APIKey: "sk-test-key",
	}

	provider, err := NewOpenAIProviderFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewOpenAIProviderFromConfig() error = %v", err)
	}

	messages := []Message{{Role: "user", Content: "Hello"}}
	tools := []ToolDefinition{}

	_, _, _, _, err = provider.Generate(context.Background(), messages, tools)

	if err == nil {
		t.Error("Generate() expected error, got nil")
	}
}

func TestOpenAIProvider_Generate_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("invalid json"))
	}))
	defer server.Close()

	cfg := &config.ModelBackendConfig{
		Type:   "openai",
		Model:  "gpt-4o",
		Host:   server.URL,
		APIKey: "sk-test-key",
	}

	provider, err := NewOpenAIProviderFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewOpenAIProviderFromConfig() error = %v", err)
	}

	messages := []Message{{Role: "user", Content: "Hello"}}
	tools := []ToolDefinition{}

	_, _, _, _, err = provider.Generate(context.Background(), messages, tools)

	if err == nil {
		t.Error("Generate() expected error, got nil")
	}
}

func TestOpenAIProvider_GenerateStreaming_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if r.URL.Path != "/v1/responses" {
			t.Errorf("Expected /v1/responses, got %s", r.URL.Path)
		}

		var req OpenAIResponsesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		if !req.Stream {
			t.Error("Expected stream=true in request")
		}

		w.Header().Set("Content-Type", "text/event-stream")

		events := []string{
			"event: response.output_text.delta\ndata: {\"delta\": \"Hello\"}",
			"event: response.output_text.delta\ndata: {\"delta\": \" there\"}",
			"event: response.completed\ndata: {\"response\": {\"usage\": {\"total_tokens\": 18}}}",
		}
		for _, event := range events {
			_, _ = w.Write([]byte(event + "\n\n"))
		}
	}))
	defer server.Close()

	cfg := &config.ModelBackendConfig{
		Type:   "openai",
		Model:  "gpt-4o",
		Host:   server.URL,
		APIKey: "sk-test-key",
	}

	provider, err := NewOpenAIProviderFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewOpenAIProviderFromConfig() error = %v", err)
	}

	messages := []Message{{Role: "user", Content: "Hello"}}
	tools := []ToolDefinition{}

	ch, err := provider.GenerateStreaming(context.Background(), messages, tools)
	if err != nil {
		t.Errorf("GenerateStreaming() error = %v, want nil", err)
	}

	var chunks []StreamChunk
	for chunk := range ch {
		chunks = append(chunks, chunk)
	}

	if len(chunks) < 2 {
		t.Errorf("Expected at least 2 chunks, got %d", len(chunks))
	}

	foundText := false
	for _, chunk := range chunks {
		if chunk.Type == "text" && strings.Contains(chunk.Text, "Hello") {
			foundText = true
			break
		}
	}
	if !foundText {
		t.Error("Expected to find text chunk with 'Hello'")
	}
}

func TestOpenAIProvider_GenerateStreaming_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal Server Error"))
	}))
	defer server.Close()

	cfg := &config.ModelBackendConfig{
		Type:   "openai",
		Model:  "gpt-4o",
		Host:   server.URL,
		APIKey: "sk-test-key",
	}

	provider, err := NewOpenAIProviderFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewOpenAIProviderFromConfig() error = %v", err)
	}

	messages := []Message{{Role: "user", Content: "Hello"}}
	tools := []ToolDefinition{}

	ch, err := provider.GenerateStreaming(context.Background(), messages, tools)
	if err != nil {
		return
	}

	hasError := false
	for chunk := range ch {
		if chunk.Type == "error" {
			hasError = true
			break
		}
	}

	if !hasError {
		t.Error("GenerateStreaming() expected error chunk, got none")
	}
}

func TestOpenAIProvider_WithCustomHTTPClient(t *testing.T) {
	customClient := httpclient.New(
		httpclient.WithMaxRetries(1),
		httpclient.WithBaseDelay(100*time.Millisecond),
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response := OpenAIResponsesResponse{
			ID:     "resp_789",
			Status: "completed",
			Model:  "gpt-4o",
			Output: []OpenAIOutputItem{
				{
					Type: "message",
					Role: "assistant",
					Content: []interface{}{
						map[string]interface{}{"type": "output_text", "text": "Hello from custom client!"},
					},
				},
			},
			Usage: OpenAIUsage{InputTokens: 5, OutputTokens: 8, TotalTokens: 13},
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	cfg := &config.ModelBackendConfig{
		Type:   "openai",
		Model:  "gpt-4o",
		Host:   server.URL,
		APIKey: "sk-test-key",
	}

	provider, err := NewOpenAIProviderFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewOpenAIProviderFromConfig() error = %v", err)
	}

	provider.httpClient = customClient

	messages := []Message{{Role: "user", Content: "Hello"}}
	tools := []ToolDefinition{}

	text, _, tokens, _, err := provider.Generate(context.Background(), messages, tools)

	if err != nil {
		t.Errorf("Generate() error = %v, want nil", err)
	}
	if text != "Hello from custom client!" {
		t.Errorf("Generate() text = %v, want Hello from custom client!", text)
	}
	if tokens != 13 {
		t.Errorf("Generate() tokens = %v, want 13", tokens)
	}
}

func TestIsOpenAIReasoningModel(t *testing.T) {
	tests := []struct {
		model string
		want  bool
	}{
		{"o1", true},
		{"o1-mini", true},
		{"o3", true},
		{"o4-mini", true},
		{"gpt-5", true},
		{"gpt-4o", false},
		{"gpt-4o-mini", false},
	}

	for _, tt := range tests {
		if got := IsOpenAIReasoningModel(tt.model); got != tt.want {
			t.Errorf("IsOpenAIReasoningModel(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}
