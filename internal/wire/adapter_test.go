package wire

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"multichat/internal/core"
)

func TestInvokeOpenAI(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-123",
			"model": "llama-3.3-70b-versatile",
			"created": 1700000001,
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "hello"}}],
			"usage": {"prompt_tokens": 4, "completion_tokens": 6, "total_tokens": 10}
		}`))
	}))
	defer server.Close()

	adapter := NewWithHTTPClient(server.Client())
	cfg := CallConfig{
		Endpoint:        server.URL,
		Credential:      "sk-test",
		ProviderName:    "groq",
		ProviderModelID: "llama-3.3-70b-versatile",
		Family:          FamilyOpenAI,
		Defaults:        core.Params{"temperature": 0.7},
	}

	completion, err := adapter.Invoke(context.Background(), cfg,
		core.UserMessage("ping"), core.Params{"topP": 0.9})
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}

	if gotPath != "/chat/completions" {
		t.Errorf("path = %q, want /chat/completions", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want bearer credential", gotAuth)
	}
	if gotBody["model"] != "llama-3.3-70b-versatile" {
		t.Errorf("model = %v", gotBody["model"])
	}
	if gotBody["temperature"] != 0.7 {
		t.Errorf("temperature = %v, want default 0.7", gotBody["temperature"])
	}
	if gotBody["top_p"] != 0.9 {
		t.Errorf("top_p = %v, want canonicalized caller value 0.9", gotBody["top_p"])
	}

	if completion.Content != "hello" {
		t.Errorf("Content = %q, want %q", completion.Content, "hello")
	}
	if completion.ID != "chatcmpl-123" {
		t.Errorf("ID = %q", completion.ID)
	}
	if completion.Created != 1700000001 {
		t.Errorf("Created = %d", completion.Created)
	}
	if completion.Usage == nil || completion.Usage.TotalTokens != 10 {
		t.Errorf("Usage = %+v, want total 10", completion.Usage)
	}
}

func TestInvokeOverrideReplacesDefaultAcrossCasings(t *testing.T) {
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "ok"}}]
		}`))
	}))
	defer server.Close()

	adapter := NewWithHTTPClient(server.Client())
	cfg := CallConfig{
		Endpoint:        server.URL,
		Credential:      "sk-test",
		ProviderName:    "groq",
		ProviderModelID: "llama-3.3-70b-versatile",
		Family:          FamilyOpenAI,
		Defaults:        core.Params{"top_p": 0.1},
	}

	// The stored default uses snake_case and the caller camelCase; the
	// request body must carry exactly one top_p, with the caller's value.
	_, err := adapter.Invoke(context.Background(), cfg,
		core.UserMessage("ping"), core.Params{"topP": 0.9})
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
	if gotBody["top_p"] != 0.9 {
		t.Errorf("top_p = %v, want caller override 0.9", gotBody["top_p"])
	}
	if _, ok := gotBody["topP"]; ok {
		t.Error("topP must not appear alongside top_p in the request body")
	}
}

func TestInvokeAnthropic(t *testing.T) {
	var gotBody map[string]any
	var gotKey, gotVersion string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		if r.URL.Path != "/messages" {
			t.Errorf("path = %q, want /messages", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_01",
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": "pong"}],
			"usage": {"input_tokens": 3, "output_tokens": 7}
		}`))
	}))
	defer server.Close()

	adapter := NewWithHTTPClient(server.Client())
	cfg := CallConfig{
		Endpoint:        server.URL,
		Credential:      "sk-ant-test",
		ProviderName:    "anthropic",
		ProviderModelID: "claude-sonnet-4-20250514",
		Family:          FamilyAnthropic,
	}

	messages := []core.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "ping"},
	}
	completion, err := adapter.Invoke(context.Background(), cfg, messages, nil)
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}

	if gotKey != "sk-ant-test" {
		t.Errorf("x-api-key = %q", gotKey)
	}
	if gotVersion != anthropicAPIVersion {
		t.Errorf("anthropic-version = %q, want %q", gotVersion, anthropicAPIVersion)
	}
	if gotBody["system"] != "be brief" {
		t.Errorf("system = %v, want extracted system message", gotBody["system"])
	}
	msgs, ok := gotBody["messages"].([]any)
	if !ok || len(msgs) != 1 {
		t.Fatalf("messages = %v, want single non-system message", gotBody["messages"])
	}
	if gotBody["max_tokens"] != float64(anthropicDefaultMaxTokens) {
		t.Errorf("max_tokens = %v, want default %d", gotBody["max_tokens"], anthropicDefaultMaxTokens)
	}

	if completion.Content != "pong" {
		t.Errorf("Content = %q", completion.Content)
	}
	if completion.Usage == nil || completion.Usage.TotalTokens != 10 {
		t.Errorf("Usage = %+v, want total 10 summed from input+output", completion.Usage)
	}
}

func TestInvokeGemini(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"responseId": "resp-1",
			"modelVersion": "gemini-2.0-flash",
			"candidates": [{"content": {"role": "model", "parts": [{"text": "hi there"}]}}],
			"usageMetadata": {"promptTokenCount": 2, "candidatesTokenCount": 8, "totalTokenCount": 10}
		}`))
	}))
	defer server.Close()

	adapter := NewWithHTTPClient(server.Client())
	cfg := CallConfig{
		Endpoint:        server.URL,
		Credential:      "goog-test",
		ProviderName:    "gemini",
		ProviderModelID: "gemini-2.0-flash",
		Family:          FamilyGemini,
		Defaults:        core.Params{"temperature": 0.5},
	}

	messages := []core.Message{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
		{Role: "user", Content: "again"},
	}
	completion, err := adapter.Invoke(context.Background(), cfg, messages, core.Params{"max_tokens": 64})
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}

	if gotPath != "/models/gemini-2.0-flash:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "goog-test" {
		t.Errorf("x-goog-api-key = %q", gotKey)
	}

	contents, ok := gotBody["contents"].([]any)
	if !ok || len(contents) != 3 {
		t.Fatalf("contents = %v, want 3 entries with system extracted", gotBody["contents"])
	}
	second := contents[1].(map[string]any)
	if second["role"] != "model" {
		t.Errorf("assistant role = %v, want remapped to model", second["role"])
	}
	if _, ok := gotBody["systemInstruction"]; !ok {
		t.Error("systemInstruction missing")
	}
	genCfg, ok := gotBody["generationConfig"].(map[string]any)
	if !ok {
		t.Fatal("generationConfig missing")
	}
	if genCfg["maxOutputTokens"] != float64(64) {
		t.Errorf("maxOutputTokens = %v, want 64", genCfg["maxOutputTokens"])
	}
	if genCfg["temperature"] != 0.5 {
		t.Errorf("temperature = %v, want 0.5", genCfg["temperature"])
	}

	if completion.Content != "hi there" {
		t.Errorf("Content = %q", completion.Content)
	}
	if completion.Model != "gemini-2.0-flash" {
		t.Errorf("Model = %q", completion.Model)
	}
	if completion.Usage == nil || completion.Usage.TotalTokens != 10 {
		t.Errorf("Usage = %+v", completion.Usage)
	}
}

func TestInvokeProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limit exceeded", "type": "rate_limit_error"}}`))
	}))
	defer server.Close()

	adapter := NewWithHTTPClient(server.Client())
	cfg := CallConfig{
		Endpoint:        server.URL,
		Credential:      "sk-test",
		ProviderName:    "groq",
		ProviderModelID: "llama-3.3-70b-versatile",
		Family:          FamilyOpenAI,
	}

	_, err := adapter.Invoke(context.Background(), cfg, core.UserMessage("ping"), nil)
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	var oe *core.OrchestrationError
	if !errors.As(err, &oe) {
		t.Fatalf("error type = %T, want *core.OrchestrationError", err)
	}
	if oe.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", oe.StatusCode)
	}
	if oe.Provider != "groq" {
		t.Errorf("Provider = %q", oe.Provider)
	}
}

func TestInvokeMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	adapter := NewWithHTTPClient(server.Client())
	cfg := CallConfig{
		Endpoint:     server.URL,
		ProviderName: "groq",
		Family:       FamilyOpenAI,
	}

	_, err := adapter.Invoke(context.Background(), cfg, core.UserMessage("ping"), nil)
	if err == nil {
		t.Fatal("expected error for response without content")
	}
	var oe *core.OrchestrationError
	if !errors.As(err, &oe) {
		t.Fatalf("error type = %T", err)
	}
	if oe.Type != core.ErrorTypeMalformedResponse {
		t.Errorf("Type = %v, want malformed response", oe.Type)
	}
}

func TestInvokeContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	adapter := NewWithHTTPClient(server.Client())
	cfg := CallConfig{
		Endpoint:     server.URL,
		ProviderName: "groq",
		Family:       FamilyOpenAI,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := adapter.Invoke(ctx, cfg, core.UserMessage("ping"), nil)
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestInvokeNoMessages(t *testing.T) {
	adapter := New()
	_, err := adapter.Invoke(context.Background(), CallConfig{}, nil, nil)
	if err == nil {
		t.Fatal("expected error for empty message list")
	}
	var oe *core.OrchestrationError
	if !errors.As(err, &oe) || oe.Type != core.ErrorTypeInvalidRequest {
		t.Errorf("error = %v, want invalid request", err)
	}
}
