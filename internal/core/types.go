// Package core provides the shared types and errors for the multi-model
// chat orchestration service.
package core

import (
	"github.com/google/uuid"
)

// Message represents a single message in a chat exchange.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserMessage wraps a bare string prompt as a single user-role message list.
func UserMessage(content string) []Message {
	return []Message{{Role: "user", Content: content}}
}

// Params holds generation parameters for a model call. Recognized keys use
// snake_case names (temperature, top_p, max_tokens, presence_penalty,
// frequency_penalty, stop_sequences); unrecognized keys are passed through
// verbatim to the provider.
type Params map[string]any

// Usage represents token usage reported by a provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the provider-agnostic result of one successful chat call.
// Content is the only required field; the rest is whatever the backend
// chose to report.
type Completion struct {
	ID      string `json:"id,omitempty"`
	Model   string `json:"model,omitempty"`
	Content string `json:"content"`
	Created int64  `json:"created,omitempty"`
	Usage   *Usage `json:"usage,omitempty"`
}

// NormalizedResponse is the uniform record shape every call outcome is
// mapped into, success or failure.
type NormalizedResponse struct {
	ImplementationID uuid.UUID      `json:"implementation_id"`
	ModelName        string         `json:"model_name"`
	ProviderName     string         `json:"provider_name"`
	Content          string         `json:"content"`
	Metadata         map[string]any `json:"metadata"`
	Error            string         `json:"error,omitempty"`
}

// Failed reports whether the response carries a per-model error.
func (r *NormalizedResponse) Failed() bool {
	return r.Error != ""
}
