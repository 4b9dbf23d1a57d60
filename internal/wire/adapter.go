package wire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"multichat/internal/core"
	"multichat/internal/httpclient"
)

const anthropicAPIVersion = "2023-06-01"

// anthropicDefaultMaxTokens is applied when neither the implementation
// defaults nor the caller set max_tokens; the Messages API requires it.
const anthropicDefaultMaxTokens = 4096

// CallConfig carries everything one provider call needs: where to send it,
// how to authenticate, which dialect to speak and which defaults to merge
// under the caller's parameters.
type CallConfig struct {
	Endpoint        string
	Credential      string
	ProviderName    string
	ProviderModelID string
	Family          Family
	Defaults        core.Params
}

// Adapter performs single chat completion calls against any supported
// family. It carries no retry or circuit breaking logic; each call is one
// request, bounded by the caller's context.
type Adapter struct {
	httpClient *http.Client
}

// New creates an adapter with the shared default HTTP client.
func New() *Adapter {
	return &Adapter{httpClient: httpclient.NewDefaultHTTPClient()}
}

// NewWithHTTPClient creates an adapter with a custom HTTP client.
func NewWithHTTPClient(client *http.Client) *Adapter {
	return &Adapter{httpClient: client}
}

// Invoke sends one chat completion request and returns the parsed result.
// Defaults and caller parameters are each spelled the way the target
// family expects before merging, so an override names the same key as the
// default it replaces no matter which casing the caller used.
func (a *Adapter) Invoke(ctx context.Context, cfg CallConfig, messages []core.Message, overrides core.Params) (*core.Completion, error) {
	if len(messages) == 0 {
		return nil, core.NewInvalidRequestError("at least one message is required", nil)
	}
	params := Merge(Canonicalize(cfg.Family, cfg.Defaults), Canonicalize(cfg.Family, overrides))

	var (
		url     string
		headers map[string]string
		payload map[string]any
	)
	switch cfg.Family {
	case FamilyAnthropic:
		url, headers, payload = buildAnthropicRequest(cfg, messages, params)
	case FamilyGemini:
		url, headers, payload = buildGeminiRequest(cfg, messages, params)
	default:
		url, headers, payload = buildOpenAIRequest(cfg, messages, params)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, core.NewInvalidRequestError("failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewTransportError(cfg.ProviderName, http.StatusBadGateway, "failed to send request: "+err.Error(), err)
	}
	defer func() {
		_ = resp.Body.Close() //nolint:errcheck
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewTransportError(cfg.ProviderName, http.StatusBadGateway, "failed to read response: "+err.Error(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.ParseProviderError(cfg.ProviderName, resp.StatusCode, respBody, nil)
	}

	switch cfg.Family {
	case FamilyAnthropic:
		return parseAnthropicResponse(cfg, respBody)
	case FamilyGemini:
		return parseGeminiResponse(cfg, respBody)
	default:
		return parseOpenAIResponse(cfg, respBody)
	}
}

func buildOpenAIRequest(cfg CallConfig, messages []core.Message, params core.Params) (string, map[string]string, map[string]any) {
	msgs := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, map[string]any{"role": m.Role, "content": m.Content})
	}
	payload := map[string]any{
		"model":    cfg.ProviderModelID,
		"messages": msgs,
	}
	for k, v := range params {
		switch k {
		case "model", "messages", "stream":
			continue
		}
		payload[k] = v
	}
	headers := map[string]string{
		"Authorization": "Bearer " + cfg.Credential,
	}
	return cfg.Endpoint + "/chat/completions", headers, payload
}

func parseOpenAIResponse(cfg CallConfig, body []byte) (*core.Completion, error) {
	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() {
		return nil, core.NewMalformedResponseError(cfg.ProviderName, "response has no message content", nil)
	}
	c := &core.Completion{
		ID:      gjson.GetBytes(body, "id").String(),
		Model:   gjson.GetBytes(body, "model").String(),
		Content: content.String(),
		Created: gjson.GetBytes(body, "created").Int(),
	}
	if c.Model == "" {
		c.Model = cfg.ProviderModelID
	}
	if usage := gjson.GetBytes(body, "usage"); usage.Exists() {
		c.Usage = &core.Usage{
			PromptTokens:     int(usage.Get("prompt_tokens").Int()),
			CompletionTokens: int(usage.Get("completion_tokens").Int()),
			TotalTokens:      int(usage.Get("total_tokens").Int()),
		}
	}
	return c, nil
}

func buildAnthropicRequest(cfg CallConfig, messages []core.Message, params core.Params) (string, map[string]string, map[string]any) {
	var system string
	msgs := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		msgs = append(msgs, map[string]any{"role": m.Role, "content": m.Content})
	}
	payload := map[string]any{
		"model":    cfg.ProviderModelID,
		"messages": msgs,
	}
	if system != "" {
		payload["system"] = system
	}
	for k, v := range params {
		switch k {
		case "model", "messages", "system", "stream":
			continue
		}
		payload[k] = v
	}
	if _, ok := payload["max_tokens"]; !ok {
		payload["max_tokens"] = anthropicDefaultMaxTokens
	}
	headers := map[string]string{
		"x-api-key":         cfg.Credential,
		"anthropic-version": anthropicAPIVersion,
	}
	return cfg.Endpoint + "/messages", headers, payload
}

func parseAnthropicResponse(cfg CallConfig, body []byte) (*core.Completion, error) {
	content := gjson.GetBytes(body, "content.0.text")
	if !content.Exists() {
		return nil, core.NewMalformedResponseError(cfg.ProviderName, "response has no text content", nil)
	}
	c := &core.Completion{
		ID:      gjson.GetBytes(body, "id").String(),
		Model:   gjson.GetBytes(body, "model").String(),
		Content: content.String(),
		Created: time.Now().Unix(),
	}
	if c.Model == "" {
		c.Model = cfg.ProviderModelID
	}
	if usage := gjson.GetBytes(body, "usage"); usage.Exists() {
		in := int(usage.Get("input_tokens").Int())
		out := int(usage.Get("output_tokens").Int())
		c.Usage = &core.Usage{
			PromptTokens:     in,
			CompletionTokens: out,
			TotalTokens:      in + out,
		}
	}
	return c, nil
}

func buildGeminiRequest(cfg CallConfig, messages []core.Message, params core.Params) (string, map[string]string, map[string]any) {
	var system string
	contents := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		switch role {
		case "system":
			system = m.Content
			continue
		case "assistant":
			role = "model"
		}
		contents = append(contents, map[string]any{
			"role":  role,
			"parts": []map[string]any{{"text": m.Content}},
		})
	}
	payload := map[string]any{
		"contents": contents,
	}
	if system != "" {
		payload["systemInstruction"] = map[string]any{
			"parts": []map[string]any{{"text": system}},
		}
	}
	if len(params) > 0 {
		payload["generationConfig"] = map[string]any(params)
	}
	headers := map[string]string{
		"x-goog-api-key": cfg.Credential,
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", cfg.Endpoint, cfg.ProviderModelID)
	return url, headers, payload
}

func parseGeminiResponse(cfg CallConfig, body []byte) (*core.Completion, error) {
	content := gjson.GetBytes(body, "candidates.0.content.parts.0.text")
	if !content.Exists() {
		return nil, core.NewMalformedResponseError(cfg.ProviderName, "response has no candidate text", nil)
	}
	c := &core.Completion{
		ID:      gjson.GetBytes(body, "responseId").String(),
		Model:   gjson.GetBytes(body, "modelVersion").String(),
		Content: content.String(),
		Created: time.Now().Unix(),
	}
	if c.Model == "" {
		c.Model = cfg.ProviderModelID
	}
	if usage := gjson.GetBytes(body, "usageMetadata"); usage.Exists() {
		c.Usage = &core.Usage{
			PromptTokens:     int(usage.Get("promptTokenCount").Int()),
			CompletionTokens: int(usage.Get("candidatesTokenCount").Int()),
			TotalTokens:      int(usage.Get("totalTokenCount").Int()),
		}
	}
	return c, nil
}
