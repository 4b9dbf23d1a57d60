package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"multichat/internal/core"
	"multichat/internal/orchestrator"
	"multichat/internal/store"
)

type multiChatRequest struct {
	ConversationID    string      `json:"conversation_id"`
	UserInput         string      `json:"user_input"`
	ImplementationIDs []string    `json:"implementation_ids"`
	Parameters        core.Params `json:"parameters"`
}

type responsePayload struct {
	ID               uuid.UUID      `json:"id,omitempty"`
	ImplementationID uuid.UUID      `json:"implementation_id"`
	ModelName        string         `json:"model_name,omitempty"`
	ProviderName     string         `json:"provider_name,omitempty"`
	Content          string         `json:"content"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	Error            string         `json:"error,omitempty"`
	IsSelected       bool           `json:"is_selected"`
}

type multiChatResponse struct {
	TurnID    uuid.UUID         `json:"turn_id"`
	Responses []responsePayload `json:"responses"`
}

// MultiChat handles POST /v1/chat/multi: one user message fanned out to a
// set of implementations, all results persisted and returned together.
func (h *Handler) MultiChat(c echo.Context) error {
	var req multiChatRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}

	turn, dispatchReq, err := h.prepareTurn(c, req)
	if err != nil {
		return handleError(c, err)
	}

	ctx := c.Request().Context()
	responses := h.dispatcher.Dispatch(ctx, dispatchReq)
	saved, err := h.dispatcher.Persist(ctx, turn.ID, responses)
	if err != nil {
		return handleError(c, err)
	}

	out := multiChatResponse{TurnID: turn.ID, Responses: make([]responsePayload, 0, len(responses))}
	for i, nr := range responses {
		p := payloadFromNormalized(nr)
		if i < len(saved) {
			p.ID = saved[i].ID
			p.IsSelected = saved[i].IsSelected
		}
		out.Responses = append(out.Responses, p)
	}
	return c.JSON(http.StatusOK, out)
}

// MultiChatStream handles GET /v1/chat/multi/stream. It emits one start
// event, one model-response event per implementation as each call settles,
// and one end event, then persists the batch.
func (h *Handler) MultiChatStream(c echo.Context) error {
	req := multiChatRequest{
		ConversationID: c.QueryParam("conversation_id"),
		UserInput:      c.QueryParam("user_input"),
	}
	if ids := c.QueryParam("implementation_ids"); ids != "" {
		req.ImplementationIDs = strings.Split(ids, ",")
	}
	if raw := c.QueryParam("parameters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Parameters); err != nil {
			return handleError(c, core.NewInvalidRequestError("invalid parameters: must be a JSON object", err))
		}
	}

	turn, dispatchReq, err := h.prepareTurn(c, req)
	if err != nil {
		return handleError(c, err)
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	if err := writeSSE(c, "start", map[string]any{
		"turn_id":  turn.ID,
		"expected": len(dispatchReq.ImplementationIDs),
	}); err != nil {
		return nil
	}

	// Results are emitted in completion order; the batch is still
	// persisted in input order afterwards. When the client goes away the
	// loop keeps draining the channel so every settled call is recorded.
	responses := make([]core.NormalizedResponse, len(dispatchReq.ImplementationIDs))
	settledAt := make([]bool, len(responses))
	clientGone := false
	for settled := range h.dispatcher.DispatchEach(ctx, dispatchReq) {
		responses[settled.Index] = settled.Response
		settledAt[settled.Index] = true
		if clientGone {
			continue
		}
		if h.streamDelay > 0 {
			time.Sleep(h.streamDelay)
		}
		p := payloadFromNormalized(settled.Response)
		if err := writeSSE(c, "model-response", map[string]any{
			"index":    settled.Index,
			"response": p,
		}); err != nil {
			h.logger.Warn("stream client went away", "turn_id", turn.ID, "error", err)
			clientGone = true
		}
	}

	if !clientGone {
		_ = writeSSE(c, "end", map[string]any{"turn_id": turn.ID}) //nolint:errcheck
	}

	// A cancelled dispatch may drop late results. Record those slots as
	// cancelled so the turn still gets one row per requested
	// implementation, and write the batch on a context that survives the
	// client's disconnect.
	for i, done := range settledAt {
		if !done {
			responses[i] = core.NormalizedResponse{
				ImplementationID: dispatchReq.ImplementationIDs[i],
				Error:            "call cancelled before completion",
			}
		}
	}
	if _, err := h.dispatcher.Persist(context.WithoutCancel(ctx), turn.ID, responses); err != nil {
		h.logger.Error("failed to persist streamed batch", "turn_id", turn.ID, "error", err)
	}
	return nil
}

// SelectResponse handles PUT /v1/chat/turns/:turn_id/select-response/:response_id
func (h *Handler) SelectResponse(c echo.Context) error {
	turnID, err := parseID(c, "turn_id")
	if err != nil {
		return handleError(c, err)
	}
	responseID, err := parseID(c, "response_id")
	if err != nil {
		return handleError(c, err)
	}

	if err := h.store.SelectResponse(c.Request().Context(), turnID, responseID); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"turn_id":            turnID,
		"active_response_id": responseID,
	})
}

// ListTurnResponses handles GET /v1/chat/turns/:turn_id/responses
func (h *Handler) ListTurnResponses(c echo.Context) error {
	turnID, err := parseID(c, "turn_id")
	if err != nil {
		return handleError(c, err)
	}
	responses, err := h.store.ListResponses(c.Request().Context(), turnID)
	if err != nil {
		return handleError(c, err)
	}
	out := make([]responsePayload, 0, len(responses))
	for _, r := range responses {
		out = append(out, responsePayload{
			ID:               r.ID,
			ImplementationID: r.ImplementationID,
			Content:          r.Content,
			Metadata:         r.Metadata,
			Error:            r.Error,
			IsSelected:       r.IsSelected,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// prepareTurn validates a chat request, loads the conversation, assembles
// the message history and records the new turn.
func (h *Handler) prepareTurn(c echo.Context, req multiChatRequest) (*store.ConversationTurn, orchestrator.Request, error) {
	var empty orchestrator.Request

	if strings.TrimSpace(req.UserInput) == "" {
		return nil, empty, core.NewInvalidRequestError("user_input is required", nil)
	}
	if len(req.ImplementationIDs) == 0 {
		return nil, empty, core.NewInvalidRequestError("implementation_ids is required", nil)
	}
	conversationID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		return nil, empty, core.NewInvalidRequestError("invalid conversation_id: must be a UUID", err)
	}
	implIDs := make([]uuid.UUID, 0, len(req.ImplementationIDs))
	for _, raw := range req.ImplementationIDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, empty, core.NewInvalidRequestError("invalid implementation id "+raw, err)
		}
		implIDs = append(implIDs, id)
	}

	ctx := c.Request().Context()
	conv, err := h.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, empty, err
	}
	if conv == nil {
		return nil, empty, core.NewNotFoundError(fmt.Sprintf("conversation %s not found", conversationID))
	}

	messages, err := h.buildMessages(c, conv, req.UserInput)
	if err != nil {
		return nil, empty, err
	}

	turn := &store.ConversationTurn{
		ConversationID:  conv.ID,
		UserInput:       req.UserInput,
		ModelParameters: req.Parameters,
	}
	if err := h.store.CreateTurn(ctx, turn); err != nil {
		return nil, empty, err
	}

	return turn, orchestrator.Request{
		ImplementationIDs: implIDs,
		Messages:          messages,
		Overrides:         req.Parameters,
	}, nil
}

// buildMessages assembles the prompt: the conversation's system prompt,
// the selected answer of each earlier turn, then the new user input.
func (h *Handler) buildMessages(c echo.Context, conv *store.Conversation, userInput string) ([]core.Message, error) {
	ctx := c.Request().Context()

	var messages []core.Message
	if conv.SystemPrompt != "" {
		messages = append(messages, core.Message{Role: "system", Content: conv.SystemPrompt})
	}

	turns, err := h.store.ListTurns(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	for _, turn := range turns {
		if turn.ActiveResponseID == nil {
			continue
		}
		responses, err := h.store.ListResponses(ctx, turn.ID)
		if err != nil {
			return nil, err
		}
		for _, r := range responses {
			if r.ID == *turn.ActiveResponseID && r.Error == "" {
				messages = append(messages,
					core.Message{Role: "user", Content: turn.UserInput},
					core.Message{Role: "assistant", Content: r.Content})
				break
			}
		}
	}

	return append(messages, core.Message{Role: "user", Content: userInput}), nil
}

func payloadFromNormalized(nr core.NormalizedResponse) responsePayload {
	return responsePayload{
		ImplementationID: nr.ImplementationID,
		ModelName:        nr.ModelName,
		ProviderName:     nr.ProviderName,
		Content:          nr.Content,
		Metadata:         nr.Metadata,
		Error:            nr.Error,
	}
}

// writeSSE emits one server-sent event and flushes it to the client.
func writeSSE(c echo.Context, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Response().Writer, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}
