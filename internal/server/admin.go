package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"multichat/internal/core"
	"multichat/internal/store"
	"multichat/internal/wire"
)

type createProviderRequest struct {
	Name        string `json:"name"`
	BaseURL     string `json:"base_url"`
	Description string `json:"description"`
	WireFamily  string `json:"wire_family"`
}

// CreateProvider handles POST /v1/providers
func (h *Handler) CreateProvider(c echo.Context) error {
	var req createProviderRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.BaseURL) == "" {
		return handleError(c, core.NewInvalidRequestError("name and base_url are required", nil))
	}
	if _, err := wire.ParseFamily(req.WireFamily); err != nil {
		return handleError(c, core.NewInvalidRequestError(err.Error(), err))
	}

	p := &store.Provider{
		Name:        req.Name,
		BaseURL:     strings.TrimRight(req.BaseURL, "/"),
		Description: req.Description,
		WireFamily:  req.WireFamily,
	}
	if err := h.store.CreateProvider(c.Request().Context(), p); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

// ListProviders handles GET /v1/providers
func (h *Handler) ListProviders(c echo.Context) error {
	providers, err := h.store.ListProviders(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, providers)
}

// GetProvider handles GET /v1/providers/:id
func (h *Handler) GetProvider(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return handleError(c, err)
	}
	p, err := h.store.GetProvider(c.Request().Context(), id)
	if err != nil {
		return handleError(c, err)
	}
	if p == nil {
		return handleError(c, core.NewNotFoundError(fmt.Sprintf("provider %s not found", id)))
	}
	return c.JSON(http.StatusOK, p)
}

type updateProviderRequest struct {
	Name        *string `json:"name"`
	BaseURL     *string `json:"base_url"`
	Description *string `json:"description"`
	WireFamily  *string `json:"wire_family"`
}

// UpdateProvider handles PUT /v1/providers/:id. Absent fields keep their
// current value.
func (h *Handler) UpdateProvider(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return handleError(c, err)
	}
	var req updateProviderRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}

	ctx := c.Request().Context()
	p, err := h.store.GetProvider(ctx, id)
	if err != nil {
		return handleError(c, err)
	}
	if p == nil {
		return handleError(c, core.NewNotFoundError(fmt.Sprintf("provider %s not found", id)))
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return handleError(c, core.NewInvalidRequestError("name must not be empty", nil))
		}
		p.Name = *req.Name
	}
	if req.BaseURL != nil {
		if strings.TrimSpace(*req.BaseURL) == "" {
			return handleError(c, core.NewInvalidRequestError("base_url must not be empty", nil))
		}
		p.BaseURL = strings.TrimRight(*req.BaseURL, "/")
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.WireFamily != nil {
		if _, err := wire.ParseFamily(*req.WireFamily); err != nil {
			return handleError(c, core.NewInvalidRequestError(err.Error(), err))
		}
		p.WireFamily = *req.WireFamily
	}

	if err := h.store.UpdateProvider(ctx, p); err != nil {
		return handleError(c, err)
	}
	h.invalidateProviderImplementations(c, id)
	return c.JSON(http.StatusOK, p)
}

// DeleteProvider handles DELETE /v1/providers/:id
func (h *Handler) DeleteProvider(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return handleError(c, err)
	}
	ctx := c.Request().Context()
	if err := h.store.DeleteProvider(ctx, id); err != nil {
		return handleError(c, err)
	}
	h.invalidateProviderImplementations(c, id)
	return c.NoContent(http.StatusNoContent)
}

type createAPIKeyRequest struct {
	Alias string `json:"alias"`
	Key   string `json:"key"`
}

// CreateAPIKey handles POST /v1/providers/:id/keys
func (h *Handler) CreateAPIKey(c echo.Context) error {
	providerID, err := parseID(c, "id")
	if err != nil {
		return handleError(c, err)
	}
	var req createAPIKeyRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}
	if req.Key == "" {
		return handleError(c, core.NewInvalidRequestError("key is required", nil))
	}

	ctx := c.Request().Context()
	p, err := h.store.GetProvider(ctx, providerID)
	if err != nil {
		return handleError(c, err)
	}
	if p == nil {
		return handleError(c, core.NewNotFoundError(fmt.Sprintf("provider %s not found", providerID)))
	}

	key := &store.APIKey{ProviderID: providerID, Alias: req.Alias, Key: req.Key}
	if err := h.store.CreateAPIKey(ctx, key); err != nil {
		return handleError(c, err)
	}
	h.invalidateProviderImplementations(c, providerID)
	// APIKey marshals without its secret.
	return c.JSON(http.StatusCreated, key)
}

// ListAPIKeys handles GET /v1/providers/:id/keys
func (h *Handler) ListAPIKeys(c echo.Context) error {
	providerID, err := parseID(c, "id")
	if err != nil {
		return handleError(c, err)
	}
	keys, err := h.store.ListAPIKeys(c.Request().Context(), providerID)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, keys)
}

// DeleteAPIKey handles DELETE /v1/providers/:id/keys/:key_id
func (h *Handler) DeleteAPIKey(c echo.Context) error {
	providerID, err := parseID(c, "id")
	if err != nil {
		return handleError(c, err)
	}
	keyID, err := parseID(c, "key_id")
	if err != nil {
		return handleError(c, err)
	}
	if err := h.store.DeleteAPIKey(c.Request().Context(), keyID); err != nil {
		return handleError(c, err)
	}
	h.invalidateProviderImplementations(c, providerID)
	return c.NoContent(http.StatusNoContent)
}

type createModelRequest struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Family       string   `json:"family"`
	Capabilities []string `json:"capabilities"`
}

// CreateModel handles POST /v1/models
func (h *Handler) CreateModel(c echo.Context) error {
	var req createModelRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}
	if strings.TrimSpace(req.Name) == "" {
		return handleError(c, core.NewInvalidRequestError("name is required", nil))
	}
	m := &store.Model{
		Name:         req.Name,
		Description:  req.Description,
		Family:       req.Family,
		Capabilities: req.Capabilities,
	}
	if err := h.store.CreateModel(c.Request().Context(), m); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusCreated, m)
}

// ListModels handles GET /v1/models
func (h *Handler) ListModels(c echo.Context) error {
	models, err := h.store.ListModels(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, models)
}

// GetModel handles GET /v1/models/:id
func (h *Handler) GetModel(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return handleError(c, err)
	}
	m, err := h.store.GetModel(c.Request().Context(), id)
	if err != nil {
		return handleError(c, err)
	}
	if m == nil {
		return handleError(c, core.NewNotFoundError(fmt.Sprintf("model %s not found", id)))
	}
	return c.JSON(http.StatusOK, m)
}

type updateModelRequest struct {
	Name         *string   `json:"name"`
	Description  *string   `json:"description"`
	Family       *string   `json:"family"`
	Capabilities *[]string `json:"capabilities"`
}

// UpdateModel handles PUT /v1/models/:id
func (h *Handler) UpdateModel(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return handleError(c, err)
	}
	var req updateModelRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}

	ctx := c.Request().Context()
	m, err := h.store.GetModel(ctx, id)
	if err != nil {
		return handleError(c, err)
	}
	if m == nil {
		return handleError(c, core.NewNotFoundError(fmt.Sprintf("model %s not found", id)))
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return handleError(c, core.NewInvalidRequestError("name must not be empty", nil))
		}
		m.Name = *req.Name
	}
	if req.Description != nil {
		m.Description = *req.Description
	}
	if req.Family != nil {
		m.Family = *req.Family
	}
	if req.Capabilities != nil {
		m.Capabilities = *req.Capabilities
	}

	if err := h.store.UpdateModel(ctx, m); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

// DeleteModel handles DELETE /v1/models/:id
func (h *Handler) DeleteModel(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return handleError(c, err)
	}
	if err := h.store.DeleteModel(c.Request().Context(), id); err != nil {
		return handleError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type createImplementationRequest struct {
	ProviderID       string      `json:"provider_id"`
	ModelID          string      `json:"model_id"`
	ProviderModelID  string      `json:"provider_model_id"`
	Version          string      `json:"version"`
	ContextWindow    int         `json:"context_window"`
	IsAvailable      *bool       `json:"is_available"`
	CustomParameters core.Params `json:"custom_parameters"`
}

// CreateImplementation handles POST /v1/implementations
func (h *Handler) CreateImplementation(c echo.Context) error {
	var req createImplementationRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}
	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid provider_id: must be a UUID", err))
	}
	modelID, err := uuid.Parse(req.ModelID)
	if err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid model_id: must be a UUID", err))
	}
	if strings.TrimSpace(req.ProviderModelID) == "" {
		return handleError(c, core.NewInvalidRequestError("provider_model_id is required", nil))
	}

	ctx := c.Request().Context()
	p, err := h.store.GetProvider(ctx, providerID)
	if err != nil {
		return handleError(c, err)
	}
	if p == nil {
		return handleError(c, core.NewNotFoundError(fmt.Sprintf("provider %s not found", providerID)))
	}
	m, err := h.store.GetModel(ctx, modelID)
	if err != nil {
		return handleError(c, err)
	}
	if m == nil {
		return handleError(c, core.NewNotFoundError(fmt.Sprintf("model %s not found", modelID)))
	}

	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}
	impl := &store.ModelImplementation{
		ProviderID:       providerID,
		ModelID:          modelID,
		ProviderModelID:  req.ProviderModelID,
		Version:          req.Version,
		ContextWindow:    req.ContextWindow,
		IsAvailable:      available,
		CustomParameters: req.CustomParameters,
	}
	if err := h.store.CreateImplementation(ctx, impl); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusCreated, impl)
}

// ListImplementations handles GET /v1/implementations
func (h *Handler) ListImplementations(c echo.Context) error {
	impls, err := h.store.ListImplementations(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, impls)
}

// GetImplementation handles GET /v1/implementations/:id
func (h *Handler) GetImplementation(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return handleError(c, err)
	}
	impl, err := h.store.GetImplementation(c.Request().Context(), id)
	if err != nil {
		return handleError(c, err)
	}
	if impl == nil {
		return handleError(c, core.NewNotFoundError(fmt.Sprintf("model implementation %s not found", id)))
	}
	return c.JSON(http.StatusOK, impl)
}

type updateImplementationRequest struct {
	Version          *string      `json:"version"`
	ContextWindow    *int         `json:"context_window"`
	IsAvailable      *bool        `json:"is_available"`
	CustomParameters *core.Params `json:"custom_parameters"`
}

// UpdateImplementation handles PUT /v1/implementations/:id. Identity is
// immutable; availability, version, context window and default parameters
// can change. The cached resolution is dropped so the next dispatch sees
// the new state.
func (h *Handler) UpdateImplementation(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return handleError(c, err)
	}
	var req updateImplementationRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}

	ctx := c.Request().Context()
	impl, err := h.store.GetImplementation(ctx, id)
	if err != nil {
		return handleError(c, err)
	}
	if impl == nil {
		return handleError(c, core.NewNotFoundError(fmt.Sprintf("model implementation %s not found", id)))
	}

	if req.Version != nil {
		impl.Version = *req.Version
	}
	if req.ContextWindow != nil {
		impl.ContextWindow = *req.ContextWindow
	}
	if req.IsAvailable != nil {
		impl.IsAvailable = *req.IsAvailable
	}
	if req.CustomParameters != nil {
		impl.CustomParameters = *req.CustomParameters
	}

	if err := h.store.UpdateImplementation(ctx, impl); err != nil {
		return handleError(c, err)
	}
	if h.directory != nil {
		h.directory.Invalidate(ctx, id)
	}
	return c.JSON(http.StatusOK, impl)
}

// DeleteImplementation handles DELETE /v1/implementations/:id
func (h *Handler) DeleteImplementation(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return handleError(c, err)
	}
	ctx := c.Request().Context()
	if err := h.store.DeleteImplementation(ctx, id); err != nil {
		return handleError(c, err)
	}
	if h.directory != nil {
		h.directory.Invalidate(ctx, id)
	}
	return c.NoContent(http.StatusNoContent)
}

type createConversationRequest struct {
	Title        string `json:"title"`
	SystemPrompt string `json:"system_prompt"`
}

// CreateConversation handles POST /v1/conversations
func (h *Handler) CreateConversation(c echo.Context) error {
	var req createConversationRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}
	conv := &store.Conversation{Title: req.Title, SystemPrompt: req.SystemPrompt}
	if err := h.store.CreateConversation(c.Request().Context(), conv); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusCreated, conv)
}

// ListConversations handles GET /v1/conversations
func (h *Handler) ListConversations(c echo.Context) error {
	convs, err := h.store.ListConversations(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, convs)
}

// GetConversation handles GET /v1/conversations/:id
func (h *Handler) GetConversation(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return handleError(c, err)
	}
	conv, err := h.store.GetConversation(c.Request().Context(), id)
	if err != nil {
		return handleError(c, err)
	}
	if conv == nil {
		return handleError(c, core.NewNotFoundError(fmt.Sprintf("conversation %s not found", id)))
	}
	return c.JSON(http.StatusOK, conv)
}

type updateConversationRequest struct {
	Title        *string `json:"title"`
	SystemPrompt *string `json:"system_prompt"`
}

// UpdateConversation handles PUT /v1/conversations/:id
func (h *Handler) UpdateConversation(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return handleError(c, err)
	}
	var req updateConversationRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}

	ctx := c.Request().Context()
	conv, err := h.store.GetConversation(ctx, id)
	if err != nil {
		return handleError(c, err)
	}
	if conv == nil {
		return handleError(c, core.NewNotFoundError(fmt.Sprintf("conversation %s not found", id)))
	}

	if req.Title != nil {
		conv.Title = *req.Title
	}
	if req.SystemPrompt != nil {
		conv.SystemPrompt = *req.SystemPrompt
	}

	if err := h.store.UpdateConversation(ctx, conv); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

// DeleteConversation handles DELETE /v1/conversations/:id
func (h *Handler) DeleteConversation(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return handleError(c, err)
	}
	if err := h.store.DeleteConversation(c.Request().Context(), id); err != nil {
		return handleError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListTurns handles GET /v1/conversations/:id/turns
func (h *Handler) ListTurns(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return handleError(c, err)
	}
	turns, err := h.store.ListTurns(c.Request().Context(), id)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, turns)
}

// invalidateProviderImplementations drops cached resolutions for every
// implementation of a provider after its keys or the provider itself change.
func (h *Handler) invalidateProviderImplementations(c echo.Context, providerID uuid.UUID) {
	if h.directory == nil {
		return
	}
	ctx := c.Request().Context()
	impls, err := h.store.ListImplementations(ctx)
	if err != nil {
		h.logger.Warn("failed to list implementations for cache invalidation", "provider_id", providerID, "error", err)
		return
	}
	for _, impl := range impls {
		if impl.ProviderID == providerID {
			h.directory.Invalidate(ctx, impl.ID)
		}
	}
}
