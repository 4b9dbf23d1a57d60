package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"multichat/internal/core"
	"multichat/internal/directory"
	"multichat/internal/orchestrator"
	"multichat/internal/store"
)

// Dispatcher is the orchestration surface the handlers need.
type Dispatcher interface {
	Dispatch(ctx context.Context, req orchestrator.Request) []core.NormalizedResponse
	DispatchEach(ctx context.Context, req orchestrator.Request) <-chan orchestrator.Settled
	Persist(ctx context.Context, turnID uuid.UUID, responses []core.NormalizedResponse) ([]store.ModelResponse, error)
}

// Handler holds the HTTP handlers
type Handler struct {
	store      store.Store
	dispatcher Dispatcher
	directory  *directory.Directory
	logger     *slog.Logger

	streamDelay time.Duration
}

// NewHandler creates a handler. directory may be nil when no resolution
// cache invalidation is needed.
func NewHandler(st store.Store, d Dispatcher, dir *directory.Directory, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:      st,
		dispatcher: d,
		directory:  dir,
		logger:     logger,
	}
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleError converts orchestration errors to appropriate HTTP responses
func handleError(c echo.Context, err error) error {
	var oe *core.OrchestrationError
	if errors.As(err, &oe) {
		return c.JSON(oe.HTTPStatusCode(), oe.ToJSON())
	}

	// Fallback for unexpected errors
	return c.JSON(http.StatusInternalServerError, map[string]any{
		"error": map[string]any{
			"type":    "internal_error",
			"message": err.Error(),
		},
	})
}

// parseID reads a UUID path parameter.
func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, core.NewInvalidRequestError("invalid "+name+": must be a UUID", err)
	}
	return id, nil
}
