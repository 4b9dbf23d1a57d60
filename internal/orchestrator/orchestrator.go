// Package orchestrator fans a chat request out to a set of model
// implementations in parallel and collects one normalized response per
// implementation, success or failure.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"multichat/internal/core"
	"multichat/internal/directory"
	"multichat/internal/observability"
	"multichat/internal/store"
	"multichat/internal/wire"
)

const (
	// DefaultConcurrency caps how many provider calls run at once.
	DefaultConcurrency = 8
	// DefaultCallTimeout bounds a single provider call.
	DefaultCallTimeout = 120 * time.Second
)

// Resolver maps implementation ids to call targets.
type Resolver interface {
	Resolve(ctx context.Context, implID uuid.UUID) (*directory.Resolution, error)
}

// Invoker places a single provider call.
type Invoker interface {
	Invoke(ctx context.Context, cfg wire.CallConfig, messages []core.Message, overrides core.Params) (*core.Completion, error)
}

// ResponseStore persists dispatch results.
type ResponseStore interface {
	SaveResponses(ctx context.Context, turnID uuid.UUID, responses []core.NormalizedResponse) ([]store.ModelResponse, error)
}

// Config tunes dispatch behavior.
type Config struct {
	// Concurrency caps simultaneous provider calls. Zero means
	// DefaultConcurrency.
	Concurrency int
	// CallTimeout bounds each provider call. Zero means
	// DefaultCallTimeout.
	CallTimeout time.Duration
}

// Request is one dispatch: the same messages and overrides go to every
// listed implementation. Duplicate ids are dispatched independently.
type Request struct {
	ImplementationIDs []uuid.UUID
	Messages          []core.Message
	Overrides         core.Params
}

// Settled is one completed call, tagged with its input position.
type Settled struct {
	Index    int
	Response core.NormalizedResponse
}

// Orchestrator coordinates resolution, dispatch and persistence.
type Orchestrator struct {
	resolver Resolver
	invoker  Invoker
	store    ResponseStore
	metrics  *observability.Metrics
	logger   *slog.Logger

	concurrency int
	callTimeout time.Duration
}

// New creates an orchestrator. metrics may be nil.
func New(resolver Resolver, invoker Invoker, st ResponseStore, metrics *observability.Metrics, logger *slog.Logger, cfg Config) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Orchestrator{
		resolver:    resolver,
		invoker:     invoker,
		store:       st,
		metrics:     metrics,
		logger:      logger,
		concurrency: concurrency,
		callTimeout: timeout,
	}
}

// DispatchEach starts all calls and returns a channel that yields each
// result as it settles. The channel closes once every call has settled.
// One result is delivered per requested implementation unless ctx is
// cancelled first; a producer whose result is no longer wanted drops it
// instead of blocking, so an abandoned consumer never leaks goroutines.
func (o *Orchestrator) DispatchEach(ctx context.Context, req Request) <-chan Settled {
	o.metrics.ObserveBatch(len(req.ImplementationIDs))

	out := make(chan Settled)
	sem := make(chan struct{}, o.concurrency)
	var wg sync.WaitGroup

	for i, implID := range req.ImplementationIDs {
		wg.Add(1)
		go func(idx int, id uuid.UUID) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			settled := Settled{Index: idx, Response: o.invokeOne(ctx, id, req)}
			select {
			case out <- settled:
			case <-ctx.Done():
			}
		}(i, implID)
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// Dispatch runs the full batch and returns results in input order.
func (o *Orchestrator) Dispatch(ctx context.Context, req Request) []core.NormalizedResponse {
	results := make([]core.NormalizedResponse, len(req.ImplementationIDs))
	for settled := range o.DispatchEach(ctx, req) {
		results[settled.Index] = settled.Response
	}
	return results
}

// Persist writes a dispatch batch for the given turn.
func (o *Orchestrator) Persist(ctx context.Context, turnID uuid.UUID, responses []core.NormalizedResponse) ([]store.ModelResponse, error) {
	return o.store.SaveResponses(ctx, turnID, responses)
}

// Orchestrate dispatches and persists in one step.
func (o *Orchestrator) Orchestrate(ctx context.Context, turnID uuid.UUID, req Request) ([]store.ModelResponse, []core.NormalizedResponse, error) {
	responses := o.Dispatch(ctx, req)
	saved, err := o.Persist(ctx, turnID, responses)
	if err != nil {
		return nil, nil, err
	}
	return saved, responses, nil
}

// invokeOne resolves and calls a single implementation. It never returns
// an error: every failure, panics included, becomes the Error field of the
// normalized response so one bad call cannot take down its batch.
func (o *Orchestrator) invokeOne(ctx context.Context, implID uuid.UUID, req Request) (nr core.NormalizedResponse) {
	nr = core.NormalizedResponse{ImplementationID: implID}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("provider call panicked", "implementation_id", implID, "panic", r)
			nr.Error = fmt.Sprintf("internal error: %v", r)
		}
	}()

	res, err := o.resolver.Resolve(ctx, implID)
	if err != nil {
		o.logger.Warn("resolution failed", "implementation_id", implID, "error", err)
		nr.Error = err.Error()
		return nr
	}
	nr.ModelName = res.ModelName
	nr.ProviderName = res.Call.ProviderName

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	o.metrics.CallStarted()
	start := time.Now()
	completion, err := o.invoker.Invoke(callCtx, res.Call, req.Messages, req.Overrides)
	elapsed := time.Since(start)
	o.metrics.CallFinished(res.Call.ProviderName, elapsed, err)

	if err != nil {
		o.logger.Warn("provider call failed",
			"implementation_id", implID,
			"provider", res.Call.ProviderName,
			"model", res.ModelName,
			"duration", elapsed,
			"error", err)
		nr.Error = err.Error()
		return nr
	}

	o.logger.Info("provider call completed",
		"implementation_id", implID,
		"provider", res.Call.ProviderName,
		"model", res.ModelName,
		"duration", elapsed)

	nr.Content = completion.Content
	nr.Metadata = map[string]any{
		"model":         completion.Model,
		"created":       completion.Created,
		"id":            completion.ID,
		"response_time": roundSeconds(elapsed),
	}
	if completion.Usage != nil {
		nr.Metadata["usage"] = map[string]any{
			"prompt_tokens":     completion.Usage.PromptTokens,
			"completion_tokens": completion.Usage.CompletionTokens,
			"total_tokens":      completion.Usage.TotalTokens,
		}
	}
	return nr
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}
