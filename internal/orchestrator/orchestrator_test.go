package orchestrator

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multichat/internal/core"
	"multichat/internal/directory"
	"multichat/internal/store"
	"multichat/internal/wire"
)

type fakeResolver struct {
	resolutions map[uuid.UUID]*directory.Resolution
	errs        map[uuid.UUID]error
}

func (f *fakeResolver) Resolve(_ context.Context, implID uuid.UUID) (*directory.Resolution, error) {
	if err, ok := f.errs[implID]; ok {
		return nil, err
	}
	if res, ok := f.resolutions[implID]; ok {
		return res, nil
	}
	return nil, core.NewNotFoundError("model implementation " + implID.String() + " not found")
}

type fakeInvoker struct {
	mu       sync.Mutex
	calls    int
	inFlight int32
	maxSeen  int32

	// behavior per provider name
	delay   map[string]time.Duration
	err     map[string]error
	panicOn string
	block   map[string]bool
}

func (f *fakeInvoker) Invoke(ctx context.Context, cfg wire.CallConfig, messages []core.Message, overrides core.Params) (*core.Completion, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	cur := atomic.AddInt32(&f.inFlight, 1)
	for {
		seen := atomic.LoadInt32(&f.maxSeen)
		if cur <= seen || atomic.CompareAndSwapInt32(&f.maxSeen, seen, cur) {
			break
		}
	}
	defer atomic.AddInt32(&f.inFlight, -1)

	if cfg.ProviderName == f.panicOn {
		panic("boom")
	}
	if f.block[cfg.ProviderName] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if d, ok := f.delay[cfg.ProviderName]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := f.err[cfg.ProviderName]; ok {
		return nil, err
	}
	return &core.Completion{
		ID:      "resp-" + cfg.ProviderName,
		Model:   cfg.ProviderModelID,
		Content: "pong from " + cfg.ProviderName,
		Created: 1700000000,
		Usage:   &core.Usage{PromptTokens: 4, CompletionTokens: 6, TotalTokens: 10},
	}, nil
}

type fakeResponseStore struct {
	mu     sync.Mutex
	turnID uuid.UUID
	saved  []core.NormalizedResponse
	err    error
}

func (f *fakeResponseStore) SaveResponses(_ context.Context, turnID uuid.UUID, responses []core.NormalizedResponse) ([]store.ModelResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.turnID = turnID
	f.saved = responses
	out := make([]store.ModelResponse, 0, len(responses))
	for _, r := range responses {
		out = append(out, store.ModelResponse{
			ID:               uuid.New(),
			TurnID:           turnID,
			ImplementationID: r.ImplementationID,
			Content:          r.Content,
			Error:            r.Error,
			IsSelected:       len(responses) == 1,
		})
	}
	return out, nil
}

func resolution(provider, model string) *directory.Resolution {
	return &directory.Resolution{
		Call: wire.CallConfig{
			Endpoint:        "https://example.invalid",
			Credential:      "sk-test",
			ProviderName:    provider,
			ProviderModelID: model + "-wire",
			Family:          wire.FamilyOpenAI,
		},
		ModelName: model,
	}
}

func newTestOrchestrator(r Resolver, i Invoker, rs ResponseStore, cfg Config) *Orchestrator {
	return New(r, i, rs, nil, nil, cfg)
}

func TestDispatchPreservesInputOrder(t *testing.T) {
	slowID, fastID := uuid.New(), uuid.New()
	resolver := &fakeResolver{resolutions: map[uuid.UUID]*directory.Resolution{
		slowID: resolution("slow", "model-a"),
		fastID: resolution("fast", "model-b"),
	}}
	invoker := &fakeInvoker{delay: map[string]time.Duration{"slow": 50 * time.Millisecond}}

	o := newTestOrchestrator(resolver, invoker, &fakeResponseStore{}, Config{})
	results := o.Dispatch(context.Background(), Request{
		ImplementationIDs: []uuid.UUID{slowID, fastID},
		Messages:          core.UserMessage("ping"),
	})

	require.Len(t, results, 2)
	assert.Equal(t, slowID, results[0].ImplementationID, "slow call keeps first position")
	assert.Equal(t, fastID, results[1].ImplementationID)
	assert.Equal(t, "pong from slow", results[0].Content)
	assert.Equal(t, "pong from fast", results[1].Content)
}

func TestDispatchIsolatesFailures(t *testing.T) {
	okID, badID, missingID := uuid.New(), uuid.New(), uuid.New()
	resolver := &fakeResolver{resolutions: map[uuid.UUID]*directory.Resolution{
		okID:  resolution("groq", "llama"),
		badID: resolution("broken", "claude"),
	}}
	invoker := &fakeInvoker{err: map[string]error{
		"broken": errors.New("provider exploded"),
	}}

	o := newTestOrchestrator(resolver, invoker, &fakeResponseStore{}, Config{})
	results := o.Dispatch(context.Background(), Request{
		ImplementationIDs: []uuid.UUID{okID, badID, missingID},
		Messages:          core.UserMessage("ping"),
	})

	require.Len(t, results, 3)
	assert.Empty(t, results[0].Error)
	assert.Equal(t, "pong from groq", results[0].Content)

	assert.Equal(t, "provider exploded", results[1].Error)
	assert.Empty(t, results[1].Content)
	assert.Equal(t, "claude", results[1].ModelName, "identity survives a failed call")

	assert.Contains(t, results[2].Error, "not found")
	assert.Empty(t, results[2].ModelName, "unresolved calls have no identity")
}

func TestDispatchCallTimeout(t *testing.T) {
	hangID := uuid.New()
	resolver := &fakeResolver{resolutions: map[uuid.UUID]*directory.Resolution{
		hangID: resolution("hang", "model"),
	}}
	invoker := &fakeInvoker{block: map[string]bool{"hang": true}}

	o := newTestOrchestrator(resolver, invoker, &fakeResponseStore{}, Config{CallTimeout: 20 * time.Millisecond})
	results := o.Dispatch(context.Background(), Request{
		ImplementationIDs: []uuid.UUID{hangID},
		Messages:          core.UserMessage("ping"),
	})

	require.Len(t, results, 1)
	assert.True(t, results[0].Failed())
	assert.Contains(t, results[0].Error, "deadline")
}

func TestDispatchDuplicatesRunIndependently(t *testing.T) {
	implID := uuid.New()
	resolver := &fakeResolver{resolutions: map[uuid.UUID]*directory.Resolution{
		implID: resolution("groq", "llama"),
	}}
	invoker := &fakeInvoker{}

	o := newTestOrchestrator(resolver, invoker, &fakeResponseStore{}, Config{})
	results := o.Dispatch(context.Background(), Request{
		ImplementationIDs: []uuid.UUID{implID, implID},
		Messages:          core.UserMessage("ping"),
	})

	require.Len(t, results, 2)
	assert.Equal(t, 2, invoker.calls, "each duplicate entry is its own call")
	assert.Equal(t, results[0].ImplementationID, results[1].ImplementationID)
}

func TestDispatchRecoversPanics(t *testing.T) {
	implID := uuid.New()
	resolver := &fakeResolver{resolutions: map[uuid.UUID]*directory.Resolution{
		implID: resolution("panicky", "model"),
	}}
	invoker := &fakeInvoker{panicOn: "panicky"}

	o := newTestOrchestrator(resolver, invoker, &fakeResponseStore{}, Config{})
	results := o.Dispatch(context.Background(), Request{
		ImplementationIDs: []uuid.UUID{implID},
		Messages:          core.UserMessage("ping"),
	})

	require.Len(t, results, 1)
	assert.Contains(t, results[0].Error, "internal error")
}

func TestDispatchConcurrencyCap(t *testing.T) {
	resolver := &fakeResolver{resolutions: map[uuid.UUID]*directory.Resolution{}}
	ids := make([]uuid.UUID, 6)
	for i := range ids {
		ids[i] = uuid.New()
		resolver.resolutions[ids[i]] = resolution("groq", "llama")
	}
	invoker := &fakeInvoker{delay: map[string]time.Duration{"groq": 20 * time.Millisecond}}

	o := newTestOrchestrator(resolver, invoker, &fakeResponseStore{}, Config{Concurrency: 2})
	results := o.Dispatch(context.Background(), Request{
		ImplementationIDs: ids,
		Messages:          core.UserMessage("ping"),
	})

	require.Len(t, results, 6)
	assert.LessOrEqual(t, atomic.LoadInt32(&invoker.maxSeen), int32(2), "no more than the cap in flight")
}

func TestDispatchEachAbandonedConsumerReleasesGoroutines(t *testing.T) {
	resolver := &fakeResolver{resolutions: map[uuid.UUID]*directory.Resolution{}}
	ids := make([]uuid.UUID, 6)
	for i := range ids {
		ids[i] = uuid.New()
		resolver.resolutions[ids[i]] = resolution("groq", "llama")
	}
	invoker := &fakeInvoker{delay: map[string]time.Duration{"groq": 10 * time.Millisecond}}

	before := runtime.NumGoroutine()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o := newTestOrchestrator(resolver, invoker, &fakeResponseStore{}, Config{})
	ch := o.DispatchEach(ctx, Request{
		ImplementationIDs: ids,
		Messages:          core.UserMessage("ping"),
	})

	// Take one result, then walk away without draining the channel.
	<-ch
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && runtime.NumGoroutine() > before {
		time.Sleep(10 * time.Millisecond)
	}
	if got := runtime.NumGoroutine(); got > before {
		t.Fatalf("goroutines still running after consumer walked away: before=%d now=%d", before, got)
	}
}

func TestDispatchMetadataShape(t *testing.T) {
	implID := uuid.New()
	resolver := &fakeResolver{resolutions: map[uuid.UUID]*directory.Resolution{
		implID: resolution("groq", "llama"),
	}}

	o := newTestOrchestrator(resolver, &fakeInvoker{}, &fakeResponseStore{}, Config{})
	results := o.Dispatch(context.Background(), Request{
		ImplementationIDs: []uuid.UUID{implID},
		Messages:          core.UserMessage("ping"),
	})

	require.Len(t, results, 1)
	meta := results[0].Metadata
	require.NotNil(t, meta)
	assert.Equal(t, "llama-wire", meta["model"])
	assert.Equal(t, "resp-groq", meta["id"])
	assert.Equal(t, int64(1700000000), meta["created"])
	assert.Contains(t, meta, "response_time")

	usage, ok := meta["usage"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 10, usage["total_tokens"])
}

func TestOrchestratePersistsBatch(t *testing.T) {
	implID := uuid.New()
	resolver := &fakeResolver{resolutions: map[uuid.UUID]*directory.Resolution{
		implID: resolution("groq", "llama"),
	}}
	rs := &fakeResponseStore{}
	turnID := uuid.New()

	o := newTestOrchestrator(resolver, &fakeInvoker{}, rs, Config{})
	saved, responses, err := o.Orchestrate(context.Background(), turnID, Request{
		ImplementationIDs: []uuid.UUID{implID},
		Messages:          core.UserMessage("ping"),
	})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	require.Len(t, responses, 1)
	assert.Equal(t, turnID, rs.turnID)
	assert.True(t, saved[0].IsSelected, "single response is auto-selected")
}

func TestOrchestrateSurfacesPersistenceErrors(t *testing.T) {
	implID := uuid.New()
	resolver := &fakeResolver{resolutions: map[uuid.UUID]*directory.Resolution{
		implID: resolution("groq", "llama"),
	}}
	rs := &fakeResponseStore{err: core.NewPersistenceError("disk full", nil)}

	o := newTestOrchestrator(resolver, &fakeInvoker{}, rs, Config{})
	_, _, err := o.Orchestrate(context.Background(), uuid.New(), Request{
		ImplementationIDs: []uuid.UUID{implID},
		Messages:          core.UserMessage("ping"),
	})
	require.Error(t, err)
	var oe *core.OrchestrationError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, core.ErrorTypePersistence, oe.Type)
}
