package directory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multichat/internal/cache"
	"multichat/internal/core"
	"multichat/internal/store"
	"multichat/internal/wire"
)

type fakeStore struct {
	impls     map[uuid.UUID]*store.ModelImplementation
	providers map[uuid.UUID]*store.Provider
	models    map[uuid.UUID]*store.Model
	keys      map[uuid.UUID][]store.APIKey

	implLookups int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		impls:     map[uuid.UUID]*store.ModelImplementation{},
		providers: map[uuid.UUID]*store.Provider{},
		models:    map[uuid.UUID]*store.Model{},
		keys:      map[uuid.UUID][]store.APIKey{},
	}
}

func (f *fakeStore) GetImplementation(_ context.Context, id uuid.UUID) (*store.ModelImplementation, error) {
	f.implLookups++
	return f.impls[id], nil
}

func (f *fakeStore) GetProvider(_ context.Context, id uuid.UUID) (*store.Provider, error) {
	return f.providers[id], nil
}

func (f *fakeStore) GetModel(_ context.Context, id uuid.UUID) (*store.Model, error) {
	return f.models[id], nil
}

func (f *fakeStore) ListAPIKeys(_ context.Context, providerID uuid.UUID) ([]store.APIKey, error) {
	return f.keys[providerID], nil
}

func (f *fakeStore) add(available bool, keys ...store.APIKey) uuid.UUID {
	providerID, modelID, implID := uuid.New(), uuid.New(), uuid.New()
	f.providers[providerID] = &store.Provider{
		ID: providerID, Name: "groq",
		BaseURL: "https://api.groq.com/openai/v1", WireFamily: store.FamilyOpenAI,
	}
	f.models[modelID] = &store.Model{ID: modelID, Name: "llama-3.3-70b"}
	f.impls[implID] = &store.ModelImplementation{
		ID: implID, ProviderID: providerID, ModelID: modelID,
		ProviderModelID:  "llama-3.3-70b-versatile",
		IsAvailable:      available,
		CustomParameters: core.Params{"temperature": 0.7},
	}
	for i := range keys {
		keys[i].ProviderID = providerID
	}
	f.keys[providerID] = keys
	return implID
}

func TestResolve(t *testing.T) {
	fs := newFakeStore()
	implID := fs.add(true, store.APIKey{Alias: "primary", Key: "sk-first"}, store.APIKey{Alias: "backup", Key: "sk-second"})

	d := New(fs, nil, nil)
	res, err := d.Resolve(context.Background(), implID)
	require.NoError(t, err)

	assert.Equal(t, "https://api.groq.com/openai/v1", res.Call.Endpoint)
	assert.Equal(t, "sk-first", res.Call.Credential, "first key by insertion order is used")
	assert.Equal(t, "groq", res.Call.ProviderName)
	assert.Equal(t, "llama-3.3-70b-versatile", res.Call.ProviderModelID)
	assert.Equal(t, wire.FamilyOpenAI, res.Call.Family)
	assert.Equal(t, 0.7, res.Call.Defaults["temperature"])
	assert.Equal(t, "llama-3.3-70b", res.ModelName)
}

func TestResolveNotFound(t *testing.T) {
	d := New(newFakeStore(), nil, nil)
	_, err := d.Resolve(context.Background(), uuid.New())
	require.Error(t, err)

	var oe *core.OrchestrationError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, core.ErrorTypeNotFound, oe.Type)
}

func TestResolveUnavailable(t *testing.T) {
	fs := newFakeStore()
	implID := fs.add(false, store.APIKey{Alias: "primary", Key: "sk-first"})

	d := New(fs, nil, nil)
	_, err := d.Resolve(context.Background(), implID)
	require.Error(t, err)

	var oe *core.OrchestrationError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, core.ErrorTypeUnavailable, oe.Type)
}

func TestResolveNoCredential(t *testing.T) {
	fs := newFakeStore()
	implID := fs.add(true)

	d := New(fs, nil, nil)
	_, err := d.Resolve(context.Background(), implID)
	require.Error(t, err)

	var oe *core.OrchestrationError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, core.ErrorTypeNoCredential, oe.Type)
	assert.Equal(t, "groq", oe.Provider)
}

func TestResolveCaching(t *testing.T) {
	fs := newFakeStore()
	implID := fs.add(true, store.APIKey{Alias: "primary", Key: "sk-first"})

	d := New(fs, cache.NewMemoryCache(0), nil)
	ctx := context.Background()

	first, err := d.Resolve(ctx, implID)
	require.NoError(t, err)
	second, err := d.Resolve(ctx, implID)
	require.NoError(t, err)

	assert.Equal(t, first.Call, second.Call)
	assert.Equal(t, 1, fs.implLookups, "second resolve should hit the cache")

	d.Invalidate(ctx, implID)
	_, err = d.Resolve(ctx, implID)
	require.NoError(t, err)
	assert.Equal(t, 2, fs.implLookups, "invalidation forces a fresh lookup")
}
