//go:build integration

package integration

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multichat/internal/core"
	"multichat/internal/store"
)

func newPostgresStore(t *testing.T) *store.PostgresStore {
	t.Helper()
	st, err := store.NewPostgresStore(testCtx, pgPool)
	require.NoError(t, err)
	return st
}

func TestPostgresDirectoryRoundTrip(t *testing.T) {
	st := newPostgresStore(t)

	p := &store.Provider{
		Name:       "anthropic-" + uuid.NewString()[:8],
		BaseURL:    "https://api.anthropic.com/v1",
		WireFamily: store.FamilyAnthropic,
	}
	require.NoError(t, st.CreateProvider(testCtx, p))

	for _, alias := range []string{"primary", "backup"} {
		require.NoError(t, st.CreateAPIKey(testCtx, &store.APIKey{
			ProviderID: p.ID, Alias: alias, Key: "sk-" + alias,
		}))
	}
	keys, err := st.ListAPIKeys(testCtx, p.ID)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "primary", keys[0].Alias, "insertion order preserved")

	m := &store.Model{Name: "claude-" + uuid.NewString()[:8], Family: "claude", Capabilities: []string{"chat"}}
	require.NoError(t, st.CreateModel(testCtx, m))

	impl := &store.ModelImplementation{
		ProviderID:       p.ID,
		ModelID:          m.ID,
		ProviderModelID:  "claude-sonnet-4-20250514",
		IsAvailable:      true,
		CustomParameters: core.Params{"temperature": 0.5},
	}
	require.NoError(t, st.CreateImplementation(testCtx, impl))

	got, err := st.GetImplementation(testCtx, impl.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "claude-sonnet-4-20250514", got.ProviderModelID)
	assert.Equal(t, 0.5, got.CustomParameters["temperature"], "JSONB round trip")

	require.NoError(t, st.DeleteProvider(testCtx, p.ID))
	gone, err := st.GetProvider(testCtx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestPostgresResponseBatch(t *testing.T) {
	st := newPostgresStore(t)

	conv := &store.Conversation{Title: "batch test"}
	require.NoError(t, st.CreateConversation(testCtx, conv))
	turn := &store.ConversationTurn{ConversationID: conv.ID, UserInput: "hello"}
	require.NoError(t, st.CreateTurn(testCtx, turn))

	batch := []core.NormalizedResponse{
		{ImplementationID: uuid.New(), Content: "alpha",
			Metadata: map[string]any{"model": "m-a", "response_time": 0.31}},
		{ImplementationID: uuid.New(), Error: "upstream timeout"},
	}
	saved, err := st.SaveResponses(testCtx, turn.ID, batch)
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.False(t, saved[0].IsSelected)
	assert.False(t, saved[1].IsSelected)

	// Failed call persisted as its own row, even though its
	// implementation id has no matching directory entry.
	listed, err := st.ListResponses(testCtx, turn.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)

	require.NoError(t, st.SelectResponse(testCtx, turn.ID, saved[0].ID))
	gotTurn, err := st.GetTurn(testCtx, turn.ID)
	require.NoError(t, err)
	require.NotNil(t, gotTurn.ActiveResponseID)
	assert.Equal(t, saved[0].ID, *gotTurn.ActiveResponseID)
}

func TestPostgresSingleResponseAutoSelects(t *testing.T) {
	st := newPostgresStore(t)

	conv := &store.Conversation{Title: "auto select"}
	require.NoError(t, st.CreateConversation(testCtx, conv))
	turn := &store.ConversationTurn{ConversationID: conv.ID, UserInput: "hi"}
	require.NoError(t, st.CreateTurn(testCtx, turn))

	saved, err := st.SaveResponses(testCtx, turn.ID, []core.NormalizedResponse{
		{ImplementationID: uuid.New(), Content: "the only answer"},
	})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.True(t, saved[0].IsSelected)

	gotTurn, err := st.GetTurn(testCtx, turn.ID)
	require.NoError(t, err)
	require.NotNil(t, gotTurn.ActiveResponseID)
	assert.Equal(t, saved[0].ID, *gotTurn.ActiveResponseID)
}
