// Package store provides the catalog and conversation repositories over
// the shared storage backends. Entities mirror the relational model:
// providers own API keys and model implementations, conversations own
// turns, turns own model responses.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"multichat/internal/core"
	"multichat/internal/storage"
)

// Wire family constants. A provider's wire family selects the adapter
// used to talk to it.
const (
	FamilyOpenAI    = "openai"
	FamilyAnthropic = "anthropic"
	FamilyGemini    = "gemini"
)

// Provider holds a base endpoint and the wire protocol it speaks. Its
// credential set is shared by all of its model implementations.
type Provider struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	BaseURL     string    `json:"base_url"`
	Description string    `json:"description,omitempty"`
	WireFamily  string    `json:"wire_family"`
	CreatedAt   time.Time `json:"created_at"`
}

// APIKey is one credential belonging to a provider.
type APIKey struct {
	ID         uuid.UUID `json:"id"`
	ProviderID uuid.UUID `json:"provider_id"`
	Alias      string    `json:"alias"`
	Key        string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// Model is a logical model family independent of any provider.
type Model struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Family       string    `json:"family"`
	Capabilities []string  `json:"capabilities,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ModelImplementation identifies one callable backend: a provider plus a
// provider-native model id. Identity is immutable; availability and
// default parameters are mutable.
type ModelImplementation struct {
	ID               uuid.UUID   `json:"id"`
	ProviderID       uuid.UUID   `json:"provider_id"`
	ModelID          uuid.UUID   `json:"model_id"`
	ProviderModelID  string      `json:"provider_model_id"`
	Version          string      `json:"version,omitempty"`
	ContextWindow    int         `json:"context_window,omitempty"`
	IsAvailable      bool        `json:"is_available"`
	CustomParameters core.Params `json:"custom_parameters,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
}

// Conversation is a sequence of turns.
type Conversation struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ConversationTurn is one exchange unit: a user input plus the responses
// appended by orchestration, and an optional active-response pointer.
type ConversationTurn struct {
	ID               uuid.UUID   `json:"id"`
	ConversationID   uuid.UUID   `json:"conversation_id"`
	UserInput        string      `json:"user_input"`
	ModelParameters  core.Params `json:"model_parameters,omitempty"`
	ActiveResponseID *uuid.UUID  `json:"active_response_id,omitempty"`
	IsDeleted        bool        `json:"is_deleted"`
	CreatedAt        time.Time   `json:"created_at"`
}

// ModelResponse is one stored outcome of calling a specific model
// implementation for a specific turn.
type ModelResponse struct {
	ID               uuid.UUID      `json:"id"`
	TurnID           uuid.UUID      `json:"turn_id"`
	ImplementationID uuid.UUID      `json:"implementation_id"`
	Content          string         `json:"content"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	Error            string         `json:"error,omitempty"`
	IsSelected       bool           `json:"is_selected"`
	IsDeleted        bool           `json:"is_deleted"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Store is the persistence interface consumed by the directory, the
// orchestrator, and the HTTP handlers. Get methods return (nil, nil) when
// the entity does not exist.
type Store interface {
	CreateProvider(ctx context.Context, p *Provider) error
	GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error)
	ListProviders(ctx context.Context) ([]Provider, error)
	// UpdateProvider rewrites the mutable fields of an existing provider.
	// It fails with a not found error for unknown ids.
	UpdateProvider(ctx context.Context, p *Provider) error
	DeleteProvider(ctx context.Context, id uuid.UUID) error

	CreateAPIKey(ctx context.Context, k *APIKey) error
	// ListAPIKeys returns the provider's credentials in insertion order.
	ListAPIKeys(ctx context.Context, providerID uuid.UUID) ([]APIKey, error)
	DeleteAPIKey(ctx context.Context, id uuid.UUID) error

	CreateModel(ctx context.Context, m *Model) error
	GetModel(ctx context.Context, id uuid.UUID) (*Model, error)
	ListModels(ctx context.Context) ([]Model, error)
	UpdateModel(ctx context.Context, m *Model) error
	DeleteModel(ctx context.Context, id uuid.UUID) error

	CreateImplementation(ctx context.Context, impl *ModelImplementation) error
	GetImplementation(ctx context.Context, id uuid.UUID) (*ModelImplementation, error)
	ListImplementations(ctx context.Context) ([]ModelImplementation, error)
	// UpdateImplementation rewrites version, context window, availability
	// and custom parameters. Identity (provider, model, provider model id)
	// stays as created.
	UpdateImplementation(ctx context.Context, impl *ModelImplementation) error
	DeleteImplementation(ctx context.Context, id uuid.UUID) error

	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error)
	ListConversations(ctx context.Context) ([]Conversation, error)
	UpdateConversation(ctx context.Context, conv *Conversation) error
	DeleteConversation(ctx context.Context, id uuid.UUID) error

	CreateTurn(ctx context.Context, turn *ConversationTurn) error
	GetTurn(ctx context.Context, id uuid.UUID) (*ConversationTurn, error)
	ListTurns(ctx context.Context, conversationID uuid.UUID) ([]ConversationTurn, error)

	// SaveResponses writes one ModelResponse row per normalized response,
	// preserving order, in a single transaction. When the batch holds
	// exactly one response it is marked selected and becomes the turn's
	// active response.
	SaveResponses(ctx context.Context, turnID uuid.UUID, responses []core.NormalizedResponse) ([]ModelResponse, error)
	ListResponses(ctx context.Context, turnID uuid.UUID) ([]ModelResponse, error)
	// SelectResponse marks one response of a turn selected, resetting its
	// siblings, and updates the turn's active-response pointer.
	SelectResponse(ctx context.Context, turnID, responseID uuid.UUID) error
}

// New creates a Store backed by the given storage connection and runs
// schema migration for SQL backends.
func New(ctx context.Context, st storage.Storage) (Store, error) {
	switch st.Type() {
	case storage.TypeSQLite:
		return NewSQLiteStore(ctx, st.SQLiteDB())
	case storage.TypePostgreSQL:
		pool, ok := st.PostgreSQLPool().(*pgxpool.Pool)
		if !ok || pool == nil {
			return nil, fmt.Errorf("storage did not provide a PostgreSQL pool")
		}
		return NewPostgresStore(ctx, pool)
	case storage.TypeMongoDB:
		db, ok := st.MongoDatabase().(*mongo.Database)
		if !ok || db == nil {
			return nil, fmt.Errorf("storage did not provide a MongoDB database")
		}
		return NewMongoStore(ctx, db)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", st.Type())
	}
}
