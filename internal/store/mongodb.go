package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"multichat/internal/core"
)

// MongoStore implements Store for MongoDB. Entity IDs are stored as their
// string form in _id. Response batches are written with a single ordered
// InsertMany; standalone deployments have no multi-document transactions,
// so the batch is as atomic as the driver allows.
type MongoStore struct {
	db *mongo.Database
}

const (
	collProviders       = "providers"
	collAPIKeys         = "api_keys"
	collModels          = "models"
	collImplementations = "model_implementations"
	collConversations   = "conversations"
	collTurns           = "conversation_turns"
	collResponses       = "model_responses"
)

// NewMongoStore creates a MongoDB-backed store and ensures the lookup
// indexes exist.
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	s := &MongoStore{db: db}

	indexes := map[string]string{
		collAPIKeys:         "provider_id",
		collImplementations: "provider_id",
		collTurns:           "conversation_id",
		collResponses:       "turn_id",
	}
	for coll, field := range indexes {
		_, err := db.Collection(coll).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: field, Value: 1}},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create index on %s.%s: %w", coll, field, err)
		}
	}
	return s, nil
}

type providerDoc struct {
	ID          string    `bson:"_id"`
	Name        string    `bson:"name"`
	BaseURL     string    `bson:"base_url"`
	Description string    `bson:"description,omitempty"`
	WireFamily  string    `bson:"wire_family"`
	CreatedAt   time.Time `bson:"created_at"`
}

type apiKeyDoc struct {
	ID         string    `bson:"_id"`
	ProviderID string    `bson:"provider_id"`
	Alias      string    `bson:"alias"`
	Key        string    `bson:"key"`
	CreatedAt  time.Time `bson:"created_at"`
}

type modelDoc struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Description  string    `bson:"description,omitempty"`
	Family       string    `bson:"family"`
	Capabilities []string  `bson:"capabilities,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
}

type implementationDoc struct {
	ID               string         `bson:"_id"`
	ProviderID       string         `bson:"provider_id"`
	ModelID          string         `bson:"model_id"`
	ProviderModelID  string         `bson:"provider_model_id"`
	Version          string         `bson:"version,omitempty"`
	ContextWindow    int            `bson:"context_window,omitempty"`
	IsAvailable      bool           `bson:"is_available"`
	CustomParameters map[string]any `bson:"custom_parameters,omitempty"`
	CreatedAt        time.Time      `bson:"created_at"`
}

type conversationDoc struct {
	ID           string    `bson:"_id"`
	Title        string    `bson:"title"`
	SystemPrompt string    `bson:"system_prompt,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

type turnDoc struct {
	ID               string         `bson:"_id"`
	ConversationID   string         `bson:"conversation_id"`
	UserInput        string         `bson:"user_input"`
	ModelParameters  map[string]any `bson:"model_parameters,omitempty"`
	ActiveResponseID string         `bson:"active_response_id,omitempty"`
	IsDeleted        bool           `bson:"is_deleted"`
	CreatedAt        time.Time      `bson:"created_at"`
}

type responseDoc struct {
	ID               string         `bson:"_id"`
	TurnID           string         `bson:"turn_id"`
	ImplementationID string         `bson:"implementation_id"`
	Content          string         `bson:"content"`
	Metadata         map[string]any `bson:"metadata,omitempty"`
	Error            string         `bson:"error,omitempty"`
	IsSelected       bool           `bson:"is_selected"`
	IsDeleted        bool           `bson:"is_deleted"`
	CreatedAt        time.Time      `bson:"created_at"`
}

func (s *MongoStore) CreateProvider(ctx context.Context, p *Provider) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.WireFamily == "" {
		p.WireFamily = FamilyOpenAI
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Collection(collProviders).InsertOne(ctx, providerDoc{
		ID: p.ID.String(), Name: p.Name, BaseURL: p.BaseURL,
		Description: p.Description, WireFamily: p.WireFamily, CreatedAt: p.CreatedAt,
	})
	return err
}

func (s *MongoStore) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	var doc providerDoc
	err := s.db.Collection(collProviders).FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Provider{
		ID: uuid.MustParse(doc.ID), Name: doc.Name, BaseURL: doc.BaseURL,
		Description: doc.Description, WireFamily: doc.WireFamily, CreatedAt: doc.CreatedAt,
	}, nil
}

func (s *MongoStore) ListProviders(ctx context.Context) ([]Provider, error) {
	cursor, err := s.db.Collection(collProviders).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []Provider
	for cursor.Next(ctx) {
		var doc providerDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, Provider{
			ID: uuid.MustParse(doc.ID), Name: doc.Name, BaseURL: doc.BaseURL,
			Description: doc.Description, WireFamily: doc.WireFamily, CreatedAt: doc.CreatedAt,
		})
	}
	return out, cursor.Err()
}

func (s *MongoStore) UpdateProvider(ctx context.Context, p *Provider) error {
	res, err := s.db.Collection(collProviders).UpdateOne(ctx,
		bson.M{"_id": p.ID.String()},
		bson.M{"$set": bson.M{
			"name":        p.Name,
			"base_url":    p.BaseURL,
			"description": p.Description,
			"wire_family": p.WireFamily,
		}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return core.NewNotFoundError(fmt.Sprintf("provider %s not found", p.ID))
	}
	return nil
}

func (s *MongoStore) DeleteProvider(ctx context.Context, id uuid.UUID) error {
	idStr := id.String()
	if _, err := s.db.Collection(collAPIKeys).DeleteMany(ctx, bson.M{"provider_id": idStr}); err != nil {
		return err
	}
	if _, err := s.db.Collection(collImplementations).DeleteMany(ctx, bson.M{"provider_id": idStr}); err != nil {
		return err
	}
	_, err := s.db.Collection(collProviders).DeleteOne(ctx, bson.M{"_id": idStr})
	return err
}

func (s *MongoStore) CreateAPIKey(ctx context.Context, k *APIKey) error {
	if k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Collection(collAPIKeys).InsertOne(ctx, apiKeyDoc{
		ID: k.ID.String(), ProviderID: k.ProviderID.String(),
		Alias: k.Alias, Key: k.Key, CreatedAt: k.CreatedAt,
	})
	return err
}

func (s *MongoStore) ListAPIKeys(ctx context.Context, providerID uuid.UUID) ([]APIKey, error) {
	cursor, err := s.db.Collection(collAPIKeys).Find(ctx,
		bson.M{"provider_id": providerID.String()},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []APIKey
	for cursor.Next(ctx) {
		var doc apiKeyDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, APIKey{
			ID: uuid.MustParse(doc.ID), ProviderID: uuid.MustParse(doc.ProviderID),
			Alias: doc.Alias, Key: doc.Key, CreatedAt: doc.CreatedAt,
		})
	}
	return out, cursor.Err()
}

func (s *MongoStore) DeleteAPIKey(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Collection(collAPIKeys).DeleteOne(ctx, bson.M{"_id": id.String()})
	return err
}

func (s *MongoStore) CreateModel(ctx context.Context, m *Model) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Collection(collModels).InsertOne(ctx, modelDoc{
		ID: m.ID.String(), Name: m.Name, Description: m.Description,
		Family: m.Family, Capabilities: m.Capabilities, CreatedAt: m.CreatedAt,
	})
	return err
}

func (s *MongoStore) GetModel(ctx context.Context, id uuid.UUID) (*Model, error) {
	var doc modelDoc
	err := s.db.Collection(collModels).FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Model{
		ID: uuid.MustParse(doc.ID), Name: doc.Name, Description: doc.Description,
		Family: doc.Family, Capabilities: doc.Capabilities, CreatedAt: doc.CreatedAt,
	}, nil
}

func (s *MongoStore) ListModels(ctx context.Context) ([]Model, error) {
	cursor, err := s.db.Collection(collModels).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []Model
	for cursor.Next(ctx) {
		var doc modelDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, Model{
			ID: uuid.MustParse(doc.ID), Name: doc.Name, Description: doc.Description,
			Family: doc.Family, Capabilities: doc.Capabilities, CreatedAt: doc.CreatedAt,
		})
	}
	return out, cursor.Err()
}

func (s *MongoStore) UpdateModel(ctx context.Context, m *Model) error {
	res, err := s.db.Collection(collModels).UpdateOne(ctx,
		bson.M{"_id": m.ID.String()},
		bson.M{"$set": bson.M{
			"name":         m.Name,
			"description":  m.Description,
			"family":       m.Family,
			"capabilities": m.Capabilities,
		}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return core.NewNotFoundError(fmt.Sprintf("model %s not found", m.ID))
	}
	return nil
}

func (s *MongoStore) DeleteModel(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Collection(collModels).DeleteOne(ctx, bson.M{"_id": id.String()})
	return err
}

func (s *MongoStore) CreateImplementation(ctx context.Context, impl *ModelImplementation) error {
	if impl.ID == uuid.Nil {
		impl.ID = uuid.New()
	}
	if impl.CreatedAt.IsZero() {
		impl.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Collection(collImplementations).InsertOne(ctx, implementationDoc{
		ID:              impl.ID.String(),
		ProviderID:      impl.ProviderID.String(),
		ModelID:         impl.ModelID.String(),
		ProviderModelID: impl.ProviderModelID,
		Version:         impl.Version,
		ContextWindow:   impl.ContextWindow,
		IsAvailable:     impl.IsAvailable,
		CustomParameters: impl.CustomParameters,
		CreatedAt:        impl.CreatedAt,
	})
	return err
}

func implFromDoc(doc implementationDoc) ModelImplementation {
	return ModelImplementation{
		ID:               uuid.MustParse(doc.ID),
		ProviderID:       uuid.MustParse(doc.ProviderID),
		ModelID:          uuid.MustParse(doc.ModelID),
		ProviderModelID:  doc.ProviderModelID,
		Version:          doc.Version,
		ContextWindow:    doc.ContextWindow,
		IsAvailable:      doc.IsAvailable,
		CustomParameters: core.Params(doc.CustomParameters),
		CreatedAt:        doc.CreatedAt,
	}
}

func (s *MongoStore) GetImplementation(ctx context.Context, id uuid.UUID) (*ModelImplementation, error) {
	var doc implementationDoc
	err := s.db.Collection(collImplementations).FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	impl := implFromDoc(doc)
	return &impl, nil
}

func (s *MongoStore) ListImplementations(ctx context.Context) ([]ModelImplementation, error) {
	cursor, err := s.db.Collection(collImplementations).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []ModelImplementation
	for cursor.Next(ctx) {
		var doc implementationDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, implFromDoc(doc))
	}
	return out, cursor.Err()
}

func (s *MongoStore) UpdateImplementation(ctx context.Context, impl *ModelImplementation) error {
	res, err := s.db.Collection(collImplementations).UpdateOne(ctx,
		bson.M{"_id": impl.ID.String()},
		bson.M{"$set": bson.M{
			"version":           impl.Version,
			"context_window":    impl.ContextWindow,
			"is_available":      impl.IsAvailable,
			"custom_parameters": map[string]any(impl.CustomParameters),
		}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return core.NewNotFoundError(fmt.Sprintf("model implementation %s not found", impl.ID))
	}
	return nil
}

func (s *MongoStore) DeleteImplementation(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Collection(collImplementations).DeleteOne(ctx, bson.M{"_id": id.String()})
	return err
}

func (s *MongoStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = now
	}
	_, err := s.db.Collection(collConversations).InsertOne(ctx, conversationDoc{
		ID: conv.ID.String(), Title: conv.Title, SystemPrompt: conv.SystemPrompt,
		CreatedAt: conv.CreatedAt, UpdatedAt: conv.UpdatedAt,
	})
	return err
}

func (s *MongoStore) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	var doc conversationDoc
	err := s.db.Collection(collConversations).FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Conversation{
		ID: uuid.MustParse(doc.ID), Title: doc.Title, SystemPrompt: doc.SystemPrompt,
		CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt,
	}, nil
}

func (s *MongoStore) ListConversations(ctx context.Context) ([]Conversation, error) {
	cursor, err := s.db.Collection(collConversations).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []Conversation
	for cursor.Next(ctx) {
		var doc conversationDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, Conversation{
			ID: uuid.MustParse(doc.ID), Title: doc.Title, SystemPrompt: doc.SystemPrompt,
			CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt,
		})
	}
	return out, cursor.Err()
}

func (s *MongoStore) UpdateConversation(ctx context.Context, conv *Conversation) error {
	conv.UpdatedAt = time.Now().UTC()
	res, err := s.db.Collection(collConversations).UpdateOne(ctx,
		bson.M{"_id": conv.ID.String()},
		bson.M{"$set": bson.M{
			"title":         conv.Title,
			"system_prompt": conv.SystemPrompt,
			"updated_at":    conv.UpdatedAt,
		}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return core.NewNotFoundError(fmt.Sprintf("conversation %s not found", conv.ID))
	}
	return nil
}

func (s *MongoStore) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	idStr := id.String()
	cursor, err := s.db.Collection(collTurns).Find(ctx, bson.M{"conversation_id": idStr})
	if err != nil {
		return err
	}
	var turnIDs []string
	for cursor.Next(ctx) {
		var doc turnDoc
		if err := cursor.Decode(&doc); err != nil {
			cursor.Close(ctx)
			return err
		}
		turnIDs = append(turnIDs, doc.ID)
	}
	cursor.Close(ctx)
	if err := cursor.Err(); err != nil {
		return err
	}

	if len(turnIDs) > 0 {
		if _, err := s.db.Collection(collResponses).DeleteMany(ctx, bson.M{"turn_id": bson.M{"$in": turnIDs}}); err != nil {
			return err
		}
	}
	if _, err := s.db.Collection(collTurns).DeleteMany(ctx, bson.M{"conversation_id": idStr}); err != nil {
		return err
	}
	_, err = s.db.Collection(collConversations).DeleteOne(ctx, bson.M{"_id": idStr})
	return err
}

func (s *MongoStore) CreateTurn(ctx context.Context, turn *ConversationTurn) error {
	if turn.ID == uuid.Nil {
		turn.ID = uuid.New()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Collection(collTurns).InsertOne(ctx, turnDoc{
		ID:              turn.ID.String(),
		ConversationID:  turn.ConversationID.String(),
		UserInput:       turn.UserInput,
		ModelParameters: turn.ModelParameters,
		IsDeleted:       turn.IsDeleted,
		CreatedAt:       turn.CreatedAt,
	})
	return err
}

func turnFromDoc(doc turnDoc) (*ConversationTurn, error) {
	t := &ConversationTurn{
		ID:              uuid.MustParse(doc.ID),
		ConversationID:  uuid.MustParse(doc.ConversationID),
		UserInput:       doc.UserInput,
		ModelParameters: core.Params(doc.ModelParameters),
		IsDeleted:       doc.IsDeleted,
		CreatedAt:       doc.CreatedAt,
	}
	if doc.ActiveResponseID != "" {
		id, err := uuid.Parse(doc.ActiveResponseID)
		if err != nil {
			return nil, fmt.Errorf("invalid active_response_id: %w", err)
		}
		t.ActiveResponseID = &id
	}
	return t, nil
}

func (s *MongoStore) GetTurn(ctx context.Context, id uuid.UUID) (*ConversationTurn, error) {
	var doc turnDoc
	err := s.db.Collection(collTurns).FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return turnFromDoc(doc)
}

func (s *MongoStore) ListTurns(ctx context.Context, conversationID uuid.UUID) ([]ConversationTurn, error) {
	cursor, err := s.db.Collection(collTurns).Find(ctx,
		bson.M{"conversation_id": conversationID.String(), "is_deleted": false},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []ConversationTurn
	for cursor.Next(ctx) {
		var doc turnDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		turn, err := turnFromDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *turn)
	}
	return out, cursor.Err()
}

func (s *MongoStore) SaveResponses(ctx context.Context, turnID uuid.UUID, responses []core.NormalizedResponse) ([]ModelResponse, error) {
	saved := make([]ModelResponse, 0, len(responses))
	docs := make([]any, 0, len(responses))
	selected := len(responses) == 1
	for _, resp := range responses {
		rec := ModelResponse{
			ID:               uuid.New(),
			TurnID:           turnID,
			ImplementationID: resp.ImplementationID,
			Content:          resp.Content,
			Metadata:         resp.Metadata,
			Error:            resp.Error,
			IsSelected:       selected,
			CreatedAt:        time.Now().UTC(),
		}
		docs = append(docs, responseDoc{
			ID:               rec.ID.String(),
			TurnID:           rec.TurnID.String(),
			ImplementationID: rec.ImplementationID.String(),
			Content:          rec.Content,
			Metadata:         rec.Metadata,
			Error:            rec.Error,
			IsSelected:       rec.IsSelected,
			CreatedAt:        rec.CreatedAt,
		})
		saved = append(saved, rec)
	}

	if len(docs) > 0 {
		if _, err := s.db.Collection(collResponses).InsertMany(ctx, docs); err != nil {
			return nil, core.NewPersistenceError("failed to insert response batch", err)
		}
	}

	if selected && len(saved) == 1 {
		_, err := s.db.Collection(collTurns).UpdateOne(ctx,
			bson.M{"_id": turnID.String()},
			bson.M{"$set": bson.M{"active_response_id": saved[0].ID.String()}})
		if err != nil {
			return nil, core.NewPersistenceError("failed to set active response", err)
		}
	}
	return saved, nil
}

func (s *MongoStore) ListResponses(ctx context.Context, turnID uuid.UUID) ([]ModelResponse, error) {
	cursor, err := s.db.Collection(collResponses).Find(ctx,
		bson.M{"turn_id": turnID.String()},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []ModelResponse
	for cursor.Next(ctx) {
		var doc responseDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, ModelResponse{
			ID:               uuid.MustParse(doc.ID),
			TurnID:           uuid.MustParse(doc.TurnID),
			ImplementationID: uuid.MustParse(doc.ImplementationID),
			Content:          doc.Content,
			Metadata:         doc.Metadata,
			Error:            doc.Error,
			IsSelected:       doc.IsSelected,
			IsDeleted:        doc.IsDeleted,
			CreatedAt:        doc.CreatedAt,
		})
	}
	return out, cursor.Err()
}

func (s *MongoStore) SelectResponse(ctx context.Context, turnID, responseID uuid.UUID) error {
	count, err := s.db.Collection(collResponses).CountDocuments(ctx,
		bson.M{"_id": responseID.String(), "turn_id": turnID.String()})
	if err != nil {
		return core.NewPersistenceError("failed to look up response", err)
	}
	if count == 0 {
		return core.NewNotFoundError(fmt.Sprintf("response %s not found for turn %s", responseID, turnID))
	}

	if _, err := s.db.Collection(collResponses).UpdateMany(ctx,
		bson.M{"turn_id": turnID.String()},
		bson.M{"$set": bson.M{"is_selected": false}}); err != nil {
		return core.NewPersistenceError("failed to reset selection", err)
	}
	if _, err := s.db.Collection(collResponses).UpdateOne(ctx,
		bson.M{"_id": responseID.String()},
		bson.M{"$set": bson.M{"is_selected": true}}); err != nil {
		return core.NewPersistenceError("failed to select response", err)
	}
	if _, err := s.db.Collection(collTurns).UpdateOne(ctx,
		bson.M{"_id": turnID.String()},
		bson.M{"$set": bson.M{"active_response_id": responseID.String()}}); err != nil {
		return core.NewPersistenceError("failed to set active response", err)
	}
	return nil
}
