package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"multichat/internal/core"
)

// PostgresStore implements Store for PostgreSQL using a pgx pool.
// IDs are stored as text to keep the row shape identical to the SQLite
// backend; JSON columns use JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS providers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		base_url TEXT NOT NULL,
		description TEXT,
		wire_family TEXT NOT NULL DEFAULT 'openai',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		provider_id TEXT NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
		alias TEXT NOT NULL,
		key TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS models (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		family TEXT NOT NULL,
		capabilities JSONB,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS model_implementations (
		id TEXT PRIMARY KEY,
		provider_id TEXT NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
		model_id TEXT NOT NULL REFERENCES models(id) ON DELETE CASCADE,
		provider_model_id TEXT NOT NULL,
		version TEXT,
		context_window INTEGER DEFAULT 0,
		is_available BOOLEAN NOT NULL DEFAULT TRUE,
		custom_parameters JSONB,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		system_prompt TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS conversation_turns (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		user_input TEXT NOT NULL,
		model_parameters JSONB,
		active_response_id TEXT,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS model_responses (
		id TEXT PRIMARY KEY,
		turn_id TEXT NOT NULL REFERENCES conversation_turns(id) ON DELETE CASCADE,
		implementation_id TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata JSONB,
		error TEXT,
		is_selected BOOLEAN NOT NULL DEFAULT FALSE,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_api_keys_provider ON api_keys(provider_id)`,
	`CREATE INDEX IF NOT EXISTS idx_impl_provider ON model_implementations(provider_id)`,
	`CREATE INDEX IF NOT EXISTS idx_turns_conversation ON conversation_turns(conversation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_responses_turn ON model_responses(turn_id)`,
}

// NewPostgresStore creates a PostgreSQL-backed store and runs schema migration.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to run schema migration: %w", err)
		}
	}
	return &PostgresStore{pool: pool}, nil
}

func jsonbValue(v any) (any, error) {
	switch t := v.(type) {
	case core.Params:
		if len(t) == 0 {
			return nil, nil
		}
	case map[string]any:
		if len(t) == 0 {
			return nil, nil
		}
	case []string:
		if len(t) == 0 {
			return nil, nil
		}
	case nil:
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSONB column: %w", err)
	}
	return data, nil
}

func fromJSONB[T any](raw []byte) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("failed to unmarshal JSONB column: %w", err)
	}
	return out, nil
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *PostgresStore) CreateProvider(ctx context.Context, p *Provider) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.WireFamily == "" {
		p.WireFamily = FamilyOpenAI
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO providers (id, name, base_url, description, wire_family, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID.String(), p.Name, p.BaseURL, p.Description, p.WireFamily, p.CreatedAt)
	return err
}

func (s *PostgresStore) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	var p Provider
	var idStr string
	var desc *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, base_url, description, wire_family, created_at FROM providers WHERE id = $1`,
		id.String()).Scan(&idStr, &p.Name, &p.BaseURL, &desc, &p.WireFamily, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.ID = uuid.MustParse(idStr)
	p.Description = strOrEmpty(desc)
	return &p, nil
}

func (s *PostgresStore) ListProviders(ctx context.Context) ([]Provider, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, base_url, description, wire_family, created_at FROM providers ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Provider
	for rows.Next() {
		var p Provider
		var idStr string
		var desc *string
		if err := rows.Scan(&idStr, &p.Name, &p.BaseURL, &desc, &p.WireFamily, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.ID = uuid.MustParse(idStr)
		p.Description = strOrEmpty(desc)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateProvider(ctx context.Context, p *Provider) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE providers SET name = $1, base_url = $2, description = $3, wire_family = $4 WHERE id = $5`,
		p.Name, p.BaseURL, p.Description, p.WireFamily, p.ID.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.NewNotFoundError(fmt.Sprintf("provider %s not found", p.ID))
	}
	return nil
}

func (s *PostgresStore) DeleteProvider(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM providers WHERE id = $1`, id.String())
	return err
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, k *APIKey) error {
	if k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, provider_id, alias, key, created_at) VALUES ($1, $2, $3, $4, $5)`,
		k.ID.String(), k.ProviderID.String(), k.Alias, k.Key, k.CreatedAt)
	return err
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, providerID uuid.UUID) ([]APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, provider_id, alias, key, created_at FROM api_keys WHERE provider_id = $1 ORDER BY created_at, id`,
		providerID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []APIKey
	for rows.Next() {
		var k APIKey
		var idStr, pidStr string
		if err := rows.Scan(&idStr, &pidStr, &k.Alias, &k.Key, &k.CreatedAt); err != nil {
			return nil, err
		}
		k.ID = uuid.MustParse(idStr)
		k.ProviderID = uuid.MustParse(pidStr)
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteAPIKey(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id.String())
	return err
}

func (s *PostgresStore) CreateModel(ctx context.Context, m *Model) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	caps, err := jsonbValue(m.Capabilities)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO models (id, name, description, family, capabilities, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID.String(), m.Name, m.Description, m.Family, caps, m.CreatedAt)
	return err
}

func (s *PostgresStore) GetModel(ctx context.Context, id uuid.UUID) (*Model, error) {
	var m Model
	var idStr string
	var desc *string
	var caps []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, description, family, capabilities, created_at FROM models WHERE id = $1`,
		id.String()).Scan(&idStr, &m.Name, &desc, &m.Family, &caps, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.ID = uuid.MustParse(idStr)
	m.Description = strOrEmpty(desc)
	m.Capabilities, err = fromJSONB[[]string](caps)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) ListModels(ctx context.Context) ([]Model, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, family, capabilities, created_at FROM models ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Model
	for rows.Next() {
		var m Model
		var idStr string
		var desc *string
		var caps []byte
		if err := rows.Scan(&idStr, &m.Name, &desc, &m.Family, &caps, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.ID = uuid.MustParse(idStr)
		m.Description = strOrEmpty(desc)
		m.Capabilities, err = fromJSONB[[]string](caps)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateModel(ctx context.Context, m *Model) error {
	caps, err := jsonbValue(m.Capabilities)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE models SET name = $1, description = $2, family = $3, capabilities = $4 WHERE id = $5`,
		m.Name, m.Description, m.Family, caps, m.ID.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.NewNotFoundError(fmt.Sprintf("model %s not found", m.ID))
	}
	return nil
}

func (s *PostgresStore) DeleteModel(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM models WHERE id = $1`, id.String())
	return err
}

func (s *PostgresStore) CreateImplementation(ctx context.Context, impl *ModelImplementation) error {
	if impl.ID == uuid.Nil {
		impl.ID = uuid.New()
	}
	if impl.CreatedAt.IsZero() {
		impl.CreatedAt = time.Now().UTC()
	}
	params, err := jsonbValue(impl.CustomParameters)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO model_implementations
			(id, provider_id, model_id, provider_model_id, version, context_window, is_available, custom_parameters, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		impl.ID.String(), impl.ProviderID.String(), impl.ModelID.String(), impl.ProviderModelID,
		impl.Version, impl.ContextWindow, impl.IsAvailable, params, impl.CreatedAt)
	return err
}

func (s *PostgresStore) scanImplementationRow(row pgx.Row) (*ModelImplementation, error) {
	var impl ModelImplementation
	var idStr, pidStr, midStr string
	var version *string
	var params []byte
	err := row.Scan(&idStr, &pidStr, &midStr, &impl.ProviderModelID, &version,
		&impl.ContextWindow, &impl.IsAvailable, &params, &impl.CreatedAt)
	if err != nil {
		return nil, err
	}
	impl.ID = uuid.MustParse(idStr)
	impl.ProviderID = uuid.MustParse(pidStr)
	impl.ModelID = uuid.MustParse(midStr)
	impl.Version = strOrEmpty(version)
	impl.CustomParameters, err = fromJSONB[core.Params](params)
	if err != nil {
		return nil, err
	}
	return &impl, nil
}

func (s *PostgresStore) GetImplementation(ctx context.Context, id uuid.UUID) (*ModelImplementation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, provider_id, model_id, provider_model_id, version, context_window, is_available, custom_parameters, created_at
		FROM model_implementations WHERE id = $1`, id.String())
	impl, err := s.scanImplementationRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return impl, err
}

func (s *PostgresStore) ListImplementations(ctx context.Context) ([]ModelImplementation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, provider_id, model_id, provider_model_id, version, context_window, is_available, custom_parameters, created_at
		FROM model_implementations ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModelImplementation
	for rows.Next() {
		impl, err := s.scanImplementationRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *impl)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateImplementation(ctx context.Context, impl *ModelImplementation) error {
	params, err := jsonbValue(impl.CustomParameters)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE model_implementations SET version = $1, context_window = $2, is_available = $3, custom_parameters = $4 WHERE id = $5`,
		impl.Version, impl.ContextWindow, impl.IsAvailable, params, impl.ID.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.NewNotFoundError(fmt.Sprintf("model implementation %s not found", impl.ID))
	}
	return nil
}

func (s *PostgresStore) DeleteImplementation(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM model_implementations WHERE id = $1`, id.String())
	return err
}

func (s *PostgresStore) CreateConversation(ctx context.Context, conv *Conversation) error {
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
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, title, system_prompt, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		conv.ID.String(), conv.Title, conv.SystemPrompt, conv.CreatedAt, conv.UpdatedAt)
	return err
}

func (s *PostgresStore) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	var c Conversation
	var idStr string
	var prompt *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, system_prompt, created_at, updated_at FROM conversations WHERE id = $1`,
		id.String()).Scan(&idStr, &c.Title, &prompt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.ID = uuid.MustParse(idStr)
	c.SystemPrompt = strOrEmpty(prompt)
	return &c, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, system_prompt, created_at, updated_at FROM conversations ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var idStr string
		var prompt *string
		if err := rows.Scan(&idStr, &c.Title, &prompt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.ID = uuid.MustParse(idStr)
		c.SystemPrompt = strOrEmpty(prompt)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateConversation(ctx context.Context, conv *Conversation) error {
	conv.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET title = $1, system_prompt = $2, updated_at = $3 WHERE id = $4`,
		conv.Title, conv.SystemPrompt, conv.UpdatedAt, conv.ID.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.NewNotFoundError(fmt.Sprintf("conversation %s not found", conv.ID))
	}
	return nil
}

func (s *PostgresStore) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id.String())
	return err
}

func (s *PostgresStore) CreateTurn(ctx context.Context, turn *ConversationTurn) error {
	if turn.ID == uuid.Nil {
		turn.ID = uuid.New()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	params, err := jsonbValue(turn.ModelParameters)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO conversation_turns (id, conversation_id, user_input, model_parameters, is_deleted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		turn.ID.String(), turn.ConversationID.String(), turn.UserInput, params, turn.IsDeleted, turn.CreatedAt)
	return err
}

func (s *PostgresStore) scanTurnRow(row pgx.Row) (*ConversationTurn, error) {
	var t ConversationTurn
	var idStr, cidStr string
	var params []byte
	var activeID *string
	err := row.Scan(&idStr, &cidStr, &t.UserInput, &params, &activeID, &t.IsDeleted, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.ID = uuid.MustParse(idStr)
	t.ConversationID = uuid.MustParse(cidStr)
	t.ModelParameters, err = fromJSONB[core.Params](params)
	if err != nil {
		return nil, err
	}
	if activeID != nil && *activeID != "" {
		id, err := uuid.Parse(*activeID)
		if err != nil {
			return nil, fmt.Errorf("invalid active_response_id: %w", err)
		}
		t.ActiveResponseID = &id
	}
	return &t, nil
}

func (s *PostgresStore) GetTurn(ctx context.Context, id uuid.UUID) (*ConversationTurn, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, conversation_id, user_input, model_parameters, active_response_id, is_deleted, created_at
		FROM conversation_turns WHERE id = $1`, id.String())
	turn, err := s.scanTurnRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return turn, err
}

func (s *PostgresStore) ListTurns(ctx context.Context, conversationID uuid.UUID) ([]ConversationTurn, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, user_input, model_parameters, active_response_id, is_deleted, created_at
		FROM conversation_turns WHERE conversation_id = $1 AND is_deleted = FALSE ORDER BY created_at, id`,
		conversationID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConversationTurn
	for rows.Next() {
		turn, err := s.scanTurnRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *turn)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveResponses(ctx context.Context, turnID uuid.UUID, responses []core.NormalizedResponse) ([]ModelResponse, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, core.NewPersistenceError("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	saved := make([]ModelResponse, 0, len(responses))
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
		meta, err := jsonbValue(rec.Metadata)
		if err != nil {
			return nil, core.NewPersistenceError("failed to encode response metadata", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO model_responses (id, turn_id, implementation_id, content, metadata, error, is_selected, is_deleted, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)`,
			rec.ID.String(), rec.TurnID.String(), rec.ImplementationID.String(), rec.Content,
			meta, rec.Error, rec.IsSelected, rec.CreatedAt); err != nil {
			return nil, core.NewPersistenceError("failed to insert model response", err)
		}
		saved = append(saved, rec)
	}

	if selected && len(saved) == 1 {
		if _, err := tx.Exec(ctx,
			`UPDATE conversation_turns SET active_response_id = $1 WHERE id = $2`,
			saved[0].ID.String(), turnID.String()); err != nil {
			return nil, core.NewPersistenceError("failed to set active response", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, core.NewPersistenceError("failed to commit response batch", err)
	}
	return saved, nil
}

func (s *PostgresStore) ListResponses(ctx context.Context, turnID uuid.UUID) ([]ModelResponse, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, turn_id, implementation_id, content, metadata, error, is_selected, is_deleted, created_at
		FROM model_responses WHERE turn_id = $1 ORDER BY created_at, id`, turnID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModelResponse
	for rows.Next() {
		var r ModelResponse
		var idStr, tidStr, iidStr string
		var meta []byte
		var errMsg *string
		if err := rows.Scan(&idStr, &tidStr, &iidStr, &r.Content, &meta, &errMsg, &r.IsSelected, &r.IsDeleted, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.ID = uuid.MustParse(idStr)
		r.TurnID = uuid.MustParse(tidStr)
		r.ImplementationID = uuid.MustParse(iidStr)
		r.Error = strOrEmpty(errMsg)
		r.Metadata, err = fromJSONB[map[string]any](meta)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SelectResponse(ctx context.Context, turnID, responseID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return core.NewPersistenceError("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	var exists int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(1) FROM model_responses WHERE id = $1 AND turn_id = $2`,
		responseID.String(), turnID.String()).Scan(&exists)
	if err != nil {
		return core.NewPersistenceError("failed to look up response", err)
	}
	if exists == 0 {
		return core.NewNotFoundError(fmt.Sprintf("response %s not found for turn %s", responseID, turnID))
	}

	if _, err := tx.Exec(ctx,
		`UPDATE model_responses SET is_selected = FALSE WHERE turn_id = $1`, turnID.String()); err != nil {
		return core.NewPersistenceError("failed to reset selection", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE model_responses SET is_selected = TRUE WHERE id = $1`, responseID.String()); err != nil {
		return core.NewPersistenceError("failed to select response", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE conversation_turns SET active_response_id = $1 WHERE id = $2`,
		responseID.String(), turnID.String()); err != nil {
		return core.NewPersistenceError("failed to set active response", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return core.NewPersistenceError("failed to commit selection", err)
	}
	return nil
}
