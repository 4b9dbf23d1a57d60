package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"multichat/internal/core"
)

// SQLiteStore implements Store for SQLite databases.
type SQLiteStore struct {
	db *sql.DB
}

// sqliteSchema creates all tables. Responses keep no foreign key on
// implementation_id: a dispatch batch records one row per requested
// implementation even when the id never existed.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS providers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		base_url TEXT NOT NULL,
		description TEXT,
		wire_family TEXT NOT NULL DEFAULT 'openai',
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		provider_id TEXT NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
		alias TEXT NOT NULL,
		key TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS models (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		family TEXT NOT NULL,
		capabilities TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS model_implementations (
		id TEXT PRIMARY KEY,
		provider_id TEXT NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
		model_id TEXT NOT NULL REFERENCES models(id) ON DELETE CASCADE,
		provider_model_id TEXT NOT NULL,
		version TEXT,
		context_window INTEGER DEFAULT 0,
		is_available INTEGER NOT NULL DEFAULT 1,
		custom_parameters TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		system_prompt TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS conversation_turns (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		user_input TEXT NOT NULL,
		model_parameters TEXT,
		active_response_id TEXT,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS model_responses (
		id TEXT PRIMARY KEY,
		turn_id TEXT NOT NULL REFERENCES conversation_turns(id) ON DELETE CASCADE,
		implementation_id TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT,
		error TEXT,
		is_selected INTEGER NOT NULL DEFAULT 0,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_api_keys_provider ON api_keys(provider_id)`,
	`CREATE INDEX IF NOT EXISTS idx_impl_provider ON model_implementations(provider_id)`,
	`CREATE INDEX IF NOT EXISTS idx_turns_conversation ON conversation_turns(conversation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_responses_turn ON model_responses(turn_id)`,
}

// NewSQLiteStore creates a SQLite-backed store and runs schema migration.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to run schema migration: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// marshalJSON renders v as a JSON column value, NULL for empty input.
func marshalJSON(v any) (any, error) {
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
		return nil, fmt.Errorf("failed to marshal JSON column: %w", err)
	}
	return string(data), nil
}

func unmarshalJSON[T any](raw sql.NullString) (T, error) {
	var out T
	if !raw.Valid || raw.String == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return out, fmt.Errorf("failed to unmarshal JSON column: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) CreateProvider(ctx context.Context, p *Provider) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.WireFamily == "" {
		p.WireFamily = FamilyOpenAI
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO providers (id, name, base_url, description, wire_family, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.Name, p.BaseURL, p.Description, p.WireFamily, p.CreatedAt)
	return err
}

func (s *SQLiteStore) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, base_url, description, wire_family, created_at FROM providers WHERE id = ?`, id.String())
	return scanProvider(row)
}

func scanProvider(row *sql.Row) (*Provider, error) {
	var p Provider
	var idStr string
	var desc sql.NullString
	if err := row.Scan(&idStr, &p.Name, &p.BaseURL, &desc, &p.WireFamily, &p.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	p.ID = uuid.MustParse(idStr)
	p.Description = desc.String
	return &p, nil
}

func (s *SQLiteStore) ListProviders(ctx context.Context) ([]Provider, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, base_url, description, wire_family, created_at FROM providers ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Provider
	for rows.Next() {
		var p Provider
		var idStr string
		var desc sql.NullString
		if err := rows.Scan(&idStr, &p.Name, &p.BaseURL, &desc, &p.WireFamily, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.ID = uuid.MustParse(idStr)
		p.Description = desc.String
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateProvider(ctx context.Context, p *Provider) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE providers SET name = ?, base_url = ?, description = ?, wire_family = ? WHERE id = ?`,
		p.Name, p.BaseURL, p.Description, p.WireFamily, p.ID.String())
	if err != nil {
		return err
	}
	return rowUpdated(res, "provider", p.ID)
}

func (s *SQLiteStore) DeleteProvider(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM providers WHERE id = ?`, id.String())
	return err
}

func (s *SQLiteStore) CreateAPIKey(ctx context.Context, k *APIKey) error {
	if k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, provider_id, alias, key, created_at) VALUES (?, ?, ?, ?, ?)`,
		k.ID.String(), k.ProviderID.String(), k.Alias, k.Key, k.CreatedAt)
	return err
}

func (s *SQLiteStore) ListAPIKeys(ctx context.Context, providerID uuid.UUID) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, provider_id, alias, key, created_at FROM api_keys WHERE provider_id = ? ORDER BY created_at, id`,
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

func (s *SQLiteStore) DeleteAPIKey(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id.String())
	return err
}

func (s *SQLiteStore) CreateModel(ctx context.Context, m *Model) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	caps, err := marshalJSON(m.Capabilities)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO models (id, name, description, family, capabilities, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID.String(), m.Name, m.Description, m.Family, caps, m.CreatedAt)
	return err
}

func (s *SQLiteStore) GetModel(ctx context.Context, id uuid.UUID) (*Model, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, family, capabilities, created_at FROM models WHERE id = ?`, id.String())
	var m Model
	var idStr string
	var desc, caps sql.NullString
	if err := row.Scan(&idStr, &m.Name, &desc, &m.Family, &caps, &m.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	m.ID = uuid.MustParse(idStr)
	m.Description = desc.String
	capabilities, err := unmarshalJSON[[]string](caps)
	if err != nil {
		return nil, err
	}
	m.Capabilities = capabilities
	return &m, nil
}

func (s *SQLiteStore) ListModels(ctx context.Context) ([]Model, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, family, capabilities, created_at FROM models ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Model
	for rows.Next() {
		var m Model
		var idStr string
		var desc, caps sql.NullString
		if err := rows.Scan(&idStr, &m.Name, &desc, &m.Family, &caps, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.ID = uuid.MustParse(idStr)
		m.Description = desc.String
		capabilities, err := unmarshalJSON[[]string](caps)
		if err != nil {
			return nil, err
		}
		m.Capabilities = capabilities
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateModel(ctx context.Context, m *Model) error {
	caps, err := marshalJSON(m.Capabilities)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE models SET name = ?, description = ?, family = ?, capabilities = ? WHERE id = ?`,
		m.Name, m.Description, m.Family, caps, m.ID.String())
	if err != nil {
		return err
	}
	return rowUpdated(res, "model", m.ID)
}

func (s *SQLiteStore) DeleteModel(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM models WHERE id = ?`, id.String())
	return err
}

func (s *SQLiteStore) CreateImplementation(ctx context.Context, impl *ModelImplementation) error {
	if impl.ID == uuid.Nil {
		impl.ID = uuid.New()
	}
	if impl.CreatedAt.IsZero() {
		impl.CreatedAt = time.Now().UTC()
	}
	params, err := marshalJSON(impl.CustomParameters)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO model_implementations
			(id, provider_id, model_id, provider_model_id, version, context_window, is_available, custom_parameters, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		impl.ID.String(), impl.ProviderID.String(), impl.ModelID.String(), impl.ProviderModelID,
		impl.Version, impl.ContextWindow, boolToInt(impl.IsAvailable), params, impl.CreatedAt)
	return err
}

func (s *SQLiteStore) GetImplementation(ctx context.Context, id uuid.UUID) (*ModelImplementation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, provider_id, model_id, provider_model_id, version, context_window, is_available, custom_parameters, created_at
		FROM model_implementations WHERE id = ?`, id.String())
	impl, err := scanImplementation(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return impl, err
}

func scanImplementation(scan func(...any) error) (*ModelImplementation, error) {
	var impl ModelImplementation
	var idStr, pidStr, midStr string
	var version, params sql.NullString
	var available int
	if err := scan(&idStr, &pidStr, &midStr, &impl.ProviderModelID, &version,
		&impl.ContextWindow, &available, &params, &impl.CreatedAt); err != nil {
		return nil, err
	}
	impl.ID = uuid.MustParse(idStr)
	impl.ProviderID = uuid.MustParse(pidStr)
	impl.ModelID = uuid.MustParse(midStr)
	impl.Version = version.String
	impl.IsAvailable = available != 0
	custom, err := unmarshalJSON[core.Params](params)
	if err != nil {
		return nil, err
	}
	impl.CustomParameters = custom
	return &impl, nil
}

func (s *SQLiteStore) ListImplementations(ctx context.Context) ([]ModelImplementation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, provider_id, model_id, provider_model_id, version, context_window, is_available, custom_parameters, created_at
		FROM model_implementations ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModelImplementation
	for rows.Next() {
		impl, err := scanImplementation(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *impl)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateImplementation(ctx context.Context, impl *ModelImplementation) error {
	params, err := marshalJSON(impl.CustomParameters)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE model_implementations SET version = ?, context_window = ?, is_available = ?, custom_parameters = ? WHERE id = ?`,
		impl.Version, impl.ContextWindow, boolToInt(impl.IsAvailable), params, impl.ID.String())
	if err != nil {
		return err
	}
	return rowUpdated(res, "model implementation", impl.ID)
}

func (s *SQLiteStore) DeleteImplementation(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM model_implementations WHERE id = ?`, id.String())
	return err
}

func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, title, system_prompt, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		conv.ID.String(), conv.Title, conv.SystemPrompt, conv.CreatedAt, conv.UpdatedAt)
	return err
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, system_prompt, created_at, updated_at FROM conversations WHERE id = ?`, id.String())
	var c Conversation
	var idStr string
	var prompt sql.NullString
	if err := row.Scan(&idStr, &c.Title, &prompt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	c.ID = uuid.MustParse(idStr)
	c.SystemPrompt = prompt.String
	return &c, nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, system_prompt, created_at, updated_at FROM conversations ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var idStr string
		var prompt sql.NullString
		if err := rows.Scan(&idStr, &c.Title, &prompt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.ID = uuid.MustParse(idStr)
		c.SystemPrompt = prompt.String
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateConversation(ctx context.Context, conv *Conversation) error {
	conv.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, system_prompt = ?, updated_at = ? WHERE id = ?`,
		conv.Title, conv.SystemPrompt, conv.UpdatedAt, conv.ID.String())
	if err != nil {
		return err
	}
	return rowUpdated(res, "conversation", conv.ID)
}

func (s *SQLiteStore) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id.String())
	return err
}

func (s *SQLiteStore) CreateTurn(ctx context.Context, turn *ConversationTurn) error {
	if turn.ID == uuid.Nil {
		turn.ID = uuid.New()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	params, err := marshalJSON(turn.ModelParameters)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_turns (id, conversation_id, user_input, model_parameters, is_deleted, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		turn.ID.String(), turn.ConversationID.String(), turn.UserInput, params, boolToInt(turn.IsDeleted), turn.CreatedAt)
	return err
}

func (s *SQLiteStore) GetTurn(ctx context.Context, id uuid.UUID) (*ConversationTurn, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, user_input, model_parameters, active_response_id, is_deleted, created_at
		FROM conversation_turns WHERE id = ?`, id.String())
	turn, err := scanTurn(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return turn, err
}

func scanTurn(scan func(...any) error) (*ConversationTurn, error) {
	var t ConversationTurn
	var idStr, cidStr string
	var params, activeID sql.NullString
	var deleted int
	if err := scan(&idStr, &cidStr, &t.UserInput, &params, &activeID, &deleted, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.ID = uuid.MustParse(idStr)
	t.ConversationID = uuid.MustParse(cidStr)
	t.IsDeleted = deleted != 0
	modelParams, err := unmarshalJSON[core.Params](params)
	if err != nil {
		return nil, err
	}
	t.ModelParameters = modelParams
	if activeID.Valid && activeID.String != "" {
		id, err := uuid.Parse(activeID.String)
		if err != nil {
			return nil, fmt.Errorf("invalid active_response_id: %w", err)
		}
		t.ActiveResponseID = &id
	}
	return &t, nil
}

func (s *SQLiteStore) ListTurns(ctx context.Context, conversationID uuid.UUID) ([]ConversationTurn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, user_input, model_parameters, active_response_id, is_deleted, created_at
		FROM conversation_turns WHERE conversation_id = ? AND is_deleted = 0 ORDER BY created_at, id`,
		conversationID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConversationTurn
	for rows.Next() {
		turn, err := scanTurn(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *turn)
	}
	return out, rows.Err()
}

// SaveResponses writes the whole batch inside one transaction so a partial
// batch is never visible.
func (s *SQLiteStore) SaveResponses(ctx context.Context, turnID uuid.UUID, responses []core.NormalizedResponse) ([]ModelResponse, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, core.NewPersistenceError("failed to begin transaction", err)
	}
	defer tx.Rollback()

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
		meta, err := marshalJSON(rec.Metadata)
		if err != nil {
			return nil, core.NewPersistenceError("failed to encode response metadata", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO model_responses (id, turn_id, implementation_id, content, metadata, error, is_selected, is_deleted, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
			rec.ID.String(), rec.TurnID.String(), rec.ImplementationID.String(), rec.Content,
			meta, rec.Error, boolToInt(rec.IsSelected), rec.CreatedAt); err != nil {
			return nil, core.NewPersistenceError("failed to insert model response", err)
		}
		saved = append(saved, rec)
	}

	if selected && len(saved) == 1 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE conversation_turns SET active_response_id = ? WHERE id = ?`,
			saved[0].ID.String(), turnID.String()); err != nil {
			return nil, core.NewPersistenceError("failed to set active response", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, core.NewPersistenceError("failed to commit response batch", err)
	}
	return saved, nil
}

func (s *SQLiteStore) ListResponses(ctx context.Context, turnID uuid.UUID) ([]ModelResponse, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, turn_id, implementation_id, content, metadata, error, is_selected, is_deleted, created_at
		FROM model_responses WHERE turn_id = ? ORDER BY created_at, id`, turnID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModelResponse
	for rows.Next() {
		var r ModelResponse
		var idStr, tidStr, iidStr string
		var meta, errMsg sql.NullString
		var selected, deleted int
		if err := rows.Scan(&idStr, &tidStr, &iidStr, &r.Content, &meta, &errMsg, &selected, &deleted, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.ID = uuid.MustParse(idStr)
		r.TurnID = uuid.MustParse(tidStr)
		r.ImplementationID = uuid.MustParse(iidStr)
		r.Error = errMsg.String
		r.IsSelected = selected != 0
		r.IsDeleted = deleted != 0
		metadata, err := unmarshalJSON[map[string]any](meta)
		if err != nil {
			return nil, err
		}
		r.Metadata = metadata
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SelectResponse(ctx context.Context, turnID, responseID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.NewPersistenceError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM model_responses WHERE id = ? AND turn_id = ?`,
		responseID.String(), turnID.String()).Scan(&exists)
	if err != nil {
		return core.NewPersistenceError("failed to look up response", err)
	}
	if exists == 0 {
		return core.NewNotFoundError(fmt.Sprintf("response %s not found for turn %s", responseID, turnID))
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE model_responses SET is_selected = 0 WHERE turn_id = ?`, turnID.String()); err != nil {
		return core.NewPersistenceError("failed to reset selection", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE model_responses SET is_selected = 1 WHERE id = ?`, responseID.String()); err != nil {
		return core.NewPersistenceError("failed to select response", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversation_turns SET active_response_id = ? WHERE id = ?`,
		responseID.String(), turnID.String()); err != nil {
		return core.NewPersistenceError("failed to set active response", err)
	}

	if err := tx.Commit(); err != nil {
		return core.NewPersistenceError("failed to commit selection", err)
	}
	return nil
}

func rowUpdated(res sql.Result, what string, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.NewNotFoundError(fmt.Sprintf("%s %s not found", what, id))
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
