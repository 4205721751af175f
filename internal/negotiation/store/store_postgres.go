package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"mandate/internal/negotiation"
	"mandate/pkg/sentinel"
)

// PostgresRequestStore persists negotiations in PostgreSQL.
type PostgresRequestStore struct {
	db *sql.DB
}

func NewPostgresRequests(db *sql.DB) *PostgresRequestStore {
	return &PostgresRequestStore{db: db}
}

func (s *PostgresRequestStore) Create(ctx context.Context, request *negotiation.Request) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO negotiations (id, consumer, slug, token, status, created_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		request.ID, request.Consumer, request.Slug, request.Token,
		request.Status, request.CreatedAt, request.EndedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("negotiation %s: %w", request.ID, sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert negotiation: %w", err)
	}
	return nil
}

func (s *PostgresRequestStore) FindByID(ctx context.Context, id string) (*negotiation.Request, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, consumer, slug, token, status, created_at, ended_at
		FROM negotiations WHERE id = $1`, id))
}

func (s *PostgresRequestStore) FindByToken(ctx context.Context, token string) (*negotiation.Request, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, consumer, slug, token, status, created_at, ended_at
		FROM negotiations WHERE token = $1 AND token <> ''`, token))
}

func (s *PostgresRequestStore) Update(ctx context.Context, request *negotiation.Request) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE negotiations
		SET consumer = $2, slug = $3, token = $4, status = $5, ended_at = $6
		WHERE id = $1`,
		request.ID, request.Consumer, request.Slug, request.Token,
		request.Status, request.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("update negotiation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update negotiation: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("negotiation not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresRequestStore) scanOne(row *sql.Row) (*negotiation.Request, error) {
	var request negotiation.Request
	err := row.Scan(&request.ID, &request.Consumer, &request.Slug, &request.Token,
		&request.Status, &request.CreatedAt, &request.EndedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("negotiation not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan negotiation: %w", err)
	}
	return &request, nil
}

// PostgresInteractionStore persists interactions in PostgreSQL.
type PostgresInteractionStore struct {
	db *sql.DB
}

func NewPostgresInteractions(db *sql.DB) *PostgresInteractionStore {
	return &PostgresInteractionStore{db: db}
}

func (s *PostgresInteractionStore) Create(ctx context.Context, interaction *negotiation.Interaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions (
			id, start_modes, finish_method, callback_uri, client_nonce, hash_method,
			grant_endpoint, continue_endpoint,
			continue_token, continue_id, as_nonce, interact_ref, hash, consumed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, FALSE)`,
		interaction.ID, pq.Array(interaction.Start), interaction.FinishMethod,
		interaction.CallbackURI, interaction.ClientNonce, interaction.HashMethod,
		interaction.GrantEndpoint, interaction.ContinueEndpoint,
		interaction.ContinueToken, interaction.ContinueID, interaction.ASNonce,
		interaction.InteractRef, interaction.Hash,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("interaction %s: %w", interaction.ID, sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

func (s *PostgresInteractionStore) FindByID(ctx context.Context, id string) (*negotiation.Interaction, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, start_modes, finish_method, callback_uri, client_nonce, hash_method,
			grant_endpoint, continue_endpoint,
			continue_token, continue_id, as_nonce, interact_ref, hash
		FROM interactions WHERE id = $1`, id))
}

// ConsumeContinuation retires the capability pair in one conditional UPDATE so
// concurrent presentations of the same pair race on the row and exactly one
// wins.
func (s *PostgresInteractionStore) ConsumeContinuation(ctx context.Context, interactRef, continueToken string) (*negotiation.Interaction, error) {
	interaction, err := s.scanOne(s.db.QueryRowContext(ctx, `
		UPDATE interactions SET consumed = TRUE
		WHERE interact_ref = $1 AND continue_token = $2 AND NOT consumed
		RETURNING id, start_modes, finish_method, callback_uri, client_nonce, hash_method,
			grant_endpoint, continue_endpoint,
			continue_token, continue_id, as_nonce, interact_ref, hash`,
		interactRef, continueToken))
	if errors.Is(err, sentinel.ErrNotFound) {
		// Distinguish replay from miss for the audit trail only; callers
		// surface both identically.
		var consumed bool
		probe := s.db.QueryRowContext(ctx,
			`SELECT consumed FROM interactions WHERE interact_ref = $1`, interactRef)
		if probeErr := probe.Scan(&consumed); probeErr == nil && consumed {
			return nil, fmt.Errorf("continuation: %w", sentinel.ErrAlreadyUsed)
		}
		return nil, fmt.Errorf("continuation: %w", sentinel.ErrNotFound)
	}
	return interaction, err
}

func (s *PostgresInteractionStore) scanOne(row *sql.Row) (*negotiation.Interaction, error) {
	var interaction negotiation.Interaction
	err := row.Scan(&interaction.ID, pq.Array(&interaction.Start), &interaction.FinishMethod,
		&interaction.CallbackURI, &interaction.ClientNonce, &interaction.HashMethod,
		&interaction.GrantEndpoint, &interaction.ContinueEndpoint,
		&interaction.ContinueToken, &interaction.ContinueID, &interaction.ASNonce,
		&interaction.InteractRef, &interaction.Hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("interaction not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan interaction: %w", err)
	}
	return &interaction, nil
}

// PostgresRequirementsStore persists granted scopes in PostgreSQL.
type PostgresRequirementsStore struct {
	db *sql.DB
}

func NewPostgresRequirements(db *sql.DB) *PostgresRequirementsStore {
	return &PostgresRequirementsStore{db: db}
}

func (s *PostgresRequirementsStore) Create(ctx context.Context, requirements *negotiation.TokenRequirements) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO token_requirements (
			id, type, actions, locations, datatypes, identifier, privileges, label, flags
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		requirements.ID, requirements.Type, pq.Array(requirements.Actions),
		pq.Array(requirements.Locations), pq.Array(requirements.Datatypes),
		requirements.Identifier, pq.Array(requirements.Privileges),
		requirements.Label, pq.Array(requirements.Flags),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("requirements %s: %w", requirements.ID, sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert requirements: %w", err)
	}
	return nil
}

func (s *PostgresRequirementsStore) FindByID(ctx context.Context, id string) (*negotiation.TokenRequirements, error) {
	var requirements negotiation.TokenRequirements
	err := s.db.QueryRowContext(ctx, `
		SELECT id, type, actions, locations, datatypes, identifier, privileges, label, flags
		FROM token_requirements WHERE id = $1`, id).
		Scan(&requirements.ID, &requirements.Type, pq.Array(&requirements.Actions),
			pq.Array(&requirements.Locations), pq.Array(&requirements.Datatypes),
			&requirements.Identifier, pq.Array(&requirements.Privileges),
			&requirements.Label, pq.Array(&requirements.Flags))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("requirements not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan requirements: %w", err)
	}
	return &requirements, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
