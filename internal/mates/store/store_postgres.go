package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mandate/internal/mates"
	"mandate/pkg/sentinel"
)

// PostgresStore persists trust registry entries in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed mates store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Upsert(ctx context.Context, mate *mates.Mate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mates (id, slug, type, base_url, token, is_me, saved_at, last_interaction)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			slug = EXCLUDED.slug,
			type = EXCLUDED.type,
			base_url = EXCLUDED.base_url,
			token = EXCLUDED.token,
			last_interaction = EXCLUDED.last_interaction`,
		mate.ID, mate.Slug, mate.Type, mate.BaseURL, mate.Token, mate.IsMe, mate.SavedAt, mate.LastInteraction,
	)
	if err != nil {
		return fmt.Errorf("upsert mate: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*mates.Mate, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, slug, type, base_url, token, is_me, saved_at, last_interaction
		FROM mates WHERE id = $1`, id))
}

func (s *PostgresStore) FindByToken(ctx context.Context, token string) (*mates.Mate, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		SELECT id, slug, type, base_url, token, is_me, saved_at, last_interaction
		FROM mates WHERE token = $1`, token))
}

func (s *PostgresStore) List(ctx context.Context) ([]*mates.Mate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, slug, type, base_url, token, is_me, saved_at, last_interaction
		FROM mates ORDER BY saved_at`)
	if err != nil {
		return nil, fmt.Errorf("list mates: %w", err)
	}
	defer rows.Close()

	var out []*mates.Mate
	for rows.Next() {
		var mate mates.Mate
		if err := rows.Scan(&mate.ID, &mate.Slug, &mate.Type, &mate.BaseURL,
			&mate.Token, &mate.IsMe, &mate.SavedAt, &mate.LastInteraction); err != nil {
			return nil, fmt.Errorf("scan mate: %w", err)
		}
		out = append(out, &mate)
	}
	return out, rows.Err()
}

func (s *PostgresStore) scanOne(row *sql.Row) (*mates.Mate, error) {
	var mate mates.Mate
	err := row.Scan(&mate.ID, &mate.Slug, &mate.Type, &mate.BaseURL,
		&mate.Token, &mate.IsMe, &mate.SavedAt, &mate.LastInteraction)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mate not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan mate: %w", err)
	}
	return &mate, nil
}
