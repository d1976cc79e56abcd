package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"contractdesk/cloudsign"
)

// Repository stores the CloudSign configuration singleton in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns the current configuration, or ErrNotFound when none was saved.
func (r *Repository) Get(ctx context.Context) (CloudSignConfig, error) {
	const query = `
		SELECT client_id, api_base_url, updated_at
		FROM cloudsign_config
		WHERE id = 1
	`

	var cfg CloudSignConfig
	err := r.pool.QueryRow(ctx, query).Scan(&cfg.ClientID, &cfg.BaseURL, &cfg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CloudSignConfig{}, ErrNotFound
		}
		return CloudSignConfig{}, fmt.Errorf("settings: get config: %w", err)
	}
	return cfg, nil
}

// Upsert writes the configuration. The table is constrained to a single row,
// so repeated saves update in place.
func (r *Repository) Upsert(ctx context.Context, clientID, baseURL string) (CloudSignConfig, error) {
	clientID = strings.TrimSpace(clientID)
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if clientID == "" || baseURL == "" {
		return CloudSignConfig{}, fmt.Errorf("settings: client id and base url required")
	}

	const query = `
		INSERT INTO cloudsign_config (id, client_id, api_base_url, updated_at)
		VALUES (1, $1, $2, now())
		ON CONFLICT (id) DO UPDATE
		SET client_id = EXCLUDED.client_id,
		    api_base_url = EXCLUDED.api_base_url,
		    updated_at = now()
		RETURNING client_id, api_base_url, updated_at
	`

	var cfg CloudSignConfig
	if err := r.pool.QueryRow(ctx, query, clientID, baseURL).Scan(&cfg.ClientID, &cfg.BaseURL, &cfg.UpdatedAt); err != nil {
		return CloudSignConfig{}, fmt.Errorf("settings: upsert config: %w", err)
	}
	return cfg, nil
}

// Delete removes the configuration. Deleting when none exists returns
// ErrNotFound so callers can report it.
func (r *Repository) Delete(ctx context.Context) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM cloudsign_config WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("settings: delete config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Credentials implements cloudsign.CredentialSource on top of the stored
// configuration.
func (r *Repository) Credentials(ctx context.Context) (cloudsign.Credentials, error) {
	cfg, err := r.Get(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return cloudsign.Credentials{}, cloudsign.ErrNotConfigured
		}
		return cloudsign.Credentials{}, err
	}
	return cloudsign.Credentials{ClientID: cfg.ClientID, BaseURL: cfg.BaseURL}, nil
}

var _ cloudsign.CredentialSource = (*Repository)(nil)
