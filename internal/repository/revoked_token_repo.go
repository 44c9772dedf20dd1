package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RevokedTokenRepository is the Postgres backed revocation store. Rows are
// kept until the token would have expired anyway.
type RevokedTokenRepository struct {
	pool *pgxpool.Pool
}

func NewRevokedTokenRepository(pool *pgxpool.Pool) *RevokedTokenRepository {
	return &RevokedTokenRepository{pool: pool}
}

func (r *RevokedTokenRepository) Add(ctx context.Context, tokenID string, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO revoked_tokens (token_id, revoked_at, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (token_id) DO UPDATE SET expires_at = GREATEST(revoked_tokens.expires_at, EXCLUDED.expires_at)`,
		tokenID, time.Now().UTC(), expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// Claim inserts the token id unless a live row already exists. A stale row
// left behind for an expired token is taken over.
func (r *RevokedTokenRepository) Claim(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	now := time.Now().UTC()
	if !expiresAt.After(now) {
		return false, nil
	}

	tag, err := r.pool.Exec(ctx,
		`INSERT INTO revoked_tokens (token_id, revoked_at, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (token_id) DO UPDATE SET revoked_at = EXCLUDED.revoked_at, expires_at = EXCLUDED.expires_at
		 WHERE revoked_tokens.expires_at <= now()`,
		tokenID, now, expiresAt.UTC())
	if err != nil {
		return false, fmt.Errorf("claim token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RevokedTokenRepository) Contains(ctx context.Context, tokenID string) (bool, error) {
	var revoked bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE token_id = $1 AND expires_at > now())`,
		tokenID).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

func (r *RevokedTokenRepository) Prune(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("prune revoked tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
