package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cinequiz/apiserver/types"
	"github.com/samber/oops"
)

// RevokedTokenRepository persists the refresh token revocation set.
type RevokedTokenRepository struct {
	db *sql.DB
}

func NewRevokedTokenRepository(db *sql.DB) *RevokedTokenRepository {
	return &RevokedTokenRepository{db: db}
}

// Revoke adds a token id to the set. Revoking an id twice is a no-op.
func (r *RevokedTokenRepository) Revoke(ctx context.Context, token types.RevokedToken) error {
	if token.RevokedAt.IsZero() {
		token.RevokedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO revoked_tokens (token_id, user_id, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, token.TokenID, token.UserID, token.ExpiresAt, token.RevokedAt); err != nil {
		return oops.Code("REVOKED_TOKEN_INSERT_FAILED").
			With("token_id", token.TokenID).
			Wrap(err)
	}
	return nil
}

// IsRevoked reports whether the token id is in the set.
func (r *RevokedTokenRepository) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_id = $1)`
	var revoked bool
	if err := r.db.QueryRowContext(ctx, query, tokenID).Scan(&revoked); err != nil {
		return false, oops.Code("REVOKED_TOKEN_LOOKUP_FAILED").
			With("token_id", tokenID).
			Wrap(err)
	}
	return revoked, nil
}

// PurgeExpired deletes entries whose token has expired by now. Expired
// tokens are rejected on their own, so their entries are dead weight.
func (r *RevokedTokenRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM revoked_tokens WHERE expires_at < $1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, oops.Code("REVOKED_TOKEN_PURGE_FAILED").Wrap(err)
	}
	return result.RowsAffected()
}
