package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/burgershop/order-service/internal/domain/auth"
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository provides API key lookups backed by PostgreSQL.
type APIKeyRepository struct {
	db DB
}

// NewAPIKeyRepository returns an APIKeyRepository that uses db.
func NewAPIKeyRepository(db DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// FindByHash looks up an active API key by its HMAC-SHA256 hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var (
		info auth.APIKeyInfo
		role string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, key_hash, name, user_id, role
		FROM api_keys
		WHERE key_hash = $1 AND active`, hash,
	).Scan(&info.ID, &info.KeyHash, &info.Name, &info.UserID, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrKeyNotFound
		}
		return nil, errors.Wrap(err, "find api key by hash")
	}
	info.Role = auth.Role(role)
	return &info, nil
}

// Upsert stores info, replacing the owner and role of an existing key.
func (r *APIKeyRepository) Upsert(ctx context.Context, info auth.APIKeyInfo) error {
	if _, err := r.db.Exec(ctx, `
		INSERT INTO api_keys (id, key_hash, name, user_id, role)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key_hash) DO UPDATE
		SET name = EXCLUDED.name, user_id = EXCLUDED.user_id, role = EXCLUDED.role, active = TRUE`,
		info.ID, info.KeyHash, info.Name, info.UserID, string(info.Role),
	); err != nil {
		return errors.Wrapf(err, "upsert api key %q", info.Name)
	}
	return nil
}
