package repository

import (
	"context"

	"github.com/dharsanguruparan/codegate/internal/apperr"
	"github.com/dharsanguruparan/codegate/internal/model"
)

// UserRepository records every identity that interacted with the bot.
type UserRepository struct {
	db DBTX
}

// NewUserRepository constructs a repository.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Touch inserts the identity on first sight and refreshes its display fields
// afterwards. FirstSeen is never overwritten.
func (r *UserRepository) Touch(ctx context.Context, id model.Identity) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (user_id, first_name, username, first_seen)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (user_id) DO UPDATE
		SET first_name = EXCLUDED.first_name, username = EXCLUDED.username
	`, id.ID, id.FirstName, id.Username, id.FirstSeen)
	if err != nil {
		return apperr.Storage("upsert user", err)
	}
	return nil
}

// Count returns the number of known identities.
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	return count(ctx, r.db, "count users", `SELECT COUNT(*) FROM users`)
}

// IDs returns every known identity, oldest first.
func (r *UserRepository) IDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM users ORDER BY first_seen, user_id`)
	if err != nil {
		return nil, apperr.Storage("list users", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Storage("scan user", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("iterate users", err)
	}
	return ids, nil
}
