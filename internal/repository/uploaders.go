package repository

import (
	"context"

	"github.com/dharsanguruparan/codegate/internal/apperr"
	"github.com/dharsanguruparan/codegate/internal/model"
)

// UploaderRepository stores upload grants.
type UploaderRepository struct {
	db DBTX
}

// NewUploaderRepository constructs a repository.
func NewUploaderRepository(db DBTX) *UploaderRepository {
	return &UploaderRepository{db: db}
}

// Grant adds u unless the identity already holds a grant. It reports whether
// a new grant was written; an existing grant keeps its original grantor.
func (r *UploaderRepository) Grant(ctx context.Context, u model.AuthorizedUploader) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO authorized_uploaders (user_id, granted_by, granted_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (user_id) DO NOTHING
	`, u.UserID, u.GrantedBy, u.GrantedAt)
	if err != nil {
		return false, apperr.Storage("insert grant", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Storage("insert grant", err)
	}
	return n > 0, nil
}

// Revoke removes the grant and reports whether one existed.
func (r *UploaderRepository) Revoke(ctx context.Context, userID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM authorized_uploaders WHERE user_id=$1`, userID)
	if err != nil {
		return false, apperr.Storage("delete grant", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Storage("delete grant", err)
	}
	return n > 0, nil
}

// Exists reports whether userID holds a grant.
func (r *UploaderRepository) Exists(ctx context.Context, userID int64) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM authorized_uploaders WHERE user_id=$1)`, userID).Scan(&ok)
	if err != nil {
		return false, apperr.Storage("select grant", err)
	}
	return ok, nil
}

// List returns all grants, oldest first.
func (r *UploaderRepository) List(ctx context.Context) ([]model.AuthorizedUploader, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, granted_by, granted_at
		FROM authorized_uploaders
		ORDER BY granted_at, user_id
	`)
	if err != nil {
		return nil, apperr.Storage("list grants", err)
	}
	defer rows.Close()
	out := make([]model.AuthorizedUploader, 0)
	for rows.Next() {
		var u model.AuthorizedUploader
		if err := rows.Scan(&u.UserID, &u.GrantedBy, &u.GrantedAt); err != nil {
			return nil, apperr.Storage("scan grant", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("iterate grants", err)
	}
	return out, nil
}

// Count returns the number of grants, excluding the implicit owner.
func (r *UploaderRepository) Count(ctx context.Context) (int, error) {
	return count(ctx, r.db, "count grants", `SELECT COUNT(*) FROM authorized_uploaders`)
}
