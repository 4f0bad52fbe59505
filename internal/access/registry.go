// Package access decides who may create uploads.
package access

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dharsanguruparan/codegate/internal/apperr"
	"github.com/dharsanguruparan/codegate/internal/model"
)

// Repository persists upload grants.
type Repository interface {
	Grant(ctx context.Context, u model.AuthorizedUploader) (bool, error)
	Revoke(ctx context.Context, userID int64) (bool, error)
	Exists(ctx context.Context, userID int64) (bool, error)
	List(ctx context.Context) ([]model.AuthorizedUploader, error)
	Count(ctx context.Context) (int, error)
}

// Registry combines the configured owner with the stored grants.
type Registry struct {
	owner  int64
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewRegistry constructs a Registry for the given owner identity.
func NewRegistry(owner int64, repo Repository, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		owner:  owner,
		repo:   repo,
		logger: logger.With(slog.String("component", "access")),
		now:    time.Now,
	}
}

// Owner returns the configured owner identity.
func (r *Registry) Owner() int64 { return r.owner }

// IsOwner reports whether id is the owner.
func (r *Registry) IsOwner(id int64) bool { return id == r.owner }

// Grant authorizes id. Granting twice is not an error; granted reports
// whether this call changed anything.
func (r *Registry) Grant(ctx context.Context, id, grantor int64) (granted bool, err error) {
	if id <= 0 {
		return false, fmt.Errorf("invalid user id %d: %w", id, apperr.ErrValidation)
	}
	granted, err = r.repo.Grant(ctx, model.AuthorizedUploader{
		UserID:    id,
		GrantedBy: grantor,
		GrantedAt: r.now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("grant %d: %w", id, err)
	}
	r.logger.Info("upload grant", slog.Int64("user_id", id), slog.Int64("grantor", grantor), slog.Bool("new", granted))
	return granted, nil
}

// Revoke removes the grant of id and reports whether one existed.
func (r *Registry) Revoke(ctx context.Context, id int64) (wasPresent bool, err error) {
	wasPresent, err = r.repo.Revoke(ctx, id)
	if err != nil {
		return false, fmt.Errorf("revoke %d: %w", id, err)
	}
	r.logger.Info("upload revoke", slog.Int64("user_id", id), slog.Bool("was_present", wasPresent))
	return wasPresent, nil
}

// IsAuthorized is always true for the owner; otherwise it reflects the
// stored grants. A storage error denies and is returned alongside false.
func (r *Registry) IsAuthorized(ctx context.Context, id int64) (bool, error) {
	if r.IsOwner(id) {
		return true, nil
	}
	ok, err := r.repo.Exists(ctx, id)
	if err != nil {
		r.logger.Error("authorization lookup failed", slog.Int64("user_id", id), slog.Any("error", err))
		return false, fmt.Errorf("authorize %d: %w", id, err)
	}
	return ok, nil
}

// List returns the stored grants; the owner is not included.
func (r *Registry) List(ctx context.Context) ([]model.AuthorizedUploader, error) {
	return r.repo.List(ctx)
}

// Count returns the number of stored grants, excluding the owner.
func (r *Registry) Count(ctx context.Context) (int, error) {
	return r.repo.Count(ctx)
}
