// Package catalog maps access codes to stored artifacts.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/dharsanguruparan/codegate/internal/apperr"
	"github.com/dharsanguruparan/codegate/internal/codes"
	"github.com/dharsanguruparan/codegate/internal/model"
	"github.com/dharsanguruparan/codegate/internal/repository"
)

// MaxAttempts caps code draws per Put.
const MaxAttempts = 1000

// ErrCodeSpaceExhausted is returned when MaxAttempts draws all collided.
var ErrCodeSpaceExhausted = errors.New("could not find a free access code")

// Repository is the persistence contract for artifacts. Insert must fail with
// repository.ErrDuplicateCode when the code is taken.
type Repository interface {
	Insert(ctx context.Context, a *model.Artifact) error
	Get(ctx context.Context, code string) (*model.Artifact, error)
	Recent(ctx context.Context, limit int) ([]model.Artifact, error)
	All(ctx context.Context) ([]model.Artifact, error)
	Count(ctx context.Context) (int, error)
}

// Catalog is the artifact store.
type Catalog struct {
	repo    Repository
	logger  *slog.Logger
	newCode func() (string, error)
	now     func() time.Time
}

// Option customizes a Catalog.
type Option func(*Catalog)

// WithCodeSource replaces the random code generator.
func WithCodeSource(fn func() (string, error)) Option {
	return func(c *Catalog) { c.newCode = fn }
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option {
	return func(c *Catalog) { c.now = fn }
}

// New constructs a Catalog.
func New(repo Repository, logger *slog.Logger, opts ...Option) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Catalog{
		repo:    repo,
		logger:  logger.With(slog.String("component", "catalog")),
		newCode: codes.Generate,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ValidateDescription checks the staged description of an upload.
func ValidateDescription(description string) error {
	if description == "" {
		return fmt.Errorf("description is empty: %w", apperr.ErrValidation)
	}
	if n := utf8.RuneCountInString(description); n > model.MaxDescriptionLen {
		return fmt.Errorf("description has %d characters, max %d: %w", n, model.MaxDescriptionLen, apperr.ErrValidation)
	}
	return nil
}

// Put stores a new artifact under a freshly drawn code and returns the code.
func (c *Catalog) Put(ctx context.Context, description string, kind model.Kind, fileID string, uploader int64) (string, error) {
	if err := ValidateDescription(description); err != nil {
		return "", err
	}
	if !kind.Valid() {
		return "", fmt.Errorf("unsupported artifact kind %q: %w", kind, apperr.ErrValidation)
	}
	if fileID == "" {
		return "", fmt.Errorf("file handle is empty: %w", apperr.ErrValidation)
	}
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		code, err := c.newCode()
		if err != nil {
			return "", err
		}
		a := &model.Artifact{
			Code:        code,
			FileID:      fileID,
			Description: description,
			Kind:        kind,
			UploadedBy:  uploader,
			CreatedAt:   c.now().UTC(),
		}
		err = c.repo.Insert(ctx, a)
		if err == nil {
			c.logger.Info("artifact stored",
				slog.String("code", code),
				slog.String("kind", string(kind)),
				slog.Int64("uploader", uploader),
				slog.Int("attempts", attempt))
			return code, nil
		}
		if !errors.Is(err, repository.ErrDuplicateCode) {
			return "", fmt.Errorf("store artifact: %w", err)
		}
		c.logger.Debug("code collision", slog.String("code", code), slog.Int("attempt", attempt))
	}
	c.logger.Error("code space exhausted", slog.Int("attempts", MaxAttempts))
	return "", ErrCodeSpaceExhausted
}

// Get resolves a code. Unknown codes yield apperr.ErrNotFound; storage
// failures keep apperr.ErrStorage.
func (c *Catalog) Get(ctx context.Context, code string) (*model.Artifact, error) {
	if !codes.Valid(code) {
		return nil, fmt.Errorf("malformed code %q: %w", code, apperr.ErrValidation)
	}
	a, err := c.repo.Get(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", code, err)
	}
	return a, nil
}

// Recent returns the newest artifacts, at most limit of them.
func (c *Catalog) Recent(ctx context.Context, limit int) ([]model.Artifact, error) {
	if limit <= 0 {
		limit = 20
	}
	return c.repo.Recent(ctx, limit)
}

// All returns the whole catalog.
func (c *Catalog) All(ctx context.Context) ([]model.Artifact, error) {
	return c.repo.All(ctx)
}

// Count returns the catalog size.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	return c.repo.Count(ctx)
}
