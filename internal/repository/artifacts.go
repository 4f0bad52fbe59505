package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dharsanguruparan/codegate/internal/apperr"
	"github.com/dharsanguruparan/codegate/internal/model"
)

// ArtifactRepository stores the code catalog.
type ArtifactRepository struct {
	db DBTX
}

// NewArtifactRepository constructs a repository.
func NewArtifactRepository(db DBTX) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// Insert writes a new artifact. The primary key on code is the only
// uniqueness guard; a conflict yields ErrDuplicateCode.
func (r *ArtifactRepository) Insert(ctx context.Context, a *model.Artifact) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO artifacts (code, file_id, description, kind, uploaded_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, a.Code, a.FileID, a.Description, string(a.Kind), a.UploadedBy, a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert artifact %s: %w", a.Code, ErrDuplicateCode)
		}
		return apperr.Storage("insert artifact", err)
	}
	return nil
}

// Get returns the artifact for code.
func (r *ArtifactRepository) Get(ctx context.Context, code string) (*model.Artifact, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT code, file_id, description, kind, uploaded_by, created_at
		FROM artifacts WHERE code=$1
	`, code)
	a, err := scanArtifact(row)
	if err != nil {
		return nil, notFoundOr("select artifact", err)
	}
	return a, nil
}

// Recent returns the newest artifacts first.
func (r *ArtifactRepository) Recent(ctx context.Context, limit int) ([]model.Artifact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT code, file_id, description, kind, uploaded_by, created_at
		FROM artifacts
		ORDER BY created_at DESC, code
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apperr.Storage("list artifacts", err)
	}
	return collectArtifacts(rows)
}

// All returns the full catalog ordered by creation time.
func (r *ArtifactRepository) All(ctx context.Context) ([]model.Artifact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT code, file_id, description, kind, uploaded_by, created_at
		FROM artifacts
		ORDER BY created_at, code
	`)
	if err != nil {
		return nil, apperr.Storage("list artifacts", err)
	}
	return collectArtifacts(rows)
}

// Count returns the number of stored artifacts.
func (r *ArtifactRepository) Count(ctx context.Context) (int, error) {
	return count(ctx, r.db, "count artifacts", `SELECT COUNT(*) FROM artifacts`)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArtifact(s scanner) (*model.Artifact, error) {
	var (
		a    model.Artifact
		kind string
	)
	if err := s.Scan(&a.Code, &a.FileID, &a.Description, &kind, &a.UploadedBy, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Kind = model.Kind(kind)
	return &a, nil
}

func collectArtifacts(rows *sql.Rows) ([]model.Artifact, error) {
	defer rows.Close()
	out := make([]model.Artifact, 0)
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, apperr.Storage("scan artifact", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("iterate artifacts", err)
	}
	return out, nil
}
