package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/codegate/internal/apperr"
	"github.com/dharsanguruparan/codegate/internal/model"
)

var artifactColumns = []string{"code", "file_id", "description", "kind", "uploaded_by", "created_at"}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestArtifactRepository_Insert(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	a := &model.Artifact{
		Code:        "AB12CD34",
		FileID:      "BAACAgQAAxkBAAIB",
		Description: "Summer demo reel",
		Kind:        model.KindVideo,
		UploadedBy:  42,
		CreatedAt:   now,
	}

	t.Run("success", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec("INSERT INTO artifacts").
			WithArgs(a.Code, a.FileID, a.Description, "video", a.UploadedBy, a.CreatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := NewArtifactRepository(db).Insert(ctx, a)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate code", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec("INSERT INTO artifacts").
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "artifacts_pkey"})

		err := NewArtifactRepository(db).Insert(ctx, a)

		assert.ErrorIs(t, err, ErrDuplicateCode)
		assert.NotErrorIs(t, err, apperr.ErrStorage)
	})

	t.Run("storage failure", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec("INSERT INTO artifacts").WillReturnError(errors.New("connection reset"))

		err := NewArtifactRepository(db).Insert(ctx, a)

		assert.ErrorIs(t, err, apperr.ErrStorage)
		assert.NotErrorIs(t, err, ErrDuplicateCode)
	})
}

func TestArtifactRepository_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		db, mock := newMock(t)
		rows := sqlmock.NewRows(artifactColumns).
			AddRow("AB12CD34", "file-1", "demo", "image", int64(7), time.Now())
		mock.ExpectQuery("SELECT (.+) FROM artifacts WHERE code").
			WithArgs("AB12CD34").
			WillReturnRows(rows)

		a, err := NewArtifactRepository(db).Get(ctx, "AB12CD34")

		require.NoError(t, err)
		assert.Equal(t, model.KindImage, a.Kind)
		assert.Equal(t, int64(7), a.UploadedBy)
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery("SELECT (.+) FROM artifacts WHERE code").
			WithArgs("ZZZZZZZZ").
			WillReturnError(sql.ErrNoRows)

		a, err := NewArtifactRepository(db).Get(ctx, "ZZZZZZZZ")

		assert.Nil(t, a)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		assert.NotErrorIs(t, err, apperr.ErrStorage)
	})

	t.Run("storage failure is not absence", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery("SELECT (.+) FROM artifacts WHERE code").
			WillReturnError(sql.ErrConnDone)

		_, err := NewArtifactRepository(db).Get(ctx, "AB12CD34")

		assert.ErrorIs(t, err, apperr.ErrStorage)
		assert.NotErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestArtifactRepository_RecentAndCount(t *testing.T) {
	ctx := context.Background()
	db, mock := newMock(t)
	repo := NewArtifactRepository(db)

	rows := sqlmock.NewRows(artifactColumns).
		AddRow("BBBBBBBB", "file-2", "second", "document", int64(1), time.Now()).
		AddRow("AAAAAAAA", "file-1", "first", "voice", int64(1), time.Now().Add(-time.Hour))
	mock.ExpectQuery("SELECT (.+) FROM artifacts ORDER BY created_at DESC").
		WithArgs(20).
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM artifacts").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	items, err := repo.Recent(ctx, 20)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "BBBBBBBB", items[0].Code)
	assert.Equal(t, model.KindVoice, items[1].Kind)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
