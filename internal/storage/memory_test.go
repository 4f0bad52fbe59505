package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/codegate/internal/apperr"
	"github.com/dharsanguruparan/codegate/internal/model"
	"github.com/dharsanguruparan/codegate/internal/repository"
)

func TestArtifactTableRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	artifacts := NewMemoryStore().Artifacts()

	a := &model.Artifact{Code: "AAAA1111", FileID: "f", Kind: model.KindDocument}
	require.NoError(t, artifacts.Insert(ctx, a))
	assert.ErrorIs(t, artifacts.Insert(ctx, a), repository.ErrDuplicateCode)

	_, err := artifacts.Get(ctx, "BBBB2222")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUserTableKeepsFirstSeen(t *testing.T) {
	ctx := context.Background()
	users := NewMemoryStore().Users()
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, users.Touch(ctx, model.Identity{ID: 1, FirstName: "Old", FirstSeen: first}))
	require.NoError(t, users.Touch(ctx, model.Identity{ID: 1, FirstName: "New", FirstSeen: first.Add(time.Hour)}))

	u, ok := users.Get(1)
	require.True(t, ok)
	assert.Equal(t, "New", u.FirstName)
	assert.Equal(t, first, u.FirstSeen)
}

func TestObligationClaimOnce(t *testing.T) {
	ctx := context.Background()
	obligations := NewMemoryStore().Obligations()
	now := time.Now()

	require.NoError(t, obligations.Create(ctx, &model.DeliveryObligation{ID: "o1", DeleteAt: now}))

	_, err := obligations.Claim(ctx, "o1", now)
	require.NoError(t, err)
	_, err = obligations.Claim(ctx, "o1", now)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	pending, err := obligations.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFailSurfacesAsStorageError(t *testing.T) {
	store := NewMemoryStore()
	store.Fail = errors.New("disk full")

	_, err := store.Artifacts().Get(context.Background(), "AAAA1111")
	assert.ErrorIs(t, err, apperr.ErrStorage)
	assert.NotErrorIs(t, err, apperr.ErrNotFound)
}
