package upload

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/codegate/internal/access"
	"github.com/dharsanguruparan/codegate/internal/catalog"
	"github.com/dharsanguruparan/codegate/internal/codes"
	"github.com/dharsanguruparan/codegate/internal/model"
	"github.com/dharsanguruparan/codegate/internal/storage"
)

const owner = int64(1)

type fixture struct {
	store    *storage.MemoryStore
	registry *access.Registry
	catalog  *catalog.Catalog
	manager  *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	registry := access.NewRegistry(owner, store.Uploaders(), nil)
	cat := catalog.New(store.Artifacts(), nil)
	return &fixture{
		store:    store,
		registry: registry,
		catalog:  cat,
		manager:  NewManager(cat, registry, nil),
	}
}

func TestUnauthorizedBeginChangesNothing(t *testing.T) {
	f := newFixture(t)

	res, err := f.manager.Begin(context.Background(), 99)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnauthorized, res.Outcome)
	assert.Equal(t, NoSession, f.manager.State(99))
}

func TestDescriptionLengthBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.manager.Begin(ctx, owner)
	require.NoError(t, err)

	res := f.manager.HandleText(ctx, owner, strings.Repeat("x", 51))
	assert.Equal(t, OutcomeDescriptionTooLong, res.Outcome)
	assert.Equal(t, AwaitingDescription, f.manager.State(owner))

	res = f.manager.HandleText(ctx, owner, strings.Repeat("x", 50))
	assert.Equal(t, OutcomeDescriptionAccepted, res.Outcome)
	assert.Equal(t, AwaitingArtifact, f.manager.State(owner))
}

func TestFullUploadCommits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.registry.Grant(ctx, 5, owner)
	require.NoError(t, err)

	res, err := f.manager.Begin(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStarted, res.Outcome)

	res = f.manager.HandleText(ctx, 5, "Summer demo reel")
	require.Equal(t, OutcomeDescriptionAccepted, res.Outcome)

	res = f.manager.HandleText(ctx, 5, "not a file")
	assert.Equal(t, OutcomeExpectedArtifact, res.Outcome)
	assert.Equal(t, AwaitingArtifact, f.manager.State(5))

	res, err = f.manager.HandleMedia(ctx, 5, Media{Kind: model.KindVideo, FileID: "BAACAgQ"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, res.Outcome)
	assert.True(t, codes.Valid(res.Code))
	assert.Equal(t, NoSession, f.manager.State(5))

	a, err := f.catalog.Get(ctx, res.Code)
	require.NoError(t, err)
	assert.Equal(t, "Summer demo reel", a.Description)
	assert.Equal(t, model.KindVideo, a.Kind)
	assert.Equal(t, int64(5), a.UploadedBy)
}

func TestBeginAgainDiscardsDescription(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, _ = f.manager.Begin(ctx, owner)
	f.manager.HandleText(ctx, owner, "first")
	require.Equal(t, AwaitingArtifact, f.manager.State(owner))

	res, err := f.manager.Begin(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStarted, res.Outcome)
	assert.Equal(t, AwaitingDescription, f.manager.State(owner))

	res, err = f.manager.HandleMedia(ctx, owner, Media{Kind: model.KindDocument, FileID: "x"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpectedDescription, res.Outcome)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.False(t, f.manager.Cancel(owner))
	_, _ = f.manager.Begin(ctx, owner)
	assert.True(t, f.manager.Cancel(owner))
	assert.Equal(t, NoSession, f.manager.State(owner))
	assert.Equal(t, OutcomeNoSession, f.manager.HandleText(ctx, owner, "hello").Outcome)
}

func TestStoreFailureKeepsSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, _ = f.manager.Begin(ctx, owner)
	f.manager.HandleText(ctx, owner, "doc")
	f.store.Fail = errors.New("db down")

	res, err := f.manager.HandleMedia(ctx, owner, Media{Kind: model.KindDocument, FileID: "x"})
	assert.Error(t, err)
	assert.Equal(t, AwaitingArtifact, res.State)
	assert.Equal(t, AwaitingArtifact, f.manager.State(owner))

	f.store.Fail = nil
	res, err = f.manager.HandleMedia(ctx, owner, Media{Kind: model.KindDocument, FileID: "x"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCommitted, res.Outcome)
}

func TestSessionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for id := int64(2); id <= 11; id++ {
		_, err := f.registry.Grant(ctx, id, owner)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	results := make([]Result, 12)
	for id := int64(2); id <= 11; id++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, _ = f.manager.Begin(ctx, id)
			f.manager.HandleText(ctx, id, "upload")
			results[id], _ = f.manager.HandleMedia(ctx, id, Media{Kind: model.KindAudio, FileID: "f"})
		}(id)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for id := 2; id <= 11; id++ {
		assert.Equal(t, OutcomeCommitted, results[id].Outcome)
		assert.False(t, seen[results[id].Code])
		seen[results[id].Code] = true
	}
}
