// Package storage contains an in-memory implementation of every store the bot
// uses. It mirrors the PostgreSQL repositories closely enough to back service
// tests and local experiments.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dharsanguruparan/codegate/internal/apperr"
	"github.com/dharsanguruparan/codegate/internal/model"
	"github.com/dharsanguruparan/codegate/internal/repository"
)

// MemoryStore guards all tables with a single RWMutex.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[int64]model.Identity
	uploaders   map[int64]model.AuthorizedUploader
	artifacts   map[string]model.Artifact
	obligations map[string]model.DeliveryObligation

	// ArtifactReads counts Get calls so tests can assert a path never
	// consulted the catalog.
	ArtifactReads int
	// Fail, when set, is returned by every method as a storage failure.
	Fail error
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[int64]model.Identity),
		uploaders:   make(map[int64]model.AuthorizedUploader),
		artifacts:   make(map[string]model.Artifact),
		obligations: make(map[string]model.DeliveryObligation),
	}
}

func (m *MemoryStore) failure(op string) error {
	if m.Fail != nil {
		return apperr.Storage(op, m.Fail)
	}
	return nil
}

// Artifacts returns a view satisfying the catalog repository contract.
func (m *MemoryStore) Artifacts() *ArtifactTable { return &ArtifactTable{m} }

// Users returns a view satisfying the identity repository contract.
func (m *MemoryStore) Users() *UserTable { return &UserTable{m} }

// Uploaders returns a view satisfying the grant repository contract.
func (m *MemoryStore) Uploaders() *UploaderTable { return &UploaderTable{m} }

// Obligations returns a view satisfying the scheduler repository contract.
func (m *MemoryStore) Obligations() *ObligationTable { return &ObligationTable{m} }

// ArtifactTable is the artifacts view of a MemoryStore.
type ArtifactTable struct{ m *MemoryStore }

// Insert rejects duplicate codes the same way the primary key does.
func (t *ArtifactTable) Insert(_ context.Context, a *model.Artifact) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if err := t.m.failure("insert artifact"); err != nil {
		return err
	}
	if _, ok := t.m.artifacts[a.Code]; ok {
		return fmt.Errorf("insert artifact %s: %w", a.Code, repository.ErrDuplicateCode)
	}
	t.m.artifacts[a.Code] = *a
	return nil
}

// Get returns a copy of the stored artifact.
func (t *ArtifactTable) Get(_ context.Context, code string) (*model.Artifact, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.m.ArtifactReads++
	if err := t.m.failure("select artifact"); err != nil {
		return nil, err
	}
	a, ok := t.m.artifacts[code]
	if !ok {
		return nil, fmt.Errorf("select artifact: %w", apperr.ErrNotFound)
	}
	return &a, nil
}

// Recent returns up to limit artifacts, newest first.
func (t *ArtifactTable) Recent(ctx context.Context, limit int) ([]model.Artifact, error) {
	all, err := t.All(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if limit >= 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// All returns every artifact, oldest first.
func (t *ArtifactTable) All(_ context.Context) ([]model.Artifact, error) {
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	if err := t.m.failure("list artifacts"); err != nil {
		return nil, err
	}
	out := make([]model.Artifact, 0, len(t.m.artifacts))
	for _, a := range t.m.artifacts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Code < out[j].Code
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Count returns the catalog size.
func (t *ArtifactTable) Count(_ context.Context) (int, error) {
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	if err := t.m.failure("count artifacts"); err != nil {
		return 0, err
	}
	return len(t.m.artifacts), nil
}

// UserTable is the users view of a MemoryStore.
type UserTable struct{ m *MemoryStore }

// Touch inserts or refreshes an identity, keeping the first-seen time.
func (t *UserTable) Touch(_ context.Context, id model.Identity) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if err := t.m.failure("upsert user"); err != nil {
		return err
	}
	if prev, ok := t.m.users[id.ID]; ok {
		id.FirstSeen = prev.FirstSeen
	}
	t.m.users[id.ID] = id
	return nil
}

// Get returns a stored identity.
func (t *UserTable) Get(id int64) (model.Identity, bool) {
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	u, ok := t.m.users[id]
	return u, ok
}

// Count returns the number of identities.
func (t *UserTable) Count(_ context.Context) (int, error) {
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	if err := t.m.failure("count users"); err != nil {
		return 0, err
	}
	return len(t.m.users), nil
}

// IDs returns identities ordered by first-seen time.
func (t *UserTable) IDs(_ context.Context) ([]int64, error) {
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	if err := t.m.failure("list users"); err != nil {
		return nil, err
	}
	users := make([]model.Identity, 0, len(t.m.users))
	for _, u := range t.m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].FirstSeen.Equal(users[j].FirstSeen) {
			return users[i].ID < users[j].ID
		}
		return users[i].FirstSeen.Before(users[j].FirstSeen)
	})
	ids := make([]int64, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids, nil
}

// UploaderTable is the grants view of a MemoryStore.
type UploaderTable struct{ m *MemoryStore }

// Grant adds u unless already present.
func (t *UploaderTable) Grant(_ context.Context, u model.AuthorizedUploader) (bool, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if err := t.m.failure("insert grant"); err != nil {
		return false, err
	}
	if _, ok := t.m.uploaders[u.UserID]; ok {
		return false, nil
	}
	t.m.uploaders[u.UserID] = u
	return true, nil
}

// Revoke removes a grant, reporting whether it existed.
func (t *UploaderTable) Revoke(_ context.Context, userID int64) (bool, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if err := t.m.failure("delete grant"); err != nil {
		return false, err
	}
	_, ok := t.m.uploaders[userID]
	delete(t.m.uploaders, userID)
	return ok, nil
}

// Exists reports whether userID holds a grant.
func (t *UploaderTable) Exists(_ context.Context, userID int64) (bool, error) {
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	if err := t.m.failure("select grant"); err != nil {
		return false, err
	}
	_, ok := t.m.uploaders[userID]
	return ok, nil
}

// List returns grants ordered by grant time.
func (t *UploaderTable) List(_ context.Context) ([]model.AuthorizedUploader, error) {
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	if err := t.m.failure("list grants"); err != nil {
		return nil, err
	}
	out := make([]model.AuthorizedUploader, 0, len(t.m.uploaders))
	for _, u := range t.m.uploaders {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Count returns the number of grants.
func (t *UploaderTable) Count(_ context.Context) (int, error) {
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	if err := t.m.failure("count grants"); err != nil {
		return 0, err
	}
	return len(t.m.uploaders), nil
}

// ObligationTable is the obligations view of a MemoryStore.
type ObligationTable struct{ m *MemoryStore }

// Create stores a copy of o.
func (t *ObligationTable) Create(_ context.Context, o *model.DeliveryObligation) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if err := t.m.failure("insert obligation"); err != nil {
		return err
	}
	cp := *o
	cp.MessageIDs = append([]int(nil), o.MessageIDs...)
	t.m.obligations[o.ID] = cp
	return nil
}

// Claim marks an unfired obligation as fired. Repeat claims report
// ErrNotFound, like the conditional UPDATE does.
func (t *ObligationTable) Claim(_ context.Context, id string, at time.Time) (*model.DeliveryObligation, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if err := t.m.failure("claim obligation"); err != nil {
		return nil, err
	}
	o, ok := t.m.obligations[id]
	if !ok || o.Fired() {
		return nil, fmt.Errorf("claim obligation: %w", apperr.ErrNotFound)
	}
	fired := at
	o.FiredAt = &fired
	t.m.obligations[id] = o
	return &o, nil
}

// Pending returns unfired obligations, earliest deadline first.
func (t *ObligationTable) Pending(_ context.Context) ([]model.DeliveryObligation, error) {
	return t.filter("list pending obligations", func(model.DeliveryObligation) bool { return true })
}

// Due returns unfired obligations with a deadline at or before now.
func (t *ObligationTable) Due(_ context.Context, now time.Time) ([]model.DeliveryObligation, error) {
	return t.filter("list due obligations", func(o model.DeliveryObligation) bool { return !o.DeleteAt.After(now) })
}

// CountPending returns the number of unfired obligations.
func (t *ObligationTable) CountPending(ctx context.Context) (int, error) {
	pending, err := t.Pending(ctx)
	return len(pending), err
}

// All returns every obligation, fired or not.
func (t *ObligationTable) All() []model.DeliveryObligation {
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	out := make([]model.DeliveryObligation, 0, len(t.m.obligations))
	for _, o := range t.m.obligations {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeleteAt.Before(out[j].DeleteAt) })
	return out
}

func (t *ObligationTable) filter(op string, keep func(model.DeliveryObligation) bool) ([]model.DeliveryObligation, error) {
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	if err := t.m.failure(op); err != nil {
		return nil, err
	}
	out := make([]model.DeliveryObligation, 0)
	for _, o := range t.m.obligations {
		if !o.Fired() && keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeleteAt.Before(out[j].DeleteAt) })
	return out, nil
}
