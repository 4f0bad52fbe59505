// Package upload runs the per-uploader workflow that turns a description and
// a media message into a new catalog entry.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/dharsanguruparan/codegate/internal/model"
)

// State names the step an uploader is at.
type State int

const (
	NoSession State = iota
	AwaitingDescription
	AwaitingArtifact
)

func (s State) String() string {
	switch s {
	case AwaitingDescription:
		return "awaiting_description"
	case AwaitingArtifact:
		return "awaiting_artifact"
	default:
		return "none"
	}
}

// step is the tagged session state. Each variant carries only the fields
// valid in that state.
type step interface {
	state() State
}

type awaitingDescription struct{}

func (awaitingDescription) state() State { return AwaitingDescription }

type awaitingArtifact struct {
	description string
}

func (awaitingArtifact) state() State { return AwaitingArtifact }

// Outcome tells the caller which reply to render.
type Outcome int

const (
	OutcomeNoSession Outcome = iota
	OutcomeUnauthorized
	OutcomeStarted
	OutcomeDescriptionAccepted
	OutcomeDescriptionTooLong
	OutcomeDescriptionEmpty
	OutcomeExpectedArtifact
	OutcomeExpectedDescription
	OutcomeCommitted
)

// Result is returned by every transition.
type Result struct {
	Outcome     Outcome
	State       State
	Description string
	Code        string
}

// Media is an incoming artifact message.
type Media struct {
	Kind   model.Kind
	FileID string
}

// Store persists a finished upload and returns its access code.
type Store interface {
	Put(ctx context.Context, description string, kind model.Kind, fileID string, uploader int64) (string, error)
}

// Authorizer decides who may begin an upload.
type Authorizer interface {
	IsAuthorized(ctx context.Context, id int64) (bool, error)
}

// entry serializes every transition of one uploader's session.
type entry struct {
	mu   sync.Mutex
	step step
}

// Manager holds the process-wide session table. Sessions are not persisted;
// an upload in flight is lost on restart.
type Manager struct {
	store  Store
	auth   Authorizer
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[int64]*entry
}

// NewManager constructs a Manager.
func NewManager(store Store, auth Authorizer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		auth:     auth,
		logger:   logger.With(slog.String("component", "upload")),
		sessions: make(map[int64]*entry),
	}
}

// lock returns the locked entry for id, creating it when create is set.
// The caller must unlock it.
func (m *Manager) lock(id int64, create bool) *entry {
	for {
		m.mu.Lock()
		e, ok := m.sessions[id]
		if !ok {
			if !create {
				m.mu.Unlock()
				return nil
			}
			e = &entry{}
			m.sessions[id] = e
		}
		m.mu.Unlock()
		e.mu.Lock()
		// The entry may have been dropped while we waited for it.
		m.mu.Lock()
		current := m.sessions[id] == e
		m.mu.Unlock()
		if current {
			return e
		}
		e.mu.Unlock()
	}
}

// drop removes the entry for id. Must be called with e locked.
func (m *Manager) drop(id int64, e *entry) {
	e.step = nil
	m.mu.Lock()
	if m.sessions[id] == e {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
}

// State returns the current state for id.
func (m *Manager) State(id int64) State {
	e := m.lock(id, false)
	if e == nil {
		return NoSession
	}
	defer e.mu.Unlock()
	if e.step == nil {
		return NoSession
	}
	return e.step.state()
}

// Begin starts or restarts an upload. A previously staged description is
// discarded without confirmation.
func (m *Manager) Begin(ctx context.Context, id int64) (Result, error) {
	ok, err := m.auth.IsAuthorized(ctx, id)
	if err != nil {
		return Result{Outcome: OutcomeUnauthorized, State: m.State(id)}, err
	}
	if !ok {
		m.logger.Info("upload refused", slog.Int64("user_id", id))
		return Result{Outcome: OutcomeUnauthorized, State: m.State(id)}, nil
	}
	e := m.lock(id, true)
	defer e.mu.Unlock()
	e.step = awaitingDescription{}
	m.logger.Debug("upload started", slog.Int64("user_id", id))
	return Result{Outcome: OutcomeStarted, State: AwaitingDescription}, nil
}

// Cancel discards the session and reports whether one existed.
func (m *Manager) Cancel(id int64) bool {
	e := m.lock(id, false)
	if e == nil {
		return false
	}
	defer e.mu.Unlock()
	existed := e.step != nil
	m.drop(id, e)
	return existed
}

// HandleText feeds a plain text message into the session.
func (m *Manager) HandleText(_ context.Context, id int64, text string) Result {
	e := m.lock(id, false)
	if e == nil {
		return Result{Outcome: OutcomeNoSession}
	}
	defer e.mu.Unlock()
	switch s := e.step.(type) {
	case awaitingDescription:
		desc := strings.TrimSpace(text)
		if desc == "" {
			return Result{Outcome: OutcomeDescriptionEmpty, State: AwaitingDescription}
		}
		if utf8.RuneCountInString(desc) > model.MaxDescriptionLen {
			return Result{Outcome: OutcomeDescriptionTooLong, State: AwaitingDescription}
		}
		e.step = awaitingArtifact{description: desc}
		return Result{Outcome: OutcomeDescriptionAccepted, State: AwaitingArtifact, Description: desc}
	case awaitingArtifact:
		return Result{Outcome: OutcomeExpectedArtifact, State: AwaitingArtifact, Description: s.description}
	default:
		return Result{Outcome: OutcomeNoSession}
	}
}

// HandleMedia feeds a media message into the session. On success the
// artifact is stored and the session ends; if storing fails the session
// stays in AwaitingArtifact so the uploader can resend.
func (m *Manager) HandleMedia(ctx context.Context, id int64, media Media) (Result, error) {
	e := m.lock(id, false)
	if e == nil {
		return Result{Outcome: OutcomeNoSession}, nil
	}
	defer e.mu.Unlock()
	switch s := e.step.(type) {
	case awaitingDescription:
		return Result{Outcome: OutcomeExpectedDescription, State: AwaitingDescription}, nil
	case awaitingArtifact:
		if !media.Kind.Valid() || media.FileID == "" {
			return Result{Outcome: OutcomeExpectedArtifact, State: AwaitingArtifact, Description: s.description}, nil
		}
		code, err := m.store.Put(ctx, s.description, media.Kind, media.FileID, id)
		if err != nil {
			return Result{Outcome: OutcomeExpectedArtifact, State: AwaitingArtifact, Description: s.description},
				fmt.Errorf("commit upload: %w", err)
		}
		m.drop(id, e)
		return Result{Outcome: OutcomeCommitted, State: NoSession, Description: s.description, Code: code}, nil
	default:
		return Result{Outcome: OutcomeNoSession}, nil
	}
}
