// Package membership checks that a user belongs to the required channel.
package membership

import (
	"context"
	"log/slog"
)

// Status is the membership state reported by the directory.
type Status string

const (
	StatusCreator       Status = "creator"
	StatusAdministrator Status = "administrator"
	StatusMember        Status = "member"
	StatusRestricted    Status = "restricted"
	StatusLeft          Status = "left"
	StatusKicked        Status = "kicked"
)

// Member is a directory answer. IsMember only matters for restricted users,
// who may or may not still be in the chat.
type Member struct {
	Status   Status
	IsMember bool
}

// Directory looks up a user's status in a group.
type Directory interface {
	MemberStatus(ctx context.Context, group string, userID int64) (Member, error)
}

// Gate answers membership questions for one fixed group.
type Gate struct {
	dir    Directory
	group  string
	logger *slog.Logger
}

// NewGate constructs a Gate for group.
func NewGate(dir Directory, group string, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		dir:    dir,
		group:  group,
		logger: logger.With(slog.String("component", "membership")),
	}
}

// Group returns the required group identifier.
func (g *Gate) Group() string { return g.group }

// IsMember fails closed: any lookup error means false.
func (g *Gate) IsMember(ctx context.Context, userID int64) bool {
	m, err := g.dir.MemberStatus(ctx, g.group, userID)
	if err != nil {
		g.logger.Warn("membership lookup failed",
			slog.Int64("user_id", userID),
			slog.String("group", g.group),
			slog.Any("error", err))
		return false
	}
	switch m.Status {
	case StatusCreator, StatusAdministrator, StatusMember:
		return true
	case StatusRestricted:
		return m.IsMember
	default:
		return false
	}
}
