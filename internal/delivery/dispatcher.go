// Package delivery resolves an access code for a requester and sends the
// artifact, subject to the membership gate and the deletion schedule.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dharsanguruparan/codegate/internal/apperr"
	"github.com/dharsanguruparan/codegate/internal/metrics"
	"github.com/dharsanguruparan/codegate/internal/model"
)

// WarningText precedes every delivered artifact.
const WarningText = "⚠️ This file will be deleted from this chat after 15 minutes. Save it if you need it."

// Outcome is the result category of a delivery attempt.
type Outcome int

const (
	NotMember Outcome = iota
	InvalidCode
	Delivered
	Failed
)

func (o Outcome) String() string {
	switch o {
	case NotMember:
		return "not_member"
	case InvalidCode:
		return "invalid_code"
	case Delivered:
		return "delivered"
	default:
		return "failed"
	}
}

// Result describes a finished delivery attempt.
type Result struct {
	Outcome    Outcome
	Code       string
	Recheck    bool
	Artifact   *model.Artifact
	Obligation *model.DeliveryObligation
	Err        error
}

// Gate answers the membership question.
type Gate interface {
	IsMember(ctx context.Context, userID int64) bool
}

// Catalog looks up artifacts by code.
type Catalog interface {
	Get(ctx context.Context, code string) (*model.Artifact, error)
}

// Sender is the outbound half of the chat transport. Send methods return the
// id of the message they created.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) (int, error)
	SendArtifact(ctx context.Context, chatID int64, kind model.Kind, fileID, caption string) (int, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// Scheduler records the deletion obligation of a delivery.
type Scheduler interface {
	Schedule(ctx context.Context, chatID int64, messageIDs []int) (*model.DeliveryObligation, error)
}

// Dispatcher runs the gate → lookup → send → schedule pipeline.
type Dispatcher struct {
	gate      Gate
	catalog   Catalog
	sender    Sender
	scheduler Scheduler
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewDispatcher constructs a Dispatcher. m may be nil.
func NewDispatcher(gate Gate, catalog Catalog, sender Sender, scheduler Scheduler, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		gate:      gate,
		catalog:   catalog,
		sender:    sender,
		scheduler: scheduler,
		logger:    logger.With(slog.String("component", "delivery")),
		metrics:   m,
	}
}

// Deliver sends the artifact behind code to chatID on behalf of requester.
// Membership is checked before the catalog is consulted.
func (d *Dispatcher) Deliver(ctx context.Context, requester, chatID int64, code string) Result {
	res := d.deliver(ctx, requester, chatID, code)
	d.metrics.Delivery(res.Outcome.String())
	return res
}

// Recheck repeats Deliver after the requester claims to have joined.
func (d *Dispatcher) Recheck(ctx context.Context, requester, chatID int64, code string) Result {
	res := d.Deliver(ctx, requester, chatID, code)
	res.Recheck = true
	return res
}

func (d *Dispatcher) deliver(ctx context.Context, requester, chatID int64, code string) Result {
	log := d.logger.With(slog.Int64("user_id", requester), slog.String("code", code))
	if !d.gate.IsMember(ctx, requester) {
		log.Info("delivery refused: not a member")
		return Result{Outcome: NotMember, Code: code}
	}

	artifact, err := d.catalog.Get(ctx, code)
	switch {
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrValidation):
		log.Info("delivery refused: unknown code")
		return Result{Outcome: InvalidCode, Code: code}
	case err != nil:
		log.Error("artifact lookup failed", slog.Any("error", err))
		return Result{Outcome: Failed, Code: code, Err: err}
	}

	warningID, err := d.sender.SendText(ctx, chatID, WarningText)
	if err != nil {
		log.Error("send warning failed", slog.Any("error", err))
		return Result{Outcome: Failed, Code: code, Artifact: artifact, Err: apperr.Transport("send warning", err)}
	}
	artifactID, err := d.sender.SendArtifact(ctx, chatID, artifact.Kind, artifact.FileID, caption(artifact))
	if err != nil {
		log.Error("send artifact failed", slog.String("kind", string(artifact.Kind)), slog.Any("error", err))
		if delErr := d.sender.DeleteMessage(ctx, chatID, warningID); delErr != nil {
			log.Warn("remove orphaned warning failed", slog.Any("error", delErr))
		}
		return Result{Outcome: Failed, Code: code, Artifact: artifact, Err: apperr.Transport("send artifact", err)}
	}

	obligation, err := d.scheduler.Schedule(ctx, chatID, []int{warningID, artifactID})
	if err != nil {
		// The artifact is already in the chat at this point.
		log.Error("schedule deletion failed", slog.Any("error", err))
		return Result{Outcome: Failed, Code: code, Artifact: artifact, Err: fmt.Errorf("delivered without deletion: %w", err)}
	}
	log.Info("artifact delivered", slog.String("obligation_id", obligation.ID))
	return Result{Outcome: Delivered, Code: code, Artifact: artifact, Obligation: obligation}
}

func caption(a *model.Artifact) string {
	return "📁 " + a.Description
}
