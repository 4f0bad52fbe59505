// Package broadcast sends one text to every known user at a bounded rate.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"github.com/dharsanguruparan/codegate/internal/apperr"
	"github.com/dharsanguruparan/codegate/internal/metrics"
)

// DefaultRate is the default number of messages per second.
const DefaultRate = 20

// Audience lists recipient ids.
type Audience interface {
	IDs(ctx context.Context) ([]int64, error)
}

// Sender delivers one text message.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) (int, error)
}

// Result summarizes a broadcast. Sent+Failed equals the number of recipients
// unless the run was cancelled.
type Result struct {
	Recipients int
	Sent       int
	Failed     int
}

// Broadcaster owns the rate limiter shared by all broadcasts.
type Broadcaster struct {
	audience Audience
	sender   Sender
	limiter  *rate.Limiter
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New constructs a Broadcaster sending at most perSecond messages per second.
func New(audience Audience, sender Sender, perSecond float64, logger *slog.Logger, m *metrics.Metrics) *Broadcaster {
	if perSecond <= 0 {
		perSecond = DefaultRate
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		audience: audience,
		sender:   sender,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:   logger.With(slog.String("component", "broadcast")),
		metrics:  m,
	}
}

// Send delivers text to every recipient. A failed recipient does not stop
// the run; only cancellation of ctx does.
func (b *Broadcaster) Send(ctx context.Context, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, fmt.Errorf("broadcast text is empty: %w", apperr.ErrValidation)
	}
	ids, err := b.audience.IDs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list recipients: %w", err)
	}
	res := Result{Recipients: len(ids)}
	defer func() { b.metrics.Broadcast(res.Sent, res.Failed) }()
	for _, id := range ids {
		if err := b.limiter.Wait(ctx); err != nil {
			b.logger.Warn("broadcast interrupted", slog.Int("sent", res.Sent), slog.Int("failed", res.Failed))
			return res, fmt.Errorf("broadcast interrupted: %w", errors.Join(err, ctx.Err()))
		}
		if _, err := b.sender.SendText(ctx, id, text); err != nil {
			res.Failed++
			b.logger.Debug("broadcast recipient failed", slog.Int64("user_id", id), slog.Any("error", err))
			continue
		}
		res.Sent++
	}
	b.logger.Info("broadcast finished",
		slog.Int("recipients", res.Recipients), slog.Int("sent", res.Sent), slog.Int("failed", res.Failed))
	return res, nil
}
