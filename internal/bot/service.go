// Package bot turns inbound chat events into calls on the catalog, the upload
// sessions, the delivery dispatcher and the owner tools.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dharsanguruparan/codegate/internal/access"
	"github.com/dharsanguruparan/codegate/internal/broadcast"
	"github.com/dharsanguruparan/codegate/internal/catalog"
	"github.com/dharsanguruparan/codegate/internal/delivery"
	"github.com/dharsanguruparan/codegate/internal/logger"
	"github.com/dharsanguruparan/codegate/internal/metrics"
	"github.com/dharsanguruparan/codegate/internal/model"
	"github.com/dharsanguruparan/codegate/internal/processing"
	"github.com/dharsanguruparan/codegate/internal/s3storage"
	"github.com/dharsanguruparan/codegate/internal/signing"
	"github.com/dharsanguruparan/codegate/internal/upload"
)

// Users records identities the bot has seen.
type Users interface {
	Touch(ctx context.Context, id model.Identity) error
	Count(ctx context.Context) (int, error)
}

// PendingCounter reports outstanding deletion obligations.
type PendingCounter interface {
	CountPending(ctx context.Context) (int, error)
}

// Backup stores catalog snapshots.
type Backup interface {
	UploadSnapshot(ctx context.Context, snap s3storage.Snapshot) (string, error)
	PresignURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Deps lists everything the service is built from. Backup and Metrics are
// optional.
type Deps struct {
	Transport   Transport
	Registry    *access.Registry
	Sessions    *upload.Manager
	Dispatcher  *delivery.Dispatcher
	Catalog     *catalog.Catalog
	Users       Users
	Obligations PendingCounter
	Broadcaster *broadcast.Broadcaster
	Signer      *signing.Signer
	Pool        *processing.Processor
	Backup      Backup
	JoinURL     string
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Service is the bot. Build it with New and drive it with Run.
type Service struct {
	transport   Transport
	registry    *access.Registry
	sessions    *upload.Manager
	dispatcher  *delivery.Dispatcher
	catalog     *catalog.Catalog
	users       Users
	obligations PendingCounter
	broadcaster *broadcast.Broadcaster
	signer      *signing.Signer
	pool        *processing.Processor
	backup      Backup
	joinURL     string
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// New validates d and constructs a Service.
func New(d Deps) (*Service, error) {
	switch {
	case d.Transport == nil:
		return nil, errors.New("bot: transport is required")
	case d.Registry == nil, d.Sessions == nil, d.Dispatcher == nil, d.Catalog == nil:
		return nil, errors.New("bot: registry, sessions, dispatcher and catalog are required")
	case d.Users == nil, d.Obligations == nil:
		return nil, errors.New("bot: user and obligation stores are required")
	case d.Broadcaster == nil, d.Signer == nil, d.Pool == nil:
		return nil, errors.New("bot: broadcaster, signer and pool are required")
	}
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		transport:   d.Transport,
		registry:    d.Registry,
		sessions:    d.Sessions,
		dispatcher:  d.Dispatcher,
		catalog:     d.Catalog,
		users:       d.Users,
		obligations: d.Obligations,
		broadcaster: d.Broadcaster,
		signer:      d.Signer,
		pool:        d.Pool,
		backup:      d.Backup,
		joinURL:     d.JoinURL,
		logger:      log.With(slog.String("component", "bot")),
		metrics:     d.Metrics,
	}, nil
}

// Run consumes updates until ctx is cancelled, then waits for in-flight
// events to finish.
func (s *Service) Run(ctx context.Context) error {
	s.pool.Start(ctx)
	defer s.pool.Stop()
	s.logger.Info("bot started")
	for ev := range s.transport.Updates(ctx) {
		ev := ev
		job := processing.Job{Key: ev.From.ID, Run: func(ctx context.Context) { s.Handle(ctx, ev) }}
		if err := s.pool.Submit(ctx, job); err != nil {
			if ctx.Err() != nil {
				break
			}
			s.logger.Error("submit event failed", slog.Any("error", err))
		}
	}
	s.logger.Info("bot stopping")
	return nil
}

// Handle processes one event synchronously.
func (s *Service) Handle(ctx context.Context, ev Event) {
	log := s.logger.With(slog.Int64("user_id", ev.From.ID), slog.String("event", ev.Kind.String()))
	ctx = logger.WithContext(ctx, log)
	s.metrics.Update(ev.Kind.String())

	if err := s.users.Touch(ctx, ev.From); err != nil {
		log.Warn("record user failed", slog.Any("error", err))
	}

	switch ev.Kind {
	case EventCommand:
		s.handleCommand(ctx, ev)
	case EventText:
		s.handleText(ctx, ev)
	case EventMedia:
		s.handleMedia(ctx, ev)
	case EventCallback:
		s.handleCallback(ctx, ev)
	}
}

func (s *Service) reply(ctx context.Context, chatID int64, text string) {
	if _, err := s.transport.SendText(ctx, chatID, text); err != nil {
		logger.FromContext(ctx).Warn("reply failed", slog.Any("error", err))
	}
}
