package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/dharsanguruparan/codegate/internal/apperr"
	"github.com/dharsanguruparan/codegate/internal/model"
)

// ObligationRepository persists pending message deletions.
type ObligationRepository struct {
	db DBTX
}

// NewObligationRepository constructs a repository.
func NewObligationRepository(db DBTX) *ObligationRepository {
	return &ObligationRepository{db: db}
}

// Create stores a new unfired obligation.
func (r *ObligationRepository) Create(ctx context.Context, o *model.DeliveryObligation) error {
	ids, err := json.Marshal(o.MessageIDs)
	if err != nil {
		return apperr.Storage("encode message ids", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO delivery_obligations (id, chat_id, message_ids, created_at, delete_at)
		VALUES ($1,$2,$3,$4,$5)
	`, o.ID, o.ChatID, string(ids), o.CreatedAt, o.DeleteAt)
	if err != nil {
		return apperr.Storage("insert obligation", err)
	}
	return nil
}

// Claim marks the obligation fired at the given time and returns it. Only the
// first claim succeeds; later claims and unknown ids return ErrNotFound.
func (r *ObligationRepository) Claim(ctx context.Context, id string, at time.Time) (*model.DeliveryObligation, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE delivery_obligations
		SET fired_at=$2
		WHERE id=$1 AND fired_at IS NULL
		RETURNING id, chat_id, message_ids, created_at, delete_at, fired_at
	`, id, at)
	o, err := scanObligation(row)
	if err != nil {
		return nil, notFoundOr("claim obligation", err)
	}
	return o, nil
}

// Pending returns every unfired obligation, earliest deadline first.
func (r *ObligationRepository) Pending(ctx context.Context) ([]model.DeliveryObligation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, chat_id, message_ids, created_at, delete_at, fired_at
		FROM delivery_obligations
		WHERE fired_at IS NULL
		ORDER BY delete_at
	`)
	if err != nil {
		return nil, apperr.Storage("list pending obligations", err)
	}
	return collectObligations(rows)
}

// Due returns unfired obligations whose deadline is at or before now.
func (r *ObligationRepository) Due(ctx context.Context, now time.Time) ([]model.DeliveryObligation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, chat_id, message_ids, created_at, delete_at, fired_at
		FROM delivery_obligations
		WHERE fired_at IS NULL AND delete_at <= $1
		ORDER BY delete_at
	`, now)
	if err != nil {
		return nil, apperr.Storage("list due obligations", err)
	}
	return collectObligations(rows)
}

// CountPending returns the number of unfired obligations.
func (r *ObligationRepository) CountPending(ctx context.Context) (int, error) {
	return count(ctx, r.db, "count obligations", `SELECT COUNT(*) FROM delivery_obligations WHERE fired_at IS NULL`)
}

func scanObligation(s scanner) (*model.DeliveryObligation, error) {
	var (
		o     model.DeliveryObligation
		ids   []byte
		fired sql.NullTime
	)
	if err := s.Scan(&o.ID, &o.ChatID, &ids, &o.CreatedAt, &o.DeleteAt, &fired); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(ids, &o.MessageIDs); err != nil {
		return nil, err
	}
	if fired.Valid {
		t := fired.Time
		o.FiredAt = &t
	}
	return &o, nil
}

func collectObligations(rows *sql.Rows) ([]model.DeliveryObligation, error) {
	defer rows.Close()
	out := make([]model.DeliveryObligation, 0)
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, apperr.Storage("scan obligation", err)
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("iterate obligations", err)
	}
	return out, nil
}
