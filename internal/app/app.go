// Package app opens the PostgreSQL-backed stores shared by the bot process,
// the deletion worker and the ops CLI.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/codegate/internal/database"
	"github.com/dharsanguruparan/codegate/internal/repository"
)

// Stores bundles one repository per table over a single pool.
type Stores struct {
	DB          *sql.DB
	Artifacts   *repository.ArtifactRepository
	Users       *repository.UserRepository
	Uploaders   *repository.UploaderRepository
	Obligations *repository.ObligationRepository

	pool *pgxpool.Pool
}

// Open connects to dsn and, when migrate is set, applies pending migrations.
func Open(ctx context.Context, dsn string, migrate bool) (*Stores, error) {
	pool, err := database.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	db := database.OpenDB(pool)
	if migrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			pool.Close()
			return nil, err
		}
	}
	return NewStores(db, pool), nil
}

// NewStores wraps an open database. pool may be nil.
func NewStores(db *sql.DB, pool *pgxpool.Pool) *Stores {
	return &Stores{
		DB:          db,
		Artifacts:   repository.NewArtifactRepository(db),
		Users:       repository.NewUserRepository(db),
		Uploaders:   repository.NewUploaderRepository(db),
		Obligations: repository.NewObligationRepository(db),
		pool:        pool,
	}
}

// Close releases the database handle and the pool.
func (s *Stores) Close() {
	_ = s.DB.Close()
	if s.pool != nil {
		s.pool.Close()
	}
}

// Stats is a snapshot of table sizes.
type Stats struct {
	Users     int
	Uploaders int
	Artifacts int
	Pending   int
}

// Stats counts rows in every table.
func (s *Stores) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var err error
	if st.Users, err = s.Users.Count(ctx); err != nil {
		return st, err
	}
	if st.Uploaders, err = s.Uploaders.Count(ctx); err != nil {
		return st, err
	}
	if st.Artifacts, err = s.Artifacts.Count(ctx); err != nil {
		return st, err
	}
	if st.Pending, err = s.Obligations.CountPending(ctx); err != nil {
		return st, err
	}
	return st, nil
}
