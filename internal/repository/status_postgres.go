package repository

import (
	"context"
	"errors"
	"fmt"

	"challenge-server/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	pgxV5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	upsertStatusQuery = `
        INSERT INTO daily_statuses (owner_id, day, date, status, timestamp_ms)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (owner_id, day) DO UPDATE SET
            date = EXCLUDED.date,
            status = EXCLUDED.status,
            timestamp_ms = EXCLUDED.timestamp_ms
    `
	listStatusesQuery = `
        SELECT owner_id, day, date, status, timestamp_ms
        FROM daily_statuses
        ORDER BY day ASC, owner_id ASC
    `
)

type pgStatusRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPgStatusRepository creates a new PostgreSQL-backed StatusRepository.
func NewPgStatusRepository(db *pgxpool.Pool, logger *zap.Logger) StatusRepository {
	return &pgStatusRepository{
		db:     db,
		logger: logger.Named("StatusRepo"),
	}
}

// Upsert stores the public projection under its (owner_id, day) key.
func (r *pgStatusRepository) Upsert(ctx context.Context, status *models.PublicStatus) error {
	log := r.logger.With(zap.String("ownerID", status.OwnerID), zap.Int("day", status.Day))

	_, err := r.db.Exec(ctx, upsertStatusQuery,
		status.OwnerID,
		status.Day,
		status.Date,
		status.Status,
		status.Timestamp,
	)
	if err != nil {
		log.Error("Failed to upsert daily status", zap.Error(err))
		return fmt.Errorf("failed to upsert daily status (owner %s, day %d): %w", status.OwnerID, status.Day, err)
	}
	return nil
}

// List returns every user's statuses, day-ordered.
func (r *pgStatusRepository) List(ctx context.Context) ([]*models.PublicStatus, error) {
	var statuses []*models.PublicStatus
	err := pgxscan.Select(ctx, r.db, &statuses, listStatusesQuery)
	if err != nil {
		if errors.Is(err, pgxV5.ErrNoRows) {
			return []*models.PublicStatus{}, nil
		}
		r.logger.Error("Failed to list daily statuses", zap.Error(err))
		return nil, fmt.Errorf("failed to list daily statuses: %w", err)
	}
	if statuses == nil {
		statuses = []*models.PublicStatus{}
	}
	return statuses, nil
}
