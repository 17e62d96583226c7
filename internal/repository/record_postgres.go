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
	upsertRecordQuery = `
        INSERT INTO challenge_records (owner_id, day, date, entries, timestamp_ms)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (owner_id, day) DO UPDATE SET
            date = EXCLUDED.date,
            entries = EXCLUDED.entries,
            timestamp_ms = EXCLUDED.timestamp_ms
    `
	getRecordByDayQuery = `
        SELECT owner_id, day, date, entries, timestamp_ms, created_at
        FROM challenge_records
        WHERE owner_id = $1 AND day = $2
    `
	listRecordsByOwnerQuery = `
        SELECT owner_id, day, date, entries, timestamp_ms, created_at
        FROM challenge_records
        WHERE owner_id = $1
        ORDER BY day ASC
    `
)

type pgRecordRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPgRecordRepository creates a new PostgreSQL-backed RecordRepository.
func NewPgRecordRepository(db *pgxpool.Pool, logger *zap.Logger) RecordRepository {
	return &pgRecordRepository{
		db:     db,
		logger: logger.Named("RecordRepo"),
	}
}

// Upsert stores the record under its (owner_id, day) key. A concurrent second
// submission for the same day overwrites the first instead of duplicating it.
func (r *pgRecordRepository) Upsert(ctx context.Context, rec *models.ChallengeRecord) error {
	log := r.logger.With(zap.String("ownerID", rec.OwnerID), zap.Int("day", rec.Day))

	_, err := r.db.Exec(ctx, upsertRecordQuery,
		rec.OwnerID,
		rec.Day,
		rec.Date,
		rec.Entries,
		rec.Timestamp,
	)
	if err != nil {
		log.Error("Failed to upsert challenge record", zap.Error(err))
		return fmt.Errorf("failed to upsert challenge record (owner %s, day %d): %w", rec.OwnerID, rec.Day, err)
	}

	log.Debug("Challenge record upserted")
	return nil
}

// GetByDay returns the record for a single day or models.ErrNotFound.
func (r *pgRecordRepository) GetByDay(ctx context.Context, ownerID string, day int) (*models.ChallengeRecord, error) {
	log := r.logger.With(zap.String("ownerID", ownerID), zap.Int("day", day))

	var rec models.ChallengeRecord
	err := pgxscan.Get(ctx, r.db, &rec, getRecordByDayQuery, ownerID, day)
	if err != nil {
		if errors.Is(err, pgxV5.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		log.Error("Failed to get challenge record", zap.Error(err))
		return nil, fmt.Errorf("failed to get challenge record (owner %s, day %d): %w", ownerID, day, err)
	}
	return &rec, nil
}

// ListByOwner returns the owner's full journal ordered by ascending day.
func (r *pgRecordRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.ChallengeRecord, error) {
	log := r.logger.With(zap.String("ownerID", ownerID))

	var recs []*models.ChallengeRecord
	err := pgxscan.Select(ctx, r.db, &recs, listRecordsByOwnerQuery, ownerID)
	if err != nil {
		if errors.Is(err, pgxV5.ErrNoRows) {
			return []*models.ChallengeRecord{}, nil
		}
		log.Error("Failed to list challenge records", zap.Error(err))
		return nil, fmt.Errorf("failed to list challenge records for owner %s: %w", ownerID, err)
	}
	if recs == nil {
		recs = []*models.ChallengeRecord{}
	}
	return recs, nil
}
