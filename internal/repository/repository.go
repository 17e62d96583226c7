package repository

import (
	"context"

	"challenge-server/internal/models"
)

// RecordRepository хранит приватные дневные записи журнала.
type RecordRepository interface {
	// Upsert сохраняет запись по ключу (owner_id, day). Повторная запись того же
	// дня перезаписывает существующую, дубликат не создается.
	Upsert(ctx context.Context, rec *models.ChallengeRecord) error
	// GetByDay возвращает запись за конкретный день или models.ErrNotFound.
	GetByDay(ctx context.Context, ownerID string, day int) (*models.ChallengeRecord, error)
	// ListByOwner возвращает все записи пользователя, отсортированные по
	// возрастанию дня независимо от порядка вставки.
	ListByOwner(ctx context.Context, ownerID string) ([]*models.ChallengeRecord, error)
}

// StatusRepository хранит публичные проекции статусов по дням.
type StatusRepository interface {
	// Upsert сохраняет проекцию по ключу (owner_id, day).
	Upsert(ctx context.Context, status *models.PublicStatus) error
	// List возвращает статусы всех пользователей, отсортированные по дню и владельцу.
	List(ctx context.Context) ([]*models.PublicStatus, error)
}
