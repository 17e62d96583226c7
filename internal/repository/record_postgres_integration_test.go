//go:build integration

package repository_test

import (
	"context"
	"testing"
	"time"

	"challenge-server/internal/models"
	"challenge-server/internal/repository"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// Путь к миграциям относительно пакета repository.
const migrationsPath = "file://../../migrations"

// setupPostgres поднимает контейнер PostgreSQL, применяет миграции и
// возвращает пул соединений.
func setupPostgres(t *testing.T) (*pgxpool.Pool, func()) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("challenge_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	m, err := migrate.New(migrationsPath, dsn)
	require.NoError(t, err, "Failed to init migrations")
	require.NoError(t, m.Up(), "Failed to apply migrations")
	m.Close()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		if termErr := testcontainers.TerminateContainer(container); termErr != nil {
			t.Logf("Failed to terminate container: %v", termErr)
		}
	}
	return pool, cleanup
}

func fullEntries(text string) models.Entries {
	entries := models.Entries{}
	for _, a := range models.Archetypes() {
		entries[a] = ""
	}
	entries[models.ArchetypeKing] = text
	return entries
}

func TestPgRecordRepository_UpsertIsIdempotent(t *testing.T) {
	pool, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()
	repo := repository.NewPgRecordRepository(pool, zap.NewNop())

	rec := &models.ChallengeRecord{
		OwnerID:   "owner-1",
		Day:       7,
		Date:      "November 7, 2025",
		Entries:   fullEntries("first write"),
		Timestamp: time.Now().UnixMilli(),
	}
	require.NoError(t, repo.Upsert(ctx, rec))

	// Повторная запись того же дня перезаписывает, а не дублирует.
	rec.Entries = fullEntries("second write")
	require.NoError(t, repo.Upsert(ctx, rec))

	recs, err := repo.ListByOwner(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "second write", recs[0].Entries[models.ArchetypeKing])
}

func TestPgRecordRepository_ListOrderedByDay(t *testing.T) {
	pool, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()
	repo := repository.NewPgRecordRepository(pool, zap.NewNop())

	// Вставляем записи не по порядку: 5, 2, 9.
	for _, day := range []int{5, 2, 9} {
		require.NoError(t, repo.Upsert(ctx, &models.ChallengeRecord{
			OwnerID:   "owner-2",
			Day:       day,
			Date:      "November 1, 2025",
			Entries:   fullEntries("day entry"),
			Timestamp: time.Now().UnixMilli(),
		}))
	}

	recs, err := repo.ListByOwner(ctx, "owner-2")
	require.NoError(t, err)
	require.Len(t, recs, 3)

	days := []int{recs[0].Day, recs[1].Day, recs[2].Day}
	assert.Equal(t, []int{2, 5, 9}, days)
}

func TestPgRecordRepository_GetByDay(t *testing.T) {
	pool, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()
	repo := repository.NewPgRecordRepository(pool, zap.NewNop())

	_, err := repo.GetByDay(ctx, "owner-3", 1)
	assert.ErrorIs(t, err, models.ErrNotFound)

	rec := &models.ChallengeRecord{
		OwnerID:   "owner-3",
		Day:       1,
		Date:      "November 1, 2025",
		Entries:   fullEntries("hello"),
		Timestamp: time.Now().UnixMilli(),
	}
	require.NoError(t, repo.Upsert(ctx, rec))

	got, err := repo.GetByDay(ctx, "owner-3", 1)
	require.NoError(t, err)
	assert.Equal(t, rec.OwnerID, got.OwnerID)
	assert.Equal(t, rec.Day, got.Day)
	assert.Equal(t, rec.Entries, got.Entries)
}

func TestPgStatusRepository_UpsertAndList(t *testing.T) {
	pool, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()
	repo := repository.NewPgStatusRepository(pool, zap.NewNop())

	statuses := []*models.PublicStatus{
		{OwnerID: "b-owner", Day: 3, Date: "November 3, 2025", Status: models.DailyStatusComplete, Timestamp: 3},
		{OwnerID: "a-owner", Day: 1, Date: "November 1, 2025", Status: models.DailyStatusComplete, Timestamp: 1},
		{OwnerID: "a-owner", Day: 3, Date: "November 3, 2025", Status: models.DailyStatusComplete, Timestamp: 2},
	}
	for _, st := range statuses {
		require.NoError(t, repo.Upsert(ctx, st))
	}

	got, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].Day)
	assert.Equal(t, "a-owner", got[1].OwnerID)
	assert.Equal(t, "b-owner", got[2].OwnerID)
}
