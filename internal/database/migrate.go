package database

import (
	"errors"
	"fmt"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// RunMigrations применяет все миграции из указанной директории к базе по DSN.
// Отсутствие новых миграций ошибкой не считается.
func RunMigrations(dsn, migrationsDir string, logger *zap.Logger) error {
	log := logger.Named("Migrations")

	m, err := migrate.New("file://"+migrationsDir, dsn)
	if err != nil {
		return fmt.Errorf("failed to init migrations from %s: %w", migrationsDir, err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("Миграции не требуются, схема актуальна")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.Info("Миграции успешно применены", zap.String("dir", migrationsDir))
	return nil
}
