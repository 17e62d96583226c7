package database

import (
	"context"
	"fmt"
	"time"

	"challenge-server/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	connectMaxRetries = 10
	connectRetryDelay = 3 * time.Second
	connectTimeout    = 5 * time.Second
)

// NewPool создает пул соединений PostgreSQL с ограниченным числом
// повторных попыток подключения (сервис может стартовать раньше БД).
func NewPool(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	log := logger.Named("Database")

	poolConfig, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		// DSN некорректен, нет смысла пытаться дальше
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.DBMaxConns)
	poolConfig.MaxConnIdleTime = cfg.DBIdleTimeout

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= connectMaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, connectTimeout)

		pool, err = pgxpool.NewWithConfig(attemptCtx, poolConfig)
		if err == nil {
			err = pool.Ping(attemptCtx)
		}
		cancel()

		if err == nil {
			log.Info("Подключение к PostgreSQL установлено", zap.Int("attempt", attempt))
			return pool, nil
		}

		if pool != nil {
			pool.Close()
			pool = nil
		}
		log.Warn("Не удалось подключиться к PostgreSQL",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", connectMaxRetries),
			zap.Error(err))
		if attempt < connectMaxRetries {
			time.Sleep(connectRetryDelay)
		}
	}

	return nil, fmt.Errorf("не удалось подключиться к БД после %d попыток: %w", connectMaxRetries, err)
}
