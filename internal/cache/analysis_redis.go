package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"challenge-server/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// AnalysisCache stores finished AI analysis texts so that an unchanged journal
// does not trigger a second paid completion call.
type AnalysisCache interface {
	Get(ctx context.Context, ownerID, mode, contentHash string) (string, bool, error)
	Set(ctx context.Context, ownerID, mode, contentHash, text string) error
}

type redisAnalysisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisAnalysisCache creates a new Redis-backed AnalysisCache.
func NewRedisAnalysisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) AnalysisCache {
	return &redisAnalysisCache{
		client: client,
		ttl:    ttl,
		logger: logger.Named("AnalysisCache"),
	}
}

func analysisKey(ownerID, mode, contentHash string) string {
	return fmt.Sprintf("analysis:%s:%s:%s", ownerID, mode, contentHash)
}

// Get returns the cached analysis text, if any.
func (c *redisAnalysisCache) Get(ctx context.Context, ownerID, mode, contentHash string) (string, bool, error) {
	key := analysisKey(ownerID, mode, contentHash)
	text, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		c.logger.Error("Failed to get analysis from redis", zap.Error(err), zap.String("key", key))
		return "", false, fmt.Errorf("failed to get analysis from redis: %w", err)
	}
	c.logger.Debug("Analysis cache hit", zap.String("key", key))
	return text, true, nil
}

// Set stores the analysis text with the configured TTL.
func (c *redisAnalysisCache) Set(ctx context.Context, ownerID, mode, contentHash, text string) error {
	key := analysisKey(ownerID, mode, contentHash)
	if err := c.client.Set(ctx, key, text, c.ttl).Err(); err != nil {
		c.logger.Error("Failed to store analysis in redis", zap.Error(err), zap.String("key", key))
		return fmt.Errorf("failed to store analysis in redis: %w", err)
	}
	return nil
}

// RecordSetHash returns a stable hash of a day-ordered record set. Any new or
// changed entry produces a different hash and therefore a fresh analysis.
func RecordSetHash(records []*models.ChallengeRecord) string {
	h := sha256.New()
	for _, rec := range records {
		fmt.Fprintf(h, "%d|%s|", rec.Day, rec.Date)
		for _, a := range models.Archetypes() {
			fmt.Fprintf(h, "%s=%s|", a, rec.Entries[a])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
