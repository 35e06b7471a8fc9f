package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/capserve/capserve/internal/model"
)

// Cache key prefixes and TTLs.
const (
	predictionKeyPrefix = "pred:"

	// DefaultPredictionTTL is the TTL for cached prediction results.
	DefaultPredictionTTL = 5 * time.Minute
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

// PredictionKey builds the cache key for an applicant scored by a given
// model version. The applicant payload is hashed so raw applicant data never
// appears in Redis keys.
func PredictionKey(modelVersion string, applicant *model.Applicant) (string, error) {
	b, err := json.Marshal(applicant)
	if err != nil {
		return "", fmt.Errorf("marshal applicant: %w", err)
	}
	sum := sha256.Sum256(b)
	return predictionKeyPrefix + modelVersion + ":" + hex.EncodeToString(sum[:]), nil
}

// GetPrediction retrieves a cached prediction result.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetPrediction(ctx context.Context, key string) (*model.Prediction, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, ErrCacheMiss
	}

	var p model.Prediction
	if err := json.Unmarshal(data, &p); err != nil {
		// Corrupted cache entry, treat as miss
		return nil, ErrCacheMiss
	}
	return &p, nil
}

// SetPrediction stores a prediction result under the key with the given TTL.
func (c *Cache) SetPrediction(ctx context.Context, key string, p *model.Prediction, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultPredictionTTL
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal prediction: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache prediction: %w", err)
	}
	return nil
}

// FlushPredictions removes every cached prediction. Called after a model
// reload so stale results from the previous version cannot be served; keys
// are version-scoped but flushing frees the memory immediately.
func (c *Cache) FlushPredictions(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, predictionKeyPrefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan prediction keys: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete prediction keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
