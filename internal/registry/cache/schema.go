// Package cache provides a redis read-through cache for schema records.
// Safe because schemas are immutable once created: a cached record can never
// be stale, only absent. The TTL bounds memory, not correctness.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"attestry/internal/registry/models"
	"attestry/pkg/domain"
)

const schemaKeyPrefix = "registry:schema:"

// DefaultSchemaTTL bounds cache residency for schema records.
const DefaultSchemaTTL = 15 * time.Minute

type cachedSchema struct {
	Creator        string `json:"creator"`
	Revocable      bool   `json:"revocable"`
	ExpiresAllowed bool   `json:"expires_allowed"`
	AttesterMode   uint32 `json:"attester_mode"`
}

// RedisSchema caches schema records in redis. Cache failures degrade to
// store reads; they are logged, never returned.
type RedisSchema struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisSchema constructs the cache. A zero ttl falls back to
// DefaultSchemaTTL.
func NewRedisSchema(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisSchema {
	if ttl == 0 {
		ttl = DefaultSchemaTTL
	}
	return &RedisSchema{client: client, ttl: ttl, logger: logger}
}

// Get returns the cached schema and whether it was present.
func (c *RedisSchema) Get(ctx context.Context, id domain.SchemaID) (models.Schema, bool) {
	raw, err := c.client.Get(ctx, schemaKeyPrefix+id.String()).Bytes()
	if err == redis.Nil {
		return models.Schema{}, false
	}
	if err != nil {
		c.logger.Warn("schema cache read failed", "schema_id", id.String(), "error", err)
		return models.Schema{}, false
	}
	var entry cachedSchema
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("schema cache entry corrupt", "schema_id", id.String(), "error", err)
		return models.Schema{}, false
	}
	return models.Schema{
		SchemaURIHash:  id,
		Creator:        domain.Principal(entry.Creator),
		Revocable:      entry.Revocable,
		ExpiresAllowed: entry.ExpiresAllowed,
		AttesterMode:   models.AttesterMode(entry.AttesterMode),
	}, true
}

// Put stores a schema record. Best effort.
func (c *RedisSchema) Put(ctx context.Context, schema models.Schema) {
	entry := cachedSchema{
		Creator:        string(schema.Creator),
		Revocable:      schema.Revocable,
		ExpiresAllowed: schema.ExpiresAllowed,
		AttesterMode:   uint32(schema.AttesterMode),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("schema cache encode failed", "schema_id", schema.ID().String(), "error", err)
		return
	}
	if err := c.client.Set(ctx, schemaKeyPrefix+schema.ID().String(), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("schema cache write failed", "schema_id", schema.ID().String(), "error", err)
	}
}
