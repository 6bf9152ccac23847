// Package schema implements the SchemaProvider contract (spec §6) plus a
// Redis-backed caching decorator over a backing provider (SPEC_FULL §4.6).
package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ianzepp/monk-api/internal/observer"
)

// BackingProvider resolves a schema name to its definition without any
// caching — e.g. reading schema rows from the system tenant.
type BackingProvider interface {
	Resolve(ctx context.Context, schemaName string) (observer.SchemaDefinition, error)
}

// CachedSchemaProvider wraps a BackingProvider with a Redis TTL cache
// keyed by schema name. Cache failures degrade to the backing provider
// rather than failing the request.
type CachedSchemaProvider struct {
	backing BackingProvider
	client  *redis.Client
	logger  *zap.Logger
	ttl     time.Duration
}

// New builds a CachedSchemaProvider. A nil client disables caching
// entirely (every Resolve falls through to backing).
func New(backing BackingProvider, client *redis.Client, logger *zap.Logger, ttl time.Duration) *CachedSchemaProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedSchemaProvider{backing: backing, client: client, logger: logger, ttl: ttl}
}

func cacheKey(schemaName string) string {
	return fmt.Sprintf("schema:def:%s", schemaName)
}

// Resolve returns schemaName's definition, preferring the cache.
func (p *CachedSchemaProvider) Resolve(ctx context.Context, schemaName string) (observer.SchemaDefinition, error) {
	if p.client != nil {
		if def, ok := p.readCache(ctx, schemaName); ok {
			return def, nil
		}
	}

	def, err := p.backing.Resolve(ctx, schemaName)
	if err != nil {
		return observer.SchemaDefinition{}, err
	}

	if p.client != nil {
		p.writeCache(ctx, schemaName, def)
	}
	return def, nil
}

// Invalidate evicts schemaName from the cache. No built-in observer calls
// it; a ring 6 observer that writes schema definition rows has to call it
// itself.
func (p *CachedSchemaProvider) Invalidate(ctx context.Context, schemaName string) {
	if p.client == nil {
		return
	}
	if err := p.client.Del(ctx, cacheKey(schemaName)).Err(); err != nil {
		p.logger.Sugar().Warnw("schema cache invalidate failed", "schema", schemaName, "error", err)
	}
}

func (p *CachedSchemaProvider) readCache(ctx context.Context, schemaName string) (observer.SchemaDefinition, bool) {
	raw, err := p.client.Get(ctx, cacheKey(schemaName)).Bytes()
	if err != nil {
		if err != redis.Nil {
			p.logger.Sugar().Warnw("schema cache read failed", "schema", schemaName, "error", err)
		}
		return observer.SchemaDefinition{}, false
	}
	var def observer.SchemaDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		p.logger.Sugar().Warnw("schema cache decode failed", "schema", schemaName, "error", err)
		return observer.SchemaDefinition{}, false
	}
	return def, true
}

func (p *CachedSchemaProvider) writeCache(ctx context.Context, schemaName string, def observer.SchemaDefinition) {
	payload, err := json.Marshal(def)
	if err != nil {
		p.logger.Sugar().Warnw("schema cache encode failed", "schema", schemaName, "error", err)
		return
	}
	if err := p.client.Set(ctx, cacheKey(schemaName), payload, p.ttl).Err(); err != nil {
		p.logger.Sugar().Warnw("schema cache write failed", "schema", schemaName, "error", err)
	}
}
