package brief

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"example.com/classification/internal/observability"
)

// Cache stores rendered briefs in Redis. Keys embed a per-tenant generation
// counter, so invalidation is a single INCR and stale entries age out via TTL
// instead of being scanned and deleted.
type Cache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewCache constructs a Cache with the given entry TTL.
func NewCache(client redis.UniversalClient, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func generationKey(tenantID string) string {
	return "brief:gen:" + tenantID
}

func (c *Cache) entryKey(ctx context.Context, tenantID, modelID string, from, to time.Time) (string, error) {
	gen, err := c.client.Get(ctx, generationKey(tenantID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("brief:%s:%d:%s:%d:%d", tenantID, gen, modelID, from.Unix(), to.Unix()), nil
}

// Get returns the cached brief for the key, or nil on a miss. Redis failures
// degrade to a miss.
func (c *Cache) Get(ctx context.Context, tenantID, modelID string, from, to time.Time) *Brief {
	key, err := c.entryKey(ctx, tenantID, modelID, from, to)
	if err != nil {
		observability.RecordBriefCache("error")
		log.Printf("brief cache: resolve generation for tenant %s: %v", tenantID, err)
		return nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			observability.RecordBriefCache("error")
			log.Printf("brief cache: get %s: %v", key, err)
			return nil
		}
		observability.RecordBriefCache("miss")
		return nil
	}

	var brief Brief
	if err := json.Unmarshal(data, &brief); err != nil {
		observability.RecordBriefCache("error")
		log.Printf("brief cache: decode %s: %v", key, err)
		return nil
	}
	observability.RecordBriefCache("hit")
	return &brief
}

// Set stores the brief under the current generation. Failures are logged and
// swallowed: caching is best effort.
func (c *Cache) Set(ctx context.Context, brief *Brief) {
	key, err := c.entryKey(ctx, brief.TenantID, brief.ModelID, brief.From, brief.To)
	if err != nil {
		log.Printf("brief cache: resolve generation for tenant %s: %v", brief.TenantID, err)
		return
	}
	data, err := json.Marshal(brief)
	if err != nil {
		log.Printf("brief cache: encode %s: %v", key, err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Printf("brief cache: set %s: %v", key, err)
	}
}

// InvalidateTenant bumps the tenant generation, orphaning every cached brief
// for that tenant at once.
func (c *Cache) InvalidateTenant(ctx context.Context, tenantID string) {
	if err := c.client.Incr(ctx, generationKey(tenantID)).Err(); err != nil {
		log.Printf("brief cache: invalidate tenant %s: %v", tenantID, err)
	}
}

// ModelActivated invalidates the tenant after a model activation. Satisfies
// the registry activation listener.
func (c *Cache) ModelActivated(ctx context.Context, tenantID, modelID string) {
	c.InvalidateTenant(ctx, tenantID)
}
