package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	platformcache "github.com/fekuna/omnipos-inventory-service/internal/platform/cache"
)

const keyPrefix = "inventory:record:"

// RedisRecordCache caches inventory records by product/variant.
type RedisRecordCache struct {
	client *platformcache.RedisClient
	ttl    time.Duration
}

func NewRedisRecordCache(client *platformcache.RedisClient, ttl time.Duration) *RedisRecordCache {
	return &RedisRecordCache{client: client, ttl: ttl}
}

func RecordKey(key model.RecordKey) string {
	variant := key.VariantID
	if variant == "" {
		variant = "_"
	}
	return fmt.Sprintf("%s%s:%s", keyPrefix, key.ProductID, variant)
}

// entry is the stored form of a key. A tombstone marks the version a write
// produced so that slower readers cannot put an older record back.
type entry struct {
	Version   int64                  `json:"version"`
	Tombstone bool                   `json:"tombstone,omitempty"`
	Record    *model.InventoryRecord `json:"record,omitempty"`
}

func (e *entry) record() (*model.InventoryRecord, error) {
	if e.Tombstone || e.Record == nil {
		return nil, inventory.ErrNotFound
	}
	return e.Record, nil
}

// Get returns inventory.ErrNotFound on a miss or a tombstone.
func (c *RedisRecordCache) Get(ctx context.Context, key model.RecordKey) (*model.InventoryRecord, error) {
	var e entry
	if err := c.client.GetJSON(ctx, RecordKey(key), &e); err != nil {
		if errors.Is(err, platformcache.ErrCacheMiss) {
			return nil, inventory.ErrNotFound
		}
		return nil, err
	}
	return e.record()
}

// Set caches rec unless the key already holds a newer version or tombstone.
func (c *RedisRecordCache) Set(ctx context.Context, rec *model.InventoryRecord) error {
	_, err := c.client.SetJSONIfNewer(ctx, RecordKey(rec.Key()), &entry{Version: rec.Version, Record: rec}, rec.Version, c.ttl)
	return err
}

// Invalidate replaces the cached record with a tombstone for version.
func (c *RedisRecordCache) Invalidate(ctx context.Context, key model.RecordKey, version int64) error {
	_, err := c.client.SetJSONIfNewer(ctx, RecordKey(key), &entry{Version: version, Tombstone: true}, version, c.ttl)
	return err
}
