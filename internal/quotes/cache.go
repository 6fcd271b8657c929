package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/studio-ops/quotation-engine/internal/structure"
)

const (
	structureVersionPrefix = "quotes:structure:version"
	// InvalidationChannel carries the id of every quotation whose derived views changed.
	InvalidationChannel = "quotes.structure.bump"
)

// StructureCache caches built hierarchies in Redis under per-quotation versioned keys.
// Concurrent builds of the same key are coalesced. Without a Redis client it only coalesces.
type StructureCache struct {
	client *redis.Client
	ttl    time.Duration
	flight singleflight.Group
}

// NewStructureCache instantiates the cache helper.
func NewStructureCache(client *redis.Client, ttl time.Duration) *StructureCache {
	return &StructureCache{client: client, ttl: ttl}
}

// Version returns the structure version of a quotation. Quotations never invalidated are at 0.
func (c *StructureCache) Version(ctx context.Context, quotationID int64) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, versionKey(quotationID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BuildKey composes the cache key of a hierarchy with the quotation's current version.
func (c *StructureCache) BuildKey(ctx context.Context, quotationID int64, opts structure.Options) (string, error) {
	ver, err := c.Version(ctx, quotationID)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{
		"quotes", "structure", strconv.FormatInt(quotationID, 10), string(opts.OrderBy),
		flag(opts.IncludePrices), flag(opts.IncludeDescriptions), "v" + strconv.FormatInt(ver, 10),
	}, ":"), nil
}

// FetchHierarchy returns the cached hierarchy or builds it with loader and stores the result.
func (c *StructureCache) FetchHierarchy(ctx context.Context, quotationID int64, opts structure.Options, loader func(context.Context) (structure.Hierarchy, error)) (structure.Hierarchy, error) {
	if loader == nil {
		return structure.Hierarchy{}, errors.New("cache: loader required")
	}
	key, err := c.BuildKey(ctx, quotationID, opts)
	if err != nil {
		return structure.Hierarchy{}, err
	}

	if c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			var h structure.Hierarchy
			if err := json.Unmarshal(payload, &h); err == nil {
				return h, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			return structure.Hierarchy{}, err
		}
	}

	ch := c.flight.DoChan(key, func() (interface{}, error) {
		h, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if c.client != nil {
			raw, err := json.Marshal(h)
			if err != nil {
				return nil, err
			}
			if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
				return nil, err
			}
		}
		return h, nil
	})
	select {
	case <-ctx.Done():
		return structure.Hierarchy{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return structure.Hierarchy{}, res.Err
		}
		return res.Val.(structure.Hierarchy), nil
	}
}

// Invalidate bumps the quotation's version and announces it on InvalidationChannel.
func (c *StructureCache) Invalidate(ctx context.Context, quotationID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Incr(ctx, versionKey(quotationID)).Err(); err != nil {
		return fmt.Errorf("bump structure version: %w", err)
	}
	return c.client.Publish(ctx, InvalidationChannel, strconv.FormatInt(quotationID, 10)).Err()
}

func versionKey(quotationID int64) string {
	return structureVersionPrefix + ":" + strconv.FormatInt(quotationID, 10)
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
