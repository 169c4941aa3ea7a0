package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	missKeyPrefix = "shortlink:miss:"
	// genKeyPrefix holds a per-path counter bumped by every clear.
	genKeyPrefix = "shortlink:missgen:"

	// NegativeCacheTTL is the TTL for negative cache entries.
	NegativeCacheTTL = 5 * time.Minute
)

// setMissScript writes the miss entry only while the path's generation is the
// one the caller read before its store lookup.
var setMissScript = redis.NewScript(`
	local gen = redis.call('GET', KEYS[2]) or '0'
	if gen ~= ARGV[1] then
		return 0
	end
	redis.call('SET', KEYS[1], '', 'EX', tonumber(ARGV[2]))
	return 1
`)

// IsNegativelyCached reports whether path was recently looked up and not found.
// The returned generation must be passed to SetNegativeCache after the lookup.
func (c *Cache) IsNegativelyCached(ctx context.Context, path string) (bool, int64, error) {
	vals, err := c.client.MGet(ctx, missKeyPrefix+path, genKeyPrefix+path).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to check negative cache: %w", err)
	}
	var gen int64
	if s, ok := vals[1].(string); ok {
		if gen, err = strconv.ParseInt(s, 10, 64); err != nil {
			return false, 0, fmt.Errorf("invalid negative cache generation %q: %w", s, err)
		}
	}
	return vals[0] != nil, gen, nil
}

// SetNegativeCache marks path as not found unless a clear happened since
// generation was read. It reports whether the entry was written.
func (c *Cache) SetNegativeCache(ctx context.Context, path string, generation int64) (bool, error) {
	keys := []string{missKeyPrefix + path, genKeyPrefix + path}
	n, err := setMissScript.Run(ctx, c.client, keys, strconv.FormatInt(generation, 10), int(NegativeCacheTTL.Seconds())).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("failed to set negative cache: %w", err)
	}
	return n == 1, nil
}

// ClearNegativeCache drops the negative entries for paths and bumps their
// generations. Called whenever a shortlink is created, renamed or enabled.
func (c *Cache) ClearNegativeCache(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range paths {
			pipe.Incr(ctx, genKeyPrefix+p)
			// Outlives any lookup in flight; expiry resets the counter to 0.
			pipe.Expire(ctx, genKeyPrefix+p, NegativeCacheTTL)
			pipe.Del(ctx, missKeyPrefix+p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear negative cache: %w", err)
	}
	return nil
}
