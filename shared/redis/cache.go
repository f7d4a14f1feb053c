package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ViewCache is a JSON-backed Redis cache for read projections of type T.
// Cache failures are logged and treated as misses; the database stays the
// source of truth.
//
// Each id has a generation counter stored at prefix+"gen:"+id, and entries
// live at prefix+id+":"+generation. Invalidate bumps the counter, so a reader
// that loaded rows before a write committed can only store them under a
// generation nobody reads any more.
type ViewCache[T any] struct {
	client goredis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewViewCache builds a cache for ids under prefix. A zero ttl keeps entries
// until they are invalidated.
func NewViewCache[T any](client goredis.Cmdable, prefix string, ttl time.Duration) *ViewCache[T] {
	return &ViewCache[T]{client: client, prefix: prefix, ttl: ttl}
}

func (c *ViewCache[T]) genKey(id string) string {
	return c.prefix + "gen:" + id
}

func (c *ViewCache[T]) entryKey(id string, gen int64) string {
	return c.prefix + id + ":" + strconv.FormatInt(gen, 10)
}

// generation returns the current generation of id. ok is false when Redis
// could not be read, in which case nothing should be cached.
func (c *ViewCache[T]) generation(ctx context.Context, id string) (gen int64, ok bool) {
	gen, err := c.client.Get(ctx, c.genKey(id)).Int64()
	switch {
	case err == goredis.Nil:
		return 0, true
	case err != nil:
		log.Warn().Err(err).Str("key", c.genKey(id)).Msg("view cache generation read failed")
		return 0, false
	}
	return gen, true
}

func (c *ViewCache[T]) get(ctx context.Context, key string) (*T, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != goredis.Nil {
			log.Warn().Err(err).Str("key", key).Msg("view cache read failed")
		}
		return nil, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("view cache decode failed")
		return nil, false
	}
	return &v, true
}

func (c *ViewCache[T]) set(ctx context.Context, key string, value *T) {
	data, err := json.Marshal(value)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("view cache encode failed")
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("view cache write failed")
	}
}

// GetOrLoad serves id from the cache, falling back to load and warming the
// cache with its result. The result is stored under the generation read
// before load ran.
func (c *ViewCache[T]) GetOrLoad(ctx context.Context, id string, load func(ctx context.Context) (*T, error)) (*T, error) {
	gen, ok := c.generation(ctx, id)
	if !ok {
		return load(ctx)
	}
	key := c.entryKey(id, gen)
	if v, hit := c.get(ctx, key); hit {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, v)
	return v, nil
}

// Invalidate retires every entry cached for id so far. Call it after the
// write has committed.
func (c *ViewCache[T]) Invalidate(ctx context.Context, id string) {
	gen, err := c.client.Incr(ctx, c.genKey(id)).Result()
	if err != nil {
		log.Warn().Err(err).Str("key", c.genKey(id)).Msg("view cache invalidate failed")
		return
	}
	if err := c.client.Del(ctx, c.entryKey(id, gen-1)).Err(); err != nil {
		log.Warn().Err(err).Str("key", c.entryKey(id, gen-1)).Msg("view cache delete failed")
	}
}
