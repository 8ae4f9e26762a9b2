package embedding

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vidknora/vidknora/internal/logger"
)

// RedisCache is the optional second-tier embedding cache shared across
// worker processes, consulted by cachingEmbedder after an in-process
// LRU miss (spec §4.3). A cache miss or Redis error is treated as "not
// cached" rather than a hard failure.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache constructs a RedisCache with entries expiring after
// ttl (a zero ttl never expires).
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: "vidknora:embed:"}
}

func (r *RedisCache) get(ctx context.Context, key string) ([]float32, bool) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.GetLogger(ctx).Warnf("embedding redis cache get: %v", err)
		}
		return nil, false
	}
	return decodeVector(data), true
}

func (r *RedisCache) put(ctx context.Context, key string, vec []float32) {
	if err := r.client.Set(ctx, r.prefix+key, encodeVector(vec), r.ttl).Err(); err != nil {
		logger.GetLogger(ctx).Warnf("embedding redis cache put: %v", err)
	}
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.BigEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.BigEndian.Uint32(buf[i*4:]))
	}
	return vec
}
