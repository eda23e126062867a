package idgen

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClock reads time from Redis so that every process generating IDs
// shares one clock and node restarts cannot hand out stale timestamps.
type RedisClock struct {
	client *redis.Client
	ctx    context.Context
}

func NewRedisClock(client *redis.Client) *RedisClock {
	return &RedisClock{
		client: client,
		ctx:    context.Background(),
	}
}

func (r *RedisClock) Now() int64 {
	res, err := r.client.Time(r.ctx).Result()
	if err != nil {
		// Fall back to the local clock rather than blocking ID issuance on
		// a Redis outage.
		return time.Now().UnixMilli()
	}

	return res.Unix()*1000 + int64(res.Nanosecond())/1000000
}
