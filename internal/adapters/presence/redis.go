// Package presence provides the redis-backed online-user index, used
// when the chat service runs on more than one node.
package presence

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/dkeye/eventchat/internal/core"
	"github.com/dkeye/eventchat/internal/domain"
)

const onlineKey = "chat:online"

// RedisIndex keeps the who-is-online set in a redis SET. One entry per
// user regardless of how many connections they hold.
type RedisIndex struct {
	rdb *redis.Client
}

func NewRedisIndex(addr string) core.OnlineIndex {
	return &RedisIndex{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

func (r *RedisIndex) Add(ctx context.Context, userID domain.UserID) error {
	return r.rdb.SAdd(ctx, onlineKey, string(userID)).Err()
}

func (r *RedisIndex) Remove(ctx context.Context, userID domain.UserID) error {
	return r.rdb.SRem(ctx, onlineKey, string(userID)).Err()
}

func (r *RedisIndex) Online(ctx context.Context, userID domain.UserID) (bool, error) {
	return r.rdb.SIsMember(ctx, onlineKey, string(userID)).Result()
}

func (r *RedisIndex) Count(ctx context.Context) (int64, error) {
	return r.rdb.SCard(ctx, onlineKey).Result()
}
