package idem

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/onetake/connector"
	"github.com/ceyewan/onetake/xerrors"
)

// redisStore Redis 存储实现（非导出）
//
// 每个操作从连接池中借出一个连接，操作结束（无论成败）后归还。
type redisStore struct {
	conn connector.RedisConnector
}

func newRedisStore(conn connector.RedisConnector) Store {
	return &redisStore{conn: conn}
}

func (rs *redisStore) withConn(ctx context.Context, fn func(conn *redis.Conn) error) error {
	client := rs.conn.GetClient()
	if client == nil {
		return xerrors.Wrap(connector.ErrClientNil, "redis store")
	}
	conn := client.Conn()
	defer conn.Close()
	return fn(conn)
}

// SetIfAbsent 使用 SET NX EX 原子写入
func (rs *redisStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	var ok bool
	err := rs.withConn(ctx, func(conn *redis.Conn) error {
		res, err := conn.SetNX(ctx, key, value, ttl).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return xerrors.Wrap(err, "set if absent")
		}
		ok = res
		return nil
	})
	return ok, err
}

func (rs *redisStore) ReadHash(ctx context.Context, key string) (map[string]string, error) {
	var fields map[string]string
	err := rs.withConn(ctx, func(conn *redis.Conn) error {
		res, err := conn.HGetAll(ctx, key).Result()
		if err != nil {
			return xerrors.Wrap(err, "read hash")
		}
		fields = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]string{}
	}
	return fields, nil
}

func (rs *redisStore) WriteHashField(ctx context.Context, key, field, value string) error {
	return rs.withConn(ctx, func(conn *redis.Conn) error {
		if err := conn.HSet(ctx, key, field, value).Err(); err != nil {
			return xerrors.Wrap(err, "write hash field")
		}
		return nil
	})
}

func (rs *redisStore) SetExpiry(ctx context.Context, key string, ttl time.Duration) error {
	return rs.withConn(ctx, func(conn *redis.Conn) error {
		if err := conn.Expire(ctx, key, ttl).Err(); err != nil {
			return xerrors.Wrap(err, "set expiry")
		}
		return nil
	})
}
