package idem

import (
	"context"
	"time"
)

// Store 协调器使用的键值存储抽象
//
// 所有协调状态都保存在 Store 中，协调器本身在调用之间无状态。
// 默认提供 Redis / Memory 实现。
type Store interface {
	// SetIfAbsent 原子地设置字符串值（SET NX EX），返回是否写入成功
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// ReadHash 读取哈希的所有字段，不存在时返回空 map
	ReadHash(ctx context.Context, key string) (map[string]string, error)

	// WriteHashField 写入哈希的单个字段
	WriteHashField(ctx context.Context, key, field, value string) error

	// SetExpiry 设置键的过期时间，键不存在时无操作
	SetExpiry(ctx context.Context, key string, ttl time.Duration) error
}

const (
	cacheKeyPrefix = "idempotency:"
	lockKeyPrefix  = "lock:"

	fieldStatus = "status"
	fieldData   = "data"
)

func cacheKey(namespace, key string) string {
	return namespace + cacheKeyPrefix + key
}

func lockKey(namespace, key string) string {
	return namespace + lockKeyPrefix + key
}
