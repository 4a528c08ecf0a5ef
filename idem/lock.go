package idem

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Lock 一次加锁尝试的结果
type Lock struct {
	Key      string
	Token    string
	Acquired bool
}

// Locker 基于 Store.SetIfAbsent 的非阻塞锁
//
// 锁从不显式释放，持有者崩溃后由 TTL 自动过期。
type Locker struct {
	store     Store
	namespace string
	ttl       time.Duration
}

// NewLocker 创建 Locker
func NewLocker(store Store, namespace string, ttl time.Duration) *Locker {
	return &Locker{store: store, namespace: namespace, ttl: ttl}
}

// TryAcquire 用随机令牌尝试获取 key 的锁，存储失败时返回错误
func (l *Locker) TryAcquire(ctx context.Context, key string) (Lock, error) {
	lock := Lock{
		Key:   lockKey(l.namespace, key),
		Token: uuid.NewString(),
	}
	acquired, err := l.store.SetIfAbsent(ctx, lock.Key, lock.Token, l.ttl)
	if err != nil {
		return lock, err
	}
	lock.Acquired = acquired
	return lock, nil
}
