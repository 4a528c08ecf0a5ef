package idem

import (
	"context"
	"sync"
	"time"
)

type memoryString struct {
	value     string
	expiresAt time.Time
}

type memoryHash struct {
	fields    map[string]string
	expiresAt time.Time // 零值表示永不过期
}

// memoryStore 内存存储实现（非导出，仅用于单机）
type memoryStore struct {
	mu      sync.Mutex
	strings map[string]memoryString
	hashes  map[string]*memoryHash
	now     func() time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		strings: make(map[string]memoryString),
		hashes:  make(map[string]*memoryHash),
		now:     time.Now,
	}
}

func expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !expiresAt.After(now)
}

func (ms *memoryStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	if entry, ok := ms.strings[key]; ok && !expired(entry.expiresAt, now) {
		return false, nil
	}

	entry := memoryString{value: value}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	ms.strings[key] = entry
	return true, nil
}

func (ms *memoryStore) ReadHash(ctx context.Context, key string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	h, ok := ms.hashes[key]
	if !ok {
		return map[string]string{}, nil
	}
	if expired(h.expiresAt, ms.now()) {
		delete(ms.hashes, key)
		return map[string]string{}, nil
	}

	fields := make(map[string]string, len(h.fields))
	for k, v := range h.fields {
		fields[k] = v
	}
	return fields, nil
}

func (ms *memoryStore) WriteHashField(ctx context.Context, key, field, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	h, ok := ms.hashes[key]
	if !ok || expired(h.expiresAt, ms.now()) {
		h = &memoryHash{fields: make(map[string]string)}
		ms.hashes[key] = h
	}
	h.fields[field] = value
	return nil
}

func (ms *memoryStore) SetExpiry(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	if h, ok := ms.hashes[key]; ok && !expired(h.expiresAt, now) {
		h.expiresAt = now.Add(ttl)
		return nil
	}
	if s, ok := ms.strings[key]; ok && !expired(s.expiresAt, now) {
		s.expiresAt = now.Add(ttl)
		ms.strings[key] = s
	}
	return nil
}
