package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// MemcacheStore keeps cached results in memcached. Keys are hashed since
// URLs can exceed memcached's key length and character rules.
type MemcacheStore struct {
	client *memcache.Client
}

func NewMemcacheStore(servers ...string) *MemcacheStore {
	return &MemcacheStore{client: memcache.New(servers...)}
}

func memcacheKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return "pie:" + hex.EncodeToString(sum[:])
}

func (m *MemcacheStore) Get(_ context.Context, key string) ([]byte, error) {
	item, err := m.client.Get(memcacheKey(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("memcache get: %w", err)
	}
	return item.Value, nil
}

func (m *MemcacheStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	secs := int32(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	return m.client.Set(&memcache.Item{
		Key:        memcacheKey(key),
		Value:      value,
		Expiration: secs,
	})
}

func (m *MemcacheStore) Delete(_ context.Context, key string) error {
	err := m.client.Delete(memcacheKey(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}

// Ping checks that a server is reachable.
func (m *MemcacheStore) Ping() error {
	return m.client.Ping()
}
