package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestKey(t *testing.T) {
	assert.Equal(t, "https://www.ugg.com/p/1.html_true", Key("https://www.ugg.com/p/1.html", true))
	assert.Equal(t, "https://www.ugg.com/p/1.html_false", Key("https://www.ugg.com/p/1.html", false))
}

func TestGetOrCompute_HitWithinTTL(t *testing.T) {
	clk := &clock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	c := New(NewMemoryStoreWithClock(clk.Now), nil)
	ctx := context.Background()

	calls := 0
	compute := func(context.Context) ([]byte, error) {
		calls++
		return []byte(`{"product":{"name":"Classic Mini"}}`), nil
	}

	first, hit, err := c.GetOrCompute(ctx, "k", 30*time.Minute, compute)
	require.NoError(t, err)
	assert.False(t, hit)

	clk.Advance(29 * time.Minute)
	second, hit, err := c.GetOrCompute(ctx, "k", 30*time.Minute, compute)
	require.NoError(t, err)
	assert.True(t, hit)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, Stats{Hits: 1, Misses: 1}, c.Stats())
}

func TestGetOrCompute_RecomputesAfterTTL(t *testing.T) {
	clk := &clock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStoreWithClock(clk.Now)
	c := New(store, nil)
	ctx := context.Background()

	calls := 0
	compute := func(context.Context) ([]byte, error) {
		calls++
		return []byte{byte('0' + calls)}, nil
	}

	_, _, err := c.GetOrCompute(ctx, "k", time.Minute, compute)
	require.NoError(t, err)

	clk.Advance(time.Minute)
	v, hit, err := c.GetOrCompute(ctx, "k", time.Minute, compute)
	require.NoError(t, err)

	assert.False(t, hit)
	assert.Equal(t, []byte("2"), v)
	assert.Equal(t, 2, calls)
}

func TestGetOrCompute_ErrorNotStored(t *testing.T) {
	store := NewMemoryStore()
	c := New(store, nil)
	boom := errors.New("blocked")

	_, _, err := c.GetOrCompute(context.Background(), "k", time.Minute, func(context.Context) ([]byte, error) {
		return nil, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.Len())
}

type failingStore struct{ *MemoryStore }

func (f *failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func TestGetOrCompute_StoreFailureIsMiss(t *testing.T) {
	c := New(&failingStore{MemoryStore: NewMemoryStore()}, nil)

	v, hit, err := c.GetOrCompute(context.Background(), "k", time.Minute, func(context.Context) ([]byte, error) {
		return []byte("fresh"), nil
	})

	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []byte("fresh"), v)
}

func TestMemoryStore_LazyEviction(t *testing.T) {
	clk := &clock{t: time.Unix(0, 0)}
	store := NewMemoryStoreWithClock(clk.Now)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), time.Hour))

	clk.Advance(2 * time.Second)
	assert.Equal(t, 2, store.Len())

	_, err := store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, 1, store.Len())

	v, err := store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)

	require.NoError(t, store.Delete(ctx, "b"))
	assert.Equal(t, 0, store.Len())
}

// Requires a running Redis on localhost:6379; skipped otherwise.
func TestRedisStore(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()
	ctx := context.Background()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis is not available, skipping test")
	}

	store := NewRedisStore(client, "product-extractor-test")

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Second))
	v, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, store.Delete(ctx, "k"))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

// Requires a running memcached on localhost:11211; skipped otherwise.
func TestMemcacheStore(t *testing.T) {
	store := NewMemcacheStore("localhost:11211")
	if err := store.Ping(); err != nil {
		t.Skip("Memcached is not available, skipping test")
	}
	ctx := context.Background()

	key := "https://www.ugg.com/women/very/long/path?with=query&and spaces_true"
	require.NoError(t, store.Set(ctx, key, []byte("v"), time.Minute))

	v, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key))

	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemcacheKey(t *testing.T) {
	k := memcacheKey("https://www.ugg.com/p/1.html_true")
	assert.Len(t, k, 4+64)
	assert.NotContains(t, k, " ")
	assert.Less(t, len(k), 250)
}
