package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/product-info-extractor/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Browser: config.BrowserConfig{Headless: true},
		Cache:   config.CacheConfig{Backend: config.CacheMemory, TTLMinutes: 30},
	}
}

func TestBrowserOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Browser.Headless = false
	cfg.Browser.Locale = "ko-KR"
	cfg.Browser.TimezoneID = "Asia/Seoul"
	cfg.Proxy = config.ProxyConfig{Server: "http://proxy.example.com:8000", Username: "user", Password: "secret"}

	opts := BrowserOptions(cfg)

	assert.False(t, opts.Headless)
	assert.Equal(t, "ko-KR", opts.Locale)
	assert.Equal(t, "Asia/Seoul", opts.TimezoneID)
	assert.Equal(t, 1440, opts.ViewportWidth, "unset viewport keeps the default")
	assert.Equal(t, 900, opts.ViewportHeight)
	assert.Equal(t, 2.0, opts.DeviceScaleFactor)
	assert.Equal(t, "http://proxy.example.com:8000", opts.Proxy.Server)
	assert.Equal(t, "user", opts.Proxy.Username)
	assert.Equal(t, "secret", opts.Proxy.Password)
}

func TestExtractorSettings(t *testing.T) {
	cfg := testConfig()
	cfg.Extractor = config.ExtractorConfig{
		MaxAttempts: 5,
		Settle:      2 * time.Second,
	}

	s := ExtractorSettings(cfg)

	assert.Equal(t, 5, s.MaxAttempts)
	assert.Equal(t, 2*time.Second, s.Settle)
	assert.Equal(t, 5*time.Second, s.BackoffStep)
	assert.Equal(t, 2*time.Second, s.PreNavMin)
	assert.Equal(t, 5*time.Second, s.PreNavMax)
	assert.Equal(t, 1500*time.Millisecond, s.AfterScroll)
	assert.Equal(t, 1000, s.SnippetLength)
}

func TestNew_MemoryBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Sites.Dir = t.TempDir()

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	assert.NotNil(t, a.Service)
	assert.Nil(t, a.Relay, "no archive without a database host")
	assert.Nil(t, a.Snapshots)
	assert.False(t, a.Session.Initialized())
	assert.Equal(t, []string{"ugg", "chanel", "weverse", "base"}, a.Profiles.Names())
	assert.Equal(t, "ugg", a.Profiles.Resolve("https://www.ugg.com/women/classic-mini/1016222.html").Name)

	a.StartRelay(context.Background())
	require.NoError(t, a.Close())
	assert.NoError(t, a.Close(), "closing twice is harmless")
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Backend = "disk"

	_, err := New(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "unknown cache backend")
}

func TestNew_RedisUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Backend = config.CacheRedis
	cfg.Redis.Addr = "127.0.0.1:1"

	_, err := New(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "failed to connect to Redis")
}
