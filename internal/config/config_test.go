package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:3000", cfg.Server.Addr())
	assert.Equal(t, 300*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 330*time.Second, cfg.Server.WriteTimeout)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1440, cfg.Browser.ViewportWidth)
	assert.Equal(t, "America/New_York", cfg.Browser.TimezoneID)

	assert.Equal(t, 3, cfg.Extractor.MaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.Extractor.BackoffStep)
	assert.Equal(t, 2*time.Second, cfg.Extractor.PreNavMin)
	assert.Equal(t, 5*time.Second, cfg.Extractor.PreNavMax)
	assert.Equal(t, 1500*time.Millisecond, cfg.Extractor.AfterScroll)
	assert.Equal(t, 1000, cfg.Extractor.SnippetLength)

	assert.Equal(t, CacheMemory, cfg.Cache.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL())
	assert.False(t, cfg.Database.Enabled())
	assert.Empty(t, cfg.Proxy.Server)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_LegacyEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PORT", "8081")
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PROXY_SERVER", "http://proxy.example.com:8000")
	t.Setenv("PROXY_USERNAME", "user")
	t.Setenv("PROXY_PASSWORD", "secret")
	t.Setenv("CACHE_TTL_MINUTES", "5")
	t.Setenv("SITES_DIR", "/etc/extractor/sites")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "http://proxy.example.com:8000", cfg.Proxy.Server)
	assert.Equal(t, "user", cfg.Proxy.Username)
	assert.Equal(t, "secret", cfg.Proxy.Password)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL())
	assert.Equal(t, "/etc/extractor/sites", cfg.Sites.Dir)
}

func TestLoad_PrefixedEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("EXTRACTOR_CACHE_BACKEND", "redis")
	t.Setenv("EXTRACTOR_REDIS_ADDR", "redis:6379")
	t.Setenv("EXTRACTOR_BROWSER_HEADLESS", "false")
	t.Setenv("EXTRACTOR_DATABASE_HOST", "postgres")
	t.Setenv("EXTRACTOR_EXTRACTOR_MAX_ATTEMPTS", "5")
	t.Setenv("PORT", "8081")
	t.Setenv("EXTRACTOR_SERVER_PORT", "9090")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, CacheRedis, cfg.Cache.Backend)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.False(t, cfg.Browser.Headless)
	assert.True(t, cfg.Database.Enabled())
	assert.Equal(t, 5, cfg.Extractor.MaxAttempts)
	assert.Equal(t, 9090, cfg.Server.Port, "prefixed name wins over the legacy one")
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "extractor.yaml")
	content := `
server:
  port: 4000
cache:
  backend: memcache
  ttl_minutes: 60
memcache:
  servers: ["cache-1:11211", "cache-2:11211"]
extractor:
  settle: 3s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, CacheMemcache, cfg.Cache.Backend)
	assert.Equal(t, time.Hour, cfg.Cache.TTL())
	assert.Equal(t, []string{"cache-1:11211", "cache-2:11211"}, cfg.Memcache.Servers)
	assert.Equal(t, 3*time.Second, cfg.Extractor.Settle)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:    ServerConfig{Port: 3000},
			Extractor: ExtractorConfig{MaxAttempts: 3, PreNavMin: 2 * time.Second, PreNavMax: 5 * time.Second},
			Cache:     CacheConfig{Backend: CacheMemory, TTLMinutes: 30},
			Logging:   LoggingConfig{Format: "json"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero port", func(c *Config) { c.Server.Port = 0 }, "server port"},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, "server port"},
		{"zero ttl", func(c *Config) { c.Cache.TTLMinutes = 0 }, "CACHE_TTL_MINUTES"},
		{"zero attempts", func(c *Config) { c.Extractor.MaxAttempts = 0 }, "max attempts"},
		{"inverted jitter", func(c *Config) { c.Extractor.PreNavMin = 10 * time.Second }, "pre_nav_min"},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "disk" }, "cache backend"},
		{"memcache without servers", func(c *Config) { c.Cache.Backend = CacheMemcache }, "memcache servers"},
		{"text logs", func(c *Config) { c.Logging.Format = "TEXT" }, ""},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }, "log format"},
		{"request outlives response", func(c *Config) {
			c.Server.WriteTimeout = 3 * time.Minute
			c.Server.RequestTimeout = 5 * time.Minute
		}, "request_timeout"},
		{"request timeout without write timeout", func(c *Config) { c.Server.RequestTimeout = 5 * time.Minute }, ""},
		{"negative rate", func(c *Config) { c.RateLimit.PerSecond = -1 }, "rate limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

// chdir switches the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
