package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "EXTRACTOR"

// Cache backends.
const (
	CacheMemory   = "memory"
	CacheRedis    = "redis"
	CacheMemcache = "memcache"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Memcache  MemcacheConfig  `mapstructure:"memcache"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Sites     SitesConfig     `mapstructure:"sites"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// RequestTimeout bounds one RPC, extraction included. It must leave
	// room inside WriteTimeout for the response.
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type BrowserConfig struct {
	Headless       bool          `mapstructure:"headless"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ViewportWidth  int           `mapstructure:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height"`
	Locale         string        `mapstructure:"locale"`
	TimezoneID     string        `mapstructure:"timezone"`
	AcceptLanguage string        `mapstructure:"accept_language"`
}

type ProxyConfig struct {
	Server   string `mapstructure:"server"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type ExtractorConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts"`
	BackoffStep   time.Duration `mapstructure:"backoff_step"`
	PreNavMin     time.Duration `mapstructure:"pre_nav_min"`
	PreNavMax     time.Duration `mapstructure:"pre_nav_max"`
	Settle        time.Duration `mapstructure:"settle"`
	AfterScroll   time.Duration `mapstructure:"after_scroll"`
	SnippetLength int           `mapstructure:"snippet_length"`
}

type CacheConfig struct {
	Backend    string `mapstructure:"backend"`
	TTLMinutes int    `mapstructure:"ttl_minutes"`
	Prefix     string `mapstructure:"prefix"`
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MemcacheConfig struct {
	Servers []string `mapstructure:"servers"`
}

// DatabaseConfig enables the extraction archive when Host is set.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

type RelayConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

type SitesConfig struct {
	Dir string `mapstructure:"dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RateLimitConfig bounds tool calls per second. Zero disables the limit.
type RateLimitConfig struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

// Load reads defaults, then the optional config file, then the
// environment. path may be empty to search for config.yaml in the working
// directory and ./config.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "330s")
	v.SetDefault("server.request_timeout", "300s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.timeout", "30s")
	v.SetDefault("browser.viewport_width", 1440)
	v.SetDefault("browser.viewport_height", 900)
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.timezone", "America/New_York")
	v.SetDefault("browser.accept_language", "en-US,en;q=0.9")

	v.SetDefault("proxy.server", "")
	v.SetDefault("proxy.username", "")
	v.SetDefault("proxy.password", "")

	v.SetDefault("extractor.max_attempts", 3)
	v.SetDefault("extractor.backoff_step", "5s")
	v.SetDefault("extractor.pre_nav_min", "2s")
	v.SetDefault("extractor.pre_nav_max", "5s")
	v.SetDefault("extractor.settle", "5s")
	v.SetDefault("extractor.after_scroll", "1500ms")
	v.SetDefault("extractor.snippet_length", 1000)

	v.SetDefault("cache.backend", CacheMemory)
	v.SetDefault("cache.ttl_minutes", 30)
	v.SetDefault("cache.prefix", "product-extractor")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("memcache.servers", []string{"localhost:11211"})

	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "product_extractor")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("relay.poll_interval", "5s")
	v.SetDefault("relay.batch_size", 100)

	v.SetDefault("sites.dir", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("ratelimit.per_second", 0)
	v.SetDefault("ratelimit.burst", 5)
}

// bindLegacyEnv maps the unprefixed variable names deployments already
// use. The prefixed form still wins when both are set.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"server.port":       "PORT",
		"server.host":       "HOST",
		"proxy.server":      "PROXY_SERVER",
		"proxy.username":    "PROXY_USERNAME",
		"proxy.password":    "PROXY_PASSWORD",
		"cache.ttl_minutes": "CACHE_TTL_MINUTES",
		"sites.dir":         "SITES_DIR",
		"logging.level":     "LOG_LEVEL",
	}
	for key, legacy := range bindings {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return fmt.Errorf("failed to bind %s: %w", legacy, err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.WriteTimeout > 0 && c.Server.RequestTimeout > c.Server.WriteTimeout {
		return fmt.Errorf("server request_timeout (%s) cannot be greater than write_timeout (%s)",
			c.Server.RequestTimeout, c.Server.WriteTimeout)
	}
	if c.Cache.TTLMinutes < 1 {
		return fmt.Errorf("CACHE_TTL_MINUTES must be at least 1, got %d", c.Cache.TTLMinutes)
	}
	if c.Extractor.MaxAttempts < 1 {
		return fmt.Errorf("extractor max attempts must be at least 1, got %d", c.Extractor.MaxAttempts)
	}
	if c.Extractor.PreNavMin > c.Extractor.PreNavMax {
		return fmt.Errorf("extractor pre_nav_min (%s) cannot be greater than pre_nav_max (%s)",
			c.Extractor.PreNavMin, c.Extractor.PreNavMax)
	}

	switch c.Cache.Backend {
	case CacheMemory, CacheRedis:
	case CacheMemcache:
		if len(c.Memcache.Servers) == 0 {
			return errors.New("memcache servers are required when the cache backend is 'memcache'")
		}
	default:
		return fmt.Errorf("cache backend must be one of memory, redis, memcache, got: %s", c.Cache.Backend)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log format must be 'json' or 'text', got: %s", c.Logging.Format)
	}

	if c.RateLimit.PerSecond < 0 {
		return fmt.Errorf("rate limit must not be negative, got %v", c.RateLimit.PerSecond)
	}

	return nil
}
