package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodyBytes int64
}

// UpstreamConfig points at the backend session service.
type UpstreamConfig struct {
	BaseURL string
	Timeout time.Duration
}

// SessionConfig describes the access_token cookie. TTLs are per operation
// because login and signup/refresh historically used different lifetimes.
type SessionConfig struct {
	CookieName string
	Domain     string
	LoginTTL   time.Duration
	SignupTTL  time.Duration
	RefreshTTL time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type QueueConfig struct {
	Stream        string
	Group         string
	Consumer      string
	ClaimInterval time.Duration
	MaxDeliveries int64
	MaxLen        int64
}

type JobsConfig struct {
	HealthProbe       string
	TrimSchedule      string
	RetentionSchedule string
	AuditRetention    time.Duration
}

type RateLimitConfig struct {
	Enabled  bool
	Requests int64
	Window   time.Duration
}

type WorkerConfig struct {
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

type LoggingConfig struct {
	Level string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Upstream         UpstreamConfig
	Session          SessionConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Queue            QueueConfig
	Jobs             JobsConfig
	RateLimit        RateLimitConfig
	Worker           WorkerConfig
	Logging          LoggingConfig
	AllowCORSOrigins []string
}

func (c *AppConfig) Production() bool {
	return c.Environment == "production"
}

// Load reads config.yaml, then the environment. A .env file in the working
// directory is folded into the environment first; real variables win.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("DOCCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Upstream.BaseURL = strings.TrimRight(cfg.Upstream.BaseURL, "/")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AppConfig) validate() error {
	if c.RateLimit.Enabled {
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("ratelimit.window must be positive, got %s", c.RateLimit.Window)
		}
		if c.RateLimit.Requests <= 0 {
			return fmt.Errorf("ratelimit.requests must be positive, got %d", c.RateLimit.Requests)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 3000)
	v.SetDefault("http.readtimeout", "30s")
	v.SetDefault("http.writetimeout", "60s")
	v.SetDefault("http.idletimeout", "60s")
	v.SetDefault("http.maxbodybytes", 50<<20)

	v.SetDefault("upstream.baseurl", "http://localhost:8000")
	v.SetDefault("upstream.timeout", "30s")

	v.SetDefault("session.cookiename", "access_token")
	v.SetDefault("session.domain", "")
	v.SetDefault("session.loginttl", "24h")
	v.SetDefault("session.signupttl", "1h")
	v.SetDefault("session.refreshttl", "1h")

	// empty DSN disables the audit trail
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 10)
	v.SetDefault("postgres.maxidle", 2)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("queue.stream", "auth:logout-retry")
	v.SetDefault("queue.group", "logout-workers")
	v.SetDefault("queue.consumer", "worker-1")
	v.SetDefault("queue.claiminterval", "30s")
	v.SetDefault("queue.maxdeliveries", 5)
	v.SetDefault("queue.maxlen", 10000)

	v.SetDefault("jobs.healthprobe", "@every 30s")
	v.SetDefault("jobs.trimschedule", "0 0 * * * *")
	v.SetDefault("jobs.retentionschedule", "0 30 3 * * *")
	v.SetDefault("jobs.auditretention", "720h")

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.requests", 10)
	v.SetDefault("ratelimit.window", "1m")

	v.SetDefault("worker.retrymax", 3)
	v.SetDefault("worker.retrywaitmin", "1s")
	v.SetDefault("worker.retrywaitmax", "10s")

	v.SetDefault("logging.level", "")
	v.SetDefault("allowcorsorigins", []string{})
}
