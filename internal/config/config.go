package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	Gateway      GatewayConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Resolver     ResolverConfig
	Auth         AuthConfig
	Verification VerificationConfig
	Scheduler    SchedulerConfig
	Mimir        MimirConfig
}

type ServerConfig struct {
	Port    string
	OpsPort string
	Mode    string
}

type GatewayConfig struct {
	UpstreamURL             string
	TenantHeader            string
	StripClientTenantHeader bool
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdleConns   int
	AutoMigrate    bool
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ResolverConfig is everything the resolution engine needs at construction.
type ResolverConfig struct {
	BaseDomain      string
	L1TTL           time.Duration
	L1Size          int
	L2TTL           time.Duration
	NegativeTTL     time.Duration
	VerificationTTL time.Duration
	KeyPrefix       string

	// InvalidationChannel is the pub/sub channel used to evict other instances' L1.
	InvalidationChannel string
	CacheWriteTimeout   time.Duration
}

type AuthConfig struct {
	JWTSecret string
}

type VerificationConfig struct {
	RecordPrefix    string
	Nameserver      string
	QueryTimeout    time.Duration
	MaxAttempts     int
	ProbesPerSecond float64
	TLSDialTimeout  time.Duration
	CertificatePort string
}

type SchedulerConfig struct {
	WorkerCount int
	Interval    time.Duration
	JobTimeout  time.Duration
	BatchSize   int

	// RetryInterval is the minimum gap between scheduled verification
	// attempts of one domain.
	RetryInterval time.Duration
}

type MimirConfig struct {
	URL           string
	TenantHeader  string
	TenantID      string
	BatchSize     int
	FlushInterval time.Duration
	AuthToken     string
}

func Load() (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Override with environment variables
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if url := os.Getenv("MIMIR_URL"); url != "" {
		cfg.Mimir.URL = url
	}
	if token := os.Getenv("MIMIR_AUTH_TOKEN"); token != "" {
		cfg.Mimir.AuthToken = token
	}

	cfg.Resolver.BaseDomain = strings.ToLower(strings.Trim(strings.TrimSpace(cfg.Resolver.BaseDomain), "."))
	if cfg.Resolver.BaseDomain == "" {
		return nil, errors.New("resolver.basedomain is required")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.opsport", "9090")
	v.SetDefault("server.mode", "release")

	v.SetDefault("gateway.upstreamurl", "http://localhost:8000")
	v.SetDefault("gateway.tenantheader", "X-Tenant-ID")
	v.SetDefault("gateway.stripclienttenantheader", true)

	v.SetDefault("database.maxconnections", 25)
	v.SetDefault("database.maxidleconns", 5)
	v.SetDefault("database.automigrate", false)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.poolsize", 50)
	v.SetDefault("redis.minidleconns", 5)
	v.SetDefault("redis.dialtimeout", "2s")
	v.SetDefault("redis.readtimeout", "200ms")
	v.SetDefault("redis.writetimeout", "200ms")

	v.SetDefault("resolver.basedomain", "")
	v.SetDefault("resolver.l1ttl", "5m")
	v.SetDefault("resolver.l1size", 10000)
	v.SetDefault("resolver.l2ttl", "10m")
	v.SetDefault("resolver.negativettl", "30s")
	v.SetDefault("resolver.verificationttl", "72h")
	v.SetDefault("resolver.keyprefix", "tenant-domain:")
	v.SetDefault("resolver.invalidationchannel", "tenant-domain:invalidate")
	v.SetDefault("resolver.cachewritetimeout", "500ms")

	v.SetDefault("verification.recordprefix", "_tenant-verify")
	v.SetDefault("verification.nameserver", "8.8.8.8:53")
	v.SetDefault("verification.querytimeout", "5s")
	// With scheduler.retryinterval=6h, 10 attempts span 54h of the 72h token.
	v.SetDefault("verification.maxattempts", 10)
	v.SetDefault("verification.probespersecond", 5)
	v.SetDefault("verification.tlsdialtimeout", "10s")
	v.SetDefault("verification.certificateport", "443")

	v.SetDefault("scheduler.workercount", 4)
	v.SetDefault("scheduler.interval", "1m")
	v.SetDefault("scheduler.jobtimeout", "30s")
	v.SetDefault("scheduler.batchsize", 100)
	v.SetDefault("scheduler.retryinterval", "6h")

	v.SetDefault("mimir.tenantheader", "X-Scope-OrgID")
	v.SetDefault("mimir.tenantid", "tenant-gateway")
	v.SetDefault("mimir.batchsize", 1000)
	v.SetDefault("mimir.flushinterval", "30s")
}
