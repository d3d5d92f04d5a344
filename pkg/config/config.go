package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "kiosk"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Env var names referenced by tests and error messages.
const (
	EnvAppEnv      = "KIOSK_APP_ENV"
	EnvPort        = "KIOSK_APP_PORT"
	EnvMongoURI    = "KIOSK_MONGO_URI"
	EnvMongoDB     = "KIOSK_MONGO_DATABASE"
	EnvRedisURL    = "KIOSK_REDIS_URL"
	EnvJWTSecret   = "KIOSK_JWT_SECRET"
	EnvJWTIssuer   = "KIOSK_JWT_ISSUER"
	EnvJWTExpMins  = "KIOSK_JWT_EXPIRATION_MINUTES"
	EnvSessionTTL  = "KIOSK_SESSION_TTL_MINUTES"
	EnvIdentityURL = "KIOSK_IDENTITY_BASE_URL"
)

type Config struct {
	App           AppConfig
	Mongo         MongoConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Identity      IdentityConfig
	Socket        SocketConfig
	Channel       ChannelConfig
	SendRateLimit SendRateLimitConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"KIOSK_APP_ENV" required:"true"`
	Port         string `envconfig:"KIOSK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"KIOSK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"KIOSK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type MongoConfig struct {
	URI            string        `envconfig:"KIOSK_MONGO_URI" required:"true"`
	Database       string        `envconfig:"KIOSK_MONGO_DATABASE" required:"true"`
	ConnectTimeout time.Duration `envconfig:"KIOSK_MONGO_CONNECT_TIMEOUT" default:"10s"`
}

type RedisConfig struct {
	URL          string        `envconfig:"KIOSK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"KIOSK_REDIS_ADDR"`
	Password     string        `envconfig:"KIOSK_REDIS_PASSWORD"`
	DB           int           `envconfig:"KIOSK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KIOSK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KIOSK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KIOSK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KIOSK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KIOSK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"KIOSK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"KIOSK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"KIOSK_JWT_EXPIRATION_MINUTES" required:"true"`
	SessionTTLMinutes int    `envconfig:"KIOSK_SESSION_TTL_MINUTES" default:"1440"`
}

// SessionTTL returns the cached session TTL configured in minutes.
func (j JWTConfig) SessionTTL() time.Duration {
	if j.SessionTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.SessionTTLMinutes) * time.Minute
}

type IdentityConfig struct {
	BaseURL        string        `envconfig:"KIOSK_IDENTITY_BASE_URL"`
	RequestTimeout time.Duration `envconfig:"KIOSK_IDENTITY_REQUEST_TIMEOUT" default:"5s"`
	RetryAttempts  int           `envconfig:"KIOSK_IDENTITY_RETRY_ATTEMPTS" default:"1"`
	RetryWait      time.Duration `envconfig:"KIOSK_IDENTITY_RETRY_WAIT" default:"500ms"`
}

type SocketConfig struct {
	AuthTimeout     time.Duration `envconfig:"KIOSK_SOCKET_AUTH_TIMEOUT" default:"2s"`
	SendBufferSize  int           `envconfig:"KIOSK_SOCKET_SEND_BUFFER" default:"32"`
	WriteTimeout    time.Duration `envconfig:"KIOSK_SOCKET_WRITE_TIMEOUT" default:"10s"`
	PongTimeout     time.Duration `envconfig:"KIOSK_SOCKET_PONG_TIMEOUT" default:"60s"`
	PingInterval    time.Duration `envconfig:"KIOSK_SOCKET_PING_INTERVAL" default:"54s"`
	MaxMessageBytes int64         `envconfig:"KIOSK_SOCKET_MAX_MESSAGE_BYTES" default:"4096"`
}

type ChannelConfig struct {
	ReconnectMinWait time.Duration `envconfig:"KIOSK_CHANNEL_RECONNECT_MIN_WAIT" default:"250ms"`
	ReconnectMaxWait time.Duration `envconfig:"KIOSK_CHANNEL_RECONNECT_MAX_WAIT" default:"30s"`
}

type SendRateLimitConfig struct {
	Window time.Duration `envconfig:"KIOSK_SEND_RATE_LIMIT_WINDOW" default:"1m"`
	Limit  int           `envconfig:"KIOSK_SEND_RATE_LIMIT" default:"60"`
}

type CronConfig struct {
	Interval      time.Duration `envconfig:"KIOSK_CRON_INTERVAL" default:"24h"`
	LockTTL       time.Duration `envconfig:"KIOSK_CRON_LOCK_TTL" default:"25h"`
	RetentionDays int           `envconfig:"KIOSK_NOTIFICATION_RETENTION_DAYS" default:"30"`
}
