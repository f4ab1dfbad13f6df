package config

import (
	"os"
	"time"

	"github.com/gogotex/gogotex/backend/collab-service/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Keycloak  KeycloakConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Sync      SyncConfig
	MinIO     MinIOConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type KeycloakConfig struct {
	URL          string
	Realm        string
	ClientID     string
	ClientSecret string
}

type JWTConfig struct {
	Secret        string
	AllowInsecure bool
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// SyncConfig tunes the realtime engine.
type SyncConfig struct {
	// Debounce is the quiescence window between the last local edit and the persist.
	Debounce time.Duration
	// VersionLimit caps listVersions responses.
	VersionLimit int
	// SendBuffer is the per-connection outbound queue length; a full queue drops messages.
	SendBuffer int
	// MessageRPS/MessageBurst limit inbound websocket frames per connection.
	MessageRPS   float64
	MessageBurst int
	// MaxMessageBytes bounds a single inbound frame (full document bodies travel in edits).
	MaxMessageBytes int64
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5020")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("MONGODB_DATABASE", "collab")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("RATE_LIMIT_ENABLED", false)
	viper.SetDefault("RATE_LIMIT_USE_REDIS", false)
	viper.SetDefault("RATE_LIMIT_RPS", 20.0)
	viper.SetDefault("RATE_LIMIT_BURST", 40)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	viper.SetDefault("SYNC_DEBOUNCE_MS", 1000)
	viper.SetDefault("SYNC_VERSION_LIMIT", 50)
	viper.SetDefault("SYNC_SEND_BUFFER", 64)
	viper.SetDefault("SYNC_MESSAGE_RPS", 50.0)
	viper.SetDefault("SYNC_MESSAGE_BURST", 100)
	viper.SetDefault("SYNC_MAX_MESSAGE_BYTES", 4<<20)
	viper.SetDefault("MINIO_BUCKET", "collab-versions")

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Keycloak: KeycloakConfig{
			URL:          viper.GetString("KEYCLOAK_URL"),
			Realm:        viper.GetString("KEYCLOAK_REALM"),
			ClientID:     viper.GetString("KEYCLOAK_CLIENT_ID"),
			ClientSecret: viper.GetString("KEYCLOAK_CLIENT_SECRET"),
		},
		JWT: JWTConfig{
			Secret:        os.Getenv("JWT_SECRET"),
			AllowInsecure: viper.GetBool("ALLOW_INSECURE_TOKEN"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Sync: SyncConfig{
			Debounce:        time.Duration(viper.GetInt("SYNC_DEBOUNCE_MS")) * time.Millisecond,
			VersionLimit:    viper.GetInt("SYNC_VERSION_LIMIT"),
			SendBuffer:      viper.GetInt("SYNC_SEND_BUFFER"),
			MessageRPS:      viper.GetFloat64("SYNC_MESSAGE_RPS"),
			MessageBurst:    viper.GetInt("SYNC_MESSAGE_BURST"),
			MaxMessageBytes: viper.GetInt64("SYNC_MAX_MESSAGE_BYTES"),
		},
		MinIO: MinIOConfig{
			Endpoint:  viper.GetString("MINIO_ENDPOINT"),
			AccessKey: viper.GetString("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    viper.GetBool("MINIO_USE_SSL"),
			Bucket:    viper.GetString("MINIO_BUCKET"),
		},
	}

	// Basic validation
	if cfg.JWT.Secret == "" {
		logger.Warnf("JWT_SECRET is not set; HS256 credentials will be rejected")
	}
	if cfg.Sync.Debounce <= 0 {
		cfg.Sync.Debounce = time.Second
	}
	if cfg.Sync.VersionLimit <= 0 || cfg.Sync.VersionLimit > 50 {
		cfg.Sync.VersionLimit = 50
	}
	if cfg.Sync.SendBuffer <= 0 {
		cfg.Sync.SendBuffer = 64
	}

	return cfg, nil
}
