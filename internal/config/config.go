package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bot.
type Config struct {
	App       AppConfig
	Discord   DiscordConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	Logger    LoggerConfig
	AdminAPI  AdminAPIConfig
	Lifecycle LifecycleConfig
}

// AppConfig controls process level behavior.
type AppConfig struct {
	Name    string
	Env     string
	Host    string
	Port    string
	Version string
}

// DiscordConfig holds gateway credentials.
type DiscordConfig struct {
	Token string
}

// RedisConfig holds Redis connection values for the settings store.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// PostgresConfig holds archive store connection values. An empty DSN
// disables archival.
type PostgresConfig struct {
	DSN           string
	MaxConns      int32
	MinConns      int32
	RunMigrations bool
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AdminAPIConfig defines the ops HTTP surface.
type AdminAPIConfig struct {
	Enabled   bool
	JWTSecret string
}

// LifecycleConfig carries the ticket flow timing knobs.
type LifecycleConfig struct {
	PublishCloseDelay time.Duration
	CloseDelay        time.Duration
	DeleteGraceDelay  time.Duration
	HistoryScanLimit  int
	ChannelNameLimit  int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	token := os.Getenv("DISCORD_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN is required")
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "ticket-bot"),
			Env:     getEnv("APP_ENV", "development"),
			Host:    getEnv("APP_HOST", "0.0.0.0"),
			Port:    getEnv("APP_PORT", "8080"),
			Version: getEnv("APP_VERSION", "dev"),
		},
		Discord: DiscordConfig{
			Token: token,
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        redisDB,
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "ticketbot"),
		},
		Postgres: PostgresConfig{
			DSN:           os.Getenv("POSTGRES_DSN"),
			MaxConns:      int32(getEnvAsInt("POSTGRES_MAX_CONNS", 4)),
			MinConns:      int32(getEnvAsInt("POSTGRES_MIN_CONNS", 1)),
			RunMigrations: getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		AdminAPI: AdminAPIConfig{
			Enabled:   getEnvAsBool("ADMIN_API_ENABLED", true),
			JWTSecret: getEnv("ADMIN_API_JWT_SECRET", "dev-secret"),
		},
		Lifecycle: LifecycleConfig{
			PublishCloseDelay: secondsEnv("TICKET_PUBLISH_CLOSE_DELAY_SECONDS", 5),
			CloseDelay:        secondsEnv("TICKET_CLOSE_DELAY_SECONDS", 3),
			DeleteGraceDelay:  secondsEnv("TICKET_DELETE_GRACE_SECONDS", 60),
			HistoryScanLimit:  getEnvAsInt("TICKET_HISTORY_SCAN_LIMIT", 200),
			ChannelNameLimit:  getEnvAsInt("TICKET_CHANNEL_NAME_LIMIT", 15),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address for the admin API.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

func secondsEnv(key string, fallback int) time.Duration {
	return time.Duration(getEnvAsInt(key, fallback)) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
