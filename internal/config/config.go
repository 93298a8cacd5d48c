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
	App        AppConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Jira       JiraConfig
	Telegram   TelegramConfig
	Reconciler ReconcilerConfig
	Admin      AdminConfig
	Metrics    MetricsConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// JiraConfig holds issue tracker connection and query values. The two
// custom-field ids locate the Telegram username and display name stamped on
// issues by the creation workflow.
type JiraConfig struct {
	BaseURL         string
	Username        string
	APIToken        string
	UsernameField   string
	FullNameField   string
	MaxResults      int
	CacheTTLSeconds int
}

// TelegramConfig holds the bot credentials for delivery.
type TelegramConfig struct {
	BotToken string
}

// ReconcilerConfig tunes the notification reconciliation loop.
type ReconcilerConfig struct {
	PollIntervalSeconds   int
	LookbackWindowSeconds int
	MatchToleranceSeconds int
	RetryHorizonHours     int
}

// AdminConfig protects the operational HTTP surface.
type AdminConfig struct {
	Username        string
	PasswordHash    string
	JWTSecret       string
	TokenTTLMinutes int
}

// MetricsConfig controls the prometheus listener.
type MetricsConfig struct {
	Addr string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "telegram-jira-bot"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Jira: JiraConfig{
			BaseURL:         getEnv("JIRA_BASE_URL", ""),
			Username:        os.Getenv("JIRA_USERNAME"),
			APIToken:        os.Getenv("JIRA_API_TOKEN"),
			UsernameField:   getEnv("JIRA_CF_TELEGRAM_USERNAME", "cf[10152]"),
			FullNameField:   getEnv("JIRA_CF_TELEGRAM_NAME", "cf[10153]"),
			MaxResults:      getEnvAsInt("JIRA_SEARCH_MAX_RESULTS", 20),
			CacheTTLSeconds: getEnvAsInt("JIRA_CACHE_TTL_SECONDS", 30),
		},
		Telegram: TelegramConfig{
			BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		},
		Reconciler: ReconcilerConfig{
			PollIntervalSeconds:   getEnvAsInt("NOTIFY_POLL_INTERVAL_SECONDS", 60),
			LookbackWindowSeconds: getEnvAsInt("NOTIFY_LOOKBACK_WINDOW_SECONDS", 300),
			MatchToleranceSeconds: getEnvAsInt("NOTIFY_MATCH_TOLERANCE_SECONDS", 60),
			RetryHorizonHours:     getEnvAsInt("NOTIFY_RETRY_HORIZON_HOURS", 24),
		},
		Admin: AdminConfig{
			Username:        getEnv("ADMIN_USERNAME", "admin"),
			PasswordHash:    os.Getenv("ADMIN_PASSWORD_HASH"),
			JWTSecret:       getEnv("ADMIN_JWT_SECRET", "dev-secret"),
			TokenTTLMinutes: getEnvAsInt("ADMIN_TOKEN_TTL_MINUTES", 60),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("METRICS_ADDR", ":9091"),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// CacheTTL returns the Jira search cache lifetime.
func (j JiraConfig) CacheTTL() time.Duration {
	if j.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(j.CacheTTLSeconds) * time.Second
}

// PollInterval returns the reconciliation cadence.
func (r ReconcilerConfig) PollInterval() time.Duration {
	if r.PollIntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(r.PollIntervalSeconds) * time.Second
}

// LookbackWindow returns how far back extraction looks in a ticket's history.
func (r ReconcilerConfig) LookbackWindow() time.Duration {
	if r.LookbackWindowSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(r.LookbackWindowSeconds) * time.Second
}

// MatchTolerance returns the window used to match a candidate transition
// against an already-recorded one.
func (r ReconcilerConfig) MatchTolerance() time.Duration {
	if r.MatchToleranceSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(r.MatchToleranceSeconds) * time.Second
}

// RetryHorizon returns how long an unsent status change keeps being retried.
func (r ReconcilerConfig) RetryHorizon() time.Duration {
	if r.RetryHorizonHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(r.RetryHorizonHours) * time.Hour
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
