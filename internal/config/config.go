package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Store    StoreConfig
	Redis    RedisConfig
	Discord  DiscordConfig
	Schedule ScheduleConfig
	Tickets  TicketsConfig
	Auth     AuthConfig
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

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// StoreConfig selects and configures the record store backend.
type StoreConfig struct {
	// Backend is "file" or "postgres".
	Backend     string
	DataDir     string
	PostgresDSN string
}

// RedisConfig holds the optional deletion-journal connection values. An empty
// Addr disables the journal.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DiscordConfig holds the platform client and guild wiring.
type DiscordConfig struct {
	BotToken       string
	GuildID        string
	APIBase        string
	LogChannelID   string
	EntryChannelID string

	GeneralParentID      string
	GeneralSupportRoleID string
	DonationParentID     string
	DonationAudienceRole string
	DonationRequiredRole string
}

// ScheduleConfig seeds the schedule policy on first start; afterwards the
// policy file is authoritative.
type ScheduleConfig struct {
	Enabled   bool
	StartHour int
	EndHour   int
}

// TicketsConfig tunes lifecycle behavior.
type TicketsConfig struct {
	DeleteDelaySeconds int
	TranscriptLimit    int
}

// AuthConfig defines authentication parameters for the dispatcher API.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	StaffPasswordHash     string
	AdminPasswordHash     string
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
			Name:                  getEnv("APP_NAME", "ticketd"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Store: StoreConfig{
			Backend:     getEnv("STORE_BACKEND", "file"),
			DataDir:     getEnv("DATA_DIR", "data"),
			PostgresDSN: os.Getenv("POSTGRES_DSN"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Discord: DiscordConfig{
			BotToken:       os.Getenv("DISCORD_BOT_TOKEN"),
			GuildID:        os.Getenv("DISCORD_GUILD_ID"),
			APIBase:        os.Getenv("DISCORD_API_BASE"),
			LogChannelID:   os.Getenv("DISCORD_LOG_CHANNEL_ID"),
			EntryChannelID: os.Getenv("DISCORD_ENTRY_CHANNEL_ID"),

			GeneralParentID:      os.Getenv("TICKETS_GENERAL_PARENT_ID"),
			GeneralSupportRoleID: os.Getenv("TICKETS_SUPPORT_ROLE_ID"),
			DonationParentID:     os.Getenv("TICKETS_DONATION_PARENT_ID"),
			DonationAudienceRole: os.Getenv("TICKETS_DONATION_AUDIENCE_ROLE_ID"),
			DonationRequiredRole: os.Getenv("TICKETS_DONATION_REQUIRED_ROLE_ID"),
		},
		Schedule: ScheduleConfig{
			Enabled:   getEnvAsBool("SCHEDULE_ENABLED", false),
			StartHour: getEnvAsInt("SCHEDULE_START_HOUR", 9),
			EndHour:   getEnvAsInt("SCHEDULE_END_HOUR", 22),
		},
		Tickets: TicketsConfig{
			DeleteDelaySeconds: getEnvAsInt("TICKETS_DELETE_DELAY_SECONDS", 10),
			TranscriptLimit:    getEnvAsInt("TICKETS_TRANSCRIPT_LIMIT", 100),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			StaffPasswordHash:     os.Getenv("AUTH_STAFF_PASSWORD_HASH"),
			AdminPasswordHash:     os.Getenv("AUTH_ADMIN_PASSWORD_HASH"),
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

// DeleteDelay returns how long a closed ticket's channel lingers before deletion.
func (t TicketsConfig) DeleteDelay() time.Duration {
	return time.Duration(t.DeleteDelaySeconds) * time.Second
}

// PolicyPath is where the schedule policy file lives, next to the partitions.
func (s StoreConfig) PolicyPath() string {
	return filepath.Join(s.DataDir, "schedule.json")
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
