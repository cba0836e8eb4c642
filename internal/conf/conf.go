package conf

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/tgmod/internal/biz/domain"
)

// Config represents application configuration
type Config struct {
	// Telegram configuration
	Telegram TelegramConfig

	// Persistence configuration
	Persist PersistConfig

	// Moderation defaults, seeded into the store on first run
	Moderation ModerationConfig

	// Rate limiting and admission timing
	Limits LimitsConfig

	// HTTP surface (health, stats, metrics)
	HTTPAddr string

	// Debug mode
	Debug bool
}

// TelegramConfig contains bot API configuration
type TelegramConfig struct {
	Token      string
	WebhookURL string // empty means long polling
	Listen     string // webhook listen address
}

// PersistConfig selects and configures the storage backend
type PersistConfig struct {
	Backend    string // redis, sqlite or memory
	SQLitePath string
	RedisURL   string
}

// ModerationConfig contains the seed values for the persisted config
type ModerationConfig struct {
	ForwardTargetID  string
	ReviewTargetID   string
	WelcomeText      string
	AttachButtons    bool
	AdminIDs         []string
	AllowlistMode    bool
	DefaultThreshold float64
	StrictTemplate   bool
}

// LimitsConfig contains admission and pacing knobs
type LimitsConfig struct {
	PerUserCooldown time.Duration
	GlobalMinGap    time.Duration
	MaxMessageAge   time.Duration
	PendingTTL      time.Duration
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	backend := os.Getenv("PERSIST_BACKEND")
	if backend == "" {
		backend = "redis"
	}

	sqlitePath := os.Getenv("SQLITE_PATH")
	if sqlitePath == "" {
		sqlitePath = "./data/bot.db"
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	httpAddr := os.Getenv("PORT")
	if httpAddr == "" {
		httpAddr = "8080"
	}

	// The webhook listener needs its own port; the web surface owns PORT.
	webhookPort := os.Getenv("WEBHOOK_PORT")
	if webhookPort == "" {
		webhookPort = "8443"
	}

	var adminIDs []string
	for _, id := range strings.Split(os.Getenv("ADMIN_IDS"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			adminIDs = append(adminIDs, id)
		}
	}

	return &Config{
		Telegram: TelegramConfig{
			Token:      os.Getenv("TELEGRAM_BOT_TOKEN"),
			WebhookURL: os.Getenv("WEBHOOK_URL"),
			Listen:     ":" + webhookPort,
		},
		Persist: PersistConfig{
			Backend:    backend,
			SQLitePath: sqlitePath,
			RedisURL:   redisURL,
		},
		Moderation: ModerationConfig{
			ForwardTargetID:  os.Getenv("FORWARD_TARGET_ID"),
			ReviewTargetID:   os.Getenv("REVIEW_TARGET_ID"),
			WelcomeText:      os.Getenv("WELCOME_TEXT"),
			AttachButtons:    envBool("ATTACH_BUTTONS_TO_TARGET_META", true),
			AdminIDs:         adminIDs,
			AllowlistMode:    envBool("ALLOWLIST_MODE", false),
			DefaultThreshold: envFloat("ADTPL_DEFAULT_THRESHOLD", 0.6),
			StrictTemplate:   envBool("STRICT_TEMPLATE", false),
		},
		Limits: LimitsConfig{
			PerUserCooldown: envMillis("PER_USER_COOLDOWN_MS", 3000),
			GlobalMinGap:    envMillis("GLOBAL_MIN_TIME_MS", 60),
			MaxMessageAge:   time.Duration(envInt("MAX_MESSAGE_AGE_SEC", 86400)) * time.Second,
			PendingTTL:      time.Duration(envInt("PENDING_TTL_HOURS", 72)) * time.Hour,
		},
		HTTPAddr: ":" + httpAddr,
		Debug:    os.Getenv("DEBUG") == "true" || os.Getenv("DEBUG") == "1",
	}
}

// SeedConfig converts the moderation defaults into the stored config
// document used when the backend starts empty.
func (c *Config) SeedConfig() domain.Config {
	return domain.Config{
		ForwardTargetID:  c.Moderation.ForwardTargetID,
		ReviewTargetID:   c.Moderation.ReviewTargetID,
		WelcomeText:      c.Moderation.WelcomeText,
		AttachButtons:    c.Moderation.AttachButtons,
		AdminIDs:         c.Moderation.AdminIDs,
		AllowlistMode:    c.Moderation.AllowlistMode,
		DefaultThreshold: domain.ClampThreshold(c.Moderation.DefaultThreshold),
		StrictTemplate:   c.Moderation.StrictTemplate,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return &ConfigError{Field: "TELEGRAM_BOT_TOKEN", Message: "required"}
	}
	switch c.Persist.Backend {
	case "redis", "sqlite", "memory":
	default:
		return &ConfigError{Field: "PERSIST_BACKEND", Message: "must be redis, sqlite or memory"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

func envBool(name string, def bool) bool {
	switch os.Getenv(name) {
	case "1", "true":
		return true
	case "0", "false":
		return false
	default:
		return def
	}
}

func envInt(name string, def int) int {
	if val := os.Getenv(name); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envFloat(name string, def float64) float64 {
	if val := os.Getenv(name); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envMillis(name string, def int) time.Duration {
	return time.Duration(envInt(name, def)) * time.Millisecond
}
