package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	// API tokens per role. With none set the API is open to operators.
	OperatorToken string
	ViewerToken   string
	ProducerToken string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	EventBus  EventBusConfig
	Redis     RedisConfig
	Modules   ModulesConfig
	Matching  MatchingConfig
	Slack     SlackConfig
	Email     EmailConfig
	RateLimit RateLimitConfig

	RulesFile             string
	ApprovalSweepInterval time.Duration
	SchedulerJobs         []string
}

type EventBusConfig struct {
	DispatchInterval time.Duration
	MaxBatch         int
	RecentSize       int
	Journal          string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

// RateLimitConfig throttles event ingestion per producer. Enabling it
// also gives scheduler instances a shared redis lease per job.
type RateLimitConfig struct {
	Enabled    bool
	EventRate  float64
	EventBurst int
	JobLockTTL time.Duration
}

type ModulesConfig struct {
	Backend string
	BaseURL string
	Timeout time.Duration
}

type MatchingConfig struct {
	PriceTolerance float64
}

type SlackConfig struct {
	WebhookURL string
	Channel    string
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

const (
	JournalNone  = "none"
	JournalDB    = "db"
	JournalRedis = "redis"

	ModulesBackendMemory = "memory"
	ModulesBackendREST   = "rest"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:      getenv("APP_SERVICE", "procurelink"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		NodeID:       getenvInt64("SNOWFLAKE_NODE", 1),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		OperatorToken: strings.TrimSpace(getenv("OPERATOR_TOKEN", "")),
		ViewerToken:   strings.TrimSpace(getenv("VIEWER_TOKEN", "")),
		ProducerToken: strings.TrimSpace(getenv("PRODUCER_TOKEN", "")),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "procurelink"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),

		EventBus: EventBusConfig{
			DispatchInterval: getenvDuration("EVENTBUS_DISPATCH_INTERVAL", time.Second),
			MaxBatch:         int(getenvInt64("EVENTBUS_MAX_BATCH", 500)),
			RecentSize:       int(getenvInt64("EVENTBUS_RECENT_SIZE", 200)),
			Journal:          normalizeJournal(getenv("EVENTBUS_JOURNAL", JournalNone)),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       int(getenvInt64("REDIS_DB", 0)),
			Stream:   getenv("REDIS_STREAM", "procurelink_integration_events"),
		},
		Modules: ModulesConfig{
			Backend: normalizeBackend(getenv("MODULES_BACKEND", ModulesBackendMemory)),
			BaseURL: strings.TrimRight(strings.TrimSpace(getenv("MODULES_BASE_URL", "http://localhost:3000/api")), "/"),
			Timeout: getenvDuration("MODULES_TIMEOUT", 10*time.Second),
		},
		Matching: MatchingConfig{
			PriceTolerance: getenvFloat("MATCH_PRICE_TOLERANCE", 0.01),
		},
		Slack: SlackConfig{
			WebhookURL: strings.TrimSpace(getenv("SLACK_WEBHOOK_URL", "")),
			Channel:    getenv("SLACK_CHANNEL", "#procurement"),
		},
		Email: EmailConfig{
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     int(getenvInt64("SMTP_PORT", 587)),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "procurelink@localhost"),
		},
		RateLimit: RateLimitConfig{
			Enabled:    getenvBool("RATE_LIMIT_ENABLED", false),
			EventRate:  getenvFloat("RATE_LIMIT_EVENTS_PER_SECOND", 50),
			EventBurst: int(getenvInt64("RATE_LIMIT_EVENTS_BURST", 100)),
			JobLockTTL: getenvDuration("SCHEDULER_LOCK_TTL", 2*time.Minute),
		},

		RulesFile:             strings.TrimSpace(getenv("RULES_FILE", "")),
		ApprovalSweepInterval: getenvDuration("APPROVAL_SWEEP_INTERVAL", time.Minute),
		SchedulerJobs:         getenvList("SCHEDULER_JOBS"),
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func normalizeJournal(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case JournalDB:
		return JournalDB
	case JournalRedis:
		return JournalRedis
	default:
		return JournalNone
	}
}

func normalizeBackend(raw string) string {
	if strings.EqualFold(strings.TrimSpace(raw), ModulesBackendREST) {
		return ModulesBackendREST
	}
	return ModulesBackendMemory
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenvBool(key string, def bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
