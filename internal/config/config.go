package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Audit modes decide what a failed audit write does to the surrounding mutation.
const (
	AuditModeStrict  = "strict"
	AuditModeRelaxed = "relaxed"
)

// File store backends used by the retention purge.
const (
	FileStoreLocal = "local"
	FileStoreGCS   = "gcs"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Cache        CacheConfig
	Ticket       TicketConfig
	Retention    RetentionConfig
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
	DSN                  string
	MaxConns             int32
	MinConns             int32
	RunMigrations        bool
	MigrationsDir        string
	ConnMaxIdleSec       int32
	ConnMaxLifeSec       int32
	OperationTimeoutSecs int
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level   string
	Format  string
	Service string
}

// AuthConfig defines how bearer tokens are verified.
type AuthConfig struct {
	JWTSecret string
}

// NotificationConfig controls outbound notification delivery.
type NotificationConfig struct {
	EmailFrom       string
	WebhookURL      string
	QueueSize       int
	Workers         int
	SendTimeoutSecs int
}

// CacheConfig holds per-query-class TTLs for the read-through cache.
type CacheConfig struct {
	Namespace          string
	TicketTTLSeconds   int
	ListTTLSeconds     int
	AuditTTLSeconds    int
	PolicyTTLSeconds   int
	OperationTimeoutMs int
}

// TicketConfig holds ticket flow settings.
type TicketConfig struct {
	PriorityVocabulary string
	AuditMode          string
	CodePrefix         string
}

// RetentionConfig controls the hard delete of archived tickets.
type RetentionConfig struct {
	Enabled         bool
	WindowDays      int
	IntervalMinutes int
	FileStore       string
	LocalRoot       string
	GCSBucket       string
	GCSCredentials  string
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
			Name:                  getEnv("APP_NAME", "ticket-sla-engine"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:                  os.Getenv("POSTGRES_DSN"),
			MaxConns:             int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:             int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:        getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:        getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec:       int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec:       int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
			OperationTimeoutSecs: getEnvAsInt("POSTGRES_OPERATION_TIMEOUT_SECONDS", 5),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			Format:  getEnv("LOG_FORMAT", "json"),
			Service: getEnv("APP_NAME", "ticket-sla-engine"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", "dev-secret"),
		},
		Notification: NotificationConfig{
			EmailFrom:       getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL:      getEnv("NOTIFY_WEBHOOK_URL", ""),
			QueueSize:       getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
			Workers:         getEnvAsInt("NOTIFY_WORKERS", 2),
			SendTimeoutSecs: getEnvAsInt("NOTIFY_SEND_TIMEOUT_SECONDS", 10),
		},
		Cache: CacheConfig{
			Namespace:          getEnv("CACHE_NAMESPACE", "tse"),
			TicketTTLSeconds:   getEnvAsInt("CACHE_TICKET_TTL_SECONDS", 60),
			ListTTLSeconds:     getEnvAsInt("CACHE_LIST_TTL_SECONDS", 30),
			AuditTTLSeconds:    getEnvAsInt("CACHE_AUDIT_TTL_SECONDS", 120),
			PolicyTTLSeconds:   getEnvAsInt("CACHE_POLICY_TTL_SECONDS", 300),
			OperationTimeoutMs: getEnvAsInt("CACHE_OPERATION_TIMEOUT_MS", 250),
		},
		Ticket: TicketConfig{
			PriorityVocabulary: strings.ToLower(getEnv("TICKET_PRIORITY_VOCABULARY", "severity")),
			AuditMode:          strings.ToLower(getEnv("TICKET_AUDIT_MODE", AuditModeStrict)),
			CodePrefix:         getEnv("TICKET_CODE_PREFIX", "REQ"),
		},
		Retention: RetentionConfig{
			Enabled:         getEnvAsBool("RETENTION_ENABLED", true),
			WindowDays:      getEnvAsInt("RETENTION_WINDOW_DAYS", 90),
			IntervalMinutes: getEnvAsInt("RETENTION_INTERVAL_MINUTES", 60),
			FileStore:       strings.ToLower(getEnv("RETENTION_FILE_STORE", FileStoreLocal)),
			LocalRoot:       getEnv("RETENTION_LOCAL_ROOT", "uploads"),
			GCSBucket:       os.Getenv("RETENTION_GCS_BUCKET"),
			GCSCredentials:  os.Getenv("RETENTION_GCS_CREDENTIALS"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.Ticket.AuditMode {
	case AuditModeStrict, AuditModeRelaxed:
	default:
		return fmt.Errorf("invalid TICKET_AUDIT_MODE %q", c.Ticket.AuditMode)
	}
	switch c.Ticket.PriorityVocabulary {
	case "severity", "urgency":
	default:
		return fmt.Errorf("invalid TICKET_PRIORITY_VOCABULARY %q", c.Ticket.PriorityVocabulary)
	}
	switch c.Logger.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q", c.Logger.Format)
	}
	switch c.Retention.FileStore {
	case FileStoreLocal:
	case FileStoreGCS:
		if c.Retention.GCSBucket == "" {
			return fmt.Errorf("RETENTION_GCS_BUCKET required for gcs file store")
		}
	default:
		return fmt.Errorf("invalid RETENTION_FILE_STORE %q", c.Retention.FileStore)
	}
	if c.Retention.WindowDays <= 0 {
		return fmt.Errorf("RETENTION_WINDOW_DAYS must be positive")
	}
	return nil
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

// OperationTimeout bounds a single persistence call.
func (p PostgresConfig) OperationTimeout() time.Duration {
	return seconds(p.OperationTimeoutSecs)
}

// SendTimeout bounds a single notification delivery.
func (n NotificationConfig) SendTimeout() time.Duration {
	return seconds(n.SendTimeoutSecs)
}

func (c CacheConfig) TicketTTL() time.Duration { return seconds(c.TicketTTLSeconds) }
func (c CacheConfig) ListTTL() time.Duration   { return seconds(c.ListTTLSeconds) }
func (c CacheConfig) AuditTTL() time.Duration  { return seconds(c.AuditTTLSeconds) }
func (c CacheConfig) PolicyTTL() time.Duration { return seconds(c.PolicyTTLSeconds) }

// OperationTimeout bounds a single cache store call.
func (c CacheConfig) OperationTimeout() time.Duration {
	if c.OperationTimeoutMs <= 0 {
		return 0
	}
	return time.Duration(c.OperationTimeoutMs) * time.Millisecond
}

// StrictAudit reports whether audit failures must abort the mutation.
func (t TicketConfig) StrictAudit() bool {
	return t.AuditMode == AuditModeStrict
}

// Window returns the age after which archived tickets are purged.
func (r RetentionConfig) Window() time.Duration {
	return time.Duration(r.WindowDays) * 24 * time.Hour
}

// Interval returns the delay between retention passes.
func (r RetentionConfig) Interval() time.Duration {
	if r.IntervalMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(r.IntervalMinutes) * time.Minute
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
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
