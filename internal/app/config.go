package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

const (
	// StorageDriverMemory хранит данные в памяти процесса.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres хранит данные в PostgreSQL.
	StorageDriverPostgres = "postgres"

	envPrefix = "SHIFTLAB_"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	GRPCAddr    string
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers       []string
	KafkaClientID      string
	KafkaConsumerGroup string
	KafkaDLQTopic      string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	ReminderEnabled   bool
	ReminderSchedule  string
	ReminderDaysAhead int
	ReminderKmAhead   int

	Timezone        string
	SeedFile        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:    ":50051",
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		KafkaClientID:      "shiftlab-service",
		KafkaConsumerGroup: "shiftlab-alerts",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   200 * time.Millisecond,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,

		ReminderEnabled:   true,
		ReminderSchedule:  "0 8 * * *",
		ReminderDaysAhead: 30,
		ReminderKmAhead:   1000,

		Timezone:        "UTC",
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: 5 * time.Second,
	}
}

// LoadConfig читает .env (если файл есть) и переменные окружения SHIFTLAB_*.
// Уже заданные переменные окружения имеют приоритет над файлом.
func LoadConfig(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	cfg := DefaultConfig()
	r := envReader{}
	r.str("GRPC_ADDR", &cfg.GRPCAddr)
	r.str("HTTP_ADDR", &cfg.HTTPAddr)
	r.str("METRICS_ADDR", &cfg.MetricsAddr)

	r.str("STORAGE_DRIVER", &cfg.StorageDriver)
	r.str("POSTGRES_DSN", &cfg.PostgresDSN)
	r.boolean("POSTGRES_AUTO_MIGRATE", &cfg.PostgresAutoMigrate)

	r.str("REDIS_ADDR", &cfg.RedisAddr)
	r.str("REDIS_PASSWORD", &cfg.RedisPassword)
	r.integer("REDIS_DB", &cfg.RedisDB)

	r.list("KAFKA_BROKERS", &cfg.KafkaBrokers)
	r.str("KAFKA_CLIENT_ID", &cfg.KafkaClientID)
	r.str("KAFKA_CONSUMER_GROUP", &cfg.KafkaConsumerGroup)
	r.str("KAFKA_DLQ_TOPIC", &cfg.KafkaDLQTopic)

	r.duration("OUTBOX_POLL_INTERVAL", &cfg.OutboxPollInterval)
	r.integer("OUTBOX_BATCH_SIZE", &cfg.OutboxBatchSize)
	r.integer("OUTBOX_MAX_ATTEMPTS", &cfg.OutboxMaxAttempts)
	r.duration("OUTBOX_RETRY_DELAY", &cfg.OutboxRetryDelay)

	r.duration("IDEMPOTENCY_TTL", &cfg.IdempotencyTTL)
	r.duration("IDEMPOTENCY_CLEANUP_INTERVAL", &cfg.IdempotencyCleanupInterval)
	r.integer("IDEMPOTENCY_CLEANUP_BATCH_SIZE", &cfg.IdempotencyCleanupBatchSize)

	r.boolean("REMINDER_ENABLED", &cfg.ReminderEnabled)
	r.str("REMINDER_SCHEDULE", &cfg.ReminderSchedule)
	r.integer("REMINDER_DAYS_AHEAD", &cfg.ReminderDaysAhead)
	r.integer("REMINDER_KM_AHEAD", &cfg.ReminderKmAhead)

	r.str("TIMEZONE", &cfg.Timezone)
	r.str("SEED_FILE", &cfg.SeedFile)
	r.str("LOG_LEVEL", &cfg.LogLevel)
	r.str("LOG_FORMAT", &cfg.LogFormat)
	r.duration("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	if err := errors.Join(r.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("SHIFTLAB_POSTGRES_DSN is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}
	if c.GRPCAddr == "" {
		errs = append(errs, errors.New("grpc address is required"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err))
	}
	if c.ReminderEnabled {
		if _, err := cron.ParseStandard(c.ReminderSchedule); err != nil {
			errs = append(errs, fmt.Errorf("invalid reminder schedule %q: %w", c.ReminderSchedule, err))
		}
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("invalid log format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// Location возвращает часовой пояс мастерской.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ConfigureLogger применяет уровень и формат логов к стандартному logger logrus.
func (c Config) ConfigureLogger(logger *log.Logger) {
	if c.LogFormat == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	if level, err := log.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(level)
	}
}

// envReader читает переменные SHIFTLAB_* и копит ошибки разбора.
type envReader struct {
	errs []error
}

func (r *envReader) lookup(name string) (string, bool) {
	value, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func (r *envReader) str(name string, target *string) {
	if value, ok := r.lookup(name); ok {
		*target = value
	}
}

func (r *envReader) list(name string, target *[]string) {
	value, ok := r.lookup(name)
	if !ok {
		return
	}
	items := make([]string, 0)
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	*target = items
}

func (r *envReader) integer(name string, target *int) {
	value, ok := r.lookup(name)
	if !ok {
		return
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: invalid integer %q", envPrefix, name, value))
		return
	}
	*target = parsed
}

func (r *envReader) boolean(name string, target *bool) {
	value, ok := r.lookup(name)
	if !ok {
		return
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: invalid boolean %q", envPrefix, name, value))
		return
	}
	*target = parsed
}

func (r *envReader) duration(name string, target *time.Duration) {
	value, ok := r.lookup(name)
	if !ok {
		return
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s%s: invalid duration %q", envPrefix, name, value))
		return
	}
	*target = parsed
}
