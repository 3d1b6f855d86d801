package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	BusNATS     = "nats"
	BusRedis    = "redis"
	BusTelegram = "telegram"
	BusLog      = "log"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	Environment string
	LogLevel    string

	StoreBackend  string
	DatabaseURL   string
	SchedulesFile string // YAML seed for the memory store

	TickSpec        string
	TickWindow      time.Duration
	SweepTimeout    time.Duration
	SweepWorkers    int
	ShutdownTimeout time.Duration

	BusBackend    string
	BusTopic      string
	NATSURL       string
	NATSJetStream bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TickClaimEnabled bool
	TickClaimTTL     time.Duration

	TelegramToken  string
	TelegramChatID int64

	TemplateFile    string
	ReminderSubject string

	MetricsBind         string // empty disables the metrics server
	InstanceID          string
	NormalizerCacheSize int
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{
		Environment:     strings.ToLower(getEnv("ENVIRONMENT", "development")),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		StoreBackend:    strings.ToLower(getEnv("STORE_BACKEND", StorePostgres)),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SchedulesFile:   os.Getenv("SCHEDULES_FILE"),
		TickSpec:        getEnv("TICK_SPEC", "* * * * *"),
		BusBackend:      strings.ToLower(getEnv("BUS_BACKEND", BusNATS)),
		BusTopic:        getEnv("BUS_TOPIC", "reminders.batch"),
		NATSURL:         getEnv("NATS_URL", "nats://127.0.0.1:4222"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		TelegramToken:   os.Getenv("TELEGRAM_TOKEN"),
		TemplateFile:    os.Getenv("TEMPLATE_FILE"),
		ReminderSubject: os.Getenv("REMINDER_SUBJECT"),
		MetricsBind:     getEnv("METRICS_BIND", ":9090"),
		InstanceID:      os.Getenv("INSTANCE_ID"),
	}

	var err error
	if cfg.TickWindow, err = durationEnv("TICK_WINDOW", time.Minute); err != nil {
		return nil, err
	}
	if cfg.SweepTimeout, err = durationEnv("SWEEP_TIMEOUT", 50*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = durationEnv("SHUTDOWN_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.TickClaimTTL, err = durationEnv("TICK_CLAIM_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SweepWorkers, err = intEnv("SWEEP_WORKERS", 1); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = intEnv("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.NormalizerCacheSize, err = intEnv("NORMALIZER_CACHE_SIZE", 8192); err != nil {
		return nil, err
	}
	if cfg.NATSJetStream, err = boolEnv("NATS_JETSTREAM", false); err != nil {
		return nil, err
	}
	if cfg.TickClaimEnabled, err = boolEnv("TICK_CLAIM_ENABLED", false); err != nil {
		return nil, err
	}
	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		if cfg.TelegramChatID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
	}
	if cfg.InstanceID == "" {
		host, _ := os.Hostname()
		cfg.InstanceID = strings.Trim(host+"-"+uuid.NewString()[:8], "-")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field rules.
func (c *AppConfig) Validate() error {
	switch c.StoreBackend {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is not set")
		}
	case StoreMemory:
		if c.SchedulesFile == "" {
			return fmt.Errorf("SCHEDULES_FILE is not set")
		}
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.BusBackend {
	case BusNATS:
		if c.NATSURL == "" {
			return fmt.Errorf("NATS_URL is not set")
		}
	case BusRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is not set")
		}
	case BusTelegram:
		if c.TelegramToken == "" {
			return fmt.Errorf("TELEGRAM_TOKEN is not set")
		}
		if c.TelegramChatID == 0 {
			return fmt.Errorf("TELEGRAM_CHAT_ID is not set")
		}
	case BusLog:
	default:
		return fmt.Errorf("invalid BUS_BACKEND %q", c.BusBackend)
	}
	if c.BusTopic == "" {
		return fmt.Errorf("BUS_TOPIC is not set")
	}

	tickSchedule, err := cron.ParseStandard(c.TickSpec)
	if err != nil {
		return fmt.Errorf("invalid TICK_SPEC %q: %w", c.TickSpec, err)
	}
	if c.TickWindow < time.Minute || c.TickWindow%time.Minute != 0 {
		return fmt.Errorf("TICK_WINDOW must be a whole number of minutes, got %s", c.TickWindow)
	}
	if err := checkCadence(tickSchedule, c.TickWindow); err != nil {
		return fmt.Errorf("TICK_SPEC %q does not match TICK_WINDOW %s: %w", c.TickSpec, c.TickWindow, err)
	}
	if c.SweepTimeout <= 0 || c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SWEEP_TIMEOUT and SHUTDOWN_TIMEOUT must be positive")
	}
	if c.SweepWorkers < 1 {
		return fmt.Errorf("SWEEP_WORKERS must be at least 1")
	}
	if c.TickClaimEnabled {
		if c.RedisAddr == "" {
			return fmt.Errorf("TICK_CLAIM_ENABLED requires REDIS_ADDR")
		}
		if c.TickClaimTTL < c.TickWindow {
			return fmt.Errorf("TICK_CLAIM_TTL must be at least TICK_WINDOW")
		}
	}
	return nil
}

// cadenceActivations covers an hour and a day rollover for minute cadences.
const cadenceActivations = 128

// checkCadence requires every tick to open a new window: activations must land on
// window boundaries and follow each other exactly one window apart.
func checkCadence(schedule cron.Schedule, window time.Duration) error {
	prev := schedule.Next(time.Date(2023, time.December, 31, 23, 0, 0, 0, time.UTC))
	if prev.IsZero() {
		return fmt.Errorf("spec never fires")
	}
	for i := 0; i < cadenceActivations; i++ {
		if !prev.Truncate(window).Equal(prev) {
			return fmt.Errorf("tick at %s is not on a window boundary", prev.Format(time.RFC3339))
		}
		next := schedule.Next(prev)
		if gap := next.Sub(prev); gap != window {
			return fmt.Errorf("ticks at %s and %s are %s apart", prev.Format(time.RFC3339), next.Format(time.RFC3339), gap)
		}
		prev = next
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
