package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultTuyaBaseURL      = "https://secure-apitask.vercel.app/api/tuya"
	defaultNarodmonBaseURL  = "https://api.narodmon.ru"
	defaultNarodmonSensorID = "37687"
	defaultHTTPAddr         = ":8080"
	defaultAdapterTimeout   = 15 * time.Second
)

// ConfigurationError reports a missing or invalid required setting.
// It is fatal at startup.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("config: %s is required", e.Key)
	}
	return fmt.Sprintf("config: %s: %s", e.Key, e.Reason)
}

// Config holds all configuration values
type Config struct {
	// PostgreSQL
	DBURL      string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBCACert   string

	// Tuya proxy (batch-capable upstream)
	TuyaAPIKey    string
	TuyaDeviceIDs []string
	TuyaBaseURL   string

	// Narodmon (single-sensor upstream)
	NarodmonKey      string
	NarodmonUUID     string
	NarodmonSensorID string
	NarodmonBaseURL  string

	SensorNames SensorNames

	// HTTP surface
	HTTPAddr    string
	WebhookKey  string
	JWTSecret   string
	AppPassword string
	// CookieSecure is false only when APP_ENV=development.
	CookieSecure bool

	AdapterTimeout time.Duration
	ChartLocation  *time.Location

	// Kafka ingestion trigger, optional
	KafkaBrokers []string
	KafkaTopic   string
	KafkaCACert  string
}

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() (*Config, error) {
	// Load .env if exists
	_ = godotenv.Load() // ignore error, fallback to env vars

	return FromLookup(os.Getenv)
}

// FromLookup builds a Config from an arbitrary key lookup.
func FromLookup(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		DBURL:      getenv("DATABASE_URL"),
		DBHost:     getenv("DB_HOST"),
		DBPort:     getenv("DB_PORT"),
		DBUser:     getenv("DB_USER"),
		DBPassword: getenv("DB_PASSWORD"),
		DBName:     getenv("DB_NAME"),
		DBCACert:   getenv("DB_CA_CERT"),

		TuyaAPIKey:    getenv("TUYA_API_KEY"),
		TuyaDeviceIDs: splitList(getenv("TUYA_DEVICE_IDS")),
		TuyaBaseURL:   withDefault(getenv("TUYA_BASE_URL"), defaultTuyaBaseURL),

		NarodmonKey:      getenv("NARODMON_KEY"),
		NarodmonUUID:     getenv("UUID_NARODMON"),
		NarodmonSensorID: withDefault(getenv("NARODMON_SENSOR_ID"), defaultNarodmonSensorID),
		NarodmonBaseURL:  withDefault(getenv("NARODMON_BASE_URL"), defaultNarodmonBaseURL),

		HTTPAddr:     withDefault(getenv("HTTP_ADDR"), defaultHTTPAddr),
		WebhookKey:   getenv("WEBHOOK_KEY"),
		JWTSecret:    getenv("JWT_SECRET"),
		AppPassword:  getenv("APP_PASSWORD"),
		CookieSecure: getenv("APP_ENV") != "development",

		KafkaBrokers: splitList(getenv("KAFKA_BROKER")),
		KafkaTopic:   getenv("KAFKA_TOPIC"),
		KafkaCACert:  getenv("KAFKA_CA_CERT"),
	}

	required := []struct {
		key   string
		value string
	}{
		{"TUYA_API_KEY", cfg.TuyaAPIKey},
		{"NARODMON_KEY", cfg.NarodmonKey},
		{"UUID_NARODMON", cfg.NarodmonUUID},
		{"WEBHOOK_KEY", cfg.WebhookKey},
		{"JWT_SECRET", cfg.JWTSecret},
		{"APP_PASSWORD", cfg.AppPassword},
	}
	for _, r := range required {
		if r.value == "" {
			return nil, &ConfigurationError{Key: r.key}
		}
	}
	if len(cfg.TuyaDeviceIDs) == 0 {
		return nil, &ConfigurationError{Key: "TUYA_DEVICE_IDS"}
	}

	rawNames := getenv("SENSOR_NAMES")
	if rawNames == "" {
		return nil, &ConfigurationError{Key: "SENSOR_NAMES"}
	}
	cfg.SensorNames = ParseSensorNames(rawNames)

	// Build DB URL if not provided
	if cfg.DBURL == "" {
		dsn, err := BuildDatabaseURL(cfg)
		if err != nil {
			return nil, err
		}
		cfg.DBURL = dsn
	}

	cfg.AdapterTimeout = defaultAdapterTimeout
	if raw := getenv("ADAPTER_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return nil, &ConfigurationError{Key: "ADAPTER_TIMEOUT", Reason: fmt.Sprintf("invalid duration %q", raw)}
		}
		cfg.AdapterTimeout = d
	}

	cfg.ChartLocation = time.Local
	if tz := getenv("CHART_TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, &ConfigurationError{Key: "CHART_TIMEZONE", Reason: err.Error()}
		}
		cfg.ChartLocation = loc
	}

	if (len(cfg.KafkaBrokers) == 0) != (cfg.KafkaTopic == "") {
		return nil, &ConfigurationError{Key: "KAFKA_TOPIC", Reason: "KAFKA_BROKER and KAFKA_TOPIC must be set together"}
	}

	return cfg, nil
}

// KafkaEnabled reports whether the optional ingestion trigger consumer is configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaTopic != ""
}

// BuildDatabaseURL assembles a postgres DSN from the DB_* parts.
func BuildDatabaseURL(cfg *Config) (string, error) {
	if cfg.DBHost == "" {
		return "", &ConfigurationError{Key: "DATABASE_URL", Reason: "DATABASE_URL or DB_HOST is required"}
	}
	if cfg.DBUser == "" {
		return "", &ConfigurationError{Key: "DB_USER"}
	}
	if cfg.DBName == "" {
		return "", &ConfigurationError{Key: "DB_NAME"}
	}

	port := withDefault(cfg.DBPort, "5432")
	sslmode := "disable"
	if cfg.DBCACert != "" {
		sslmode = "verify-full"
	}

	u := &url.URL{
		Scheme:   "postgresql",
		Host:     net.JoinHostPort(cfg.DBHost, port),
		Path:     "/" + cfg.DBName,
		User:     url.UserPassword(cfg.DBUser, cfg.DBPassword),
		RawQuery: "sslmode=" + sslmode,
	}
	return u.String(), nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func withDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
