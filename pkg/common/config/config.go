package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Local operational store
	LocalDBDriver   string
	LocalDBHost     string
	LocalDBPort     string
	LocalDBUser     string
	LocalDBPassword string
	LocalDBName     string
	LocalDBSSLMode  string

	// External source of record (read-only)
	ExternalDBDriver   string
	ExternalDBURL      string
	ExternalDBHost     string
	ExternalDBPort     string
	ExternalDBInstance string
	ExternalDBName     string
	ExternalDBUser     string
	ExternalDBPassword string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RunCacheTTL   time.Duration

	// Kafka
	KafkaBrokers         []string
	ReconcileEventsTopic string

	// Reconciliation
	SyncEnabled         bool
	SyncSchedule        string
	SourceTimezone      string
	ReconcilePolicyFile string
}

// Load reads a .env file when present and then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8090"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 10*time.Minute),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 64*1024)),

		LocalDBDriver:   getEnv("LOCAL_DB_DRIVER", "postgres"),
		LocalDBHost:     getEnv("LOCAL_DB_HOST", "localhost"),
		LocalDBPort:     getEnv("LOCAL_DB_PORT", "5432"),
		LocalDBUser:     getEnv("LOCAL_DB_USER", "admissions"),
		LocalDBPassword: getEnv("LOCAL_DB_PASSWORD", ""),
		LocalDBName:     getEnv("LOCAL_DB_NAME", "admissions"),
		LocalDBSSLMode:  getEnv("LOCAL_DB_SSLMODE", "disable"),

		ExternalDBDriver:   getEnv("EXTERNAL_DB_DRIVER", "sqlserver"),
		ExternalDBURL:      getEnv("EXTERNAL_DB_URL", ""),
		ExternalDBHost:     getEnv("EXTERNAL_DB_HOST", ""),
		ExternalDBPort:     getEnv("EXTERNAL_DB_PORT", "1433"),
		ExternalDBInstance: getEnv("EXTERNAL_DB_INSTANCE", ""),
		ExternalDBName:     getEnv("EXTERNAL_DB_NAME", ""),
		ExternalDBUser:     getEnv("EXTERNAL_DB_USER", ""),
		ExternalDBPassword: getEnv("EXTERNAL_DB_PASSWORD", ""),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		RunCacheTTL:   getDuration("RUN_CACHE_TTL", 48*time.Hour),

		KafkaBrokers:         getStringSliceEnv("KAFKA_BROKERS", nil),
		ReconcileEventsTopic: getEnv("RECONCILE_EVENTS_TOPIC", ""),

		SyncEnabled:         getBoolEnv("SYNC_ENABLED", true),
		SyncSchedule:        getEnv("SYNC_SCHEDULE", "0 11 * * *"),
		SourceTimezone:      getEnv("SOURCE_TIMEZONE", "Local"),
		ReconcilePolicyFile: getEnv("RECONCILE_POLICY_FILE", ""),
	}
}

// Location resolves SourceTimezone, falling back to the server's local zone.
func (c *Config) Location() *time.Location {
	if c.SourceTimezone == "" || strings.EqualFold(c.SourceTimezone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(c.SourceTimezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
