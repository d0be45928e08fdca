package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	DatabaseURL        string
	RedisAddr          string
	RedisPassword      string
	RedisTLS           bool
	AdminJWTSecret     string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Sync triggers
	SyncQueueURL        string
	UseMemoryQueue      bool
	InlineSyncWorker    bool
	WorkerCount         int
	SyncScheduleEnabled bool
	SyncInterval        time.Duration
	SyncLockTTL         time.Duration
	SnapshotBucket      string

	// Quota defaults applied when a clinic has no override
	DefaultWCQuota  int
	DefaultEPCQuota int

	// PMS export feeds, keyed by PMS type ("cliniko", "nookal", "halaxy")
	PMSFeedURLs        map[string]string
	PMSFeedToken       string
	PMSPageConcurrency int
	PMSPageBatchDelay  time.Duration
}

var pmsFeedTypes = []string{"cliniko", "nookal", "halaxy"}

// Load reads configuration from environment variables
func Load() *Config {
	feeds := make(map[string]string)
	for _, pms := range pmsFeedTypes {
		if url := getEnv("PMS_FEED_"+strings.ToUpper(pms)+"_URL", ""); url != "" {
			feeds[pms] = url
		}
	}

	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisAddr:          getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisTLS:           getEnvAsBool("REDIS_TLS", false),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),

		AWSRegion:           getEnv("AWS_REGION", "ap-southeast-2"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		SyncQueueURL:        getEnv("SYNC_QUEUE_URL", ""),
		UseMemoryQueue:      getEnvAsBool("USE_MEMORY_QUEUE", false),
		InlineSyncWorker:    getEnvAsBool("SYNC_INLINE_WORKER", false),
		WorkerCount:         getEnvAsInt("WORKER_COUNT", 2),
		SyncScheduleEnabled: getEnvAsBool("SYNC_SCHEDULE_ENABLED", false),
		SyncInterval:        getEnvAsDuration("SYNC_INTERVAL", 6*time.Hour),
		SyncLockTTL:         getEnvAsDuration("SYNC_LOCK_TTL", 15*time.Minute),
		SnapshotBucket:      getEnv("SNAPSHOT_BUCKET", ""),

		DefaultWCQuota:  getEnvAsInt("DEFAULT_WC_QUOTA", 8),
		DefaultEPCQuota: getEnvAsInt("DEFAULT_EPC_QUOTA", 5),

		PMSFeedURLs:        feeds,
		PMSFeedToken:       getEnv("PMS_FEED_TOKEN", ""),
		PMSPageConcurrency: getEnvAsInt("PMS_PAGE_CONCURRENCY", 5),
		PMSPageBatchDelay:  getEnvAsDuration("PMS_PAGE_BATCH_DELAY", time.Second),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
