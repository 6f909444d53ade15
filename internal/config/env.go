package config

import (
	"os"
	"strconv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "COURIER_"

// FromEnv overlays COURIER_* environment variables onto cfg. Unparseable
// values are ignored.
func FromEnv(cfg *Config) {
	envUint32("MAX_QUERY_LIMIT", &cfg.MaxQueryLimit)
	envInt("MAX_BATCH_SIZE", &cfg.MaxBatchSize)
	envInt("MAX_TOPICS_PER_SUBSCRIBE", &cfg.MaxTopicsPerSubscribe)
	envInt("MAX_TOPIC_LENGTH", &cfg.MaxTopicLength)
	envInt("MAX_MESSAGE_BYTES", &cfg.MaxMessageBytes)
	if v := os.Getenv(EnvPrefix + "TOPIC_NAME_REGEX"); v != "" {
		cfg.TopicNameRegex = v
	}
	envInt("SUB_BUF", &cfg.SubscriberBuffer)
	envInt("SUB_FLUSH_MS", &cfg.SubscriberFlushMs)
	envInt("BATCH_QUERY_CONCURRENCY", &cfg.BatchQueryConcurrency)
	envInt64("RETENTION_AGE_MS", &cfg.RetentionAgeMs)
	envInt64("RETENTION_INTERVAL_MS", &cfg.RetentionIntervalMs)
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envInt64(name string, dst *int64) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envUint32(name string, dst *uint32) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			*dst = uint32(n)
		}
	}
}
