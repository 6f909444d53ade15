package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rzbill/courier/internal/envelope"
	logpkg "github.com/rzbill/courier/pkg/log"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	MaxQueryLimit         uint32 `json:"maxQueryLimit" yaml:"maxQueryLimit"`
	MaxBatchSize          int    `json:"maxBatchSize" yaml:"maxBatchSize"`
	MaxTopicsPerSubscribe int    `json:"maxTopicsPerSubscribe" yaml:"maxTopicsPerSubscribe"`
	MaxTopicLength        int    `json:"maxTopicLength" yaml:"maxTopicLength"`
	MaxMessageBytes       int    `json:"maxMessageBytes" yaml:"maxMessageBytes"`
	// TopicNameRegex, when set, must match every topic.
	TopicNameRegex string `json:"topicNameRegex" yaml:"topicNameRegex"`

	// SubscriberBuffer is the queue capacity of each live subscription.
	SubscriberBuffer int `json:"subscriberBuffer" yaml:"subscriberBuffer"`
	// SubscriberFlushMs coalesces stream flushes for up to this window.
	SubscriberFlushMs int `json:"subscriberFlushMs" yaml:"subscriberFlushMs"`
	// BatchQueryConcurrency bounds parallel specs inside one BatchQuery.
	BatchQueryConcurrency int `json:"batchQueryConcurrency" yaml:"batchQueryConcurrency"`

	// RetentionAgeMs deletes envelopes whose timestamp is older than this
	// age. 0 keeps everything.
	RetentionAgeMs      int64 `json:"retentionAgeMs" yaml:"retentionAgeMs"`
	RetentionIntervalMs int64 `json:"retentionIntervalMs" yaml:"retentionIntervalMs"`

	Log logpkg.Config `json:"log" yaml:"log"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		MaxQueryLimit:         envelope.DefaultMaxQueryLimit,
		MaxBatchSize:          envelope.DefaultMaxBatchSize,
		MaxTopicsPerSubscribe: envelope.DefaultMaxTopicsPerSubscribe,
		MaxTopicLength:        envelope.DefaultMaxTopicLength,
		MaxMessageBytes:       envelope.DefaultMaxMessageBytes,
		SubscriberBuffer:      1024,
		BatchQueryConcurrency: 8,
		RetentionIntervalMs:   60_000,
		Log:                   logpkg.Config{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path
// is empty, returns defaults. Keys missing from the file keep their defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, cfg.Validate()
}

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
	if c.MaxQueryLimit == 0 {
		return fmt.Errorf("config: maxQueryLimit must be positive")
	}
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("config: maxBatchSize must be positive")
	}
	if c.SubscriberBuffer <= 0 {
		return fmt.Errorf("config: subscriberBuffer must be positive")
	}
	if c.RetentionAgeMs < 0 || c.RetentionIntervalMs < 0 {
		return fmt.Errorf("config: retention values must not be negative")
	}
	if c.TopicNameRegex != "" {
		if _, err := regexp.Compile(c.TopicNameRegex); err != nil {
			return fmt.Errorf("config: topicNameRegex: %w", err)
		}
	}
	return nil
}

// Limits converts the request limits into envelope.Limits.
func (c Config) Limits() (envelope.Limits, error) {
	l := envelope.Limits{
		MaxQueryLimit:         c.MaxQueryLimit,
		MaxBatchSize:          c.MaxBatchSize,
		MaxTopicsPerSubscribe: c.MaxTopicsPerSubscribe,
		MaxTopicLength:        c.MaxTopicLength,
		MaxMessageBytes:       c.MaxMessageBytes,
	}
	if c.TopicNameRegex != "" {
		re, err := regexp.Compile(c.TopicNameRegex)
		if err != nil {
			return envelope.Limits{}, fmt.Errorf("config: topicNameRegex: %w", err)
		}
		l.TopicPattern = re
	}
	return l.Normalize(), nil
}

// SubscriberFlushWindow returns SubscriberFlushMs as a duration.
func (c Config) SubscriberFlushWindow() time.Duration {
	return time.Duration(c.SubscriberFlushMs) * time.Millisecond
}

// RetentionAge returns RetentionAgeMs as a duration; 0 disables retention.
func (c Config) RetentionAge() time.Duration {
	return time.Duration(c.RetentionAgeMs) * time.Millisecond
}

// RetentionInterval returns how often retention runs.
func (c Config) RetentionInterval() time.Duration {
	if c.RetentionIntervalMs <= 0 {
		return time.Minute
	}
	return time.Duration(c.RetentionIntervalMs) * time.Millisecond
}
