package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Sync       SyncConfig       `yaml:"sync"`
	Moderation ModerationConfig `yaml:"moderation"`
	Classifier ClassifierConfig `yaml:"classifier"`
	YouTube    YouTubeConfig    `yaml:"youtube"`
	DynamoDB   DynamoDBConfig   `yaml:"dynamodb"`
	Valkey     ValkeyConfig     `yaml:"valkey"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	LogLevel   string           `yaml:"log_level"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

// SyncConfig drives the ingestion cycle.
type SyncConfig struct {
	VideoIDs       []string      `yaml:"video_ids"`
	DiscoverRecent int64         `yaml:"discover_recent"`
	Concurrency    int           `yaml:"concurrency"`
	RunTimeout     time.Duration `yaml:"run_timeout"`
	GracePeriod    time.Duration `yaml:"grace_period"`
	Interval       time.Duration `yaml:"interval"`
	PageRetries    int           `yaml:"page_retries"`
	PageBackoff    time.Duration `yaml:"page_backoff"`
	MaxAttempts    int           `yaml:"max_attempts"`
}

// ModerationConfig carries the decision policy. Thresholds are in [0,1].
type ModerationConfig struct {
	BlockThreshold       float64 `yaml:"block_threshold"`
	HoldThreshold        float64 `yaml:"hold_threshold"`
	ReviewPlaceholder    string  `yaml:"review_placeholder"`
	ToxicParaphraseStyle string  `yaml:"toxic_paraphrase_style"`
	ReplyStyle           string  `yaml:"reply_style"`
}

type ClassifierConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	MaxRetries        int           `yaml:"max_retries"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Timeout           time.Duration `yaml:"timeout"`
}

type YouTubeConfig struct {
	ClientID        string `yaml:"client_id"`
	ClientSecret    string `yaml:"client_secret"`
	RefreshToken    string `yaml:"refresh_token"`
	Endpoint        string `yaml:"endpoint"`
	PageSize        int64  `yaml:"page_size"`
	ApplyModeration bool   `yaml:"apply_moderation"`
}

type DynamoDBConfig struct {
	Table    string `yaml:"table"`
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
}

type ValkeyConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	TLS      bool          `yaml:"tls"`
	TTL      time.Duration `yaml:"ttl"`
}

// KafkaConfig is optional; an empty broker disables event publishing.
type KafkaConfig struct {
	Broker string `yaml:"broker"`
	Topic  string `yaml:"topic"`
}

// Load reads the YAML file at path, expands ${VAR} references in secrets
// and applies defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("[Config] failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := &Config{}
	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("[Config] failed to decode config file: %w", err)
	}

	cfg.expandEnv()
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) expandEnv() {
	c.Classifier.APIKey = os.ExpandEnv(c.Classifier.APIKey)
	c.YouTube.ClientID = os.ExpandEnv(c.YouTube.ClientID)
	c.YouTube.ClientSecret = os.ExpandEnv(c.YouTube.ClientSecret)
	c.YouTube.RefreshToken = os.ExpandEnv(c.YouTube.RefreshToken)
	c.Valkey.Address = os.ExpandEnv(c.Valkey.Address)
	c.Valkey.Password = os.ExpandEnv(c.Valkey.Password)
	c.Kafka.Broker = os.ExpandEnv(c.Kafka.Broker)
	c.DynamoDB.Endpoint = os.ExpandEnv(c.DynamoDB.Endpoint)
}

// ApplyDefaults fills every zero value with the default policy.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Sync.Concurrency <= 0 {
		c.Sync.Concurrency = 4
	}
	if c.Sync.DiscoverRecent <= 0 {
		c.Sync.DiscoverRecent = 5
	}
	if c.Sync.RunTimeout <= 0 {
		c.Sync.RunTimeout = 5 * time.Minute
	}
	if c.Sync.GracePeriod <= 0 {
		c.Sync.GracePeriod = 30 * time.Second
	}
	if c.Sync.Interval <= 0 {
		c.Sync.Interval = 15 * time.Minute
	}
	if c.Sync.PageRetries <= 0 {
		c.Sync.PageRetries = 3
	}
	if c.Sync.PageBackoff <= 0 {
		c.Sync.PageBackoff = time.Second
	}
	if c.Sync.MaxAttempts <= 0 {
		c.Sync.MaxAttempts = 3
	}

	if c.Moderation.BlockThreshold <= 0 {
		c.Moderation.BlockThreshold = 0.8
	}
	if c.Moderation.HoldThreshold <= 0 {
		c.Moderation.HoldThreshold = 0.5
	}
	if c.Moderation.ReviewPlaceholder == "" {
		c.Moderation.ReviewPlaceholder = "This comment requires manual review."
	}
	if c.Moderation.ToxicParaphraseStyle == "" {
		c.Moderation.ToxicParaphraseStyle = "Summarize only the underlying point as one neutral, depersonalized sentence " +
			"in the form \"Viewer expressed ...\". Do not quote or echo any words from the comment, " +
			"omit insults, profanity, names and threats."
	}
	if c.Moderation.ReplyStyle == "" {
		c.Moderation.ReplyStyle = "Friendly, polite and concise (at most two sentences). " +
			"Thank the viewer and, for questions, show willingness to answer."
	}

	if c.Classifier.Provider == "" {
		c.Classifier.Provider = ProviderOpenAI
	}
	if c.Classifier.Model == "" {
		switch c.Classifier.Provider {
		case ProviderGemini:
			c.Classifier.Model = "gemini-1.5-flash-002"
		default:
			c.Classifier.Model = "gpt-4o-mini"
		}
	}
	if c.Classifier.MaxRetries <= 0 {
		c.Classifier.MaxRetries = 3
	}
	if c.Classifier.InitialBackoff <= 0 {
		c.Classifier.InitialBackoff = 500 * time.Millisecond
	}
	if c.Classifier.MaxBackoff <= 0 {
		c.Classifier.MaxBackoff = 8 * time.Second
	}
	if c.Classifier.RequestsPerMinute <= 0 {
		c.Classifier.RequestsPerMinute = 60
	}
	if c.Classifier.Timeout <= 0 {
		c.Classifier.Timeout = 60 * time.Second
	}

	if c.YouTube.PageSize <= 0 || c.YouTube.PageSize > 100 {
		c.YouTube.PageSize = 100
	}

	if c.DynamoDB.Table == "" {
		c.DynamoDB.Table = "Comments"
	}
	if c.DynamoDB.Region == "" {
		c.DynamoDB.Region = "us-west-2"
	}

	if c.Valkey.TTL <= 0 {
		c.Valkey.TTL = 24 * time.Hour
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "commentguard.events"
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error

	m := c.Moderation
	if m.BlockThreshold <= 0 || m.BlockThreshold > 1 {
		errs = append(errs, fmt.Errorf("moderation.block_threshold must be in (0,1], got %v", m.BlockThreshold))
	}
	if m.HoldThreshold <= 0 || m.HoldThreshold > m.BlockThreshold {
		errs = append(errs, fmt.Errorf("moderation.hold_threshold must be in (0, block_threshold], got %v", m.HoldThreshold))
	}

	switch c.Classifier.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("classifier.provider %q is not supported", c.Classifier.Provider))
	}

	if len(errs) > 0 {
		return fmt.Errorf("[Config] invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
