package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file name looked up in the working directory.
const DefaultFile = "smsledger.yaml"

// Config represents the top-level smsledger.yaml configuration.
type Config struct {
	DataDir  string         `yaml:"data_dir"`
	Banks    BanksConfig    `yaml:"banks"`
	Store    StoreConfig    `yaml:"store"`
	AMQP     AMQPConfig     `yaml:"amqp"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Display  DisplayConfig  `yaml:"display"`
	Log      LogConfig      `yaml:"log"`
}

// BanksConfig lists sender identifiers treated as banks by the pre-filter.
type BanksConfig struct {
	Senders []string `yaml:"senders"`
}

// StoreConfig selects where the balance is persisted.
type StoreConfig struct {
	Backend string      `yaml:"backend"` // file, sqlite or redis
	Path    string      `yaml:"path,omitempty"`
	Redis   RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig is used by the redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Key      string `yaml:"key,omitempty"`
}

// AMQPConfig points the consumer and publisher at a RabbitMQ queue.
type AMQPConfig struct {
	URL      string `yaml:"url,omitempty"`
	Exchange string `yaml:"exchange"`
	Queue    string `yaml:"queue"`
	Prefetch int    `yaml:"prefetch"`
}

// PipelineConfig tunes message processing.
type PipelineConfig struct {
	QueueSize       int           `yaml:"queue_size"`
	Prefilter       bool          `yaml:"prefilter"`
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`
}

// DisplayConfig controls how balances are rendered.
type DisplayConfig struct {
	Currency string `yaml:"currency"` // ISO 4217 code
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console or json
}

// Load reads a smsledger.yaml file from disk. Missing keys keep their
// default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new project.
func Default() *Config {
	return &Config{
		DataDir: "data",
		Banks: BanksConfig{
			Senders: []string{"SBI", "HDFC", "ICICI", "AXIS", "FEDERAL", "CITI"},
		},
		Store: StoreConfig{
			Backend: "file",
			Path:    filepath.Join("data", "balance.yaml"),
		},
		AMQP: AMQPConfig{
			Exchange: "smsledger",
			Queue:    "sms_messages",
			Prefetch: 10,
		},
		Pipeline: PipelineConfig{
			QueueSize:       64,
			Prefilter:       true,
			DispatchTimeout: 5 * time.Second,
		},
		Display: DisplayConfig{
			Currency: "INR",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// ApplyEnv overrides fields from SMSLEDGER_* environment variables.
func (c *Config) ApplyEnv() {
	c.DataDir = getEnv("SMSLEDGER_DATA_DIR", c.DataDir)
	c.Store.Backend = getEnv("SMSLEDGER_STORE_BACKEND", c.Store.Backend)
	c.Store.Path = getEnv("SMSLEDGER_STORE_PATH", c.Store.Path)
	c.Store.Redis.Addr = getEnv("SMSLEDGER_REDIS_ADDR", c.Store.Redis.Addr)
	c.Store.Redis.Password = getEnv("SMSLEDGER_REDIS_PASSWORD", c.Store.Redis.Password)
	c.AMQP.URL = getEnv("SMSLEDGER_AMQP_URL", c.AMQP.URL)
	c.AMQP.Queue = getEnv("SMSLEDGER_AMQP_QUEUE", c.AMQP.Queue)
	c.Pipeline.QueueSize = getEnvInt("SMSLEDGER_QUEUE_SIZE", c.Pipeline.QueueSize)
	c.Display.Currency = getEnv("SMSLEDGER_CURRENCY", c.Display.Currency)
	c.Log.Level = getEnv("SMSLEDGER_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("SMSLEDGER_LOG_FORMAT", c.Log.Format)
}

// Validate returns an error listing every invalid setting.
func (c *Config) Validate() error {
	var errs []string

	backends := []string{"file", "sqlite", "redis"}
	if !slices.Contains(backends, c.Store.Backend) {
		errs = append(errs, fmt.Sprintf("invalid store backend %q: must be one of %v", c.Store.Backend, backends))
	}
	if (c.Store.Backend == "file" || c.Store.Backend == "sqlite") && c.Store.Path == "" {
		errs = append(errs, fmt.Sprintf("store path cannot be empty when using %s backend", c.Store.Backend))
	}
	if c.Store.Backend == "redis" && c.Store.Redis.Addr == "" {
		errs = append(errs, "redis address is required when using redis backend")
	}

	if c.AMQP.URL != "" {
		if u, err := url.Parse(c.AMQP.URL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL: %v", err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme %q: must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQP.Exchange == "" || c.AMQP.Queue == "" {
			errs = append(errs, "AMQP exchange and queue are required when an AMQP URL is set")
		}
	}
	if c.AMQP.Prefetch < 0 {
		errs = append(errs, fmt.Sprintf("invalid AMQP prefetch %d: must not be negative", c.AMQP.Prefetch))
	}

	if c.Pipeline.QueueSize < 1 || c.Pipeline.QueueSize > 100_000 {
		errs = append(errs, fmt.Sprintf("invalid queue size %d: must be between 1 and 100000", c.Pipeline.QueueSize))
	}
	if c.Pipeline.DispatchTimeout < 0 {
		errs = append(errs, fmt.Sprintf("invalid dispatch timeout %v: must not be negative", c.Pipeline.DispatchTimeout))
	}

	if len(c.Display.Currency) != 3 {
		errs = append(errs, fmt.Sprintf("invalid currency %q: must be an ISO 4217 code", c.Display.Currency))
	}

	levels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(levels, strings.ToLower(c.Log.Level)) {
		errs = append(errs, fmt.Sprintf("invalid log level %q: must be one of %v", c.Log.Level, levels))
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		errs = append(errs, fmt.Sprintf("invalid log format %q: must be 'console' or 'json'", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
