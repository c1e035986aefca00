package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the creatorgen server and worker.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Auth     AuthConfig     `toml:"auth"`
	Queue    QueueConfig    `toml:"queue"`
	Worker   WorkerConfig   `toml:"worker"`
	AI       AIConfig       `toml:"ai"`
}

// Duration is a time.Duration read from TOML as a string such as "5m".
type Duration struct {
	time.Duration
}

// UnmarshalText parses text with time.ParseDuration.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText renders the duration in time.Duration.String form.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type ServerConfig struct {
	Port              int    `toml:"port"`
	Env               string `toml:"env"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
}

type DatabaseConfig struct {
	URL             string   `toml:"url"`
	MaxOpenConns    int      `toml:"max_open_conns"`
	MaxIdleConns    int      `toml:"max_idle_conns"`
	ConnMaxLifetime Duration `toml:"conn_max_lifetime"`
	MigrationsDir   string   `toml:"migrations_dir"`
}

type RedisConfig struct {
	URL string `toml:"url"`
}

type AuthConfig struct {
	// JWTSecret verifies HS256 access tokens issued by the identity provider.
	JWTSecret string `toml:"-"`
	Issuer    string `toml:"issuer"`
}

type QueueConfig struct {
	Driver    string `toml:"driver"`
	RabbitURL string `toml:"-"`
	Name      string `toml:"name"`
}

type WorkerConfig struct {
	Concurrency int      `toml:"concurrency"`
	StaleAfter  Duration `toml:"stale_after"`
	SweepSpec   string   `toml:"sweep_spec"`
}

type AIConfig struct {
	Provider         string          `toml:"provider"`
	InferenceTimeout Duration        `toml:"inference_timeout"`
	Gateway          GatewayConfig   `toml:"gateway"`
	Ollama           OllamaConfig    `toml:"ollama"`
	Anthropic        AnthropicConfig `toml:"anthropic"`
	Gemini           GeminiConfig    `toml:"gemini"`
}

// GatewayConfig covers any OpenAI-compatible chat completions endpoint.
type GatewayConfig struct {
	BaseURL           string  `toml:"base_url"`
	APIKey            string  `toml:"-"`
	Model             string  `toml:"model"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

type OllamaConfig struct {
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
}

type AnthropicConfig struct {
	APIKey    string `toml:"-"`
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
}

type GeminiConfig struct {
	APIKey string `toml:"-"`
	Model  string `toml:"model"`
}

var validProviders = map[string]bool{
	"gateway":   true,
	"ollama":    true,
	"anthropic": true,
	"gemini":    true,
}

var validQueueDrivers = map[string]bool{
	"memory":   true,
	"rabbitmq": true,
}

// Defaults returns a Config populated with default values only.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8080,
			Env:               "development",
			RequestsPerMinute: 60,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration{Duration: 5 * time.Minute},
			MigrationsDir:   "migrations",
		},
		Queue: QueueConfig{
			Driver: "memory",
			Name:   "generation_jobs",
		},
		Worker: WorkerConfig{
			Concurrency: 4,
			StaleAfter:  Duration{Duration: 10 * time.Minute},
			SweepSpec:   "@every 1m",
		},
		AI: AIConfig{
			Provider:         "gateway",
			InferenceTimeout: Duration{Duration: 60 * time.Second},
			Gateway: GatewayConfig{
				BaseURL:           "https://ai.gateway.lovable.dev/v1",
				Model:             "google/gemini-2.5-flash",
				RequestsPerSecond: 5,
			},
			Ollama: OllamaConfig{
				BaseURL: "http://localhost:11434",
				Model:   "llama3",
			},
			Anthropic: AnthropicConfig{
				Model:     "claude-sonnet-4-5-20250929",
				MaxTokens: 2048,
			},
			Gemini: GeminiConfig{
				Model: "gemini-2.5-flash",
			},
		},
	}
}

// Load reads configuration from an optional TOML file named by
// CREATORGEN_CONFIG, then from environment variables, and returns a validated
// Config. Environment values win over file values. Secrets are read from the
// environment only.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CREATORGEN_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	var env envReader
	cfg.Server.Port = env.Int("CREATORGEN_PORT", cfg.Server.Port)
	cfg.Server.Env = env.String("CREATORGEN_ENV", cfg.Server.Env)
	cfg.Server.RequestsPerMinute = env.Int("RATE_LIMIT_PER_MINUTE", cfg.Server.RequestsPerMinute)

	cfg.Database.URL = env.String("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxOpenConns = env.Int("DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = env.Int("DATABASE_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.Database.ConnMaxLifetime.Duration = env.Duration("DATABASE_CONN_MAX_LIFETIME", cfg.Database.ConnMaxLifetime.Duration)
	cfg.Database.MigrationsDir = env.String("MIGRATIONS_DIR", cfg.Database.MigrationsDir)

	cfg.Redis.URL = env.String("REDIS_URL", cfg.Redis.URL)

	cfg.Auth.JWTSecret = os.Getenv("AUTH_JWT_SECRET")
	cfg.Auth.Issuer = env.String("AUTH_JWT_ISSUER", cfg.Auth.Issuer)

	cfg.Queue.Driver = strings.ToLower(env.String("QUEUE_DRIVER", cfg.Queue.Driver))
	cfg.Queue.RabbitURL = os.Getenv("RABBIT_URL")
	cfg.Queue.Name = env.String("QUEUE_NAME", cfg.Queue.Name)

	cfg.Worker.Concurrency = env.Int("WORKER_CONCURRENCY", cfg.Worker.Concurrency)
	cfg.Worker.StaleAfter.Duration = env.Duration("JOB_STALE_AFTER", cfg.Worker.StaleAfter.Duration)
	cfg.Worker.SweepSpec = env.String("JOB_SWEEP_SPEC", cfg.Worker.SweepSpec)

	cfg.AI.Provider = strings.ToLower(env.String("AI_PROVIDER", cfg.AI.Provider))
	cfg.AI.InferenceTimeout.Duration = env.Seconds("AI_INFERENCE_TIMEOUT_SECS", cfg.AI.InferenceTimeout.Duration)
	cfg.AI.Gateway.BaseURL = env.String("AI_GATEWAY_BASE_URL", cfg.AI.Gateway.BaseURL)
	cfg.AI.Gateway.APIKey = os.Getenv("AI_GATEWAY_API_KEY")
	cfg.AI.Gateway.Model = env.String("AI_GATEWAY_MODEL", cfg.AI.Gateway.Model)
	cfg.AI.Gateway.RequestsPerSecond = env.Float("AI_GATEWAY_RPS", cfg.AI.Gateway.RequestsPerSecond)
	cfg.AI.Ollama.BaseURL = env.String("OLLAMA_BASE_URL", cfg.AI.Ollama.BaseURL)
	cfg.AI.Ollama.Model = env.String("OLLAMA_MODEL", cfg.AI.Ollama.Model)
	cfg.AI.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.AI.Anthropic.Model = env.String("ANTHROPIC_MODEL", cfg.AI.Anthropic.Model)
	cfg.AI.Anthropic.MaxTokens = env.Int("ANTHROPIC_MAX_TOKENS", cfg.AI.Anthropic.MaxTokens)
	cfg.AI.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	cfg.AI.Gemini.Model = env.String("GEMINI_MODEL", cfg.AI.Gemini.Model)

	if err := env.Err(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks settings the process cannot run without. Missing AI
// credentials are not fatal here: the generation capability reports itself as
// not configured and submissions fail closed.
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}

	if !validQueueDrivers[c.Queue.Driver] {
		return fmt.Errorf("QUEUE_DRIVER must be one of memory, rabbitmq; got %q", c.Queue.Driver)
	}
	if c.Queue.Driver == "rabbitmq" && c.Queue.RabbitURL == "" {
		return fmt.Errorf("RABBIT_URL is required when QUEUE_DRIVER is rabbitmq")
	}

	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of gateway, ollama, anthropic, gemini; got %q", c.AI.Provider)
	}

	if c.Worker.Concurrency <= 0 || c.Worker.Concurrency > 50 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 50, got %d", c.Worker.Concurrency)
	}

	if c.AI.InferenceTimeout.Duration <= 0 {
		return fmt.Errorf("AI_INFERENCE_TIMEOUT_SECS must be positive, got %s", c.AI.InferenceTimeout.Duration)
	}
	// The sweeper must not fail a job whose provider call may still succeed.
	if c.Worker.StaleAfter.Duration <= c.AI.InferenceTimeout.Duration {
		return fmt.Errorf("JOB_STALE_AFTER (%s) must exceed AI_INFERENCE_TIMEOUT_SECS (%s)",
			c.Worker.StaleAfter.Duration, c.AI.InferenceTimeout.Duration)
	}

	return nil
}

// envReader reads typed environment variables. A set but malformed value is
// recorded rather than replaced by the default, and Err reports all of them.
type envReader struct {
	errs []error
}

func (e *envReader) Err() error {
	return errors.Join(e.errs...)
}

func (e *envReader) invalid(key, v, want string) {
	e.errs = append(e.errs, fmt.Errorf("%s must be %s, got %q", key, want, v))
}

func (e *envReader) String(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func (e *envReader) Int(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.invalid(key, v, "an integer")
		return defaultVal
	}
	return i
}

func (e *envReader) Float(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.invalid(key, v, "a number")
		return defaultVal
	}
	return f
}

func (e *envReader) Duration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.invalid(key, v, "a duration such as 90s or 5m")
		return defaultVal
	}
	return d
}

// Seconds reads a whole number of seconds.
func (e *envReader) Seconds(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		e.invalid(key, v, "a whole number of seconds")
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
