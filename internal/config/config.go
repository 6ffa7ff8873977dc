// Copyright 2025 James Ross
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/flyingrobots/go-redis-work-queue/internal/provider"
	"github.com/spf13/viper"
)

type Redis struct {
	Addr               string        `mapstructure:"addr"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	DB                 int           `mapstructure:"db"`
	PoolSizeMultiplier int           `mapstructure:"pool_size_multiplier"`
	MinIdleConns       int           `mapstructure:"min_idle_conns"`
	DialTimeout        time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	MaxRetries         int           `mapstructure:"max_retries"`
}

type Backoff struct {
	Base time.Duration `mapstructure:"base"`
	Max  time.Duration `mapstructure:"max"`
}

type Worker struct {
	Count        int           `mapstructure:"count"`
	HeartbeatTTL time.Duration `mapstructure:"heartbeat_ttl"`
	MaxRetries   int           `mapstructure:"max_retries"`
	Backoff      Backoff       `mapstructure:"backoff"`
	PopTimeout   time.Duration `mapstructure:"pop_timeout"`
}

// ProviderSpec is the YAML/env-decodable shape of a provider
// registration — provider.Config's AuthDescriptor is a closed,
// unexported-method tagged union that mapstructure cannot populate
// directly, so this flattens every variant's fields into one struct
// and ToProviderConfig builds the real tagged union from AuthType.
type ProviderSpec struct {
	Name           string        `mapstructure:"name"`
	Kind           string        `mapstructure:"kind"`
	BaseURL        string        `mapstructure:"base_url"`
	RatePerMinute  float64       `mapstructure:"rate_per_minute"`
	BurstSize      float64       `mapstructure:"burst_size"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`

	AuthType string `mapstructure:"auth_type"` // OAUTH2 | API_KEY | BASIC

	TokenURL     string   `mapstructure:"token_url"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RefreshToken string   `mapstructure:"refresh_token"`
	Scopes       []string `mapstructure:"scopes"`

	APIKey string `mapstructure:"api_key"`

	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// ToProviderConfig builds the provider.Config and AuthDescriptor
// variant ToProviderConfig's AuthType selects.
func (s ProviderSpec) ToProviderConfig() (provider.Config, error) {
	cfg := provider.Config{
		Name:           s.Name,
		Kind:           provider.Kind(strings.ToUpper(s.Kind)),
		BaseURL:        s.BaseURL,
		RatePerMinute:  s.RatePerMinute,
		BurstSize:      s.BurstSize,
		RequestTimeout: s.RequestTimeout,
		MaxRetries:     s.MaxRetries,
	}
	switch strings.ToUpper(s.AuthType) {
	case "OAUTH2":
		cfg.Auth = provider.OAuth2Credentials{
			TokenURL:     s.TokenURL,
			ClientID:     s.ClientID,
			ClientSecret: s.ClientSecret,
			RefreshToken: s.RefreshToken,
			Scopes:       s.Scopes,
		}
	case "API_KEY":
		cfg.Auth = provider.APIKeyCredentials{Key: s.APIKey}
	case "BASIC":
		cfg.Auth = provider.BasicCredentials{Username: s.Username, Password: s.Password}
	default:
		return provider.Config{}, fmt.Errorf("config: provider %q: unknown auth_type %q", s.Name, s.AuthType)
	}
	return cfg, nil
}

type CircuitBreaker struct {
	FailureThreshold float64       `mapstructure:"failure_threshold"`
	Window           time.Duration `mapstructure:"window"`
	CooldownPeriod   time.Duration `mapstructure:"cooldown_period"`
	MinSamples       int           `mapstructure:"min_samples"`
}

type TracingConfig struct {
	Enabled               bool              `mapstructure:"enabled"`
	Endpoint              string            `mapstructure:"endpoint"`
	Environment           string            `mapstructure:"environment"`
	SamplingStrategy      string            `mapstructure:"sampling_strategy"`
	SamplingRate          float64           `mapstructure:"sampling_rate"`
	BatchTimeout          time.Duration     `mapstructure:"batch_timeout"`
	MaxExportBatchSize    int               `mapstructure:"max_export_batch_size"`
	Headers               map[string]string `mapstructure:"headers"`
	Insecure              bool              `mapstructure:"insecure"`
	PropagationFormat     string            `mapstructure:"propagation_format"`
	AttributeAllowlist    []string          `mapstructure:"attribute_allowlist"`
	RedactSensitive       bool              `mapstructure:"redact_sensitive"`
	EnableMetricExemplars bool              `mapstructure:"enable_metric_exemplars"`
}

// Tracing is a backwards-compatible alias
type Tracing = TracingConfig

type ObservabilityConfig struct {
	MetricsPort         int           `mapstructure:"metrics_port"`
	LogLevel            string        `mapstructure:"log_level"`
	Tracing             TracingConfig `mapstructure:"tracing"`
	QueueSampleInterval time.Duration `mapstructure:"queue_sample_interval"`
}

// Observability is a backwards-compatible alias
type Observability = ObservabilityConfig

type Config struct {
	Redis          Redis          `mapstructure:"redis"`
	Worker         Worker         `mapstructure:"worker"`
	Providers      []ProviderSpec `mapstructure:"providers"`
	CircuitBreaker CircuitBreaker `mapstructure:"circuit_breaker"`
	Observability  Observability  `mapstructure:"observability"`
}

// ProviderConfigs converts every configured ProviderSpec into a
// provider.Config, failing closed on the first invalid auth_type.
func (c *Config) ProviderConfigs() ([]provider.Config, error) {
	out := make([]provider.Config, 0, len(c.Providers))
	for _, spec := range c.Providers {
		pc, err := spec.ToProviderConfig()
		if err != nil {
			return nil, err
		}
		out = append(out, pc)
	}
	return out, nil
}

func defaultConfig() *Config {
	return &Config{
		Redis: Redis{
			Addr:               "localhost:6379",
			PoolSizeMultiplier: 10,
			MinIdleConns:       5,
			DialTimeout:        5 * time.Second,
			ReadTimeout:        3 * time.Second,
			WriteTimeout:       3 * time.Second,
			MaxRetries:         3,
		},
		Worker: Worker{
			Count:        4,
			HeartbeatTTL: 30 * time.Second,
			MaxRetries:   3,
			Backoff:      Backoff{Base: 500 * time.Millisecond, Max: 10 * time.Second},
			PopTimeout:   5 * time.Second,
		},
		CircuitBreaker: CircuitBreaker{
			FailureThreshold: 0.5,
			Window:           1 * time.Minute,
			CooldownPeriod:   30 * time.Second,
			MinSamples:       20,
		},
		Observability: Observability{
			MetricsPort:         9090,
			LogLevel:            "info",
			Tracing:             Tracing{Enabled: false},
			QueueSampleInterval: 2 * time.Second,
		},
	}
}

// Load reads configuration from YAML file and env overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("redis.addr", def.Redis.Addr)
	v.SetDefault("redis.pool_size_multiplier", def.Redis.PoolSizeMultiplier)
	v.SetDefault("redis.min_idle_conns", def.Redis.MinIdleConns)
	v.SetDefault("redis.dial_timeout", def.Redis.DialTimeout)
	v.SetDefault("redis.read_timeout", def.Redis.ReadTimeout)
	v.SetDefault("redis.write_timeout", def.Redis.WriteTimeout)
	v.SetDefault("redis.max_retries", def.Redis.MaxRetries)

	v.SetDefault("worker.count", def.Worker.Count)
	v.SetDefault("worker.heartbeat_ttl", def.Worker.HeartbeatTTL)
	v.SetDefault("worker.max_retries", def.Worker.MaxRetries)
	v.SetDefault("worker.backoff.base", def.Worker.Backoff.Base)
	v.SetDefault("worker.backoff.max", def.Worker.Backoff.Max)
	v.SetDefault("worker.pop_timeout", def.Worker.PopTimeout)

	v.SetDefault("circuit_breaker.failure_threshold", def.CircuitBreaker.FailureThreshold)
	v.SetDefault("circuit_breaker.window", def.CircuitBreaker.Window)
	v.SetDefault("circuit_breaker.cooldown_period", def.CircuitBreaker.CooldownPeriod)
	v.SetDefault("circuit_breaker.min_samples", def.CircuitBreaker.MinSamples)

	v.SetDefault("observability.metrics_port", def.Observability.MetricsPort)
	v.SetDefault("observability.log_level", def.Observability.LogLevel)
	v.SetDefault("observability.tracing.enabled", def.Observability.Tracing.Enabled)
	v.SetDefault("observability.tracing.endpoint", def.Observability.Tracing.Endpoint)
	v.SetDefault("observability.queue_sample_interval", def.Observability.QueueSampleInterval)

	// Optional file read
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks config constraints and returns an error on invalid settings.
func Validate(cfg *Config) error {
	if cfg.Worker.Count < 1 {
		return fmt.Errorf("worker.count must be >= 1")
	}
	if cfg.Worker.HeartbeatTTL < 5*time.Second {
		return fmt.Errorf("worker.heartbeat_ttl must be >= 5s")
	}
	if cfg.Worker.PopTimeout <= 0 {
		return fmt.Errorf("worker.pop_timeout must be > 0")
	}
	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be 1..65535")
	}
	for _, p := range cfg.Providers {
		if p.Name == "" {
			return fmt.Errorf("providers: entry missing name")
		}
		if _, err := p.ToProviderConfig(); err != nil {
			return err
		}
	}
	return nil
}
