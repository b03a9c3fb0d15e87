package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment overrides. Nested keys are
// separated by a double underscore: INSIGHTS_OPENAI__API_KEY -> openai.api_key.
const EnvPrefix = "INSIGHTS_"

// Cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	Environment string          `koanf:"environment" validate:"required"`
	LogLevel    string          `koanf:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
	Server      ServerConfig    `koanf:"server"`
	Redis       RedisConfig     `koanf:"redis"`
	OpenAI      OpenAIConfig    `koanf:"openai"`
	Cache       CacheConfig     `koanf:"cache"`
	Analysis    AnalysisConfig  `koanf:"analysis"`
	Guardrail   GuardrailConfig `koanf:"guardrail"`
	Events      EventsConfig    `koanf:"events"`
	OTEL        OTELConfig      `koanf:"otel"`
	Vault       VaultConfig     `koanf:"vault"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string        `koanf:"host"`
	Port           int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout    time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout   time.Duration `koanf:"write_timeout" validate:"gt=0"`
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port" validate:"min=1,max=65535"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"min=0"`
}

// OpenAIConfig holds OpenAI configuration
type OpenAIConfig struct {
	APIKey         string        `koanf:"api_key"`
	Model          string        `koanf:"model" validate:"required"`
	BaseURL        string        `koanf:"base_url" validate:"omitempty,url"`
	RateLimitRPM   int           `koanf:"rate_limit_rpm" validate:"min=0"` // 0 disables rate limiting
	RateLimitBurst int           `koanf:"rate_limit_burst" validate:"min=0"`
	Timeout        time.Duration `koanf:"timeout" validate:"gt=0"`
	MaxTokens      int           `koanf:"max_tokens" validate:"min=1"`
	Temperature    float32       `koanf:"temperature" validate:"min=0,max=2"`
	MaxRetries     int           `koanf:"max_retries" validate:"min=0,max=10"`
}

// CacheConfig selects the narrative cache backend
type CacheConfig struct {
	Backend   string `koanf:"backend" validate:"oneof=memory redis"`
	KeyPrefix string `koanf:"key_prefix"`
}

// AnalysisConfig holds rule evaluation configuration
type AnalysisConfig struct {
	// PolicyPath overrides the embedded threshold tables when set.
	PolicyPath string `koanf:"policy_path"`
}

// GuardrailConfig holds guardrail filter configuration
type GuardrailConfig struct {
	MaxOutputChars int                 `koanf:"max_output_chars" validate:"min=100"`
	ExtraPatterns  map[string][]string `koanf:"extra_patterns"`
}

// EventsConfig controls the record update subscription
type EventsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Channel string `koanf:"channel"`
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string `koanf:"service_name" validate:"required"`
	ServiceVersion string `koanf:"service_version"`
	Endpoint       string `koanf:"endpoint"`
	Enabled        bool   `koanf:"enabled"`
}

// VaultConfig locates an optional KV secret that supplies credentials
type VaultConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Addr      string        `koanf:"addr" validate:"required_if=Enabled true"`
	Token     string        `koanf:"token" validate:"required_if=Enabled true"`
	Namespace string        `koanf:"namespace"`
	Mount     string        `koanf:"mount"`
	Path      string        `koanf:"path" validate:"required_if=Enabled true"`
	KVVersion int           `koanf:"kv_version" validate:"oneof=1 2"`
	Timeout   time.Duration `koanf:"timeout"`
}

// Default returns the configuration used when no file or env override is present.
func Default() *Config {
	return &Config{
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   60 * time.Second,
			RequestTimeout: 45 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		OpenAI: OpenAIConfig{
			Model:          "gpt-4o-mini",
			RateLimitRPM:   60,
			RateLimitBurst: 5,
			Timeout:        30 * time.Second,
			MaxTokens:      600,
			Temperature:    0.2,
			MaxRetries:     2,
		},
		Cache: CacheConfig{
			Backend:   CacheBackendMemory,
			KeyPrefix: "insights:",
		},
		Guardrail: GuardrailConfig{
			MaxOutputChars: 2000,
		},
		Events: EventsConfig{
			Channel: "records:updates",
		},
		OTEL: OTELConfig{
			ServiceName:    "patient-insights",
			ServiceVersion: "1.0.0",
		},
		Vault: VaultConfig{
			Mount:     "secret",
			KVVersion: 2,
			Timeout:   5 * time.Second,
		},
	}
}

// Load reads configuration from defaults, then the YAML file at path if it
// exists, then INSIGHTS_* environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.TrimPrefix(s, EnvPrefix)
		return strings.ToLower(strings.ReplaceAll(key, "__", "."))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Conventional variables used by the rest of the deployment.
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Redis.Password == "" {
		cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	}
	if cfg.Vault.Token == "" {
		cfg.Vault.Token = os.Getenv("VAULT_TOKEN")
	}

	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.OTEL.Enabled && c.OTEL.Endpoint == "" {
		return fmt.Errorf("invalid config: otel.endpoint is required when otel is enabled")
	}
	return nil
}

// Secret keys read from Vault.
const (
	SecretOpenAIAPIKey  = "openai_api_key"
	SecretRedisPassword = "redis_password"
)

// ApplySecrets fills credentials that neither the file nor the environment
// set. It returns the number of fields it filled.
func (c *Config) ApplySecrets(values map[string]string) int {
	applied := 0
	for key, field := range map[string]*string{
		SecretOpenAIAPIKey:  &c.OpenAI.APIKey,
		SecretRedisPassword: &c.Redis.Password,
	} {
		if value := values[key]; value != "" && *field == "" {
			*field = value
			applied++
		}
	}
	return applied
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDevelopment reports whether the service runs in a local environment.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "local"
}
