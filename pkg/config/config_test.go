package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, CacheBackendMemory, cfg.Cache.Backend)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, 30*time.Second, cfg.OpenAI.Timeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.RedisAddr())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "insights.yaml")
	content := `
environment: production
server:
  port: 9090
openai:
  model: gpt-4o
  timeout: 10s
cache:
  backend: redis
guardrail:
  max_output_chars: 1200
  extra_patterns:
    out_of_scope:
      - '\bhoroscope\b'
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.Model)
	assert.Equal(t, 10*time.Second, cfg.OpenAI.Timeout)
	assert.Equal(t, CacheBackendRedis, cfg.Cache.Backend)
	assert.Equal(t, 1200, cfg.Guardrail.MaxOutputChars)
	assert.Equal(t, []string{`\bhoroscope\b`}, cfg.Guardrail.ExtraPatterns["out_of_scope"])
	// untouched keys keep their defaults
	assert.Equal(t, 60, cfg.OpenAI.RateLimitRPM)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("INSIGHTS_SERVER__PORT", "7070")
	t.Setenv("INSIGHTS_OPENAI__MODEL", "gpt-4.1-mini")
	t.Setenv("INSIGHTS_CACHE__BACKEND", "redis")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "gpt-4.1-mini", cfg.OpenAI.Model)
	assert.Equal(t, CacheBackendRedis, cfg.Cache.Backend)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Cache.Backend = "memcached"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.OTEL.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg.OTEL.Endpoint = "otel-collector:4317"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_VaultRequiresLocation(t *testing.T) {
	cfg := Default()
	cfg.Vault.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg.Vault.Addr = "https://vault.internal:8200"
	cfg.Vault.Token = "s.token"
	cfg.Vault.Path = "insights/prod"
	assert.NoError(t, cfg.Validate())
}

func TestApplySecrets_KeepsExplicitValues(t *testing.T) {
	cfg := Default()
	cfg.OpenAI.APIKey = "sk-from-env"

	applied := cfg.ApplySecrets(map[string]string{
		SecretOpenAIAPIKey:  "sk-from-vault",
		SecretRedisPassword: "hunter2",
		"unrelated":         "x",
	})

	assert.Equal(t, 1, applied)
	assert.Equal(t, "sk-from-env", cfg.OpenAI.APIKey)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
}

func TestValidate_ZeroRateLimitMeansUnlimited(t *testing.T) {
	cfg := Default()
	cfg.OpenAI.RateLimitRPM = 0
	assert.NoError(t, cfg.Validate())

	cfg.OpenAI.RateLimitRPM = -1
	assert.Error(t, cfg.Validate())
}
