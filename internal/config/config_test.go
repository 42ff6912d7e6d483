package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, defaultPort, cfg.Port)
	assert.Equal(t, "openai", cfg.AI.DefaultProvider)
	assert.Equal(t, 60*time.Second, cfg.Cache.ListTTL)
	assert.Equal(t, 30*time.Second, cfg.Cache.RandomTTL)
	assert.Equal(t, "audio-evaluation.dlq", cfg.RabbitMQ.DeadLetter)
	assert.Equal(t, []string{"admin", "super_admin"}, cfg.Quota.BypassRoles)
	assert.Equal(t, "root:password@tcp(127.0.0.1:3306)/vocalingo?charset=utf8mb4&loc=Local&parseTime=true", cfg.DSN)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
port: 8080
redis:
  host: cache.internal
  port: 6380
  db: 2
ai:
  default_provider: Groq
  groq:
    api_key: yaml-key
    models: [" llama-3.3-70b-versatile ", "llama-3.3-70b-versatile"]
cache:
  list_ttl: 2m
worker:
  concurrency: 4
`)
	t.Setenv("GROQ_API_KEY", "env-key")
	t.Setenv("RABBITMQ_URL", "amqp://u:p@mq:5672/")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "groq", cfg.AI.DefaultProvider)
	assert.Equal(t, "env-key", cfg.AI.Groq.APIKey)
	assert.Equal(t, []string{"llama-3.3-70b-versatile"}, cfg.AI.Provider("groq").Models)
	assert.Equal(t, 2*time.Minute, cfg.Cache.ListTTL)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, "amqp://u:p@mq:5672/", cfg.RabbitMQ.URL)
	assert.Equal(t, "redis://cache.internal:6380/2", cfg.RedisURL)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, "unknown_key: 1\n"))
	require.Error(t, err)
}

func TestLoadValidatesStorageDriver(t *testing.T) {
	_, err := Load(writeConfig(t, "storage:\n  driver: gcs\n"))
	require.Error(t, err)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}
