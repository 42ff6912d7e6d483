package config

import (
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// envOverrides lists the variables that win over the YAML file. Secrets are
// expected to arrive this way in production.
type envOverrides struct {
	Port        int    `env:"PORT"`
	Env         string `env:"APP_ENV"`
	DatabaseDSN string `env:"DATABASE_DSN"`
	RedisURL    string `env:"REDIS_URL"`
	RabbitMQURL string `env:"RABBITMQ_URL"`

	StorageDriver   string `env:"STORAGE_DRIVER"`
	S3Endpoint      string `env:"S3_ENDPOINT"`
	S3Region        string `env:"S3_REGION"`
	S3Bucket        string `env:"S3_BUCKET"`
	S3AccessKey     string `env:"S3_ACCESS_KEY"`
	S3SecretKey     string `env:"S3_SECRET_KEY"`
	AIProvider      string `env:"AI_DEFAULT_PROVIDER"`
	OpenAIKey       string `env:"OPENAI_API_KEY"`
	AnthropicKey    string `env:"ANTHROPIC_API_KEY"`
	OpenRouterKey   string `env:"OPENROUTER_API_KEY"`
	GroqKey         string `env:"GROQ_API_KEY"`
	LogLevel        string `env:"LOG_LEVEL"`
	WorkerPoolSlots int    `env:"WORKER_CONCURRENCY"`
}

func applyEnv(cfg *AppConfig) error {
	var env envOverrides
	if err := cleanenv.ReadEnv(&env); err != nil {
		return err
	}

	if env.Port != 0 {
		cfg.Port = env.Port
	}
	if env.WorkerPoolSlots != 0 {
		cfg.Worker.Concurrency = env.WorkerPoolSlots
	}
	setString(&cfg.Env, env.Env)
	setString(&cfg.Database.DSN, env.DatabaseDSN)
	setString(&cfg.Redis.URL, env.RedisURL)
	setString(&cfg.RabbitMQ.URL, env.RabbitMQURL)
	setString(&cfg.Storage.Driver, env.StorageDriver)
	setString(&cfg.Storage.Endpoint, env.S3Endpoint)
	setString(&cfg.Storage.Region, env.S3Region)
	setString(&cfg.Storage.Bucket, env.S3Bucket)
	setString(&cfg.Storage.AccessKey, env.S3AccessKey)
	setString(&cfg.Storage.SecretKey, env.S3SecretKey)
	setString(&cfg.AI.DefaultProvider, env.AIProvider)
	setString(&cfg.AI.OpenAI.APIKey, env.OpenAIKey)
	setString(&cfg.AI.Anthropic.APIKey, env.AnthropicKey)
	setString(&cfg.AI.OpenRouter.APIKey, env.OpenRouterKey)
	setString(&cfg.AI.Groq.APIKey, env.GroqKey)
	setString(&cfg.Log.Level, env.LogLevel)
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
