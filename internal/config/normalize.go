package config

import "strings"

func normalize(cfg *AppConfig) {
	cfg.Env = normalizeEnv(cfg.Env)
	cfg.AllowedOrigins = normalizeList(cfg.AllowedOrigins)
	cfg.Database = normalizeDatabaseConfig(cfg.Database)
	cfg.Redis = normalizeRedisConfig(cfg.Redis)
	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = cfg.Redis.URLValue()

	cfg.RabbitMQ.URL = strings.TrimSpace(cfg.RabbitMQ.URL)
	if cfg.RabbitMQ.URL == "" {
		cfg.RabbitMQ.URL = defaultRabbitURL
	}
	cfg.RabbitMQ.Queue = strings.TrimSpace(cfg.RabbitMQ.Queue)
	if cfg.RabbitMQ.Queue == "" {
		cfg.RabbitMQ.Queue = defaultEvaluationQueue
	}
	if strings.TrimSpace(cfg.RabbitMQ.DeadLetter) == "" {
		cfg.RabbitMQ.DeadLetter = cfg.RabbitMQ.Queue + defaultDeadLetterSuffix
	}
	if cfg.RabbitMQ.MaxAttempts < 1 {
		cfg.RabbitMQ.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Worker.Concurrency < 1 {
		cfg.Worker.Concurrency = defaultWorkerConcurrency
	}

	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = defaultStorageDriver
	}
	if strings.TrimSpace(cfg.Storage.Region) == "" {
		cfg.Storage.Region = defaultStorageRegion
	}
	cfg.Storage.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Storage.Endpoint), "/")

	cfg.AI.DefaultProvider = strings.ToLower(strings.TrimSpace(cfg.AI.DefaultProvider))
	if cfg.AI.DefaultProvider == "" {
		cfg.AI.DefaultProvider = defaultAIProvider
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = defaultAITimeout
	}
	for _, p := range []*ProviderConfig{&cfg.AI.OpenAI, &cfg.AI.Anthropic, &cfg.AI.OpenRouter, &cfg.AI.Groq} {
		p.APIKey = strings.TrimSpace(p.APIKey)
		p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
		p.Models = normalizeList(p.Models)
		p.AudioModels = normalizeList(p.AudioModels)
	}

	if cfg.Quota.BypassRoles == nil {
		cfg.Quota.BypassRoles = append([]string(nil), defaultBypassRoles...)
	}
	cfg.Quota.BypassRoles = normalizeList(cfg.Quota.BypassRoles)

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLevel
	}
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaultLogFormat
	}
	if cfg.Log.Dir != "" {
		cfg.Log.Dir = logPath(cfg.Log.Dir)
	}

	if cfg.Cache.ListTTL <= 0 {
		cfg.Cache.ListTTL = defaultListTTL
	}
	if cfg.Cache.RandomTTL <= 0 {
		cfg.Cache.RandomTTL = defaultRandomTTL
	}
	if cfg.Cache.AggregateTTL <= 0 {
		cfg.Cache.AggregateTTL = defaultAggregateTTL
	}
	if cfg.Cache.ReferenceTTL < 0 {
		cfg.Cache.ReferenceTTL = 0
	}
}

func normalizeDatabaseConfig(cfg DatabaseConfig) DatabaseConfig {
	cfg.DSN = strings.TrimSpace(cfg.DSN)
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.User = strings.TrimSpace(cfg.User)
	cfg.Password = strings.TrimSpace(cfg.Password)
	cfg.Name = strings.TrimSpace(cfg.Name)
	cfg.Charset = strings.TrimSpace(cfg.Charset)
	cfg.Loc = strings.TrimSpace(cfg.Loc)

	if cfg.Host == "" {
		cfg.Host = defaultDBHost
	}
	if cfg.Port == 0 {
		cfg.Port = defaultDBPort
	}
	if cfg.User == "" {
		cfg.User = defaultDBUser
	}
	if cfg.Name == "" {
		cfg.Name = defaultDBName
	}
	if cfg.Charset == "" {
		cfg.Charset = defaultDBCharset
	}
	if cfg.Loc == "" {
		cfg.Loc = defaultDBLoc
	}
	if cfg.Params != nil {
		cfg.Params = copyStringMap(cfg.Params)
	}
	return cfg
}

func normalizeRedisConfig(cfg RedisConfig) RedisConfig {
	cfg.URL = normalizeRedisRawURL(cfg.URL)
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.Username = strings.TrimSpace(cfg.Username)
	cfg.Password = strings.TrimSpace(cfg.Password)

	if cfg.Host == "" {
		cfg.Host = defaultRedisHost
	}
	if cfg.Port == 0 {
		cfg.Port = defaultRedisPort
	}
	return cfg
}

func normalizeRedisRawURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "redis://") || strings.HasPrefix(trimmed, "rediss://") {
		return trimmed
	}
	return "redis://" + trimmed
}

func normalizeList(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" && !seen[trimmed] {
			seen[trimmed] = true
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(env string) string {
	trimmed := strings.ToLower(strings.TrimSpace(env))
	if trimmed == "" {
		return defaultEnv
	}
	return trimmed
}

func copyStringMap(input map[string]string) map[string]string {
	out := make(map[string]string, len(input))
	for key, value := range input {
		k := strings.TrimSpace(key)
		v := strings.TrimSpace(value)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}
