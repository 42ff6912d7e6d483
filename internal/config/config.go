package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int            `yaml:"port"`
	Env            string         `yaml:"env"` // "development" | "production"
	AllowedOrigins []string       `yaml:"allowed_origins"`
	RateLimit      int64          `yaml:"rate_limit"` // requests per second per caller, 0 disables
	Database       DatabaseConfig `yaml:"database"`
	Redis          RedisConfig    `yaml:"redis"`
	RabbitMQ       RabbitMQConfig `yaml:"rabbitmq"`
	Storage        StorageConfig  `yaml:"storage"`
	AI             AIConfig       `yaml:"ai"`
	Quota          QuotaConfig    `yaml:"quota"`
	Worker         WorkerConfig   `yaml:"worker"`
	Exam           ExamConfig     `yaml:"exam"`
	Log            LogConfig      `yaml:"log"`
	Cache          CacheConfig    `yaml:"cache"`

	// DSN and RedisURL are derived from Database and Redis after loading.
	DSN      string `yaml:"-"`
	RedisURL string `yaml:"-"`
}

type DatabaseConfig struct {
	DSN       string            `yaml:"dsn"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	Charset   string            `yaml:"charset"`
	ParseTime bool              `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	Params    map[string]string `yaml:"params"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TLS      bool   `yaml:"tls"`
}

type RabbitMQConfig struct {
	URL         string `yaml:"url"`
	Queue       string `yaml:"queue"`
	DeadLetter  string `yaml:"dead_letter"`
	MaxAttempts int    `yaml:"max_attempts"`
}

type StorageConfig struct {
	Driver    string `yaml:"driver"` // "s3" | "minio"
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	PathStyle bool   `yaml:"path_style"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// ProviderConfig carries the credential and optional model overrides for one AI vendor.
type ProviderConfig struct {
	APIKey      string   `yaml:"api_key"`
	BaseURL     string   `yaml:"base_url"`
	Models      []string `yaml:"models"`
	AudioModels []string `yaml:"audio_models"`
}

type AIConfig struct {
	DefaultProvider string         `yaml:"default_provider"`
	Timeout         time.Duration  `yaml:"timeout"`
	OpenAI          ProviderConfig `yaml:"openai"`
	Anthropic       ProviderConfig `yaml:"anthropic"`
	OpenRouter      ProviderConfig `yaml:"openrouter"`
	Groq            ProviderConfig `yaml:"groq"`
}

type QuotaConfig struct {
	DailyVocabulary int64    `yaml:"daily_vocabulary"`
	MaxFolders      int64    `yaml:"max_folders"`
	MaxSubjects     int64    `yaml:"max_subjects"`
	BypassRoles     []string `yaml:"bypass_roles"`
}

type WorkerConfig struct {
	Concurrency int  `yaml:"concurrency"`
	Disabled    bool `yaml:"disabled"`
}

type ExamConfig struct {
	PassingScore float64 `yaml:"passing_score"`
	Strict       bool    `yaml:"strict"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" | "json"
	Dir    string `yaml:"dir"`
}

type CacheConfig struct {
	ListTTL      time.Duration `yaml:"list_ttl"`
	RandomTTL    time.Duration `yaml:"random_ttl"`
	AggregateTTL time.Duration `yaml:"aggregate_ttl"`
	ReferenceTTL time.Duration `yaml:"reference_ttl"`
}

// Load reads the YAML file at configPath, applies defaults, then environment
// overrides. A missing file is tolerated so the service can run on env alone.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := defaultAppConfig()
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(content, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
	case os.IsNotExist(err) && configPath == "":
	case os.IsNotExist(err) && path == DefaultConfigPath:
	default:
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	normalize(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return &cfg, nil
}

func decode(content []byte, cfg *AppConfig) error {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil
	}
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	return decoder.Decode(cfg)
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Port:      defaultPort,
		Env:       defaultEnv,
		RateLimit: defaultRateLimit,
		Database: DatabaseConfig{
			Host:      defaultDBHost,
			Port:      defaultDBPort,
			User:      defaultDBUser,
			Password:  defaultDBPassword,
			Name:      defaultDBName,
			Charset:   defaultDBCharset,
			ParseTime: true,
			Loc:       defaultDBLoc,
		},
		Redis: RedisConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		RabbitMQ: RabbitMQConfig{
			URL:         defaultRabbitURL,
			Queue:       defaultEvaluationQueue,
			MaxAttempts: defaultMaxAttempts,
		},
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
			Region: defaultStorageRegion,
			UseSSL: true,
		},
		AI: AIConfig{
			DefaultProvider: defaultAIProvider,
			Timeout:         defaultAITimeout,
		},
		Quota: QuotaConfig{
			DailyVocabulary: defaultDailyVocabulary,
			MaxFolders:      defaultMaxFolders,
			MaxSubjects:     defaultMaxSubjects,
			BypassRoles:     append([]string(nil), defaultBypassRoles...),
		},
		Worker: WorkerConfig{Concurrency: defaultWorkerConcurrency},
		Exam:   ExamConfig{PassingScore: defaultPassingScore},
		Log:    LogConfig{Level: defaultLogLevel, Format: defaultLogFormat},
		Cache: CacheConfig{
			ListTTL:      defaultListTTL,
			RandomTTL:    defaultRandomTTL,
			AggregateTTL: defaultAggregateTTL,
		},
	}
}

func validate(cfg *AppConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port %d, expected 1-65535", cfg.Port)
	}
	if cfg.RateLimit < 0 {
		return fmt.Errorf("rate_limit %d, expected >= 0", cfg.RateLimit)
	}
	if cfg.Database.Port < 1 || cfg.Database.Port > 65535 {
		return fmt.Errorf("database.port %d, expected 1-65535", cfg.Database.Port)
	}
	if cfg.Redis.Port < 1 || cfg.Redis.Port > 65535 {
		return fmt.Errorf("redis.port %d, expected 1-65535", cfg.Redis.Port)
	}
	if cfg.Redis.DB < 0 {
		return fmt.Errorf("redis.db %d, expected >= 0", cfg.Redis.DB)
	}
	switch cfg.Storage.Driver {
	case "s3", "minio":
	default:
		return fmt.Errorf("storage.driver %q, expected s3 or minio", cfg.Storage.Driver)
	}
	switch cfg.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format %q, expected console or json", cfg.Log.Format)
	}
	if cfg.Exam.PassingScore < 0 || cfg.Exam.PassingScore > 100 {
		return fmt.Errorf("exam.passing_score %v, expected 0-100", cfg.Exam.PassingScore)
	}
	return nil
}

func (c *AppConfig) IsDev() bool {
	return c.Env == "development"
}

// Provider returns the credential block for a provider tag.
func (c AIConfig) Provider(tag string) ProviderConfig {
	switch tag {
	case "openai":
		return c.OpenAI
	case "anthropic":
		return c.Anthropic
	case "openrouter":
		return c.OpenRouter
	case "groq":
		return c.Groq
	}
	return ProviderConfig{}
}
