package config

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	KVBackendDB = "db"
	KVBackendS3 = "s3"
)

type Config struct {
	Root        string `env:"ROOT" envDefault:"./sciphi-chat"`
	Port        int    `env:"PORT" envDefault:"3001"`
	DatabaseURL string `env:"DATABASE_URL"`

	KVBackend         string `env:"KV_BACKEND" envDefault:"db"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3Bucket          string `env:"S3_BUCKET" envDefault:"sciphi-chat"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`

	SciPhiAPIKey   string `env:"SCIPHI_API_KEY"`
	SciPhiAPIURL   string `env:"SCIPHI_API_URL"`
	GptVersion     string `env:"GPT_VERSION" envDefault:"sciphi-alpha"`
	LLMClient      string `env:"LLM_CLIENT" envDefault:"openai"`
	CompletionsURL string `env:"COMPLETIONS_URL"`

	WorkspaceCacheSize int           `env:"WORKSPACE_CACHE_SIZE" envDefault:"256"`
	RecordCompletions  bool          `env:"RECORD_COMPLETIONS" envDefault:"false"`
	StarterPromptsFile string        `env:"STARTER_PROMPTS_FILE"`
	AllowedOrigins     []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"120s"`
	Telemetry          bool          `env:"TELEMETRY" envDefault:"false"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.KVBackend = strings.ToLower(strings.TrimSpace(c.KVBackend))
	switch c.KVBackend {
	case KVBackendDB:
	case KVBackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET must be set when KV_BACKEND=s3")
		}
		if c.S3EndpointURL != "" && (c.S3AccessKeyID == "" || c.S3SecretAccessKey == "") {
			log.Println("Warning: S3_ENDPOINT_URL is set, but AWS_ACCESS_KEY_ID or AWS_SECRET_ACCESS_KEY are missing.")
		}
	default:
		return fmt.Errorf("invalid KV_BACKEND '%s': must be '%s' or '%s'", c.KVBackend, KVBackendDB, KVBackendS3)
	}

	if c.WorkspaceCacheSize < 1 {
		return fmt.Errorf("WORKSPACE_CACHE_SIZE must be positive, got %d", c.WorkspaceCacheSize)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	return nil
}

func (c Config) SQLitePath() string {
	return filepath.Join(c.Root, "db", "chat.db")
}

func (c Config) LogPath() string {
	return filepath.Join(c.Root, "logs", "server.log")
}
