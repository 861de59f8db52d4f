package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	censusKeyEnv      = "CENSUS_API_KEY"
	redditIDEnv       = "REDDIT_CLIENT_ID"
	redditSecretEnv   = "REDDIT_CLIENT_SECRET"
	modelKeyEnv       = "MODEL_API_KEY"
	geminiKeyEnv      = "GEMINI_API_KEY"
	redisAddrEnv      = "REDIS_ADDR"
	frontendOriginEnv = "FRONTEND_ORIGIN"
	tableEnv          = "ANALYSIS_TABLE"
)

type Config struct {
	Server struct {
		Port           int    `yaml:"port"`
		FrontendOrigin string `yaml:"frontendOrigin"`
		LogLevel       string `yaml:"logLevel"`
	} `yaml:"server"`

	// Store selects where analysis records are kept. Backend is one of
	// redis (default), mysql, postgres. Table doubles as the key prefix in
	// the redis backend.
	Store struct {
		Backend string `yaml:"backend"`
		Table   string `yaml:"table"`
		Redis   struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
		Database struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			User     string `yaml:"user"`
			Password string `yaml:"password"`
			Name     string `yaml:"name"`
			SSLMode  string `yaml:"sslmode"`
		} `yaml:"database"`
	} `yaml:"store"`

	Census struct {
		BaseURL string `yaml:"baseUrl"`
		APIKey  string `yaml:"apiKey"`
	} `yaml:"census"`

	Reddit struct {
		ClientID     string `yaml:"clientId"`
		ClientSecret string `yaml:"clientSecret"`
		UserAgent    string `yaml:"userAgent"`
	} `yaml:"reddit"`

	Model struct {
		APIKey       string `yaml:"apiKey"`
		Model        string `yaml:"model"`
		BaseURL      string `yaml:"baseUrl"`
		MaxTokens    int    `yaml:"maxTokens"`
		GeminiAPIKey string `yaml:"geminiApiKey"`
		GeminiModel  string `yaml:"geminiModel"`
	} `yaml:"model"`

	Minio struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`
}

// Load baca file config, lalu apply env overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8080
	cfg.Server.FrontendOrigin = "http://localhost:5173"
	cfg.Server.LogLevel = "info"
	cfg.Store.Backend = "redis"
	cfg.Store.Table = "analyses"
	cfg.Store.Redis.Addr = "localhost:6379"
	cfg.Census.BaseURL = "https://api.census.gov/data"
	cfg.Reddit.UserAgent = "idealens/1.0 (research agent)"
	cfg.Model.Model = "claude-sonnet-4-20250514"
	cfg.Model.MaxTokens = 4000
	cfg.Model.GeminiModel = "gemini-2.5-flash"
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(censusKeyEnv); v != "" {
		c.Census.APIKey = v
	}
	if v := os.Getenv(redditIDEnv); v != "" {
		c.Reddit.ClientID = v
	}
	if v := os.Getenv(redditSecretEnv); v != "" {
		c.Reddit.ClientSecret = v
	}
	if v := os.Getenv(modelKeyEnv); v != "" {
		c.Model.APIKey = v
	}
	if v := os.Getenv(geminiKeyEnv); v != "" {
		c.Model.GeminiAPIKey = v
	}
	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Store.Redis.Addr = v
	}
	if v := os.Getenv(frontendOriginEnv); v != "" {
		c.Server.FrontendOrigin = v
	}
	if v := os.Getenv(tableEnv); v != "" {
		c.Store.Table = v
	}
}

// Validate fails fast on missing required settings, before any I/O happens.
func (c *Config) Validate() error {
	var missing []string
	if c.Store.Table == "" {
		missing = append(missing, "store.table")
	}
	switch c.Store.Backend {
	case "redis":
		if c.Store.Redis.Addr == "" {
			missing = append(missing, "store.redis.addr")
		}
	case "mysql", "postgres":
		if c.Store.Database.Host == "" {
			missing = append(missing, "store.database.host")
		}
		if c.Store.Database.Name == "" {
			missing = append(missing, "store.database.name")
		}
	default:
		return fmt.Errorf("unknown store backend: %q (allowed: redis, mysql, postgres)", c.Store.Backend)
	}
	if c.Census.APIKey == "" {
		missing = append(missing, "census.apiKey")
	}
	if c.Reddit.ClientID == "" || c.Reddit.ClientSecret == "" {
		missing = append(missing, "reddit credentials")
	}
	if c.Model.APIKey == "" {
		missing = append(missing, "model.apiKey")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// MySQLDSN builds the DSN for the mysql store backend.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Store.Database.User,
		c.Store.Database.Password,
		c.Store.Database.Host,
		c.Store.Database.Port,
		c.Store.Database.Name,
	)
}

// PostgresDSN builds the DSN for the postgres store backend.
func (c *Config) PostgresDSN() string {
	sslmode := c.Store.Database.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Store.Database.Host,
		c.Store.Database.Port,
		c.Store.Database.User,
		c.Store.Database.Password,
		c.Store.Database.Name,
		sslmode,
	)
}
