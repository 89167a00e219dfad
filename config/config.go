package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Minio    MinioConfig    `yaml:"minio"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Query    QueryConfig    `yaml:"query"`
	Users    []User         `yaml:"users"`
}

type ServerConfig struct {
	Port               int `yaml:"port"`
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

type MinioConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	UseSSL     bool   `yaml:"use_ssl"`
	ExpireDays int    `yaml:"expire_days"`
}

// OpenAIConfig configures both the embedding and the generation provider.
type OpenAIConfig struct {
	APIKey              string  `yaml:"api_key"`
	BaseURL             string  `yaml:"base_url"`
	EmbeddingModel      string  `yaml:"embedding_model"`
	EmbeddingDimensions int     `yaml:"embedding_dimensions"`
	ChatModel           string  `yaml:"chat_model"`
	Temperature         float32 `yaml:"temperature"`
	MaxOutputTokens     int     `yaml:"max_output_tokens"`
	EmbedTimeoutSecs    int     `yaml:"embed_timeout_seconds"`
	GenerateTimeoutSecs int     `yaml:"generate_timeout_seconds"`
	MaxRetries          int     `yaml:"max_retries"`
	BatchSize           int     `yaml:"batch_size"`
	BatchDelayMillis    int     `yaml:"batch_delay_ms"`
}

func (c *OpenAIConfig) EmbedTimeout() time.Duration {
	return time.Duration(c.EmbedTimeoutSecs) * time.Second
}

func (c *OpenAIConfig) GenerateTimeout() time.Duration {
	return time.Duration(c.GenerateTimeoutSecs) * time.Second
}

func (c *OpenAIConfig) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelayMillis) * time.Millisecond
}

type IngestConfig struct {
	ChunkSize    int   `yaml:"chunk_size"`
	ChunkOverlap int   `yaml:"chunk_overlap"`
	MaxFileBytes int64 `yaml:"max_file_bytes"`
	MaxPDFPages  int   `yaml:"max_pdf_pages"`
}

type QueryConfig struct {
	MaxSources    int `yaml:"max_sources"`
	SnippetLength int `yaml:"snippet_length"`
}

type User struct {
	ID       string `yaml:"id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerMinute == 0 {
		cfg.Server.RateLimitPerMinute = 100
	}
	if cfg.Auth.TokenExpireHours == 0 {
		cfg.Auth.TokenExpireHours = 24
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Minio.ExpireDays == 0 {
		cfg.Minio.ExpireDays = 7
	}
	if cfg.OpenAI.EmbeddingModel == "" {
		cfg.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.OpenAI.EmbeddingDimensions == 0 {
		cfg.OpenAI.EmbeddingDimensions = 1536
	}
	if cfg.OpenAI.ChatModel == "" {
		cfg.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if cfg.OpenAI.Temperature == 0 {
		// A zero temperature is dropped by the provider client's wire
		// encoding and read upstream as "use the provider default", so zero
		// here means unset, not deterministic sampling.
		cfg.OpenAI.Temperature = 0.1
	}
	if cfg.OpenAI.MaxOutputTokens == 0 {
		cfg.OpenAI.MaxOutputTokens = 1024
	}
	if cfg.OpenAI.EmbedTimeoutSecs == 0 {
		cfg.OpenAI.EmbedTimeoutSecs = 30
	}
	if cfg.OpenAI.GenerateTimeoutSecs == 0 {
		cfg.OpenAI.GenerateTimeoutSecs = 60
	}
	if cfg.OpenAI.MaxRetries == 0 {
		cfg.OpenAI.MaxRetries = 3
	}
	if cfg.OpenAI.BatchSize == 0 {
		cfg.OpenAI.BatchSize = 100
	}
	if cfg.OpenAI.BatchDelayMillis == 0 {
		cfg.OpenAI.BatchDelayMillis = 200
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 1200
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 200
	}
	if cfg.Ingest.MaxFileBytes == 0 {
		cfg.Ingest.MaxFileBytes = 50 << 20 // 50 MiB
	}
	if cfg.Ingest.MaxPDFPages == 0 {
		cfg.Ingest.MaxPDFPages = 500
	}
	if cfg.Query.MaxSources == 0 {
		cfg.Query.MaxSources = 5
	}
	if cfg.Query.SnippetLength == 0 {
		cfg.Query.SnippetLength = 400
	}

	return &cfg, nil
}

// FindUser finds a user by username
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}
