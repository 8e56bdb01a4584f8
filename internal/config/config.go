// Package config provides configuration loading for the worken service.
//
// Configuration is loaded from an optional YAML file and overridden by
// environment variables. Every section maps to one infrastructure concern.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Config holds the complete worken configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Redis         RedisConfig         `koanf:"redis"`
	NATS          NATSConfig          `koanf:"nats"`
	JWT           JWTConfig           `koanf:"jwt"`
	OpenRouter    OpenRouterConfig    `koanf:"openrouter"`
	Site          SiteConfig          `koanf:"site"`
	Frontend      FrontendConfig      `koanf:"frontend"`
	Mail          MailConfig          `koanf:"mail"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	RateLimit     RateLimitConfig     `koanf:"ratelimit"`
	Log           LogConfig           `koanf:"log"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"http_host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	MaxUploadMB     int           `koanf:"max_upload_mb"`
}

// DatabaseConfig selects the relational store.
type DatabaseConfig struct {
	Driver string `koanf:"driver"` // postgres | memory
	URL    Secret `koanf:"url"`
}

// RedisConfig configures the distributed provisioning lock. Empty URL disables it.
type RedisConfig struct {
	URL Secret `koanf:"url"`
}

// NATSConfig configures domain event publishing. Empty URL disables it.
type NATSConfig struct {
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// JWTConfig holds the access token verification secret.
type JWTConfig struct {
	Secret Secret `koanf:"secret"`
}

// OpenRouterConfig holds upstream LLM and key-management settings.
type OpenRouterConfig struct {
	APIKey          Secret  `koanf:"api_key"`
	ProvisioningKey Secret  `koanf:"provisioning_key"`
	EncryptionKey   Secret  `koanf:"encryption_key"`
	BaseURL         string  `koanf:"base_url"`
	ChatModel       string  `koanf:"chat_model"`
	TitleModel      string  `koanf:"title_model"`
	JudgeModel      string  `koanf:"judge_model"`
	KeyCreditLimit  float64 `koanf:"key_credit_limit"`
}

// SiteConfig identifies this deployment to OpenRouter.
type SiteConfig struct {
	URL  string `koanf:"url"`
	Name string `koanf:"name"`
}

// FrontendConfig holds the public web app location used in mail links.
type FrontendConfig struct {
	URL string `koanf:"url"`
}

// MailConfig configures the SMTP transport. Empty host logs mail instead of sending.
type MailConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password Secret `koanf:"password"`
	From     string `koanf:"from"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	Provider  string `koanf:"provider"` // fastembed | tei
	Model     string `koanf:"model"`
	BaseURL   string `koanf:"base_url"`
	CacheDir  string `koanf:"cache_dir"`
	Dimension int    `koanf:"dimension"`
}

// VectorStoreConfig selects the similarity index backend.
type VectorStoreConfig struct {
	Provider         string `koanf:"provider"` // pgvector | chromem | qdrant
	ChromemPath      string `koanf:"chromem_path"`
	ChromemCompress  bool   `koanf:"chromem_compress"`
	QdrantHost       string `koanf:"qdrant_host"`
	QdrantPort       int    `koanf:"qdrant_port"`
	QdrantTLS        bool   `koanf:"qdrant_tls"`
	QdrantAPIKey     Secret `koanf:"qdrant_api_key"`
	QdrantCollection string `koanf:"qdrant_collection"`
}

// RateLimitConfig configures the per-principal request limiter.
type RateLimitConfig struct {
	RPS   float64 `koanf:"rps"`
	Burst int     `koanf:"burst"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool     `koanf:"enable_telemetry"`
	ServiceName     string   `koanf:"service_name"`
	OTLPEndpoint    string   `koanf:"otlp_endpoint"`
	OTLPProtocol    string   `koanf:"otlp_protocol"`
	OTLPInsecure    bool     `koanf:"otlp_insecure"`
	SamplingRate    float64  `koanf:"sampling_rate"`
	ExportInterval  Duration `koanf:"export_interval"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.http_port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	switch c.Database.Driver {
	case "postgres":
		if !c.Database.URL.IsSet() {
			errs = append(errs, errors.New("database.url is required for the postgres driver"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}

	if !c.JWT.Secret.IsSet() {
		errs = append(errs, errors.New("jwt.secret is required"))
	}

	if err := ValidateEncryptionKey(c.OpenRouter.EncryptionKey.Value()); err != nil {
		errs = append(errs, fmt.Errorf("openrouter.encryption_key: %w", err))
	}

	if c.Embeddings.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("embeddings.dimension must be positive, got %d", c.Embeddings.Dimension))
	}
	switch c.Embeddings.Provider {
	case "fastembed", "tei":
	default:
		errs = append(errs, fmt.Errorf("unknown embeddings.provider %q", c.Embeddings.Provider))
	}

	switch c.VectorStore.Provider {
	case "pgvector":
		if c.Database.Driver != "postgres" {
			errs = append(errs, errors.New("vectorstore.provider pgvector requires database.driver postgres"))
		}
	case "chromem", "qdrant":
	default:
		errs = append(errs, fmt.Errorf("unknown vectorstore.provider %q", c.VectorStore.Provider))
	}

	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("ratelimit values must not be negative"))
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		errs = append(errs, errors.New("observability.service_name is required when telemetry is enabled"))
	}

	return errors.Join(errs...)
}

// ValidateEncryptionKey checks that key is exactly 32 bytes of hex.
func ValidateEncryptionKey(key string) error {
	if len(key) != 64 {
		return errors.New("must be exactly 64 hex characters (32 bytes)")
	}
	if _, err := hex.DecodeString(key); err != nil {
		return errors.New("must be exactly 64 hex characters (32 bytes)")
	}
	return nil
}
