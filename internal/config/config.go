// Package config loads docqa configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete docqa configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Observability ObservabilityConfig `koanf:"observability"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Retrieval     RetrievalConfig     `koanf:"retrieval"`
	Generator     GeneratorConfig     `koanf:"generator"`
	Sessions      SessionsConfig      `koanf:"sessions"`
	Events        EventsConfig        `koanf:"events"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	RequestTimeout  Duration `koanf:"request_timeout"`
	// MaxBodyBytes caps request bodies; documents arrive inline.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

// ObservabilityConfig configures logging, tracing and metrics export.
type ObservabilityConfig struct {
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	ServiceName     string  `koanf:"service_name"`
	OTLPEndpoint    string  `koanf:"otlp_endpoint"`
	OTLPProtocol    string  `koanf:"otlp_protocol"`
	OTLPInsecure    bool    `koanf:"otlp_insecure"`
	SamplingRate    float64 `koanf:"sampling_rate"`
	LogLevel        string  `koanf:"log_level"`
	LogFormat       string  `koanf:"log_format"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	Provider          string  `koanf:"provider"`
	Model             string  `koanf:"model"`
	BaseURL           string  `koanf:"base_url"`
	APIKey            Secret  `koanf:"api_key"`
	CacheDir          string  `koanf:"cache_dir"`
	Dimension         int     `koanf:"dimension"`
	BatchSize         int     `koanf:"batch_size"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// RetrievalConfig configures chunking and the per-session index.
type RetrievalConfig struct {
	ChunkSize int    `koanf:"chunk_size"`
	TopK      int    `koanf:"top_k"`
	Backend   string `koanf:"backend"`
}

// GeneratorConfig configures the answer generator.
type GeneratorConfig struct {
	// Provider is "openai" (any OpenAI-compatible chat API) or "none".
	Provider    string   `koanf:"provider"`
	BaseURL     string   `koanf:"base_url"`
	Model       string   `koanf:"model"`
	APIKey      Secret   `koanf:"api_key"`
	Temperature float32  `koanf:"temperature"`
	MaxTokens   int      `koanf:"max_tokens"`
	Timeout     Duration `koanf:"timeout"`
}

// SessionsConfig bounds the number and lifetime of sessions.
type SessionsConfig struct {
	IdleTTL     Duration `koanf:"idle_ttl"`
	MaxSessions int      `koanf:"max_sessions"`
}

// EventsConfig configures NATS publication of ingestion events.
type EventsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8420
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = Duration(2 * time.Minute)
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 32 << 20
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "docqa"
	}
	if cfg.Observability.OTLPEndpoint == "" {
		cfg.Observability.OTLPEndpoint = "localhost:4317"
	}
	if cfg.Observability.OTLPProtocol == "" {
		cfg.Observability.OTLPProtocol = "grpc"
	}
	if cfg.Observability.SamplingRate == 0 {
		cfg.Observability.SamplingRate = 1.0
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.LogFormat == "" {
		cfg.Observability.LogFormat = "json"
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "tei"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "sentence-transformers/paraphrase-multilingual-mpnet-base-v2"
	}
	if cfg.Embeddings.BaseURL == "" && cfg.Embeddings.Provider == "tei" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
	if cfg.Embeddings.BatchSize == 0 {
		cfg.Embeddings.BatchSize = 32
	}

	if cfg.Retrieval.ChunkSize == 0 {
		cfg.Retrieval.ChunkSize = 1000
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.Backend == "" {
		cfg.Retrieval.Backend = "flat"
	}

	if cfg.Generator.Provider == "" {
		cfg.Generator.Provider = "openai"
	}
	if cfg.Generator.BaseURL == "" {
		cfg.Generator.BaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	}
	if cfg.Generator.Model == "" {
		cfg.Generator.Model = "gemini-1.5-flash"
	}
	if cfg.Generator.MaxTokens == 0 {
		cfg.Generator.MaxTokens = 1024
	}
	if cfg.Generator.Timeout == 0 {
		cfg.Generator.Timeout = Duration(60 * time.Second)
	}

	if cfg.Sessions.IdleTTL == 0 {
		cfg.Sessions.IdleTTL = Duration(time.Hour)
	}
	if cfg.Sessions.MaxSessions == 0 {
		cfg.Sessions.MaxSessions = 64
	}

	if cfg.Events.NATSURL == "" {
		cfg.Events.NATSURL = "nats://127.0.0.1:4222"
	}
	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = "operations"
	}
}

// Validate checks cross-field constraints after defaults are applied.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.http_port %d out of range", ErrInvalid, c.Server.Port)
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("%w: server.max_body_bytes must not be negative", ErrInvalid)
	}
	switch c.Observability.OTLPProtocol {
	case "grpc", "http/protobuf":
	default:
		return fmt.Errorf("%w: observability.otlp_protocol must be grpc or http/protobuf, got %q", ErrInvalid, c.Observability.OTLPProtocol)
	}
	if c.Observability.SamplingRate < 0 || c.Observability.SamplingRate > 1 {
		return fmt.Errorf("%w: observability.sampling_rate must be in [0,1]", ErrInvalid)
	}
	if c.Observability.LogFormat != "json" && c.Observability.LogFormat != "console" {
		return fmt.Errorf("%w: observability.log_format must be json or console", ErrInvalid)
	}

	switch c.Embeddings.Provider {
	case "tei", "openai":
		if c.Embeddings.Provider == "tei" && c.Embeddings.BaseURL == "" {
			return fmt.Errorf("%w: embeddings.base_url required for tei", ErrInvalid)
		}
	case "fastembed":
	default:
		return fmt.Errorf("%w: unknown embeddings.provider %q", ErrInvalid, c.Embeddings.Provider)
	}
	if c.Embeddings.BatchSize < 1 {
		return fmt.Errorf("%w: embeddings.batch_size must be positive", ErrInvalid)
	}
	if c.Embeddings.Dimension < 0 {
		return fmt.Errorf("%w: embeddings.dimension must not be negative", ErrInvalid)
	}

	if c.Retrieval.ChunkSize < 1 {
		return fmt.Errorf("%w: retrieval.chunk_size must be positive", ErrInvalid)
	}
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("%w: retrieval.top_k must be positive", ErrInvalid)
	}
	if c.Retrieval.Backend != "flat" && c.Retrieval.Backend != "chromem" {
		return fmt.Errorf("%w: retrieval.backend must be flat or chromem, got %q", ErrInvalid, c.Retrieval.Backend)
	}

	switch c.Generator.Provider {
	case "openai", "none":
	default:
		return fmt.Errorf("%w: unknown generator.provider %q", ErrInvalid, c.Generator.Provider)
	}
	if c.Generator.Temperature < 0 || c.Generator.Temperature > 2 {
		return fmt.Errorf("%w: generator.temperature must be in [0,2]", ErrInvalid)
	}

	if ttl := c.Sessions.IdleTTL.Duration(); ttl > 0 && ttl < time.Second {
		return fmt.Errorf("%w: sessions.idle_ttl must be at least 1s, got %s", ErrInvalid, ttl)
	}
	if c.Sessions.MaxSessions < 1 {
		return fmt.Errorf("%w: sessions.max_sessions must be positive", ErrInvalid)
	}
	if c.Events.Enabled && c.Events.NATSURL == "" {
		return fmt.Errorf("%w: events.nats_url required when events are enabled", ErrInvalid)
	}
	return nil
}
