// Package config loads the platform's runtime configuration with
// viper, following the teacher's environment-first configuration
// style: every key is bindable from the environment, with a YAML file
// as an optional base layer and a local .env for development.
package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ChunkerConfig holds the C7 chunking parameters (spec §4.7, §6.1).
type ChunkerConfig struct {
	TargetTokens       int
	MinTokens          int
	MaxTokens          int
	OverlapTokens      int
	MaxDurationSeconds float64
}

// EmbeddingConfig holds the C3 embedder parameters (spec §6.1).
type EmbeddingConfig struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	BatchSize  int
	CacheSize  int
}

// LLMConfig holds the C5 default routing parameters (spec §6.1).
type LLMConfig struct {
	DefaultProvider string
	DefaultModel    string
	MaxTokens       int
	Temperature     float64
	RequestTimeout  time.Duration
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	LocalBaseURL    string // Ollama-style local runtime
}

// RetrievalConfig holds C14 parameters (spec §6.1).
type RetrievalConfig struct {
	TopK                   int
	MinRelevanceScore      float64
	FallbackRelevanceScore float64
	WeakContextThreshold   float64
	EnableReranking        bool
	RerankingTopK          int
}

// EnrichmentConfig holds C8 parameters (spec §6.1).
type EnrichmentConfig struct {
	Enabled    bool
	BatchSize  int
	MaxRetries int
}

// CaptionConfig holds C6 parameters (spec §6.1).
type CaptionConfig struct {
	EnableExtraction        bool
	PreferredLanguage       string
	MaxVideoDurationSeconds float64
	MaxVideoFileSizeMB      float64
	CleanupAudioAfterTranscription bool
	HeartbeatInterval       time.Duration
}

// TierLimits mirrors one tier's UserQuota defaults (spec §3, §4.9,
// supplemented from original_source's subscription.py — see SPEC_FULL.md).
type TierLimits struct {
	Videos          int
	Minutes         float64
	Messages        int
	StorageMB       float64
	EmbeddingTokens int64
}

// Config is the process-wide configuration object. It is constructed
// once at startup and injected into every collaborator explicitly (no
// global singleton, per spec §9's design note).
type Config struct {
	DatabaseURL string
	RedisURL    string
	QdrantURL   string
	MinioEndpoint, MinioAccessKey, MinioSecretKey, MinioBucket string
	StorageBackend string // "local" | "minio"
	LocalStorageRoot string
	LogLevel    string

	Chunker    ChunkerConfig
	Embedding  EmbeddingConfig
	LLM        LLMConfig
	Retrieval  RetrievalConfig
	Enrichment EnrichmentConfig
	Caption    CaptionConfig

	Tiers map[string]TierLimits

	EnableLLMLabels bool // C16 insights: gated off in tests (SPEC_FULL.md Open Question #3)
}

// Load reads configuration from environment variables (optionally
// seeded by a .env file) and an optional YAML file at configPath.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load() // best-effort; absence of .env is not an error

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	setDefaults(v)

	cfg := &Config{
		DatabaseURL:       v.GetString("database_url"),
		RedisURL:          v.GetString("redis_url"),
		QdrantURL:         v.GetString("qdrant_url"),
		MinioEndpoint:     v.GetString("minio_endpoint"),
		MinioAccessKey:    v.GetString("minio_access_key"),
		MinioSecretKey:    v.GetString("minio_secret_key"),
		MinioBucket:       v.GetString("minio_bucket"),
		StorageBackend:    v.GetString("storage_backend"),
		LocalStorageRoot:  v.GetString("local_storage_root"),
		LogLevel:          v.GetString("log_level"),
		EnableLLMLabels:   v.GetBool("enable_llm_labels"),

		Chunker: ChunkerConfig{
			TargetTokens:       v.GetInt("chunk_target_tokens"),
			MinTokens:          v.GetInt("chunk_min_tokens"),
			MaxTokens:          v.GetInt("chunk_max_tokens"),
			OverlapTokens:      v.GetInt("chunk_overlap_tokens"),
			MaxDurationSeconds: v.GetFloat64("chunk_max_duration_seconds"),
		},
		Embedding: EmbeddingConfig{
			Provider:  v.GetString("embedding_provider"),
			Model:     v.GetString("embedding_model"),
			APIKey:    v.GetString("embedding_api_key"),
			BaseURL:   v.GetString("embedding_base_url"),
			BatchSize: v.GetInt("embedding_batch_size"),
			CacheSize: v.GetInt("embedding_cache_size"),
		},
		LLM: LLMConfig{
			DefaultProvider: v.GetString("llm_provider"),
			DefaultModel:    v.GetString("llm_model"),
			MaxTokens:       v.GetInt("llm_max_tokens"),
			Temperature:     v.GetFloat64("llm_temperature"),
			RequestTimeout:  v.GetDuration("llm_request_timeout"),
			OpenAIAPIKey:    v.GetString("openai_api_key"),
			OpenAIBaseURL:   v.GetString("openai_base_url"),
			AnthropicAPIKey: v.GetString("anthropic_api_key"),
			LocalBaseURL:    v.GetString("local_llm_base_url"),
		},
		Retrieval: RetrievalConfig{
			TopK:                   v.GetInt("retrieval_top_k"),
			MinRelevanceScore:      v.GetFloat64("min_relevance_score"),
			FallbackRelevanceScore: v.GetFloat64("fallback_relevance_score"),
			WeakContextThreshold:   v.GetFloat64("weak_context_threshold"),
			EnableReranking:        v.GetBool("enable_reranking"),
			RerankingTopK:          v.GetInt("reranking_top_k"),
		},
		Enrichment: EnrichmentConfig{
			Enabled:    v.GetBool("enable_contextual_enrichment"),
			BatchSize:  v.GetInt("enrichment_batch_size"),
			MaxRetries: v.GetInt("enrichment_max_retries"),
		},
		Caption: CaptionConfig{
			EnableExtraction:               v.GetBool("enable_caption_extraction"),
			PreferredLanguage:              v.GetString("caption_preferred_language"),
			MaxVideoDurationSeconds:        v.GetFloat64("max_video_duration_seconds"),
			MaxVideoFileSizeMB:             v.GetFloat64("max_video_file_size_mb"),
			CleanupAudioAfterTranscription: v.GetBool("cleanup_audio_after_transcription"),
			HeartbeatInterval:              v.GetDuration("heartbeat_interval"),
		},
		Tiers: defaultTiers(v),
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "postgres://localhost:5432/vidknora?sslmode=disable")
	v.SetDefault("redis_url", "redis://localhost:6379/0")
	v.SetDefault("qdrant_url", "localhost:6334")
	v.SetDefault("storage_backend", "local")
	v.SetDefault("local_storage_root", "./data")
	v.SetDefault("log_level", "info")
	v.SetDefault("enable_llm_labels", false)

	v.SetDefault("chunk_target_tokens", 400)
	v.SetDefault("chunk_min_tokens", 150)
	v.SetDefault("chunk_max_tokens", 600)
	v.SetDefault("chunk_overlap_tokens", 50)
	v.SetDefault("chunk_max_duration_seconds", 120.0)

	v.SetDefault("embedding_provider", "openai")
	v.SetDefault("embedding_model", "text-embedding-3-small")
	v.SetDefault("embedding_batch_size", 64)
	v.SetDefault("embedding_cache_size", 1000)

	v.SetDefault("llm_provider", "openai")
	v.SetDefault("llm_model", "gpt-4o-mini")
	v.SetDefault("llm_max_tokens", 1024)
	v.SetDefault("llm_temperature", 0.3)
	v.SetDefault("llm_request_timeout", "30s")

	v.SetDefault("retrieval_top_k", 100)
	v.SetDefault("min_relevance_score", 0.35)
	v.SetDefault("fallback_relevance_score", 0.2)
	v.SetDefault("weak_context_threshold", 0.4)
	v.SetDefault("enable_reranking", true)
	v.SetDefault("reranking_top_k", 10)

	v.SetDefault("enable_contextual_enrichment", true)
	v.SetDefault("enrichment_batch_size", 10)
	v.SetDefault("enrichment_max_retries", 2)

	v.SetDefault("enable_caption_extraction", true)
	v.SetDefault("caption_preferred_language", "en")
	v.SetDefault("max_video_duration_seconds", 4*3600.0)
	v.SetDefault("max_video_file_size_mb", 2048.0)
	v.SetDefault("cleanup_audio_after_transcription", true)
	v.SetDefault("heartbeat_interval", "30s")

	v.SetDefault("free_tier_videos", 10)
	v.SetDefault("free_tier_minutes", 300.0)
	v.SetDefault("free_tier_messages", 200)
	v.SetDefault("free_tier_storage_mb", 1024.0)
	v.SetDefault("free_tier_embedding_tokens", 200000)
}

func defaultTiers(v *viper.Viper) map[string]TierLimits {
	return map[string]TierLimits{
		"free": {
			Videos:          v.GetInt("free_tier_videos"),
			Minutes:         v.GetFloat64("free_tier_minutes"),
			Messages:        v.GetInt("free_tier_messages"),
			StorageMB:       v.GetFloat64("free_tier_storage_mb"),
			EmbeddingTokens: v.GetInt64("free_tier_embedding_tokens"),
		},
		"starter": {
			Videos: 50, Minutes: 1500, Messages: 1000,
			StorageMB: 5120, EmbeddingTokens: 1_000_000,
		},
		"pro": {
			Videos: 200, Minutes: 6000, Messages: 5000,
			StorageMB: 20480, EmbeddingTokens: 5_000_000,
		},
		"business": {
			Videos: 1000, Minutes: 30000, Messages: 25000,
			StorageMB: 102400, EmbeddingTokens: 25_000_000,
		},
		"enterprise": {
			Videos: 1 << 30, Minutes: 1 << 30, Messages: 1 << 30,
			StorageMB: 1 << 30, EmbeddingTokens: 1 << 60,
		},
	}
}
