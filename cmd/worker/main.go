// Command worker is the ingestion task consumer: it pulls
// "pipeline:ingest_video" tasks off the asynq queue and runs them
// through internal/pipeline.Orchestrator (spec §4.10, §5).
package main

import (
	"context"
	"log"
	"net"
	"os"
	"strconv"

	"github.com/hibiken/asynq"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"

	"github.com/vidknora/vidknora/internal/caption"
	"github.com/vidknora/vidknora/internal/cancellation"
	"github.com/vidknora/vidknora/internal/chunker"
	"github.com/vidknora/vidknora/internal/config"
	"github.com/vidknora/vidknora/internal/embedding"
	"github.com/vidknora/vidknora/internal/enricher"
	"github.com/vidknora/vidknora/internal/llm"
	"github.com/vidknora/vidknora/internal/logger"
	"github.com/vidknora/vidknora/internal/pipeline"
	"github.com/vidknora/vidknora/internal/quota"
	"github.com/vidknora/vidknora/internal/repository"
	"github.com/vidknora/vidknora/internal/storage"
	"github.com/vidknora/vidknora/internal/vectorstore"
)

func main() {
	cfg, err := config.Load(os.Getenv("VIDKNORA_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)

	db, err := repository.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	redisConn, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		log.Fatalf("parse redis url: %v", err)
	}
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("parse redis url: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)

	qdrantClient, err := newQdrantClient(cfg.QdrantURL)
	if err != nil {
		log.Fatalf("connect qdrant: %v", err)
	}
	vectorIndex := vectorstore.New(qdrantClient, "vidknora_chunks")

	backend, err := newStorageBackend(cfg)
	if err != nil {
		log.Fatalf("configure storage backend: %v", err)
	}
	storageFacade := storage.New(backend)

	embedder := buildEmbedder(cfg, redisClient)
	llmClient := llm.New(llm.Config{
		DefaultKind:     defaultLLMKind(cfg.LLM.DefaultProvider),
		DefaultModel:    cfg.LLM.DefaultModel,
		OpenAIAPIKey:    cfg.LLM.OpenAIAPIKey,
		OpenAIBaseURL:   cfg.LLM.OpenAIBaseURL,
		AnthropicAPIKey: cfg.LLM.AnthropicAPIKey,
		LocalBaseURL:    cfg.LLM.LocalBaseURL,
	})

	var transcriber pipeline.SpeechTranscriber
	if modelPath := os.Getenv("WHISPER_MODEL_PATH"); modelPath != "" {
		t, terr := caption.NewTranscriber(modelPath)
		if terr != nil {
			log.Printf("whisper transcriber unavailable, falling back to captions-only: %v", terr)
		} else {
			transcriber = t
		}
	}

	tracker := quota.New(db, cfg.Tiers)
	inspector := asynq.NewInspector(redisConn)
	canceler := cancellation.New(db, vectorIndex, storageFacade, tracker, redisClient, inspector)

	orchestrator := pipeline.New(pipeline.Dependencies{
		DB:                    db,
		Captions:              caption.NewDownloader(envOr("YTDLP_BINARY", "yt-dlp")),
		Transcriber:           transcriber,
		Chunker:               chunker.New(cfg.Chunker),
		Enricher:              enricher.New(llmClient, cfg.Enrichment, cfg.LLM.DefaultModel, ""),
		Embedder:              embedder,
		VectorIndex:           vectorIndex,
		Storage:               storageFacade,
		Quota:                 tracker,
		CancelCheck:           canceler.Checker,
		AudioScratchDir:       envOr("AUDIO_SCRATCH_DIR", os.TempDir()),
		PreferredCaptionLangs: []string{cfg.Caption.PreferredLanguage, "en"},
		HeartbeatETA:          cfg.Caption.HeartbeatInterval,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(pipeline.TaskTypeIngestVideo, pipeline.NewIngestHandler(orchestrator).Handle)

	srv := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: envOrInt("WORKER_CONCURRENCY", 5),
		Queues: map[string]int{
			"critical": 6,
			"default":  3,
			"low":      1,
		},
	})

	log.Printf("vidknora worker starting, concurrency=%d", envOrInt("WORKER_CONCURRENCY", 5))
	if err := srv.Run(mux); err != nil {
		log.Fatalf("worker server stopped: %v", err)
	}
}

func buildEmbedder(cfg *config.Config, redisClient *redis.Client) embedding.Embedder {
	base := embedding.New(embedding.Config{
		APIKey:    cfg.Embedding.APIKey,
		BaseURL:   cfg.Embedding.BaseURL,
		Model:     cfg.Embedding.Model,
		BatchSize: cfg.Embedding.BatchSize,
	})
	tier2 := embedding.NewRedisCache(redisClient, 0)
	return embedding.WithTieredCache(base, cfg.Embedding.CacheSize, tier2)
}

func newStorageBackend(cfg *config.Config) (storage.Backend, error) {
	if cfg.StorageBackend == "minio" {
		return storage.NewMinioBackend(context.Background(), cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, false)
	}
	return storage.NewLocalBackend(cfg.LocalStorageRoot), nil
}

func newQdrantClient(qdrantURL string) (*qdrant.Client, error) {
	host, portStr, err := net.SplitHostPort(qdrantURL)
	if err != nil {
		host, portStr = qdrantURL, "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}
	return qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
}

func defaultLLMKind(provider string) llm.Kind {
	switch provider {
	case "anthropic":
		return llm.KindAnthropic
	case "local":
		return llm.KindLocal
	case "generic":
		return llm.KindGeneric
	default:
		return llm.KindOpenAI
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
