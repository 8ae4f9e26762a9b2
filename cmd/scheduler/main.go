// Command scheduler runs the periodic maintenance jobs on a cron
// schedule: stale-video GC, orphaned-file GC, quota reconciliation,
// and memory consolidation (spec §4.12).
package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"

	"github.com/vidknora/vidknora/internal/cancellation"
	"github.com/vidknora/vidknora/internal/cleanup"
	"github.com/vidknora/vidknora/internal/config"
	"github.com/vidknora/vidknora/internal/logger"
	"github.com/vidknora/vidknora/internal/memory"
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

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open pgx pool: %v", err)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("parse redis url: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)

	redisConn, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		log.Fatalf("parse redis url: %v", err)
	}
	inspector := asynq.NewInspector(redisConn)

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

	tracker := quota.New(db, cfg.Tiers)
	canceler := cancellation.New(db, vectorIndex, storageFacade, tracker, redisClient, inspector)
	reconciler := quota.NewReconciler(pool)
	consolidator := memory.NewConsolidator(
		repository.NewFactRepository(db),
		repository.NewConversationRepository(db),
	)

	jobs := &cleanup.Jobs{
		DB:         db,
		Canceler:   canceler,
		Storage:    storageFacade,
		Reconciler: reconciler,
		Memory:     consolidator,
	}

	scheduler := cleanup.NewScheduler(jobs)
	if err := scheduler.Register(); err != nil {
		log.Fatalf("register cron jobs: %v", err)
	}
	scheduler.Start()
	log.Print("vidknora scheduler started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Print("vidknora scheduler shutting down")
	<-scheduler.Stop().Done()
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
