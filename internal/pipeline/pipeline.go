// Package pipeline orchestrates the video ingestion DAG: caption
// extraction (fast path) or audio download + transcription
// (fallback), chunk+enrich, and embed+index, with progress floors,
// cancellation checkpoints between stages and stage-level retry (spec
// §4.10).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/vidknora/vidknora/internal/apperrors"
	"github.com/vidknora/vidknora/internal/caption"
	"github.com/vidknora/vidknora/internal/chunker"
	"github.com/vidknora/vidknora/internal/embedding"
	"github.com/vidknora/vidknora/internal/enricher"
	"github.com/vidknora/vidknora/internal/logger"
	"github.com/vidknora/vidknora/internal/quota"
	"github.com/vidknora/vidknora/internal/storage"
	"github.com/vidknora/vidknora/internal/types"
	"github.com/vidknora/vidknora/internal/vectorstore"
)

// ErrCanceled is returned by Run when a cancellation checkpoint finds
// the video has been canceled mid-pipeline; callers should treat this
// as a graceful stop, not a failure (spec §4.10, §4.11).
var ErrCanceled = errors.New("video processing canceled")

// Progress floors mirror the stage boundaries a client polling
// Video.Progress should expect to observe (spec §4.10).
const (
	progressCheckingCaptions = 5
	progressDownloading      = 10
	progressTranscribing     = 30
	progressChunking         = 60
	progressIndexing         = 90
	progressComplete         = 100
)

// CaptionSource extracts manual/auto captions and, failing that,
// downloads audio for a fallback transcription path. Video-info
// retrieval and pre-ingestion validation are an ingest-endpoint
// concern, not the orchestrator's, so they live on the concrete
// implementation rather than this interface.
type CaptionSource interface {
	GetCaptions(ctx context.Context, url string, preferredLangs []string) (*caption.Transcript, error)
	DownloadAudio(ctx context.Context, url, destDir string, onProgress caption.ProgressFunc) (string, float64, error)
}

// SpeechTranscriber runs speech-to-text over a downloaded audio file
// (spec §4.6 Whisper fallback).
type SpeechTranscriber interface {
	Transcribe(audioPath string, onProgress caption.ProgressFunc) (caption.Transcript, error)
}

// CancelChecker reports whether a video has been marked canceled,
// consulted at the checkpoints between pipeline stages (spec §4.10
// "cancellation checkpoints between stages").
type CancelChecker func(ctx context.Context, videoID string) (bool, error)

// RetryPolicy bounds stage-level retry, mirroring the per-task retry
// counts of the pipeline's original Celery tasks (download: 3,
// everything else: 2).
type RetryPolicy struct {
	DownloadMaxRetries int
	StageMaxRetries    int
}

func defaultRetryPolicy() RetryPolicy {
	return RetryPolicy{DownloadMaxRetries: 3, StageMaxRetries: 2}
}

// Dependencies wires every collaborator the orchestrator calls into;
// constructed once at process startup and passed by reference into
// Orchestrator (spec §9 design note: no global singletons).
type Dependencies struct {
	DB          *gorm.DB
	Captions    CaptionSource
	Transcriber SpeechTranscriber // nil disables the Whisper fallback path
	Chunker     *chunker.Chunker
	Enricher    *enricher.Enricher
	Embedder    embedding.Embedder
	VectorIndex *vectorstore.Index
	Storage     *storage.Facade
	Quota       *quota.Tracker
	CancelCheck CancelChecker
	AudioScratchDir string
	PreferredCaptionLangs []string
	RetryPolicy RetryPolicy
	HeartbeatETA time.Duration
}

// Orchestrator runs the full ingestion DAG for one video.
type Orchestrator struct {
	deps   Dependencies
	tracer trace.Tracer
}

// New constructs an Orchestrator, filling in retry policy defaults
// when unset.
func New(deps Dependencies) *Orchestrator {
	if deps.RetryPolicy == (RetryPolicy{}) {
		deps.RetryPolicy = defaultRetryPolicy()
	}
	return &Orchestrator{deps: deps, tracer: otel.Tracer("internal/pipeline")}
}

func (o *Orchestrator) startSpan(ctx context.Context, name string, video *types.Video) (context.Context, func(error)) {
	ctx, span := o.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("video_id", video.ID),
		attribute.String("user_id", video.UserID),
	))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}
}

// Run executes the full pipeline for video, persisting progress and
// status transitions as it goes. It returns ErrCanceled itself if
// a checkpoint observes the video was canceled; any other error marks
// the video failed.
func (o *Orchestrator) Run(ctx context.Context, video *types.Video) error {
	log := logger.GetLogger(ctx)

	user, err := o.loadUser(ctx, video.UserID)
	if err != nil {
		return o.fail(ctx, video, fmt.Errorf("load user: %w", err))
	}

	if err := o.checkpoint(ctx, video, "before_transcription"); err != nil {
		return o.finishCanceled(ctx, video)
	}

	o.setProgress(ctx, video, types.VideoStatusDownloading, progressCheckingCaptions, "")

	transcript, source, err := o.runTranscriptionStage(ctx, video, user)
	if err != nil {
		if errors.Is(err, ErrCanceled) {
			return o.finishCanceled(ctx, video)
		}
		return o.fail(ctx, video, fmt.Errorf("transcription stage: %w", err))
	}
	video.TranscriptSource = source

	if err := o.checkpoint(ctx, video, "after_transcribe"); err != nil {
		return o.finishCanceled(ctx, video)
	}

	o.setProgress(ctx, video, types.VideoStatusChunking, progressChunking, "")
	chunks, err := o.runChunkEnrichStage(ctx, video, transcript)
	if err != nil {
		return o.fail(ctx, video, fmt.Errorf("chunk/enrich stage: %w", err))
	}

	if err := o.checkpoint(ctx, video, "after_chunk_enrich"); err != nil {
		return o.finishCanceled(ctx, video)
	}

	o.setProgress(ctx, video, types.VideoStatusIndexing, progressIndexing, "")
	indexed, err := o.runEmbedIndexStage(ctx, video, chunks)
	if err != nil {
		return o.fail(ctx, video, fmt.Errorf("embed/index stage: %w", err))
	}

	video.Status = types.VideoStatusCompleted
	video.Progress = progressComplete
	video.ChunkCount = len(chunks)
	video.IsIndexed = true
	o.saveVideo(ctx, video)

	log.Infof("pipeline completed for video=%s chunks=%d indexed=%d", video.ID, len(chunks), indexed)
	return nil
}

// checkpoint consults CancelCheck (if configured); a nil CancelCheck
// means cancellation is never observed mid-pipeline.
func (o *Orchestrator) checkpoint(ctx context.Context, video *types.Video, step string) error {
	if o.deps.CancelCheck == nil {
		return nil
	}
	canceled, err := o.deps.CancelCheck(ctx, video.ID)
	if err != nil {
		logger.GetLogger(ctx).Warnf("cancellation check failed at %s: %v", step, err)
		return nil
	}
	if canceled {
		logger.GetLogger(ctx).Infof("pipeline canceled at checkpoint %s for video=%s", step, video.ID)
		return ErrCanceled
	}
	return nil
}

func (o *Orchestrator) finishCanceled(ctx context.Context, video *types.Video) error {
	video.Status = types.VideoStatusCanceled
	o.saveVideo(ctx, video)
	return ErrCanceled
}

func (o *Orchestrator) fail(ctx context.Context, video *types.Video, err error) error {
	video.Status = types.VideoStatusFailed
	video.Error = err.Error()
	o.saveVideo(ctx, video)
	return err
}

func (o *Orchestrator) setProgress(ctx context.Context, video *types.Video, status types.VideoStatus, progress int, errMsg string) {
	video.Status = status
	video.Progress = progress
	video.Error = errMsg
	o.saveVideo(ctx, video)
}

func (o *Orchestrator) saveVideo(ctx context.Context, video *types.Video) {
	if o.deps.DB == nil {
		return
	}
	if err := o.deps.DB.WithContext(ctx).Save(video).Error; err != nil {
		logger.GetLogger(ctx).Errorf("save video progress: %v", err)
	}
}

func (o *Orchestrator) loadUser(ctx context.Context, userID string) (*types.User, error) {
	if o.deps.DB == nil {
		return &types.User{ID: userID, Tier: types.TierFree}, nil
	}
	var user types.User
	if err := o.deps.DB.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// withRetry runs fn up to maxRetries+1 times with exponential backoff
// starting at initialInterval, mirroring the original Celery tasks'
// `self.retry(exc=e, countdown=...)` (spec §4.10). Only errors
// apperrors.IsRetryable considers transient are retried; any other
// error (quota exceeded, invalid/unavailable source, malformed
// output) is wrapped in backoff.Permanent so fn runs exactly once.
func withRetry(ctx context.Context, maxRetries int, initialInterval time.Duration, fn func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(
		&backoff.ExponentialBackOff{
			InitialInterval:     initialInterval,
			RandomizationFactor: 0,
			Multiplier:          2,
			MaxInterval:         2 * initialInterval,
			MaxElapsedTime:      0,
			Clock:               backoff.SystemClock,
		}, uint64(maxRetries)), ctx)
	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !apperrors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
