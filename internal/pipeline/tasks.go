package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/vidknora/vidknora/internal/logger"
	"github.com/vidknora/vidknora/internal/types"
	"github.com/vidknora/vidknora/internal/types/interfaces"
)

// TaskTypeIngestVideo is the asynq task type name for a single
// video's ingestion run (spec §4.10, §5).
const TaskTypeIngestVideo = "pipeline:ingest_video"

// IngestPayload is the asynq task payload for TaskTypeIngestVideo.
type IngestPayload struct {
	VideoID string `json:"video_id"`
}

// NewIngestTask builds the asynq task for enqueueing a video's
// ingestion.
func NewIngestTask(videoID string) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestPayload{VideoID: videoID})
	if err != nil {
		return nil, fmt.Errorf("marshal ingest payload: %w", err)
	}
	return asynq.NewTask(TaskTypeIngestVideo, payload), nil
}

// ingestHandler adapts Orchestrator.Run to the asynq task handler
// shape (spec §9 design note: TaskHandler is the uniform worker
// contract across task types).
type ingestHandler struct {
	orchestrator *Orchestrator
}

// NewIngestHandler builds the interfaces.TaskHandler registered under
// TaskTypeIngestVideo.
func NewIngestHandler(o *Orchestrator) interfaces.TaskHandler {
	return &ingestHandler{orchestrator: o}
}

func (h *ingestHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal ingest payload: %w", err)
	}

	var video types.Video
	if h.orchestrator.deps.DB == nil {
		return fmt.Errorf("pipeline: no database configured")
	}
	if err := h.orchestrator.deps.DB.WithContext(ctx).Where("id = ?", payload.VideoID).First(&video).Error; err != nil {
		return fmt.Errorf("load video %s: %w", payload.VideoID, err)
	}

	if err := h.orchestrator.Run(ctx, &video); err != nil {
		if err == ErrCanceled {
			logger.GetLogger(ctx).Infof("ingestion canceled for video=%s", payload.VideoID)
			return nil
		}
		return asynq.SkipRetry
	}
	return nil
}
