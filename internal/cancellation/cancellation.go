// Package cancellation stops in-progress video processing and cleans
// up whatever partial data the pipeline had already produced,
// crediting freed storage back to the owning user's quota (spec §4.11).
package cancellation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/vidknora/vidknora/internal/logger"
	"github.com/vidknora/vidknora/internal/quota"
	"github.com/vidknora/vidknora/internal/storage"
	"github.com/vidknora/vidknora/internal/types"
	"github.com/vidknora/vidknora/internal/vectorstore"
)

// CleanupOption selects what happens to the Video row once its
// partial data has been cleaned up.
type CleanupOption string

const (
	// KeepVideo leaves the row in place with status "canceled".
	KeepVideo CleanupOption = "keep_video"
	// FullDelete soft-deletes the row entirely.
	FullDelete CleanupOption = "full_delete"
)

// bytesPerVector estimates Qdrant's on-disk footprint per indexed
// point, used only to approximate storage freed by a vector delete
// (spec §4.11, mirrors the storage calculator's constant).
const bytesPerVector = 1536 * 4 * 2 // float32 vector + HNSW overhead, approximated

// CleanupSummary reports what cleanup actually did.
type CleanupSummary struct {
	TranscriptDeleted   bool
	ChunksDeleted       int
	AudioFileDeleted    bool
	TranscriptFileDeleted bool
	VectorsDeleted      bool
	StorageFreedMB      float64
}

// CancelResult is the outcome of Cancel.
type CancelResult struct {
	VideoID         string
	PreviousStatus  types.VideoStatus
	NewStatus       types.VideoStatus
	TaskRevoked     bool
	CleanupSummary  CleanupSummary
}

// Service implements cancellation + synchronous cleanup.
type Service struct {
	db          *gorm.DB
	vectorIndex *vectorstore.Index
	storage     *storage.Facade
	quota       *quota.Tracker
	redis       *redis.Client
	inspector   *asynq.Inspector
}

// New constructs a Service. redisClient and inspector may be nil, in
// which case the fast-path cancellation signal and task revocation
// are skipped (DB-polled checkpoints still observe the canceled
// status eventually).
func New(db *gorm.DB, vectorIndex *vectorstore.Index, storageFacade *storage.Facade, tracker *quota.Tracker, redisClient *redis.Client, inspector *asynq.Inspector) *Service {
	return &Service{db: db, vectorIndex: vectorIndex, storage: storageFacade, quota: tracker, redis: redisClient, inspector: inspector}
}

func canceledKey(videoID string) string {
	return "vidknora:canceled:" + videoID
}

// MarkCanceled sets the fast-path redis signal consulted by Checker,
// so in-process pipeline checkpoints don't have to round-trip the
// database on every check.
func (s *Service) MarkCanceled(ctx context.Context, videoID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Set(ctx, canceledKey(videoID), "1", 24*time.Hour).Err(); err != nil {
		logger.GetLogger(ctx).Warnf("mark canceled in redis: %v", err)
	}
}

// Checker reports whether a video has been marked canceled, preferring
// the redis fast path and falling back to the database (spec §4.10
// "cancellation checkpoints", §4.11).
func (s *Service) Checker(ctx context.Context, videoID string) (bool, error) {
	if s.redis != nil {
		n, err := s.redis.Exists(ctx, canceledKey(videoID)).Result()
		if err == nil && n > 0 {
			return true, nil
		}
	}
	var video types.Video
	if err := s.db.WithContext(ctx).Select("status").Where("id = ?", videoID).First(&video).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return true, nil
		}
		return false, err
	}
	return video.Status == types.VideoStatusCanceled, nil
}

// Cancel cancels an in-progress video: it marks the row canceled so
// active checkpoints abort, revokes the asynq task backing it if one
// is recorded, cleans up partial data, and applies option (spec
// §4.11).
func (s *Service) Cancel(ctx context.Context, videoID string, option CleanupOption) (*CancelResult, error) {
	var video types.Video
	if err := s.db.WithContext(ctx).Where("id = ?", videoID).First(&video).Error; err != nil {
		return nil, fmt.Errorf("load video: %w", err)
	}

	previousStatus := video.Status
	if video.Status.IsTerminal() {
		return &CancelResult{
			VideoID:        videoID,
			PreviousStatus: previousStatus,
			NewStatus:      video.Status,
		}, fmt.Errorf("video is already in terminal status: %s", video.Status)
	}

	video.Status = types.VideoStatusCanceled
	video.Error = "Processing canceled by user"
	if err := s.db.WithContext(ctx).Save(&video).Error; err != nil {
		return nil, fmt.Errorf("mark video canceled: %w", err)
	}
	s.MarkCanceled(ctx, videoID)

	revoked := s.revokeActiveTask(ctx, videoID)

	summary, err := s.cleanupVideoData(ctx, &video, true, true, true, true)
	if err != nil {
		return nil, err
	}

	newStatus := types.VideoStatusCanceled
	if option == FullDelete {
		now := time.Now()
		video.IsDeleted = true
		video.DeletedAt = &now
		newStatus = "deleted"
	} else {
		video.Progress = 0
	}
	if err := s.db.WithContext(ctx).Save(&video).Error; err != nil {
		return nil, fmt.Errorf("save post-cleanup video: %w", err)
	}

	return &CancelResult{
		VideoID:        videoID,
		PreviousStatus: previousStatus,
		NewStatus:      newStatus,
		TaskRevoked:    revoked,
		CleanupSummary: summary,
	}, nil
}

// revokeActiveTask looks up the most recent Job row for videoID and
// asks asynq to cancel it if it's still in flight. A revoke attempt
// that finds no active task, or has no inspector configured, simply
// reports false.
func (s *Service) revokeActiveTask(ctx context.Context, videoID string) bool {
	if s.inspector == nil {
		return false
	}
	var job types.Job
	err := s.db.WithContext(ctx).Where("video_id = ?", videoID).Order("created_at DESC").First(&job).Error
	if err != nil || job.TaskHandle == "" {
		return false
	}
	if revokeErr := s.inspector.CancelProcessingTask(job.TaskHandle); revokeErr != nil {
		logger.GetLogger(ctx).Warnf("revoke task %s for video %s: %v", job.TaskHandle, videoID, revokeErr)
		return false
	}
	job.Status = types.VideoStatusCanceled
	job.Error = "Task revoked due to cancellation"
	if saveErr := s.db.WithContext(ctx).Save(&job).Error; saveErr != nil {
		logger.GetLogger(ctx).Warnf("save revoked job: %v", saveErr)
	}
	return true
}

// cleanupVideoData deletes the vectors, chunk/transcript rows, and
// blob files belonging to a video, crediting the storage freed back to
// the owning user's quota (spec §4.11).
func (s *Service) cleanupVideoData(ctx context.Context, video *types.Video, deleteFiles, deleteVectors, deleteDBRecords, trackQuota bool) (CleanupSummary, error) {
	var summary CleanupSummary
	var storageFreedBytes float64

	var chunkTextBytes int64
	var indexedChunkCount int64
	if deleteDBRecords {
		s.db.WithContext(ctx).Model(&types.Chunk{}).
			Select("COALESCE(SUM(LENGTH(text) + COALESCE(LENGTH(COALESCE(summary, '')), 0)), 0)").
			Where("video_id = ?", video.ID).Scan(&chunkTextBytes)
		s.db.WithContext(ctx).Model(&types.Chunk{}).
			Where("video_id = ? AND is_indexed = ?", video.ID, true).
			Count(&indexedChunkCount)
	}

	if deleteVectors && s.vectorIndex != nil {
		if err := s.vectorIndex.DeleteBy(ctx, vectorstore.Filter{UserID: video.UserID, VideoIDs: []string{video.ID}}); err != nil {
			logger.GetLogger(ctx).Warnf("delete vectors for video %s: %v", video.ID, err)
		} else {
			summary.VectorsDeleted = true
			storageFreedBytes += float64(indexedChunkCount) * bytesPerVector
		}
	}

	if deleteDBRecords {
		result := s.db.WithContext(ctx).Where("video_id = ?", video.ID).Delete(&types.Chunk{})
		if result.Error != nil {
			logger.GetLogger(ctx).Warnf("delete chunks for video %s: %v", video.ID, result.Error)
		} else {
			summary.ChunksDeleted = int(result.RowsAffected)
			storageFreedBytes += float64(chunkTextBytes)
		}

		if err := s.db.WithContext(ctx).Where("video_id = ?", video.ID).Delete(&types.Transcript{}).Error; err != nil {
			logger.GetLogger(ctx).Warnf("delete transcript for video %s: %v", video.ID, err)
		} else {
			summary.TranscriptDeleted = true
		}
	}

	if deleteFiles && s.storage != nil {
		if video.AudioPath != "" {
			storageFreedBytes += video.AudioMB * 1024 * 1024
			if ok, err := s.storage.DeleteAudio(ctx, video.UserID, video.ID); err != nil {
				logger.GetLogger(ctx).Warnf("delete audio for video %s: %v", video.ID, err)
			} else {
				summary.AudioFileDeleted = ok
			}
		}
		if video.TranscriptPath != "" {
			if ok, err := s.storage.DeleteTranscript(ctx, video.UserID, video.ID); err != nil {
				logger.GetLogger(ctx).Warnf("delete transcript file for video %s: %v", video.ID, err)
			} else {
				summary.TranscriptFileDeleted = ok
			}
		}
	}

	summary.StorageFreedMB = storageFreedBytes / (1024 * 1024)

	if trackQuota && summary.StorageFreedMB > 0 && s.quota != nil {
		var user types.User
		if err := s.db.WithContext(ctx).Where("id = ?", video.UserID).First(&user).Error; err == nil {
			if err := s.quota.ReleaseStorage(ctx, &user, summary.StorageFreedMB); err != nil {
				logger.GetLogger(ctx).Warnf("credit storage back for video %s: %v", video.ID, err)
			}
		}
	}

	video.AudioPath = ""
	video.AudioMB = 0
	video.TranscriptPath = ""
	video.ChunkCount = 0

	return summary, nil
}
