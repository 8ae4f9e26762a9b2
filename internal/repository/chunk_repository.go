package repository

import (
	"context"

	"github.com/vidknora/vidknora/internal/types"
	"gorm.io/gorm"
)

type chunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository constructs a ChunkRepository backed by gorm.
func NewChunkRepository(db *gorm.DB) ChunkRepository {
	return &chunkRepository{db: db}
}

func (r *chunkRepository) CreateBatch(ctx context.Context, chunks []*types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(chunks, 100).Error
}

func (r *chunkRepository) ListByVideo(ctx context.Context, videoID string) ([]*types.Chunk, error) {
	var chunks []*types.Chunk
	err := r.db.WithContext(ctx).
		Where("video_id = ?", videoID).
		Order("chunk_index asc").
		Find(&chunks).Error
	return chunks, err
}

func (r *chunkRepository) ListByVideos(ctx context.Context, userID string, videoIDs []string) ([]*types.Chunk, error) {
	var chunks []*types.Chunk
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND video_id IN ?", userID, videoIDs).
		Order("video_id asc, chunk_index asc").
		Find(&chunks).Error
	return chunks, err
}

func (r *chunkRepository) CountByVideo(ctx context.Context, videoID string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&types.Chunk{}).Where("video_id = ?", videoID).Count(&count).Error
	return int(count), err
}

// DeleteByVideo deletes all chunks belonging to a video and reports
// the sum of their text bytes for storage credit-back (spec §4.11).
func (r *chunkRepository) DeleteByVideo(ctx context.Context, videoID string) (int64, int, error) {
	var chunks []*types.Chunk
	if err := r.db.WithContext(ctx).Where("video_id = ?", videoID).Find(&chunks).Error; err != nil {
		return 0, 0, err
	}
	var textBytes int64
	for _, c := range chunks {
		textBytes += int64(len(c.Text)) + int64(len(c.EmbeddingText))
	}
	if err := r.db.WithContext(ctx).Where("video_id = ?", videoID).Delete(&types.Chunk{}).Error; err != nil {
		return 0, 0, err
	}
	return textBytes, len(chunks), nil
}

// DeleteForSoftDeletedVideos implements the first reconciliation step
// of spec §4.12.3: delete any Chunk whose Video is soft-deleted.
func (r *chunkRepository) DeleteForSoftDeletedVideos(ctx context.Context) (int, error) {
	var videoIDs []string
	err := r.db.WithContext(ctx).Model(&types.Video{}).
		Where("is_deleted = ?", true).Pluck("id", &videoIDs).Error
	if err != nil {
		return 0, err
	}
	if len(videoIDs) == 0 {
		return 0, nil
	}
	tx := r.db.WithContext(ctx).Where("video_id IN ?", videoIDs).Delete(&types.Chunk{})
	return int(tx.RowsAffected), tx.Error
}

// TotalTextBytes sums chunk text across all of a user's (non-deleted)
// videos; used by quota reconciliation's db_text_bytes term.
func (r *chunkRepository) TotalTextBytes(ctx context.Context, userID string) (int64, error) {
	var chunks []*types.Chunk
	err := r.db.WithContext(ctx).
		Joins("JOIN videos ON videos.id = chunks.video_id").
		Where("chunks.user_id = ? AND videos.is_deleted = ?", userID, false).
		Find(&chunks).Error
	if err != nil {
		return 0, err
	}
	var total int64
	for _, c := range chunks {
		total += int64(len(c.Text)) + int64(len(c.EmbeddingText))
	}
	return total, nil
}

func (r *chunkRepository) CountIndexed(ctx context.Context, userID string) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&types.Chunk{}).
		Where("user_id = ? AND is_indexed = ?", userID, true).
		Count(&count).Error
	return int(count), err
}
