package repository

import (
	"context"
	"errors"
	"time"

	"github.com/vidknora/vidknora/internal/types"
	"gorm.io/gorm"
)

type videoRepository struct {
	db *gorm.DB
}

// NewVideoRepository constructs a VideoRepository backed by gorm.
func NewVideoRepository(db *gorm.DB) VideoRepository {
	return &videoRepository{db: db}
}

func (r *videoRepository) Create(ctx context.Context, v *types.Video) error {
	return r.db.WithContext(ctx).Create(v).Error
}

func (r *videoRepository) Get(ctx context.Context, userID, videoID string) (*types.Video, error) {
	var v types.Video
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ? AND is_deleted = ?", videoID, userID, false).
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// GetForUpdate re-reads the row without a user filter; the pipeline
// already established ownership at job creation time and only needs
// the freshest status at a checkpoint (spec §4.10).
func (r *videoRepository) GetForUpdate(ctx context.Context, videoID string) (*types.Video, error) {
	var v types.Video
	err := r.db.WithContext(ctx).Where("id = ?", videoID).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *videoRepository) Update(ctx context.Context, v *types.Video) error {
	v.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(v).Error
}

func (r *videoRepository) ListByStatusOlderThan(
	ctx context.Context, statuses []types.VideoStatus, olderThan time.Time,
) ([]*types.Video, error) {
	var videos []*types.Video
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", statuses, olderThan).
		Find(&videos).Error
	return videos, err
}

func (r *videoRepository) ListByUser(ctx context.Context, userID string, includeDeleted bool) ([]*types.Video, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if !includeDeleted {
		q = q.Where("is_deleted = ?", false)
	}
	var videos []*types.Video
	err := q.Order("created_at desc").Find(&videos).Error
	return videos, err
}

func (r *videoRepository) ListByIDs(ctx context.Context, userID string, videoIDs []string, limit int) ([]*types.Video, error) {
	if len(videoIDs) == 0 {
		return nil, nil
	}
	var videos []*types.Video
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND id IN ? AND is_deleted = ?", userID, videoIDs, false).
		Order("created_at desc").
		Limit(limit).
		Find(&videos).Error
	return videos, err
}

func (r *videoRepository) Delete(ctx context.Context, videoID string) error {
	return r.db.WithContext(ctx).Where("id = ?", videoID).Delete(&types.Video{}).Error
}
