package repository

import (
	"context"
	"errors"
	"time"

	"github.com/vidknora/vidknora/internal/types"
	"gorm.io/gorm"
)

type jobRepository struct {
	db *gorm.DB
}

// NewJobRepository constructs a JobRepository backed by gorm.
func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepository{db: db}
}

func (r *jobRepository) Create(ctx context.Context, j *types.Job) error {
	return r.db.WithContext(ctx).Create(j).Error
}

func (r *jobRepository) Get(ctx context.Context, videoID string) (*types.Job, error) {
	var j types.Job
	err := r.db.WithContext(ctx).
		Where("video_id = ?", videoID).
		Order("created_at desc").
		First(&j).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *jobRepository) Update(ctx context.Context, j *types.Job) error {
	j.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(j).Error
}
