package repository

import (
	"context"
	"errors"

	"github.com/vidknora/vidknora/internal/types"
	"gorm.io/gorm"
)

type transcriptRepository struct {
	db *gorm.DB
}

// NewTranscriptRepository constructs a TranscriptRepository backed by gorm.
func NewTranscriptRepository(db *gorm.DB) TranscriptRepository {
	return &transcriptRepository{db: db}
}

func (r *transcriptRepository) Upsert(ctx context.Context, t *types.Transcript) error {
	return r.db.WithContext(ctx).Save(t).Error
}

func (r *transcriptRepository) Get(ctx context.Context, videoID string) (*types.Transcript, error) {
	var t types.Transcript
	err := r.db.WithContext(ctx).Where("video_id = ?", videoID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *transcriptRepository) Delete(ctx context.Context, videoID string) error {
	return r.db.WithContext(ctx).Where("video_id = ?", videoID).Delete(&types.Transcript{}).Error
}
