package repository

import (
	"context"
	"errors"

	"github.com/vidknora/vidknora/internal/types"
	"gorm.io/gorm"
)

type insightRepository struct {
	db *gorm.DB
}

// NewInsightRepository constructs an InsightRepository backed by gorm.
func NewInsightRepository(db *gorm.DB) InsightRepository {
	return &insightRepository{db: db}
}

func (r *insightRepository) Latest(ctx context.Context, conversationID, userID string) (*types.ConversationInsight, error) {
	var insight types.ConversationInsight
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Order("created_at desc").
		First(&insight).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &insight, nil
}

func (r *insightRepository) Create(ctx context.Context, insight *types.ConversationInsight) error {
	return r.db.WithContext(ctx).Create(insight).Error
}

func (r *insightRepository) Update(ctx context.Context, insight *types.ConversationInsight) error {
	return r.db.WithContext(ctx).Save(insight).Error
}
