package repository

import (
	"context"
	"time"

	"github.com/vidknora/vidknora/internal/types"
	"gorm.io/gorm"
)

type factRepository struct {
	db *gorm.DB
}

// NewFactRepository constructs a FactRepository backed by gorm.
func NewFactRepository(db *gorm.DB) FactRepository {
	return &factRepository{db: db}
}

func (r *factRepository) Create(ctx context.Context, f *types.ConversationFact) error {
	return r.db.WithContext(ctx).Create(f).Error
}

func (r *factRepository) ListByConversation(ctx context.Context, conversationID string) ([]*types.ConversationFact, error) {
	var facts []*types.ConversationFact
	err := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Find(&facts).Error
	return facts, err
}

func (r *factRepository) Update(ctx context.Context, f *types.ConversationFact) error {
	return r.db.WithContext(ctx).Save(f).Error
}

func (r *factRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&types.ConversationFact{}).Error
}

func (r *factRepository) MarkAccessed(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&types.ConversationFact{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"last_accessed": at,
			"access_count":  gorm.Expr("access_count + 1"),
		}).Error
}
