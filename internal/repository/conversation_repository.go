package repository

import (
	"context"
	"errors"
	"time"

	"github.com/vidknora/vidknora/internal/types"
	"gorm.io/gorm"
)

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository constructs a ConversationRepository backed by gorm.
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) Get(ctx context.Context, id string) (*types.Conversation, error) {
	var c types.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *conversationRepository) Update(ctx context.Context, c *types.Conversation) error {
	c.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(c).Error
}

func (r *conversationRepository) AppendMessage(ctx context.Context, m *types.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		return tx.Model(&types.Conversation{}).
			Where("id = ?", m.ConversationID).
			UpdateColumn("message_count", gorm.Expr("message_count + 1")).Error
	})
}

func (r *conversationRepository) RecentMessages(ctx context.Context, conversationID string, limit int) ([]*types.Message, error) {
	var messages []*types.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at desc").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	// Return chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *conversationRepository) ListIdleSince(ctx context.Context, idleSince time.Time) ([]*types.Conversation, error) {
	var conversations []*types.Conversation
	err := r.db.WithContext(ctx).
		Where("updated_at < ?", idleSince).
		Find(&conversations).Error
	return conversations, err
}
