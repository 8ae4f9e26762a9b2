package repository

import (
	"context"
	"errors"

	"github.com/vidknora/vidknora/internal/types"
	"gorm.io/gorm"
)

type quotaRepository struct {
	db *gorm.DB
}

// NewQuotaRepository constructs a QuotaRepository backed by gorm.
func NewQuotaRepository(db *gorm.DB) QuotaRepository {
	return &quotaRepository{db: db}
}

func (r *quotaRepository) Get(ctx context.Context, userID string) (*types.UserQuota, error) {
	var q types.UserQuota
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *quotaRepository) Upsert(ctx context.Context, q *types.UserQuota) error {
	return r.db.WithContext(ctx).Save(q).Error
}

func (r *quotaRepository) ListAll(ctx context.Context) ([]*types.UserQuota, error) {
	var quotas []*types.UserQuota
	err := r.db.WithContext(ctx).Find(&quotas).Error
	return quotas, err
}
