// Package quota enforces per-user rolling 30-day resource limits
// (videos, transcription minutes, chat messages, storage, embedding
// tokens) and tracks the events that consume them (spec §4.9).
package quota

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/vidknora/vidknora/internal/apperrors"
	"github.com/vidknora/vidknora/internal/config"
	"github.com/vidknora/vidknora/internal/types"
)

const periodLength = 30 * 24 * time.Hour

// Tracker enforces and records quota usage against gorm-backed
// UserQuota rows, following the teacher's repository-over-gorm.DB
// convention.
type Tracker struct {
	db    *gorm.DB
	tiers map[string]config.TierLimits
}

// New constructs a Tracker bound to db and the configured tier table.
func New(db *gorm.DB, tiers map[string]config.TierLimits) *Tracker {
	return &Tracker{db: db, tiers: tiers}
}

// getOrCreateQuota fetches the user's current-period quota row,
// rolling it over to a fresh 30-day period (and resetting usage
// counters to zero) if the stored period has elapsed, or creating one
// from the user's tier if none exists yet.
func (t *Tracker) getOrCreateQuota(ctx context.Context, user *types.User) (*types.UserQuota, error) {
	var quota types.UserQuota
	err := t.db.WithContext(ctx).Where("user_id = ?", user.ID).First(&quota).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return t.createInitialQuota(ctx, user)
		}
		return nil, err
	}

	now := time.Now()
	if quota.PeriodEnd.Before(now) {
		quota.PeriodStart = now
		quota.PeriodEnd = now.Add(periodLength)
		quota.VideosUsed = 0
		quota.MinutesUsed = 0
		quota.MessagesUsed = 0
		quota.StorageMBUsed = 0
		quota.EmbeddingTokensUsed = 0
		if saveErr := t.db.WithContext(ctx).Save(&quota).Error; saveErr != nil {
			return nil, saveErr
		}
	}
	return &quota, nil
}

func (t *Tracker) createInitialQuota(ctx context.Context, user *types.User) (*types.UserQuota, error) {
	limits, ok := t.tiers[string(user.Tier)]
	if !ok {
		limits = t.tiers[string(types.TierFree)]
	}
	now := time.Now()
	quota := &types.UserQuota{
		UserID:               user.ID,
		PeriodStart:          now,
		PeriodEnd:            now.Add(periodLength),
		VideosLimit:          limits.Videos,
		MinutesLimit:         limits.Minutes,
		MessagesLimit:        limits.Messages,
		StorageMBLimit:       limits.StorageMB,
		EmbeddingTokensLimit: limits.EmbeddingTokens,
	}
	if err := t.db.WithContext(ctx).Create(quota).Error; err != nil {
		return nil, err
	}
	return quota, nil
}

// Check verifies that consuming amount of the given resource would not
// exceed the user's current-period limit, without recording usage
// (spec §4.9 `check_quota`).
func (t *Tracker) Check(ctx context.Context, user *types.User, kind types.QuotaKind, amount float64) error {
	quota, err := t.getOrCreateQuota(ctx, user)
	if err != nil {
		return err
	}

	used, limit := usageForQuota(quota, kind)
	if used+amount > limit {
		return &apperrors.QuotaExceeded{ResourceKind: kind, Used: used, Limit: limit}
	}
	return nil
}

// usageForQuota reads the used/limit pair for one quota kind.
func usageForQuota(q *types.UserQuota, kind types.QuotaKind) (used, limit float64) {
	switch kind {
	case types.QuotaVideos:
		return float64(q.VideosUsed), float64(q.VideosLimit)
	case types.QuotaMinutes:
		return q.MinutesUsed, q.MinutesLimit
	case types.QuotaMessages:
		return float64(q.MessagesUsed), float64(q.MessagesLimit)
	case types.QuotaStorageMB:
		return q.StorageMBUsed, q.StorageMBLimit
	case types.QuotaEmbeddingTokens:
		return float64(q.EmbeddingTokensUsed), float64(q.EmbeddingTokensLimit)
	default:
		return 0, 0
	}
}

// TrackVideoIngestion records a new video's minutes and storage
// footprint against the user's quota (spec §4.9
// `track_video_ingestion`).
func (t *Tracker) TrackVideoIngestion(ctx context.Context, user *types.User, durationSeconds, audioMB float64) error {
	quota, err := t.getOrCreateQuota(ctx, user)
	if err != nil {
		return err
	}
	quota.VideosUsed++
	quota.MinutesUsed += durationSeconds / 60.0
	quota.StorageMBUsed += audioMB
	return t.db.WithContext(ctx).Save(quota).Error
}

// TrackChatMessage increments a user's message count (spec §4.9
// `track_chat_message`).
func (t *Tracker) TrackChatMessage(ctx context.Context, user *types.User) error {
	quota, err := t.getOrCreateQuota(ctx, user)
	if err != nil {
		return err
	}
	quota.MessagesUsed++
	return t.db.WithContext(ctx).Save(quota).Error
}

// TrackEmbeddingTokens adds to a user's embedding-token counter; the
// pipeline calls it with the chunk count after every indexing run
// (spec §4.9 `track_embedding_generation`).
func (t *Tracker) TrackEmbeddingTokens(ctx context.Context, user *types.User, tokens int64) error {
	quota, err := t.getOrCreateQuota(ctx, user)
	if err != nil {
		return err
	}
	quota.EmbeddingTokensUsed += tokens
	return t.db.WithContext(ctx).Save(quota).Error
}

// ReleaseStorage credits storage back to a user's quota, used by
// cancellation/cleanup when a video's artifacts are deleted (spec
// §4.9, §4.11 "storage credit-back").
func (t *Tracker) ReleaseStorage(ctx context.Context, user *types.User, audioMB float64) error {
	quota, err := t.getOrCreateQuota(ctx, user)
	if err != nil {
		return err
	}
	quota.StorageMBUsed -= audioMB
	if quota.StorageMBUsed < 0 {
		quota.StorageMBUsed = 0
	}
	return t.db.WithContext(ctx).Save(quota).Error
}

// Summary is the per-resource usage/limit/remaining/percentage view
// returned by GetUsageSummary.
type Summary struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Resources   map[types.QuotaKind]ResourceUsage
}

// ResourceUsage is one resource's usage snapshot.
type ResourceUsage struct {
	Used       float64
	Limit      float64
	Remaining  float64
	Percentage float64
}

// GetUsageSummary returns a point-in-time usage snapshot across all
// tracked resources (spec §4.9 `get_usage_summary`).
func (t *Tracker) GetUsageSummary(ctx context.Context, user *types.User) (Summary, error) {
	quota, err := t.getOrCreateQuota(ctx, user)
	if err != nil {
		return Summary{}, err
	}

	kinds := []types.QuotaKind{
		types.QuotaVideos, types.QuotaMinutes, types.QuotaMessages,
		types.QuotaStorageMB, types.QuotaEmbeddingTokens,
	}
	resources := make(map[types.QuotaKind]ResourceUsage, len(kinds))
	for _, kind := range kinds {
		used, limit := usageForQuota(quota, kind)
		var pct, remaining float64
		if limit > 0 {
			pct = used / limit * 100
			remaining = limit - used
		}
		resources[kind] = ResourceUsage{Used: used, Limit: limit, Remaining: remaining, Percentage: pct}
	}

	return Summary{PeriodStart: quota.PeriodStart, PeriodEnd: quota.PeriodEnd, Resources: resources}, nil
}
