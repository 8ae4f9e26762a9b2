// Package repository is the explicit data-access layer replacing the
// reference implementation's ORM-with-lazy-relationships: every query
// is a typed method on a narrow interface, returning value-object DTOs
// from internal/types. There is no global session — every repository
// is constructed with a *gorm.DB and passed to its caller explicitly
// (spec §9). The one raw aggregate query, quota reconciliation, runs
// on a *pgxpool.Pool in internal/quota rather than in this package.
package repository

import (
	"context"
	"time"

	"github.com/vidknora/vidknora/internal/types"
)

// VideoRepository is the typed DAO for Video rows.
type VideoRepository interface {
	Create(ctx context.Context, v *types.Video) error
	Get(ctx context.Context, userID, videoID string) (*types.Video, error)
	// GetForUpdate re-reads the video fresh from the store; used at
	// pipeline checkpoints to observe a concurrent cancel (spec §4.10).
	GetForUpdate(ctx context.Context, videoID string) (*types.Video, error)
	Update(ctx context.Context, v *types.Video) error
	ListByStatusOlderThan(ctx context.Context, statuses []types.VideoStatus, olderThan time.Time) ([]*types.Video, error)
	ListByUser(ctx context.Context, userID string, includeDeleted bool) ([]*types.Video, error)
	// ListByIDs fetches a bounded set of videos by id, owned by userID,
	// most recently created first (spec §4.14 coverage path).
	ListByIDs(ctx context.Context, userID string, videoIDs []string, limit int) ([]*types.Video, error)
	Delete(ctx context.Context, videoID string) error
}

// TranscriptRepository is the typed DAO for Transcript rows.
type TranscriptRepository interface {
	Upsert(ctx context.Context, t *types.Transcript) error
	Get(ctx context.Context, videoID string) (*types.Transcript, error)
	Delete(ctx context.Context, videoID string) error
}

// ChunkRepository is the typed DAO for Chunk rows.
type ChunkRepository interface {
	CreateBatch(ctx context.Context, chunks []*types.Chunk) error
	ListByVideo(ctx context.Context, videoID string) ([]*types.Chunk, error)
	// ListByVideos fetches every chunk across a set of videos, ordered
	// by (video_id, chunk_index), for operations that analyze content
	// spanning several videos at once (spec §4.16).
	ListByVideos(ctx context.Context, userID string, videoIDs []string) ([]*types.Chunk, error)
	CountByVideo(ctx context.Context, videoID string) (int, error)
	DeleteByVideo(ctx context.Context, videoID string) (textBytes int64, count int, err error)
	DeleteForSoftDeletedVideos(ctx context.Context) (deletedCount int, err error)
	TotalTextBytes(ctx context.Context, userID string) (int64, error)
	CountIndexed(ctx context.Context, userID string) (int, error)
}

// JobRepository is the typed DAO for Job rows.
type JobRepository interface {
	Create(ctx context.Context, j *types.Job) error
	Get(ctx context.Context, videoID string) (*types.Job, error)
	Update(ctx context.Context, j *types.Job) error
}

// QuotaRepository is the typed DAO for UserQuota rows.
type QuotaRepository interface {
	Get(ctx context.Context, userID string) (*types.UserQuota, error)
	Upsert(ctx context.Context, q *types.UserQuota) error
	ListAll(ctx context.Context) ([]*types.UserQuota, error)
}

// ConversationRepository is the typed DAO for Conversation/Message rows.
type ConversationRepository interface {
	Get(ctx context.Context, id string) (*types.Conversation, error)
	Update(ctx context.Context, c *types.Conversation) error
	AppendMessage(ctx context.Context, m *types.Message) error
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]*types.Message, error)
	ListIdleSince(ctx context.Context, idleSince time.Time) ([]*types.Conversation, error)
}

// FactRepository is the typed DAO for ConversationFact rows.
type FactRepository interface {
	Create(ctx context.Context, f *types.ConversationFact) error
	ListByConversation(ctx context.Context, conversationID string) ([]*types.ConversationFact, error)
	Update(ctx context.Context, f *types.ConversationFact) error
	Delete(ctx context.Context, id string) error
	MarkAccessed(ctx context.Context, ids []string, at time.Time) error
}

// InsightRepository is the typed DAO for cached ConversationInsight
// rows (spec §4.16).
type InsightRepository interface {
	// Latest returns the most recently created insight graph cached for
	// a conversation, if any.
	Latest(ctx context.Context, conversationID, userID string) (*types.ConversationInsight, error)
	Create(ctx context.Context, insight *types.ConversationInsight) error
	Update(ctx context.Context, insight *types.ConversationInsight) error
}
