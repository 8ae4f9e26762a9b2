package types

import "time"

// QuotaKind is one of the five resources tracked per user period
// (spec §3, §4.9).
type QuotaKind string

const (
	QuotaVideos          QuotaKind = "videos"
	QuotaMinutes         QuotaKind = "minutes"
	QuotaMessages        QuotaKind = "messages"
	QuotaStorageMB       QuotaKind = "storage_mb"
	QuotaEmbeddingTokens QuotaKind = "embedding_tokens"
)

// UserQuota is the rolling 30-day usage window for one user
// (spec §3).
type UserQuota struct {
	UserID     string    `json:"user_id" gorm:"primaryKey"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	VideosUsed   int `json:"videos_used"`
	VideosLimit  int `json:"videos_limit"`
	MinutesUsed  float64 `json:"minutes_used"`
	MinutesLimit float64 `json:"minutes_limit"`
	MessagesUsed int `json:"messages_used"`
	MessagesLimit int `json:"messages_limit"`
	StorageMBUsed float64 `json:"storage_mb_used"`
	StorageMBLimit float64 `json:"storage_mb_limit"`
	EmbeddingTokensUsed  int64 `json:"embedding_tokens_used"`
	EmbeddingTokensLimit int64 `json:"embedding_tokens_limit"`

	UpdatedAt time.Time `json:"updated_at"`
}

// User is the owning principal of Videos, Chunks and Conversations
// (spec §3).
type User struct {
	ID      string `json:"id" gorm:"primaryKey"`
	Tier    Tier   `json:"tier"`
	IsAdmin bool   `json:"is_admin"`
	Status  string `json:"status"`
}

// Job mirrors a Video's pipeline status plus execution bookkeeping
// (spec §3).
type Job struct {
	ID          string      `json:"id" gorm:"primaryKey"`
	Type        JobType     `json:"type"`
	VideoID     string      `json:"video_id" gorm:"index"`
	Status      VideoStatus `json:"status"`
	Progress    int         `json:"progress"`
	CurrentStep string      `json:"current_step"`
	TaskHandle  string      `json:"task_handle"` // opaque: asynq task id
	Retries     int         `json:"retries"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}
