package types

import "time"

// Conversation groups messages scoped to a fixed set of selected
// videos (spec §3).
type Conversation struct {
	ID               string    `json:"id" gorm:"primaryKey"`
	UserID           string    `json:"user_id" gorm:"index"`
	Title            string    `json:"title"`
	SelectedVideoIDs []string  `json:"selected_video_ids" gorm:"serializer:json"`
	MessageCount     int       `json:"message_count"`
	TokenTotal       int       `json:"token_total"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Message is one turn in a Conversation (spec §3).
type Message struct {
	ID             string      `json:"id" gorm:"primaryKey"`
	ConversationID string      `json:"conversation_id" gorm:"index"`
	Role           MessageRole `json:"role"`
	Content        string      `json:"content"`
	TokensIn       *int        `json:"tokens_in,omitempty"`
	TokensOut      *int        `json:"tokens_out,omitempty"`
	Model          *string     `json:"model,omitempty"`
	Provider       *string     `json:"provider,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty" gorm:"serializer:json"`
	CreatedAt      time.Time   `json:"created_at"`
}

// MessageChunkReference links a Message to a Chunk it cited, with its
// relevance score and rank within that message's context (spec §3).
type MessageChunkReference struct {
	MessageID      string  `json:"message_id" gorm:"primaryKey"`
	ChunkID        string  `json:"chunk_id" gorm:"primaryKey"`
	RelevanceScore float64 `json:"relevance_score"`
	Rank           int     `json:"rank"`
}

// ConversationInsight is a cached topic graph generated from the
// transcript chunks of a conversation's selected videos (spec §4.16).
// It is keyed by conversation, not regenerated on every request: a
// matching VideoIDs set and current ExtractionPromptVersion serve the
// cached GraphData/TopicChunks as-is.
type ConversationInsight struct {
	ID                      string         `json:"id" gorm:"primaryKey"`
	ConversationID          string         `json:"conversation_id" gorm:"index"`
	UserID                  string         `json:"user_id" gorm:"index"`
	VideoIDs                []string       `json:"video_ids" gorm:"serializer:json"`
	LLMProvider             string         `json:"llm_provider,omitempty"`
	LLMModel                string         `json:"llm_model,omitempty"`
	ExtractionPromptVersion int            `json:"extraction_prompt_version"`
	GraphData               map[string]any `json:"graph_data" gorm:"serializer:json"`
	TopicChunks             map[string]any `json:"topic_chunks" gorm:"serializer:json"`
	TopicsCount             int            `json:"topics_count"`
	TotalChunksAnalyzed     int            `json:"total_chunks_analyzed"`
	GenerationTimeSeconds   float64        `json:"generation_time_seconds"`
	CreatedAt               time.Time      `json:"created_at"`
}

// ConversationFact is a small key/value assertion extracted from a
// Q&A turn, scored and retrieved across turns for long-range memory
// (spec §3, §4.15, GLOSSARY).
type ConversationFact struct {
	ID             string       `json:"id" gorm:"primaryKey"`
	ConversationID string       `json:"conversation_id" gorm:"index"`
	Key            string       `json:"key"`
	Value          string       `json:"value"`
	SourceTurn     int          `json:"source_turn"`
	Importance     float64      `json:"importance"`
	Category       FactCategory `json:"category"`
	AccessCount    int          `json:"access_count"`
	LastAccessed   time.Time    `json:"last_accessed"`
	CreatedAt      time.Time    `json:"created_at"`
}
