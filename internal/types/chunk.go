package types

import (
	"fmt"
	"time"
)

// Chunk is a token- and time-bounded contiguous slice of a transcript
// with enrichment metadata (spec §3, GLOSSARY).
type Chunk struct {
	ID         string `json:"id" gorm:"primaryKey"`
	VideoID    string `json:"video_id" gorm:"index"`
	UserID     string `json:"user_id" gorm:"index"`
	ChunkIndex int    `json:"chunk_index"`

	Text       string  `json:"text"`
	TokenCount int     `json:"token_count"`
	StartTS    float64 `json:"start_ts"`
	EndTS      float64 `json:"end_ts"`
	Speakers   []string `json:"speakers,omitempty" gorm:"serializer:json"`

	ChapterTitle *string `json:"chapter_title,omitempty"`
	ChapterIndex *int    `json:"chapter_index,omitempty"`

	Title    *string  `json:"title,omitempty"`
	Summary  *string  `json:"summary,omitempty"`
	Keywords []string `json:"keywords,omitempty" gorm:"serializer:json"`

	EmbeddingText string `json:"embedding_text"`
	IsIndexed     bool   `json:"is_indexed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BuildEmbeddingText sets EmbeddingText per the §3 invariant:
// "{title}. {summary}\n\n{text}" when enrichment is present, else text.
func (c *Chunk) BuildEmbeddingText() {
	if c.Title != nil && c.Summary != nil && *c.Title != "" && *c.Summary != "" {
		c.EmbeddingText = fmt.Sprintf("%s. %s\n\n%s", *c.Title, *c.Summary, c.Text)
		return
	}
	c.EmbeddingText = c.Text
}

// ChunkTokenBounds holds the min/max token invariant parameters so
// Validate can be called without threading a full config through.
type ChunkTokenBounds struct {
	MinTokens int
	MaxTokens int
}

// Validate checks the §3 / §8.1 invariants for a single chunk, except
// for the "last chunk may be smaller if merged" escape hatch, which
// the caller (chunker) verifies itself before calling Validate on a
// final tail chunk.
func (c *Chunk) Validate(bounds ChunkTokenBounds) error {
	if c.StartTS >= c.EndTS {
		return fmt.Errorf("chunk %d: start_ts (%.3f) >= end_ts (%.3f)", c.ChunkIndex, c.StartTS, c.EndTS)
	}
	upper := int(float64(bounds.MaxTokens) * 1.2)
	if c.TokenCount < bounds.MinTokens || c.TokenCount > upper {
		return fmt.Errorf("chunk %d: token_count %d out of bounds [%d, %d]",
			c.ChunkIndex, c.TokenCount, bounds.MinTokens, upper)
	}
	return nil
}
