package types

import (
	"fmt"
	"time"
)

// Chapter is one entry of a video's chapter list, as reported by the
// source platform's metadata.
type Chapter struct {
	Index     int     `json:"index"`
	Title     string  `json:"title"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// VideoMetadata is the platform-reported metadata captured at ingest
// time (spec §3 Video.metadata).
type VideoMetadata struct {
	Duration      float64   `json:"duration"`
	Chapters      []Chapter `json:"chapters,omitempty"`
	Channel       string    `json:"channel"`
	Description   string    `json:"description,omitempty"`
	UploadDate    string    `json:"upload_date,omitempty"`
	ViewCount     int64     `json:"view_count,omitempty"`
	LikeCount     int64     `json:"like_count,omitempty"`
	DefaultLanguage string  `json:"default_language,omitempty"`
}

// Video is the root entity of the ingestion pipeline (spec §3).
type Video struct {
	ID          string      `json:"id" gorm:"primaryKey"`
	UserID      string      `json:"user_id" gorm:"index"`
	SourceURL   string      `json:"source_url"`
	SourceID    string      `json:"source_id"`
	Title       string      `json:"title"`
	Metadata    VideoMetadata `json:"metadata" gorm:"serializer:json"`
	Status      VideoStatus `json:"status" gorm:"index"`
	Progress    int         `json:"progress"` // 0-100
	Error       string      `json:"error,omitempty"`

	AudioPath            string  `json:"audio_path,omitempty"`
	AudioMB              float64 `json:"audio_mb,omitempty"`
	TranscriptPath       string  `json:"transcript_path,omitempty"`
	TranscriptSource     TranscriptSource `json:"transcript_source,omitempty"`
	TranscriptionLanguage string `json:"transcription_language,omitempty"`

	Summary   string   `json:"summary,omitempty"`
	KeyTopics []string `json:"key_topics,omitempty" gorm:"serializer:json"`

	ChunkCount int  `json:"chunk_count"`
	IsIndexed  bool `json:"is_indexed"`
	IsDeleted  bool `json:"is_deleted" gorm:"index"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// IsCancellable reports whether the video can still be canceled
// (spec §3 invariant: only non-terminal videos are cancellable).
func (v *Video) IsCancellable() bool {
	return !v.Status.IsTerminal()
}

// Segment is one time-coded span of a Transcript (spec §3).
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker *string `json:"speaker,omitempty"`
}

// Transcript is 1:1 with a Video (spec §3).
type Transcript struct {
	VideoID          string    `json:"video_id" gorm:"primaryKey"`
	FullText         string    `json:"full_text"`
	Segments         []Segment `json:"segments" gorm:"serializer:json"`
	Language         string    `json:"language"`
	WordCount        int       `json:"word_count"`
	Duration         float64   `json:"duration"`
	HasSpeakerLabels bool      `json:"has_speaker_labels"`
	CreatedAt        time.Time `json:"created_at"`
}

// Validate checks the §3 invariant: segments ordered by start; each
// end >= start.
func (t *Transcript) Validate() error {
	prevStart := -1.0
	for i, seg := range t.Segments {
		if seg.End < seg.Start {
			return errSegment(i, "end < start")
		}
		if seg.Start < prevStart {
			return errSegment(i, "segments not ordered by start")
		}
		prevStart = seg.Start
	}
	return nil
}

func errSegment(i int, reason string) error {
	return fmt.Errorf("segment %d: %s", i, reason)
}
