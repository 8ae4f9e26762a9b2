// Package caption implements the C6 caption/transcribe surface:
// video-info retrieval, caption download + VTT parsing, audio
// download, speech-to-text transcription and the pipeline heartbeat
// (spec §4.6). There is no document-ingestion analog for this
// package; it is grounded directly on the original Python
// implementation's youtube.py and caption_parser.py.
package caption

import "time"

// Chapter is a named span within a video.
type Chapter struct {
	Title     string
	StartTime float64
	EndTime   float64
}

// VideoInfo is the metadata returned by GetVideoInfo.
type VideoInfo struct {
	SourceID        string
	Title           string
	Description     string
	ChannelName     string
	ChannelID       string
	ThumbnailURL    string
	DurationSeconds float64
	UploadDate      *time.Time
	ViewCount       int64
	LikeCount       int64
	Language        string
	Chapters        []Chapter
}

// Segment is one timestamped transcript span.
type Segment struct {
	Start   float64
	End     float64
	Text    string
	Speaker *string
}

// Transcript is the normalized output shared by caption parsing and
// speech-to-text transcription (spec §4.6 "Output matches
// transcription schema").
type Transcript struct {
	Segments  []Segment
	FullText  string
	Language  string
	WordCount int
	Duration  float64
}

// Validate reports whether a video passes duration/availability
// checks before ingestion proceeds (spec §4.6 `validate`).
func Validate(info VideoInfo, maxDurationSeconds float64) (bool, string) {
	if info.SourceID == "" {
		return false, "video is not available or URL is invalid"
	}
	if maxDurationSeconds > 0 && info.DurationSeconds > maxDurationSeconds {
		return false, "video exceeds the maximum allowed duration"
	}
	return true, ""
}

func segmentsToFullText(segments []Segment) string {
	out := ""
	for i, s := range segments {
		if s.Text == "" {
			continue
		}
		if i > 0 && out != "" {
			out += " "
		}
		out += s.Text
	}
	return out
}

func wordCount(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if isSpace {
			inWord = false
			continue
		}
		if !inWord {
			count++
			inWord = true
		}
	}
	return count
}

func statsFromSegments(segments []Segment) (wordCountOut int, duration float64) {
	full := segmentsToFullText(segments)
	wordCountOut = wordCount(full)
	for _, s := range segments {
		if s.End > duration {
			duration = s.End
		}
	}
	return wordCountOut, duration
}
