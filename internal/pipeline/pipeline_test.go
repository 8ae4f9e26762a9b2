package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vidknora/vidknora/internal/caption"
	"github.com/vidknora/vidknora/internal/types"
)

type fakeCaptionSource struct {
	captions    *caption.Transcript
	captionsErr error
	audioPath   string
	audioMB     float64
	downloadErr error
	downloadCalls int
}

func (f *fakeCaptionSource) GetVideoInfo(ctx context.Context, url string) (caption.VideoInfo, error) {
	return caption.VideoInfo{SourceID: "abc"}, nil
}

func (f *fakeCaptionSource) GetCaptions(ctx context.Context, url string, langs []string) (*caption.Transcript, error) {
	return f.captions, f.captionsErr
}

func (f *fakeCaptionSource) DownloadAudio(ctx context.Context, url, destDir string, onProgress caption.ProgressFunc) (string, float64, error) {
	f.downloadCalls++
	if f.downloadErr != nil {
		return "", 0, f.downloadErr
	}
	return f.audioPath, f.audioMB, nil
}

type fakeTranscriber struct {
	result    caption.Transcript
	err       error
	failTimes int
	calls     int
}

func (f *fakeTranscriber) Transcribe(audioPath string, onProgress caption.ProgressFunc) (caption.Transcript, error) {
	f.calls++
	if f.calls <= f.failTimes {
		return caption.Transcript{}, errors.New("transient whisper error")
	}
	return f.result, f.err
}

func newTestOrchestrator(captions *fakeCaptionSource, transcriber *fakeTranscriber) *Orchestrator {
	deps := Dependencies{
		Captions:    captions,
		RetryPolicy: RetryPolicy{DownloadMaxRetries: 2, StageMaxRetries: 2},
	}
	if transcriber != nil {
		deps.Transcriber = transcriber
	}
	return New(deps)
}

func TestRunTranscriptionStageUsesCaptionsFastPath(t *testing.T) {
	captions := &fakeCaptionSource{
		captions: &caption.Transcript{
			Segments:  []caption.Segment{{Start: 0, End: 2, Text: "hello world"}},
			FullText:  "hello world",
			Language:  "en",
			WordCount: 2,
			Duration:  2,
		},
	}
	o := newTestOrchestrator(captions, nil)
	video := &types.Video{ID: "v1", UserID: "u1", SourceURL: "https://example.com/v"}

	transcript, source, err := o.runTranscriptionStage(context.Background(), video, &types.User{ID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source != types.TranscriptSourceCaptions {
		t.Errorf("expected captions source, got %v", source)
	}
	if transcript.FullText != "hello world" {
		t.Errorf("unexpected transcript text: %q", transcript.FullText)
	}
	if captions.downloadCalls != 0 {
		t.Error("expected no audio download when captions available")
	}
}

func TestRunTranscriptionStageFallsBackToWhisper(t *testing.T) {
	captions := &fakeCaptionSource{captions: nil, audioPath: "/tmp/audio.mp3", audioMB: 5}
	transcriber := &fakeTranscriber{
		result: caption.Transcript{
			Segments: []caption.Segment{{Start: 0, End: 1, Text: "transcribed"}},
			FullText: "transcribed",
			Language: "en",
		},
	}
	o := newTestOrchestrator(captions, transcriber)
	video := &types.Video{ID: "v2", UserID: "u1", SourceURL: "https://example.com/v2"}

	transcript, source, err := o.runTranscriptionStage(context.Background(), video, &types.User{ID: "u1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if source != types.TranscriptSourceWhisper {
		t.Errorf("expected whisper source, got %v", source)
	}
	if captions.downloadCalls != 1 {
		t.Errorf("expected one audio download, got %d", captions.downloadCalls)
	}
	if transcript.FullText != "transcribed" {
		t.Errorf("unexpected transcript text: %q", transcript.FullText)
	}
}

func TestRunTranscriptionStageRetriesTransientWhisperFailure(t *testing.T) {
	old := transcribeRetryInterval
	transcribeRetryInterval = time.Millisecond
	defer func() { transcribeRetryInterval = old }()

	captions := &fakeCaptionSource{captions: nil, audioPath: "/tmp/audio.mp3", audioMB: 5}
	transcriber := &fakeTranscriber{
		failTimes: 1,
		result:    caption.Transcript{Segments: []caption.Segment{{Start: 0, End: 1, Text: "ok"}}, FullText: "ok"},
	}
	o := newTestOrchestrator(captions, transcriber)
	video := &types.Video{ID: "v3", UserID: "u1", SourceURL: "https://example.com/v3"}

	_, source, err := o.runTranscriptionStage(context.Background(), video, &types.User{ID: "u1"})
	if err != nil {
		t.Fatalf("expected retry to succeed, got error: %v", err)
	}
	if source != types.TranscriptSourceWhisper {
		t.Errorf("expected whisper source, got %v", source)
	}
	if transcriber.calls != 2 {
		t.Errorf("expected 2 calls (1 failure + 1 success), got %d", transcriber.calls)
	}
}

func TestRunTranscriptionStageDownloadFailureDoesNotRetry(t *testing.T) {
	old := downloadRetryInterval
	downloadRetryInterval = time.Millisecond
	defer func() { downloadRetryInterval = old }()

	captions := &fakeCaptionSource{downloadErr: errors.New("video unavailable")}
	transcriber := &fakeTranscriber{result: caption.Transcript{FullText: "unused"}}
	o := newTestOrchestrator(captions, transcriber)
	video := &types.Video{ID: "v5", UserID: "u1", SourceURL: "https://example.com/v5"}

	_, _, err := o.runTranscriptionStage(context.Background(), video, &types.User{ID: "u1"})
	if err == nil {
		t.Fatal("expected download failure to surface as an error")
	}
	if captions.downloadCalls != 1 {
		t.Errorf("expected download to fail fast without retrying, got %d calls", captions.downloadCalls)
	}
}

func TestRunTranscriptionStageErrorsWithoutTranscriberOrCaptions(t *testing.T) {
	captions := &fakeCaptionSource{captions: nil}
	o := newTestOrchestrator(captions, nil)
	video := &types.Video{ID: "v4", UserID: "u1", SourceURL: "https://example.com/v4"}

	_, _, err := o.runTranscriptionStage(context.Background(), video, &types.User{ID: "u1"})
	if err == nil {
		t.Fatal("expected error when no captions and no transcriber configured")
	}
}

func TestConvertCaptionTranscriptDetectsSpeakers(t *testing.T) {
	speaker := "A"
	ct := caption.Transcript{
		Segments: []caption.Segment{{Start: 0, End: 1, Text: "hi", Speaker: &speaker}},
	}
	tt := convertCaptionTranscript(ct)
	if !tt.HasSpeakerLabels {
		t.Error("expected speaker labels detected")
	}
}
