package caption

import (
	"testing"
	"time"
)

func TestSimulatedProgressCaps(t *testing.T) {
	if got := simulatedProgress(0, time.Minute); got != 10 {
		t.Errorf("expected 10 at t=0, got %f", got)
	}
	if got := simulatedProgress(10*time.Minute, time.Minute); got != 85 {
		t.Errorf("expected capped at 85, got %f", got)
	}
	if got := simulatedProgress(0, 0); got != 10 {
		t.Errorf("expected 10 when eta is zero, got %f", got)
	}
}

func TestValidateRejectsTooLong(t *testing.T) {
	ok, reason := Validate(VideoInfo{SourceID: "abc", DurationSeconds: 10000}, 3600)
	if ok || reason == "" {
		t.Errorf("expected rejection for over-duration video, got ok=%v reason=%q", ok, reason)
	}
}

func TestValidateRejectsMissingID(t *testing.T) {
	ok, _ := Validate(VideoInfo{}, 3600)
	if ok {
		t.Errorf("expected rejection for missing source id")
	}
}

func TestValidateAcceptsWithinBounds(t *testing.T) {
	ok, reason := Validate(VideoInfo{SourceID: "abc", DurationSeconds: 100}, 3600)
	if !ok || reason != "" {
		t.Errorf("expected acceptance, got ok=%v reason=%q", ok, reason)
	}
}

func TestStatsFromSegments(t *testing.T) {
	segs := []Segment{
		{Start: 0, End: 2, Text: "hello world"},
		{Start: 2, End: 5, Text: "foo bar baz"},
	}
	words, duration := statsFromSegments(segs)
	if words != 5 {
		t.Errorf("expected 5 words, got %d", words)
	}
	if duration != 5 {
		t.Errorf("expected duration 5, got %f", duration)
	}
}
