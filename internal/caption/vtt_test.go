package caption

import "testing"

func TestParseVTTBasic(t *testing.T) {
	content := `WEBVTT

00:00:00.000 --> 00:00:02.500
Hello world

00:00:02.500 --> 00:00:05.000
Next segment
`
	segs := ParseVTT(content)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d: %+v", len(segs), segs)
	}
	if segs[0].Text != "Hello world" || segs[0].Start != 0 || segs[0].End != 2.5 {
		t.Errorf("unexpected first segment: %+v", segs[0])
	}
	if segs[1].Text != "Next segment" || segs[1].Start != 2.5 {
		t.Errorf("unexpected second segment: %+v", segs[1])
	}
}

func TestParseVTTMergesOverlappingCues(t *testing.T) {
	content := `WEBVTT

00:00:00.000 --> 00:00:02.000
Hello

00:00:00.200 --> 00:00:02.500
Hello world
`
	segs := ParseVTT(content)
	if len(segs) != 1 {
		t.Fatalf("expected overlapping cues to merge into 1 segment, got %d: %+v", len(segs), segs)
	}
	if segs[0].Text != "Hello world" {
		t.Errorf("expected merged segment to keep the longer text, got %q", segs[0].Text)
	}
	if segs[0].End != 2.5 {
		t.Errorf("expected merged end to be the max of both cues, got %f", segs[0].End)
	}
}

func TestParseVTTStripsTags(t *testing.T) {
	content := `WEBVTT

00:00:00.000 --> 00:00:02.000
<c>Hello</c> <00:00:00.500>world
`
	segs := ParseVTT(content)
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	if segs[0].Text != "Hello world" {
		t.Errorf("expected tags stripped, got %q", segs[0].Text)
	}
}

func TestCleanVTTTextCollapsesWhitespace(t *testing.T) {
	got := cleanVTTText("hello    \n  world  ")
	if got != "hello world" {
		t.Errorf("expected collapsed whitespace, got %q", got)
	}
}
