package vectorstore

import "testing"

func TestPointIDDeterministic(t *testing.T) {
	a := PointID("video-1", 3)
	b := PointID("video-1", 3)
	if a != b {
		t.Fatalf("expected deterministic id, got %d and %d", a, b)
	}
	c := PointID("video-1", 4)
	if a == c {
		t.Fatalf("expected distinct ids for distinct chunk indices")
	}
	d := PointID("video-2", 3)
	if a == d {
		t.Fatalf("expected distinct ids for distinct videos")
	}
}

