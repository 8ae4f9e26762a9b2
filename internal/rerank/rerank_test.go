package rerank

import "testing"

func TestIdentityEmptyInput(t *testing.T) {
	out := identity(nil, 5)
	if len(out) != 0 {
		t.Fatalf("expected empty output for empty input, got %d", len(out))
	}
}

func TestIdentityTruncatesToK(t *testing.T) {
	candidates := []Candidate{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	out := identity(candidates, 2)
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
	if out[0].ID != "a" || out[1].ID != "b" {
		t.Fatalf("expected identity order preserved, got %+v", out)
	}
}

func TestIdentityKLargerThanInput(t *testing.T) {
	candidates := []Candidate{{ID: "a"}}
	out := identity(candidates, 10)
	if len(out) != 1 {
		t.Fatalf("expected clamp to input size, got %d", len(out))
	}
}
