package embedding

import (
	"context"
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	out := normalize([]float32{3, 4})
	norm := math.Sqrt(float64(out[0])*float64(out[0]) + float64(out[1])*float64(out[1]))
	if math.Abs(norm-1.0) > 1e-6 {
		t.Fatalf("expected unit vector, got norm %f", norm)
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	out := normalize([]float32{0, 0})
	if out[0] != 0 || out[1] != 0 {
		t.Fatalf("expected zero vector to pass through unchanged, got %v", out)
	}
}

func TestLRUEvictsOldest(t *testing.T) {
	c := newLRU(2)
	c.put("a", []float32{1})
	c.put("b", []float32{2})
	c.put("c", []float32{3})
	if _, ok := c.get("a"); ok {
		t.Fatalf("expected oldest entry 'a' to be evicted")
	}
	if _, ok := c.get("b"); !ok {
		t.Fatalf("expected 'b' to remain")
	}
	if _, ok := c.get("c"); !ok {
		t.Fatalf("expected 'c' to remain")
	}
}

type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return []float32{1, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) Dims() int       { return 2 }
func (f *fakeEmbedder) ModelID() string { return "fake" }

func TestCachingEmbedderReusesResult(t *testing.T) {
	fake := &fakeEmbedder{}
	cached := WithCache(fake, 10)
	ctx := context.Background()
	if _, err := cached.Embed(ctx, "hello"); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if _, err := cached.Embed(ctx, "hello"); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if fake.calls != 1 {
		t.Fatalf("expected 1 underlying call, got %d", fake.calls)
	}
}
