package vectorstore

import "testing"

func TestCosineSimilarityIdentical(t *testing.T) {
	v := []float32{1, 0, 0}
	if sim := cosineSimilarity(v, v); sim < 0.999 || sim > 1.001 {
		t.Errorf("expected ~1.0, got %v", sim)
	}
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	if sim := cosineSimilarity(a, b); sim != 0 {
		t.Errorf("expected 0, got %v", sim)
	}
}

func TestCosineSimilarityMismatchedLength(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0}
	if sim := cosineSimilarity(a, b); sim != 0 {
		t.Errorf("expected 0 for mismatched lengths, got %v", sim)
	}
}

func TestMaxSimilarityToEmptySelection(t *testing.T) {
	c := candidate{vector: []float32{1, 0, 0}}
	if sim := maxSimilarityTo(c, nil); sim != 0 {
		t.Errorf("expected 0 with no selected candidates, got %v", sim)
	}
}

func TestMmrSelectPrefersDistinctOverDuplicate(t *testing.T) {
	// a and b are near-duplicates; c is distinct but scores slightly lower.
	a := candidate{Result: Result{ID: 1, Score: 0.95}, vector: []float32{1, 0, 0}}
	b := candidate{Result: Result{ID: 2, Score: 0.94}, vector: []float32{1, 0, 0}}
	c := candidate{Result: Result{ID: 3, Score: 0.80}, vector: []float32{0, 1, 0}}

	out := mmrSelect([]candidate{a, b, c}, 2, 0.7)
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
	if out[0].ID != 1 {
		t.Errorf("expected highest-scoring candidate first, got id %d", out[0].ID)
	}
	if out[1].ID != 3 {
		t.Errorf("expected distinct candidate 3 over duplicate 2 at high diversity, got id %d", out[1].ID)
	}
}

func TestMmrSelectZeroDiversityIsPlainRanking(t *testing.T) {
	a := candidate{Result: Result{ID: 1, Score: 0.9}, vector: []float32{1, 0, 0}}
	b := candidate{Result: Result{ID: 2, Score: 0.8}, vector: []float32{1, 0, 0}}
	out := mmrSelect([]candidate{a, b}, 2, 0)
	if out[0].ID != 1 || out[1].ID != 2 {
		t.Errorf("expected plain score order [1,2], got [%d,%d]", out[0].ID, out[1].ID)
	}
}

func TestStripVectorsDropsVectorField(t *testing.T) {
	candidates := []candidate{{Result: Result{ID: 1, Score: 0.5}, vector: []float32{1, 2, 3}}}
	out := stripVectors(candidates)
	if len(out) != 1 || out[0].ID != 1 {
		t.Fatalf("unexpected stripVectors output: %+v", out)
	}
}
