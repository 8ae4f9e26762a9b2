package insights

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
)

func toJSONMap(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	// Graph marshals to an object, but TopicChunks marshals to an
	// object of arrays too (map[string][]TopicChunk), so both round
	// trip through map[string]interface{} directly.
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func fromJSONMap(m map[string]interface{}, v interface{}) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// normalizeTokens lowercases and splits s into alphanumeric tokens,
// used both by the keyword-frequency fallback and by the token-overlap
// scorer that backstops embedding similarity.
func normalizeTokens(s string) []string {
	return tokenPattern.FindAllString(strings.ToLower(s), -1)
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"to": true, "of": true, "in": true, "on": true, "for": true, "with": true,
	"that": true, "this": true, "it": true, "as": true, "at": true, "by": true,
	"from": true, "we": true, "you": true, "i": true, "he": true, "she": true,
	"they": true, "them": true, "his": true, "her": true, "its": true, "so": true,
	"not": true, "what": true, "which": true, "who": true, "do": true, "does": true,
	"did": true, "have": true, "has": true, "had": true, "just": true, "like": true,
	"about": true, "into": true, "out": true, "up": true, "down": true, "can": true,
	"will": true, "would": true, "could": true, "should": true, "there": true,
}

func contentTokens(s string) []string {
	var out []string
	for _, t := range normalizeTokens(s) {
		if len(t) < 3 || stopwords[t] {
			continue
		}
		out = append(out, t)
	}
	return out
}

func normalizeVector(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := float32(math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func centroid(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	dims := len(vecs[0])
	out := make([]float32, dims)
	for _, v := range vecs {
		for i := 0; i < dims && i < len(v); i++ {
			out[i] += v[i]
		}
	}
	for i := range out {
		out[i] /= float32(len(vecs))
	}
	return out
}

// formatTimestamp renders a chunk's time span the same way the
// retriever's context formatter does, independently, since the two
// packages don't share unexported helpers.
func formatTimestamp(startTS, endTS float64) string {
	startH, startM, startS := splitHMS(startTS)
	endH, endM, endS := splitHMS(endTS)
	if startH > 0 || endH > 0 {
		return fmt.Sprintf("%02d:%02d:%02d - %02d:%02d:%02d", startH, startM, startS, endH, endM, endS)
	}
	return fmt.Sprintf("%02d:%02d - %02d:%02d", startM, startS, endM, endS)
}

func splitHMS(seconds float64) (h, m, s int) {
	total := int(seconds)
	h = total / 3600
	m = (total % 3600) / 60
	s = total % 60
	return
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := p * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
