// Package rerank implements the C4 cross-encoder reranker: reassign
// relevance scores to candidate chunks for a query and return the top
// k, degrading to identity order when the rerank model is unreachable
// (spec §4.4).
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/vidknora/vidknora/internal/logger"
)

// Candidate is one chunk competing for rerank, with the text the
// cross-encoder scores against the query.
type Candidate struct {
	ID    string
	Text  string // chunk.text + title + summary, concatenated by the caller
	Score float64
}

// Reranker is the C4 operation set.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Candidate, k int) ([]Candidate, error)
}

// Config configures the HTTP cross-encoder backend (spec §6.1
// rerank_provider/rerank_model).
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

type httpReranker struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// New constructs an HTTP-backed cross-encoder Reranker.
func New(cfg Config) Reranker {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.jina.ai/v1"
	}
	return &httpReranker{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   cfg.Model,
		client:  &http.Client{},
	}
}

type rerankRequest struct {
	Model           string   `json:"model"`
	Query           string   `json:"query"`
	Documents       []string `json:"documents"`
	ReturnDocuments bool     `json:"return_documents,omitempty"`
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResponse struct {
	Model   string         `json:"model"`
	Results []rerankResult `json:"results"`
}

// Rerank calls the cross-encoder endpoint and reassigns Score on each
// candidate from its relevance_score, returning the top k sorted
// descending. Empty input returns empty output (spec §4.4).
func (r *httpReranker) Rerank(ctx context.Context, query string, candidates []Candidate, k int) ([]Candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Text
	}

	reqBody := rerankRequest{Model: r.model, Query: query, Documents: docs, ReturnDocuments: false}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	logger.GetLogger(ctx).Infof(
		"curl -X POST %s/rerank -H \"Content-Type: application/json\" -H \"Authorization: Bearer ***\" -d '%s'",
		r.baseURL, string(payload),
	)

	resp, err := r.client.Do(req)
	if err != nil {
		return identity(candidates, k), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return identity(candidates, k), nil
	}
	if resp.StatusCode != http.StatusOK {
		logger.GetLogger(ctx).Warnf("rerank API error: status=%s body=%s", resp.Status, string(body))
		return identity(candidates, k), nil
	}

	var parsed rerankResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return identity(candidates, k), nil
	}

	out := make([]Candidate, 0, len(parsed.Results))
	for _, res := range parsed.Results {
		if res.Index < 0 || res.Index >= len(candidates) {
			continue
		}
		c := candidates[res.Index]
		c.Score = res.RelevanceScore
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// identity returns the first k candidates unmodified, used when the
// rerank model is unavailable (spec §4.4 "Must degrade to identity on
// model-unavailable").
func identity(candidates []Candidate, k int) []Candidate {
	if k <= 0 || k > len(candidates) {
		k = len(candidates)
	}
	out := make([]Candidate, k)
	copy(out, candidates[:k])
	return out
}
