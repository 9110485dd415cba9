package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/evidence-engine/internal/core/domain"
	"github.com/kirillkom/evidence-engine/internal/core/ports"
)

// VectorIndex serves the dense vector channel and the server-side hybrid
// (dense + sparse) channel over qdrant's HTTP API. Query embedding goes
// through the injected embedder.
type VectorIndex struct {
	baseURL    string
	collection string
	embedder   ports.Embedder
	httpClient *http.Client
}

func New(baseURL, collection string, embedder ports.Embedder) *VectorIndex {
	return &VectorIndex{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		embedder:   embedder,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

var (
	_ ports.VectorRoute = (*VectorIndex)(nil)
	_ ports.HybridRoute = (*VectorIndex)(nil)
)

func (c *VectorIndex) SearchVector(ctx context.Context, query string, limit int) ([]domain.RawRow, error) {
	vector, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, domain.WrapError(domain.ErrChannelUnavailable, "embed query", err)
	}

	reqBody := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	var searchResp struct {
		Result []scoredPoint `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	if err := c.post(ctx, url, reqBody, &searchResp); err != nil {
		return nil, domain.WrapError(domain.ErrChannelUnavailable, "qdrant search", err)
	}
	return pointsToRows(searchResp.Result), nil
}

// SearchHybrid runs dense and sparse prefetches fused server-side with RRF
// via the query API.
func (c *VectorIndex) SearchHybrid(ctx context.Context, query string, limit int) ([]domain.RawRow, error) {
	vector, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, domain.WrapError(domain.ErrChannelUnavailable, "embed query", err)
	}
	sparse := encodeSparseQuery(query)

	reqBody := map[string]any{
		"prefetch": []map[string]any{
			{"query": vector, "using": "dense", "limit": limit},
			{"query": map[string]any{"indices": sparse.Indices, "values": sparse.Values}, "using": "sparse", "limit": limit},
		},
		"query":        map[string]any{"fusion": "rrf"},
		"limit":        limit,
		"with_payload": true,
	}
	var queryResp struct {
		Result struct {
			Points []scoredPoint `json:"points"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/query", c.baseURL, c.collection)
	if err := c.post(ctx, url, reqBody, &queryResp); err != nil {
		return nil, domain.WrapError(domain.ErrChannelUnavailable, "qdrant hybrid query", err)
	}
	return pointsToRows(queryResp.Result.Points), nil
}

type scoredPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// pointsToRows re-keys qdrant points as open field rows. The payload's own
// doc_id wins over the point id, which is a synthetic uuid assigned at
// upsert time.
func pointsToRows(points []scoredPoint) []domain.RawRow {
	out := make([]domain.RawRow, 0, len(points))
	for _, p := range points {
		fields := make(map[string]any, len(p.Payload)+2)
		for k, v := range p.Payload {
			fields[k] = v
		}
		fields["score"] = p.Score
		if p.ID != nil {
			fields["_id"] = fmt.Sprintf("%v", p.ID)
		}
		out = append(out, domain.FieldsRow(fields))
	}
	return out
}

func (c *VectorIndex) post(ctx context.Context, url string, reqBody any, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if trimmed := strings.TrimSpace(string(msg)); trimmed != "" {
			return fmt.Errorf("qdrant status: %s: %s", resp.Status, trimmed)
		}
		return fmt.Errorf("qdrant status: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
