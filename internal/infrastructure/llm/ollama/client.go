package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/evidence-engine/internal/core/ports"
)

type Client struct {
	baseURL     string
	genModel    string
	embedModel  string
	rerankModel string
	httpClient  *http.Client
}

func New(baseURL, genModel, embedModel, rerankModel string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		genModel:    genModel,
		embedModel:  embedModel,
		rerankModel: rerankModel,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

var _ ports.Embedder = (*Embedder)(nil)

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, wrapTemporaryIfNeeded("embed", err)
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// Scorer is the cross-encoder backend: joint (query, passage) relevance
// scoring through the generation endpoint with a strict JSON contract.
type Scorer struct {
	client *Client
}

func NewScorer(client *Client) *Scorer {
	return &Scorer{client: client}
}

var _ ports.CrossEncoder = (*Scorer)(nil)

func (s *Scorer) ModelName() string {
	return s.client.rerankModel
}

// Available probes the server version endpoint with a short deadline so an
// offline model degrades the pipeline instead of stalling it.
func (s *Scorer) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, s.client.baseURL+"/api/version", nil)
	if err != nil {
		return false
	}
	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300
}

func (s *Scorer) ScorePairs(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := map[string]any{
		"model":  s.client.rerankModel,
		"prompt": buildRerankPrompt(query, texts),
		"stream": false,
		"format": "json",
	}
	raw, err := s.client.generate(ctx, reqBody)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("score pairs", err)
	}

	var parsed struct {
		Scores []float64 `json:"scores"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("parse rerank json: %w", err)
	}
	if len(parsed.Scores) != len(texts) {
		return nil, fmt.Errorf("rerank returned %d scores for %d passages", len(parsed.Scores), len(texts))
	}
	return parsed.Scores, nil
}

// PassageWriter synthesizes a hypothetical answer passage used to re-query
// the vector channel on sparse queries.
type PassageWriter struct {
	client *Client
}

func NewPassageWriter(client *Client) *PassageWriter {
	return &PassageWriter{client: client}
}

var _ ports.PassageWriter = (*PassageWriter)(nil)

func (p *PassageWriter) WritePassage(ctx context.Context, question string) (string, error) {
	reqBody := map[string]any{
		"model":  p.client.genModel,
		"prompt": buildPassagePrompt(question),
		"stream": false,
	}
	passage, err := p.client.generate(ctx, reqBody)
	if err != nil {
		return "", wrapTemporaryIfNeeded("write passage", err)
	}
	return passage, nil
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
