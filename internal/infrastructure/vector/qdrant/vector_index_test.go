package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/evidence-engine/internal/core/domain"
)

type fixedEmbedder struct {
	vector []float32
	err    error
}

func (f *fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, f.err
}

func (f *fixedEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return f.vector, f.err
}

func TestSearchVectorReturnsPayloadRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/chunks/points/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body["with_payload"] != true {
			t.Errorf("payload not requested")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{
				{
					"id":    "11111111-2222-3333-4444-555555555555",
					"score": 0.87,
					"payload": map[string]any{
						"doc_id":   "chunk-7",
						"text":     "vector search notes",
						"filename": "notes.md",
					},
				},
			},
		})
	}))
	defer srv.Close()

	idx := New(srv.URL, "chunks", &fixedEmbedder{vector: []float32{0.1, 0.2}})
	rows, err := idx.SearchVector(context.Background(), "vector search", 10)
	if err != nil {
		t.Fatalf("SearchVector: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	fields := rows[0].Fields
	if fields["doc_id"] != "chunk-7" || fields["score"] != 0.87 {
		t.Fatalf("unexpected fields: %+v", fields)
	}
	if fields["_id"] != "11111111-2222-3333-4444-555555555555" {
		t.Fatalf("point id lost: %+v", fields)
	}
}

func TestSearchVectorEmbedderFailureIsChannelError(t *testing.T) {
	idx := New("http://localhost:1", "chunks", &fixedEmbedder{err: errors.New("embedder down")})
	_, err := idx.SearchVector(context.Background(), "q", 10)
	if err == nil || !domain.IsKind(err, domain.ErrChannelUnavailable) {
		t.Fatalf("expected ErrChannelUnavailable, got %v", err)
	}
}

func TestSearchHybridSendsPrefetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/chunks/points/query" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			Prefetch []map[string]any `json:"prefetch"`
			Query    map[string]any   `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(body.Prefetch) != 2 {
			t.Errorf("expected dense+sparse prefetch, got %d", len(body.Prefetch))
		}
		if body.Query["fusion"] != "rrf" {
			t.Errorf("expected rrf fusion, got %v", body.Query)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{
				"points": []map[string]any{
					{"id": 42, "score": 0.5, "payload": map[string]any{"doc_id": "c1", "text": "t"}},
				},
			},
		})
	}))
	defer srv.Close()

	idx := New(srv.URL, "chunks", &fixedEmbedder{vector: []float32{0.3}})
	rows, err := idx.SearchHybrid(context.Background(), "pgvector ivfflat", 5)
	if err != nil {
		t.Fatalf("SearchHybrid: %v", err)
	}
	if len(rows) != 1 || rows[0].Fields["doc_id"] != "c1" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestSearchVectorBadStatusIsChannelError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "collection not found", http.StatusNotFound)
	}))
	defer srv.Close()

	idx := New(srv.URL, "chunks", &fixedEmbedder{vector: []float32{0.1}})
	_, err := idx.SearchVector(context.Background(), "q", 10)
	if err == nil || !domain.IsKind(err, domain.ErrChannelUnavailable) {
		t.Fatalf("expected ErrChannelUnavailable, got %v", err)
	}
}

func TestEncodeSparseQueryDeterministic(t *testing.T) {
	a := encodeSparseQuery("pgvector ivfflat index")
	b := encodeSparseQuery("pgvector ivfflat index")
	if len(a.Indices) != len(b.Indices) || len(a.Indices) == 0 {
		t.Fatalf("unexpected sparse vectors: %v vs %v", a, b)
	}
	for i := range a.Indices {
		if a.Indices[i] != b.Indices[i] || a.Values[i] != b.Values[i] {
			t.Fatalf("sparse encoding not deterministic at %d", i)
		}
	}
	for i := 1; i < len(a.Indices); i++ {
		if a.Indices[i-1] >= a.Indices[i] {
			t.Fatalf("indices not sorted")
		}
	}
}
