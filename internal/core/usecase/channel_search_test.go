package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/evidence-engine/internal/core/domain"
)

// modeOnlyIndex exposes only the generic mode route.
type modeOnlyIndex struct {
	calls []domain.Channel
	rows  map[domain.Channel][]domain.RawRow
	err   error
}

func (f *modeOnlyIndex) Search(_ context.Context, channel domain.Channel, _ string, _ int) ([]domain.RawRow, error) {
	f.calls = append(f.calls, channel)
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[channel], nil
}

// namedIndex adds a dedicated lexical route on top of the generic one.
type namedIndex struct {
	modeOnlyIndex
	namedRows []domain.RawRow
	namedErr  error
}

func (f *namedIndex) SearchLexical(context.Context, string, int) ([]domain.RawRow, error) {
	if f.namedErr != nil {
		return nil, f.namedErr
	}
	return f.namedRows, nil
}

func TestSearchPrefersNamedRoute(t *testing.T) {
	index := &namedIndex{namedRows: []domain.RawRow{domain.TupleRow("c1", 0.9, "alpha", nil)}}
	searcher := NewChannelSearcher(index, nil)

	list := searcher.Search(context.Background(), domain.ChannelBM25, "alpha", 10)
	if len(list) != 1 || list[0].ID != "c1" {
		t.Fatalf("expected named route result, got %+v", list)
	}
	if len(index.calls) != 0 {
		t.Fatalf("generic route should not be called when named route succeeds")
	}
}

func TestSearchFallsBackWhenNamedRouteFails(t *testing.T) {
	index := &namedIndex{
		namedErr: errors.New("route gone"),
	}
	index.rows = map[domain.Channel][]domain.RawRow{
		domain.ChannelBM25: {domain.TupleRow("c2", 0.5, "beta", nil)},
	}
	searcher := NewChannelSearcher(index, nil)

	list := searcher.Search(context.Background(), domain.ChannelBM25, "beta", 10)
	if len(list) != 1 || list[0].ID != "c2" {
		t.Fatalf("expected mode route fallback, got %+v", list)
	}
}

func TestSearchExhaustedStrategiesYieldEmptyListNotError(t *testing.T) {
	index := &modeOnlyIndex{err: errors.New("index down")}
	searcher := NewChannelSearcher(index, nil)

	list := searcher.Search(context.Background(), domain.ChannelVector, "gamma", 10)
	if len(list) != 0 {
		t.Fatalf("expected empty rank list, got %d rows", len(list))
	}
}

func TestSearchLastResortGenericRoute(t *testing.T) {
	index := &modeOnlyIndex{rows: map[domain.Channel][]domain.RawRow{
		"": {domain.TupleRow("c3", 0.4, "delta", nil)},
	}}
	searcher := NewChannelSearcher(index, nil)

	list := searcher.Search(context.Background(), domain.ChannelTitle, "delta", 10)
	if len(list) != 1 || list[0].ID != "c3" {
		t.Fatalf("expected last-resort generic result, got %+v", list)
	}
	// mode route tried first, then generic with empty mode
	if len(index.calls) != 2 || index.calls[0] != domain.ChannelTitle || index.calls[1] != "" {
		t.Fatalf("unexpected strategy order: %v", index.calls)
	}
}

func TestNormalizeRowShapes(t *testing.T) {
	fields, ok := normalizeRow(domain.ChannelBM25, domain.FieldsRow(map[string]any{
		"doc_id":       "d1",
		"score":        0.7,
		"content":      "chunk body",
		"file_path":    "docs/setup.md",
		"ingest_run_id": "run-9",
	}))
	if !ok {
		t.Fatalf("fields row should normalize")
	}
	if fields.ID != "d1" || fields.Score != 0.7 || fields.Text != "chunk body" {
		t.Fatalf("unexpected fields candidate: %+v", fields)
	}
	if fields.Filename() != "setup.md" {
		t.Fatalf("filename not propagated, got %q", fields.Filename())
	}
	if domain.MetaString(fields.Meta, "ingest_run_id") != "run-9" {
		t.Fatalf("provenance key lost in normalization")
	}

	text, ok := normalizeRow(domain.ChannelShort, domain.TextRow("bare chunk"))
	if !ok || text.ID == "" {
		t.Fatalf("text row should get a content-hash id, got %+v", text)
	}
	again, _ := normalizeRow(domain.ChannelShort, domain.TextRow("bare chunk"))
	if text.ID != again.ID {
		t.Fatalf("content-hash ids must be stable across runs")
	}

	if _, ok := normalizeRow(domain.ChannelBM25, domain.FieldsRow(map[string]any{"score": 1.0})); ok {
		t.Fatalf("row without id or text must be dropped")
	}
}

func TestNormalizeRowAlternateTextKeys(t *testing.T) {
	c, ok := normalizeRow(domain.ChannelSection, domain.FieldsRow(map[string]any{
		"id":      "s1",
		"snippet": "from snippet key",
	}))
	if !ok || c.Text != "from snippet key" {
		t.Fatalf("alternate text key not honored: %+v", c)
	}
}

type recordingObserver struct {
	searches []string
	lookups  []bool
	backends []string
}

func (o *recordingObserver) ChannelSearched(channel, strategy string, _ int) {
	o.searches = append(o.searches, channel+"/"+strategy)
}

func (o *recordingObserver) CacheLookup(hit bool) {
	o.lookups = append(o.lookups, hit)
}

func (o *recordingObserver) RerankFinished(backend string, _ time.Duration) {
	o.backends = append(o.backends, backend)
}

func TestSearchReportsWinningStrategy(t *testing.T) {
	index := &namedIndex{namedRows: []domain.RawRow{domain.TupleRow("c1", 0.9, "alpha", nil)}}
	observer := &recordingObserver{}
	searcher := NewChannelSearcher(index, nil)
	searcher.SetObserver(observer)

	searcher.Search(context.Background(), domain.ChannelBM25, "alpha", 10)
	searcher.Search(context.Background(), domain.ChannelTitle, "alpha", 10)

	if len(observer.searches) != 2 {
		t.Fatalf("expected 2 observations, got %v", observer.searches)
	}
	if observer.searches[0] != "bm25/named" {
		t.Fatalf("expected named strategy reported, got %s", observer.searches[0])
	}
	if observer.searches[1] != "title/none" {
		t.Fatalf("expected exhausted channel reported, got %s", observer.searches[1])
	}
}
