package bootstrap

import (
	"context"
	"testing"

	"github.com/kirillkom/evidence-engine/internal/core/domain"
)

type fakeText struct {
	calls []string
}

func (f *fakeText) Search(_ context.Context, channel domain.Channel, _ string, _ int) ([]domain.RawRow, error) {
	f.calls = append(f.calls, "mode:"+string(channel))
	return nil, nil
}

func (f *fakeText) SearchLexical(_ context.Context, _ string, _ int) ([]domain.RawRow, error) {
	f.calls = append(f.calls, "lexical")
	return nil, nil
}

func (f *fakeText) SearchTitles(_ context.Context, _ string, _ int) ([]domain.RawRow, error) {
	f.calls = append(f.calls, "titles")
	return nil, nil
}

func (f *fakeText) SearchSections(_ context.Context, _ string, _ int) ([]domain.RawRow, error) {
	f.calls = append(f.calls, "sections")
	return nil, nil
}

func (f *fakeText) SearchShort(_ context.Context, _ string, _ int) ([]domain.RawRow, error) {
	f.calls = append(f.calls, "short")
	return nil, nil
}

type fakeVector struct {
	calls []string
}

func (f *fakeVector) SearchVector(_ context.Context, _ string, _ int) ([]domain.RawRow, error) {
	f.calls = append(f.calls, "vector")
	return []domain.RawRow{domain.TupleRow("v", 0.5, "t", nil)}, nil
}

func (f *fakeVector) SearchHybrid(_ context.Context, _ string, _ int) ([]domain.RawRow, error) {
	f.calls = append(f.calls, "hybrid")
	return nil, nil
}

func TestCompositeIndexRoutesVectorFamily(t *testing.T) {
	text := &fakeText{}
	vector := &fakeVector{}
	idx := NewCompositeIndex(text, vector)

	rows, err := idx.Search(context.Background(), domain.ChannelVector, "q", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(rows) != 1 || len(vector.calls) != 1 || vector.calls[0] != "vector" {
		t.Fatalf("vector channel not routed to the vector backend: %v", vector.calls)
	}

	if _, err := idx.Search(context.Background(), domain.ChannelHybrid, "q", 5); err != nil {
		t.Fatalf("Search hybrid: %v", err)
	}
	if vector.calls[1] != "hybrid" {
		t.Fatalf("hybrid channel not routed: %v", vector.calls)
	}
	if len(text.calls) != 0 {
		t.Fatalf("text backend must not see vector channels: %v", text.calls)
	}
}

func TestCompositeIndexRoutesTextChannels(t *testing.T) {
	text := &fakeText{}
	idx := NewCompositeIndex(text, &fakeVector{})

	if _, err := idx.Search(context.Background(), domain.ChannelBM25, "q", 5); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if _, err := idx.SearchSections(context.Background(), "a | b", 5); err != nil {
		t.Fatalf("SearchSections: %v", err)
	}
	if len(text.calls) != 2 || text.calls[0] != "mode:bm25" || text.calls[1] != "sections" {
		t.Fatalf("unexpected text calls: %v", text.calls)
	}
}
