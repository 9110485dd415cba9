package usecase

import (
	"context"
	"testing"

	"github.com/kirillkom/evidence-engine/internal/config"
	"github.com/kirillkom/evidence-engine/internal/core/domain"
	"github.com/kirillkom/evidence-engine/internal/core/ports"
)

// corpusIndex serves a small fixed corpus over the generic mode route.
type corpusIndex struct {
	byChannel map[domain.Channel][]domain.RawRow
}

func (c *corpusIndex) Search(_ context.Context, channel domain.Channel, _ string, _ int) ([]domain.RawRow, error) {
	return c.byChannel[channel], nil
}

type captureBus struct {
	question string
	entries  []domain.SnapshotEntry
	err      error
}

func (b *captureBus) PublishSnapshot(_ context.Context, question string, entries []domain.SnapshotEntry) error {
	b.question = question
	b.entries = entries
	return b.err
}

func pipelineCfg() config.Config {
	return config.Config{
		ChannelTopK:            30,
		RRFK:                   60,
		PoolSize:               60,
		ShortlistCap:           12,
		CodeShortlistCap:       10,
		RerankKeep:             12,
		ContextDocsMax:         12,
		BasenameCap:            3,
		DirectoryCap:           6,
		NoveltyPenalty:         0.10,
		PriorClamp:             0.08,
		EscalationEnabled:      false,
		LexicalShortQueryBoost: 1.3,
		ColdStartVectorBoost:   1.25,
	}
}

func newPipeline(index *corpusIndex, bus *captureBus, cfg config.Config) *RetrieveUseCase {
	profile := config.DefaultRankingProfile()
	searcher := NewChannelSearcher(index, nil)
	// Pass a true nil interface when bus is nil; a typed-nil *captureBus
	// would defeat the publisher nil-check and panic on use.
	var publisher ports.SnapshotPublisher
	if bus != nil {
		publisher = bus
	}
	return NewRetrieveUseCase(
		NewQueryBuilder(profile),
		searcher,
		NewEscalator(nil, searcher, nil),
		NewReranker(nil, nil, nil, nil, RerankConfig{Enabled: false}),
		publisher,
		profile,
		cfg,
		nil,
	)
}

func migrationRow(id, filePath, text string, score float64) domain.RawRow {
	return domain.FieldsRow(map[string]any{
		"id":        id,
		"score":     score,
		"text":      text,
		"file_path": filePath,
	})
}

func TestRetrieveEmptyQuestionRejected(t *testing.T) {
	u := newPipeline(&corpusIndex{}, nil, pipelineCfg())
	_, err := u.Retrieve(context.Background(), "   ", "", 5)
	if err == nil || !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestRetrieveEmptyCorpusYieldsEmptyResult(t *testing.T) {
	bus := &captureBus{}
	u := newPipeline(&corpusIndex{}, bus, pipelineCfg())

	result, err := u.Retrieve(context.Background(), "anything at all", "", 5)
	if err != nil {
		t.Fatalf("empty corpus must not error: %v", err)
	}
	if len(result.Candidates) != 0 || len(result.Snapshot) != 0 {
		t.Fatalf("expected an empty result, got %+v", result)
	}
	if bus.entries != nil {
		t.Fatalf("empty snapshots must not be published")
	}
}

func TestRetrieveMigrationScenario(t *testing.T) {
	index := &corpusIndex{byChannel: map[domain.Channel][]domain.RawRow{
		domain.ChannelBM25: {
			migrationRow("mig-1", "db_workflows/migrations/001_add_ivfflat.sql",
				"CREATE INDEX embeddings_ivfflat ON embeddings USING ivfflat (vector)", 9.0),
			migrationRow("doc-1", "docs/overview.md", "general notes about embeddings", 5.0),
		},
		domain.ChannelVector: {
			migrationRow("doc-1", "docs/overview.md", "general notes about embeddings", 0.8),
			migrationRow("mig-1", "db_workflows/migrations/001_add_ivfflat.sql",
				"CREATE INDEX embeddings_ivfflat ON embeddings USING ivfflat (vector)", 0.7),
		},
	}}
	bus := &captureBus{}
	u := newPipeline(index, bus, pipelineCfg())

	result, err := u.Retrieve(context.Background(), "create index on embeddings", "db_workflows", 5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(result.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(result.Candidates))
	}
	if result.Candidates[0].DocID != "mig-1" {
		t.Fatalf("the migration file should lead, got %s", result.Candidates[0].DocID)
	}
	if result.Candidates[0].Filename() != "001_add_ivfflat.sql" {
		t.Fatalf("filename not propagated: %q", result.Candidates[0].Filename())
	}
	if len(bus.entries) != 2 || bus.question != "create index on embeddings" {
		t.Fatalf("snapshot not published: %+v", bus)
	}
}

func TestRetrieveDeterministicAcrossRuns(t *testing.T) {
	index := &corpusIndex{byChannel: map[domain.Channel][]domain.RawRow{
		domain.ChannelBM25: {
			migrationRow("a", "docs/a.md", "pgvector extension setup", 3.0),
			migrationRow("b", "docs/b.md", "pgvector indexing", 2.0),
		},
		domain.ChannelVector: {
			migrationRow("b", "docs/b.md", "pgvector indexing", 0.9),
			migrationRow("c", "docs/c.md", "vector search", 0.8),
		},
		domain.ChannelShort: {
			migrationRow("s", "docs/s.md", "pgvector", 1.0),
		},
	}}
	u := newPipeline(index, nil, pipelineCfg())

	first, err := u.Retrieve(context.Background(), "pgvector setup", "", 10)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	for run := 0; run < 5; run++ {
		again, err := u.Retrieve(context.Background(), "pgvector setup", "", 10)
		if err != nil {
			t.Fatalf("retrieve: %v", err)
		}
		if len(again.Candidates) != len(first.Candidates) {
			t.Fatalf("run %d: length diverged", run)
		}
		for i := range first.Candidates {
			if first.Candidates[i].DocID != again.Candidates[i].DocID {
				t.Fatalf("run %d: order diverged at %d", run, i)
			}
		}
	}
}

func TestRetrieveLimitClamped(t *testing.T) {
	rows := make([]domain.RawRow, 0, 20)
	for i := 0; i < 20; i++ {
		name := "f" + string(rune('a'+i)) + ".md"
		rows = append(rows, migrationRow("id-"+name, "dir-"+name+"/"+name, "text "+name, float64(20-i)))
	}
	index := &corpusIndex{byChannel: map[domain.Channel][]domain.RawRow{domain.ChannelBM25: rows}}

	cfg := pipelineCfg()
	cfg.ContextDocsMax = 4
	cfg.RerankKeep = 20
	u := newPipeline(index, nil, cfg)

	result, err := u.Retrieve(context.Background(), "some query text", "", 100)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(result.Candidates) != 4 {
		t.Fatalf("expected the limit clamped to 4, got %d", len(result.Candidates))
	}
}

func TestRetrieveShortChannelGuarantee(t *testing.T) {
	index := &corpusIndex{byChannel: map[domain.Channel][]domain.RawRow{
		domain.ChannelBM25: {
			migrationRow("prose", "docs/long.md", "long prose about the topic", 9.0),
		},
		domain.ChannelShort: {
			migrationRow("short-hit", "docs/cheatsheet.md", "exact phrase", 1.0),
		},
	}}
	u := newPipeline(index, nil, pipelineCfg())

	result, err := u.Retrieve(context.Background(), "exact phrase lookup", "", 10)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	found := false
	for _, e := range result.Snapshot {
		if e.ID == "short-hit" {
			found = true
		}
	}
	if !found {
		t.Fatalf("short-channel hit missing from the pool snapshot")
	}
}
