package usecase

import (
	"strings"
	"testing"

	"github.com/kirillkom/evidence-engine/internal/core/domain"
)

func poolCfg() PoolConfig {
	return PoolConfig{
		ShortlistCap:     12,
		CodeShortlistCap: 10,
		PoolSize:         60,
		CodeExtensions:   []string{".go", ".sql", ".sh"},
	}
}

func named(id, filename string) domain.FusedCandidate {
	return domain.FusedCandidate{DocID: id, Meta: map[string]any{"filename": filename}}
}

func TestBuildPoolShortlistLeadsAndDedupes(t *testing.T) {
	short := domain.RankList{
		{ID: "s1", Meta: map[string]any{"filename": "howto.md"}},
		{ID: "s2", Meta: map[string]any{"filename": "HOWTO.md"}},
		{ID: "s3", Meta: map[string]any{"filename": "setup.md"}},
	}
	fused := []domain.FusedCandidate{
		named("f1", "other.md"),
		{DocID: "s1", Source: domain.ChannelBM25, Meta: map[string]any{"filename": "howto.md"}},
	}

	pool := BuildPool(short, fused, poolCfg())

	var ids []string
	for _, c := range pool {
		ids = append(ids, c.DocID)
	}
	got := strings.Join(ids, ",")
	if got != "s1,s3,f1" {
		t.Fatalf("unexpected pool order: %s", got)
	}
	// s1 fused, so the pool keeps its fused identity; s3 never did.
	if pool[0].Source != domain.ChannelBM25 {
		t.Fatalf("fused copy must win for s1, got %s", pool[0].Source)
	}
	if pool[1].Source != domain.ChannelShort {
		t.Fatalf("unfused shortlist entry must carry the short channel, got %s", pool[1].Source)
	}
}

func TestBuildPoolCodeShortlistSurvivesProse(t *testing.T) {
	var fused []domain.FusedCandidate
	for i := 0; i < 30; i++ {
		fused = append(fused, named("prose-"+string(rune('a'+i)), "notes.md"))
	}
	fused = append(fused, named("code-1", "001_add_ivfflat.sql"))

	cfg := poolCfg()
	cfg.PoolSize = 10
	pool := BuildPool(nil, fused, cfg)

	if len(pool) != 10 {
		t.Fatalf("expected the pool capped at 10, got %d", len(pool))
	}
	if pool[0].DocID != "code-1" {
		t.Fatalf("code hit should be protected at the front, got %s", pool[0].DocID)
	}
}

func TestBuildPoolCapAndMalformedEntries(t *testing.T) {
	short := domain.RankList{
		{ID: ""},
		{ID: "s1", Meta: map[string]any{"filename": "a.md"}},
	}
	fused := []domain.FusedCandidate{
		{DocID: ""},
		named("f1", "b.md"),
		named("f2", "c.md"),
	}
	cfg := poolCfg()
	cfg.PoolSize = 2

	pool := BuildPool(short, fused, cfg)
	if len(pool) != 2 {
		t.Fatalf("pool must respect the cap, got %d", len(pool))
	}
	if pool[0].DocID != "s1" || pool[1].DocID != "f1" {
		t.Fatalf("unexpected pool: %+v", pool)
	}
}

func TestCodeShortlistDedupesBasename(t *testing.T) {
	short := domain.RankList{
		{ID: "s1", Meta: map[string]any{"filename": "main.go"}},
	}
	fused := []domain.FusedCandidate{
		named("f1", "main.go"),
		named("f2", "util.go"),
		named("f3", "notes.md"),
	}
	out := codeShortlist(short, fused, poolCfg())
	if len(out) != 2 || out[0].DocID != "s1" || out[1].DocID != "f2" {
		t.Fatalf("unexpected code shortlist: %+v", out)
	}
}

func TestBuildSnapshotPreviewAndProvenance(t *testing.T) {
	long := strings.Repeat("x", 500)
	pool := []domain.FusedCandidate{
		{
			DocID:  "d1",
			Score:  0.5,
			Text:   long,
			Source: domain.ChannelBM25,
			Meta: map[string]any{
				"filename":      "doc.md",
				"ingest_run_id": "run-7",
				"chunk_variant": "v2",
			},
		},
	}
	entries := BuildSnapshot(pool)
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	e := entries[0]
	if len([]rune(e.TextPreview)) != 240 {
		t.Fatalf("preview must be 240 runes, got %d", len([]rune(e.TextPreview)))
	}
	if e.ID != "d1" || e.Source != domain.ChannelBM25 || e.Filename != "doc.md" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.IngestRunID != "run-7" || e.ChunkVariant != "v2" {
		t.Fatalf("provenance fields lost: %+v", e)
	}
}

func TestBuildPoolKeepsFusedScoreForShortlistedDoc(t *testing.T) {
	short := domain.RankList{
		{ID: "x", Score: 5.0, Meta: map[string]any{"filename": "x.md"}},
	}
	fused := []domain.FusedCandidate{
		{DocID: "a", Score: 0.0164, Meta: map[string]any{"filename": "a.md"}},
		{DocID: "b", Score: 0.0161, Meta: map[string]any{"filename": "b.md"}},
		{DocID: "x", Score: 0.0131, Source: domain.ChannelShort, Meta: map[string]any{"filename": "x.md"}},
	}
	pool := BuildPool(short, fused, poolCfg())

	if pool[0].DocID != "x" {
		t.Fatalf("shortlist must still pin x to the pool front, got %s", pool[0].DocID)
	}
	if pool[0].Score != 0.0131 {
		t.Fatalf("raw channel score leaked into the pool: %v", pool[0].Score)
	}

	// With both rerank backends off the diversity re-sort must restore the
	// fused order.
	final := ApplyDiversity(truncateFused(pool, 10), divCfg())
	if final[0].DocID != "a" || final[1].DocID != "b" || final[2].DocID != "x" {
		t.Fatalf("fused order lost: %s %s %s", final[0].DocID, final[1].DocID, final[2].DocID)
	}
}

func TestBuildPoolUnfusedShortHitCarriesNoFusedScore(t *testing.T) {
	short := domain.RankList{
		{ID: "s1", Score: 4.2, Meta: map[string]any{"filename": "cheatsheet.md"}},
	}
	pool := BuildPool(short, nil, poolCfg())

	if len(pool) != 1 || pool[0].Score != 0 {
		t.Fatalf("unfused short hit must not carry a fused-scale score: %+v", pool)
	}
	if pool[0].ChannelScores[domain.ChannelShort] != 4.2 {
		t.Fatalf("raw channel score must stay in ChannelScores: %+v", pool[0].ChannelScores)
	}
}
