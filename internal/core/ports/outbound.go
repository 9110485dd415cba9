package ports

import (
	"context"
	"time"

	"github.com/kirillkom/evidence-engine/internal/core/domain"
)

// ChannelIndex is the generic search route every storage backend exposes:
// one call with an explicit channel mode. An empty channel means the
// backend's default route.
type ChannelIndex interface {
	Search(ctx context.Context, channel domain.Channel, query string, limit int) ([]domain.RawRow, error)
}

// Named channel routes. Backends implement whichever subset they have a
// dedicated entry point for; the retrieval adapter discovers them by type
// assertion and prefers them over the generic route.
type LexicalRoute interface {
	SearchLexical(ctx context.Context, query string, limit int) ([]domain.RawRow, error)
}

type VectorRoute interface {
	SearchVector(ctx context.Context, query string, limit int) ([]domain.RawRow, error)
}

type TitleRoute interface {
	SearchTitles(ctx context.Context, query string, limit int) ([]domain.RawRow, error)
}

type SectionRoute interface {
	SearchSections(ctx context.Context, query string, limit int) ([]domain.RawRow, error)
}

type ShortRoute interface {
	SearchShort(ctx context.Context, query string, limit int) ([]domain.RawRow, error)
}

type HybridRoute interface {
	SearchHybrid(ctx context.Context, query string, limit int) ([]domain.RawRow, error)
}

// Alias routes, tried after the generic route for backends that expose a
// family-level entry point under a different name.
type KeywordRoute interface {
	SearchKeyword(ctx context.Context, query string, limit int) ([]domain.RawRow, error)
}

type SemanticRoute interface {
	SearchSemantic(ctx context.Context, query string, limit int) ([]domain.RawRow, error)
}

type HeadingRoute interface {
	SearchHeadings(ctx context.Context, query string, limit int) ([]domain.RawRow, error)
}

// Embedder builds vectors for chunk and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// CrossEncoder jointly scores (query, passage) pairs. Scoring must be
// deterministic for a fixed model and inputs so cached scores converge.
type CrossEncoder interface {
	ModelName() string
	Available(ctx context.Context) bool
	ScorePairs(ctx context.Context, query string, texts []string) ([]float64, error)
}

// FusionHead is an externally trained scorer over an ordered feature vector.
// FeatureNames is the versioned training-time contract; Predict rejects
// matrices of any other width.
type FusionHead interface {
	FeatureNames() []string
	Predict(features [][]float64) ([]float64, error)
}

// RerankCache stores cross-encoder scores keyed by (model, query hash,
// candidate id). Write-once per key; concurrent writers may race on a key
// but deterministic scoring guarantees they converge.
type RerankCache interface {
	Get(model, queryHash, candidateID string) (float64, bool)
	Put(model, queryHash, candidateID string, score float64)
}

// PassageWriter synthesizes a hypothetical answer passage for breadth
// escalation on lexically sparse queries.
type PassageWriter interface {
	WritePassage(ctx context.Context, question string) (string, error)
}

// PipelineObserver receives retrieval pipeline telemetry. Implementations
// must be safe for concurrent use. A nil observer disables reporting.
type PipelineObserver interface {
	// ChannelSearched reports the winning strategy for one channel search,
	// or strategy "none" with zero hits when every strategy was exhausted.
	ChannelSearched(channel, strategy string, hits int)
	CacheLookup(hit bool)
	RerankFinished(backend string, duration time.Duration)
}

// SnapshotPublisher ships the pre-rerank pool snapshot to debugging
// consumers. Best effort: a publish failure never fails the query.
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, question string, entries []domain.SnapshotEntry) error
}
