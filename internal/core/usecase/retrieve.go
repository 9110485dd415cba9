package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/evidence-engine/internal/config"
	"github.com/kirillkom/evidence-engine/internal/core/domain"
	"github.com/kirillkom/evidence-engine/internal/core/ports"
)

// fusionChannels are the channels queried on every request, in the order the
// query builder renders them.
var fusionChannels = []domain.Channel{
	domain.ChannelBM25,
	domain.ChannelVector,
	domain.ChannelTitle,
	domain.ChannelSection,
	domain.ChannelShort,
}

// RetrieveUseCase runs the full evidence pipeline: per-channel queries,
// multi-route search, breadth escalation, weighted RRF fusion with priors,
// pool construction, reranking, and diversity shaping. Per-channel and
// per-candidate failures degrade the result instead of failing the request;
// an empty corpus yields an empty result, not an error.
type RetrieveUseCase struct {
	builder   *QueryBuilder
	searcher  *ChannelSearcher
	escalator *Escalator
	reranker  *Reranker
	publisher ports.SnapshotPublisher
	profile   *config.RankingProfile
	cfg       config.Config
	logger    *slog.Logger
}

func NewRetrieveUseCase(
	builder *QueryBuilder,
	searcher *ChannelSearcher,
	escalator *Escalator,
	reranker *Reranker,
	publisher ports.SnapshotPublisher,
	profile *config.RankingProfile,
	cfg config.Config,
	logger *slog.Logger,
) *RetrieveUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrieveUseCase{
		builder:   builder,
		searcher:  searcher,
		escalator: escalator,
		reranker:  reranker,
		publisher: publisher,
		profile:   profile,
		cfg:       cfg,
		logger:    logger,
	}
}

var _ ports.EvidenceRetriever = (*RetrieveUseCase)(nil)

func (u *RetrieveUseCase) Retrieve(ctx context.Context, question, tag string, limit int) (*domain.EvidenceResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("empty question"))
	}
	if limit <= 0 || limit > u.cfg.ContextDocsMax {
		limit = u.cfg.ContextDocsMax
	}

	started := time.Now()
	queries := u.builder.Build(question, tag)

	lists := make(map[domain.Channel]domain.RankList, len(fusionChannels))
	for _, channel := range fusionChannels {
		lists[channel] = u.searcher.Search(ctx, channel, u.channelQuery(queries, channel), u.cfg.ChannelTopK)
	}

	if u.cfg.EscalationEnabled {
		u.escalator.Widen(ctx, question, queries.BM25, lists, queries.ColdStart, u.cfg.EscalationFloor, u.cfg.ChannelTopK)
	}

	weights := ResolveWeights(u.profile, tag, question, queries.ColdStart, u.cfg)
	fused := FuseRRF(lists, weights, u.cfg.RRFK)
	ApplyPriors(fused, u.profile, u.cfg.PriorClamp, queries.FilenamePattern)

	pool := BuildPool(lists[domain.ChannelShort], fused, PoolConfig{
		ShortlistCap:     u.cfg.ShortlistCap,
		CodeShortlistCap: u.cfg.CodeShortlistCap,
		PoolSize:         u.cfg.PoolSize,
		CodeExtensions:   u.profile.CodeExtensions,
	})
	snapshot := BuildSnapshot(pool)

	ranked := u.reranker.Rerank(ctx, question, pool, u.cfg.RerankKeep)
	final := ApplyDiversity(ranked, DiversityConfig{
		NoveltyPenalty: u.cfg.NoveltyPenalty,
		BasenameCap:    u.cfg.BasenameCap,
		DirectoryCap:   u.cfg.DirectoryCap,
		MaxDocs:        limit,
	})

	u.publishSnapshot(ctx, question, snapshot)
	u.logger.Info("evidence_retrieved",
		"tag", tag,
		"pool", len(pool),
		"final", len(final),
		"cold_start", queries.ColdStart,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	return &domain.EvidenceResult{
		Question:   question,
		Tag:        tag,
		Candidates: final,
		Snapshot:   snapshot,
	}, nil
}

func (u *RetrieveUseCase) channelQuery(queries ChannelQueries, channel domain.Channel) string {
	switch channel {
	case domain.ChannelBM25:
		return queries.BM25
	case domain.ChannelVector:
		return queries.Vector
	case domain.ChannelTitle:
		return queries.Title
	case domain.ChannelSection:
		return queries.Section
	case domain.ChannelShort:
		return queries.Short
	}
	return queries.BM25
}

func (u *RetrieveUseCase) publishSnapshot(ctx context.Context, question string, snapshot []domain.SnapshotEntry) {
	if u.publisher == nil || len(snapshot) == 0 {
		return
	}
	if err := u.publisher.PublishSnapshot(ctx, question, snapshot); err != nil {
		u.logger.Warn("snapshot_publish_failed", "error", err)
	}
}
