package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/evidence-engine/internal/core/domain"
	"github.com/kirillkom/evidence-engine/internal/core/ports"
)

// RerankConfig selects the reranking backend.
type RerankConfig struct {
	Enabled        bool
	UseFusionHead  bool
	CodeExtensions []string
}

// Reranker reorders the candidate pool with whichever scoring backend is
// healthy: the trained fusion head first when enabled, then the
// cross-encoder, then the fused order untouched. Backend failure never fails
// the query.
type Reranker struct {
	crossEncoder ports.CrossEncoder
	head         ports.FusionHead
	cache        ports.RerankCache
	logger       *slog.Logger
	observer     ports.PipelineObserver
	cfg          RerankConfig
}

func NewReranker(crossEncoder ports.CrossEncoder, head ports.FusionHead, cache ports.RerankCache, logger *slog.Logger, cfg RerankConfig) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{crossEncoder: crossEncoder, head: head, cache: cache, logger: logger, cfg: cfg}
}

func (r *Reranker) SetObserver(observer ports.PipelineObserver) {
	r.observer = observer
}

func (r *Reranker) Rerank(ctx context.Context, query string, pool []domain.FusedCandidate, topN int) []domain.ScoredCandidate {
	if len(pool) == 0 || topN <= 0 {
		return nil
	}
	if r == nil || !r.cfg.Enabled {
		return truncateFused(pool, topN)
	}
	start := time.Now()

	if r.cfg.UseFusionHead && r.head != nil {
		ranked, err := r.rerankWithHead(pool, topN)
		if err == nil {
			r.observe(domain.RankedByFusionHead, start)
			return ranked
		}
		r.logger.Warn("fusion_head_rerank_failed", "error", err)
	}

	if r.crossEncoder != nil && r.crossEncoder.Available(ctx) {
		ranked, err := r.rerankWithCrossEncoder(ctx, query, pool, topN)
		if err == nil {
			r.observe(domain.RankedByCrossEncoder, start)
			return ranked
		}
		r.logger.Warn("cross_encoder_rerank_failed", "error", err)
	}

	r.observe(domain.RankedByFused, start)
	return truncateFused(pool, topN)
}

func (r *Reranker) observe(backend string, start time.Time) {
	if r.observer != nil {
		r.observer.RerankFinished(backend, time.Since(start))
	}
}

// rerankWithHead scores the pool with the trained linear head. The head score
// replaces the fused score wholesale; candidates the head was not trained to
// judge fail loudly via the feature contract, not silently.
func (r *Reranker) rerankWithHead(pool []domain.FusedCandidate, topN int) ([]domain.ScoredCandidate, error) {
	names := r.head.FeatureNames()
	features := make([][]float64, len(pool))
	for i := range pool {
		vec, err := r.featureVector(names, &pool[i])
		if err != nil {
			return nil, err
		}
		features[i] = vec
	}

	scores, err := r.head.Predict(features)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(pool) {
		return nil, fmt.Errorf("fusion head returned %d scores for %d candidates", len(scores), len(pool))
	}

	ranked := make([]domain.ScoredCandidate, len(pool))
	for i, c := range pool {
		c.Score = scores[i]
		ranked[i] = domain.ScoredCandidate{FusedCandidate: c, RankedBy: domain.RankedByFusionHead}
	}
	sortScored(ranked)
	return truncateScored(ranked, topN), nil
}

func (r *Reranker) featureVector(names []string, c *domain.FusedCandidate) ([]float64, error) {
	vec := make([]float64, len(names))
	for i, name := range names {
		switch name {
		case "rrf_score":
			vec[i] = c.Score
		case "score_bm25":
			vec[i] = c.ChannelScores[domain.ChannelBM25]
		case "score_vec":
			vec[i] = c.ChannelScores[domain.ChannelVector]
		case "score_title":
			vec[i] = c.ChannelScores[domain.ChannelTitle]
		case "score_section":
			vec[i] = c.ChannelScores[domain.ChannelSection]
		case "score_short":
			vec[i] = c.ChannelScores[domain.ChannelShort]
		case "is_code":
			if hasCodeExtension(strings.ToLower(c.Filename()), r.cfg.CodeExtensions) {
				vec[i] = 1
			}
		case "length_norm":
			vec[i] = 1.0 / (1.0 + float64(len(c.Text))/1024.0)
		default:
			return nil, fmt.Errorf("unknown feature %q", name)
		}
	}
	return vec, nil
}

func (r *Reranker) rerankWithCrossEncoder(ctx context.Context, query string, pool []domain.FusedCandidate, topN int) ([]domain.ScoredCandidate, error) {
	model := r.crossEncoder.ModelName()
	qhash := queryHash(query)

	ranked := make([]domain.ScoredCandidate, len(pool))
	var missIdx []int
	var missInputs []string
	for i, c := range pool {
		ranked[i] = domain.ScoredCandidate{FusedCandidate: c, RankedBy: domain.RankedByCrossEncoder}
		if r.cache != nil {
			score, ok := r.cache.Get(model, qhash, c.DocID)
			if r.observer != nil {
				r.observer.CacheLookup(ok)
			}
			if ok {
				ranked[i].ScoreCE = score
				continue
			}
		}
		missIdx = append(missIdx, i)
		missInputs = append(missInputs, encodeInput(&pool[i]))
	}

	if len(missIdx) > 0 {
		scores, err := r.crossEncoder.ScorePairs(ctx, query, missInputs)
		if err != nil {
			return nil, err
		}
		if len(scores) != len(missIdx) {
			return nil, fmt.Errorf("cross encoder returned %d scores for %d inputs", len(scores), len(missIdx))
		}
		for j, i := range missIdx {
			ranked[i].ScoreCE = scores[j]
			if r.cache != nil {
				r.cache.Put(model, qhash, ranked[i].DocID, scores[j])
			}
		}
	}

	sortScored(ranked)
	return truncateScored(ranked, topN), nil
}

// encodeInput shapes the passage the cross encoder judges: filename and
// section context prefixed on their own lines, so the model sees where the
// chunk lives, not just its text.
func encodeInput(c *domain.FusedCandidate) string {
	var b strings.Builder
	if name := c.Filename(); name != "" {
		b.WriteString("FILE: ")
		b.WriteString(name)
		b.WriteString("\n")
	}
	if title := sectionTitle(c.Text); title != "" {
		b.WriteString("SECTION: ")
		b.WriteString(title)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(c.Text)
	return b.String()
}

const sectionTitleMaxRunes = 120

func sectionTitle(text string) string {
	var firstLine string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			return truncateRunes(strings.TrimSpace(strings.TrimLeft(line, "#")), sectionTitleMaxRunes)
		}
		if firstLine == "" {
			firstLine = line
		}
	}
	return truncateRunes(firstLine, sectionTitleMaxRunes)
}

func queryHash(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:8])
}

func truncateFused(pool []domain.FusedCandidate, topN int) []domain.ScoredCandidate {
	if topN > len(pool) {
		topN = len(pool)
	}
	out := make([]domain.ScoredCandidate, topN)
	for i := 0; i < topN; i++ {
		out[i] = domain.ScoredCandidate{FusedCandidate: pool[i], RankedBy: domain.RankedByFused}
	}
	return out
}

func truncateScored(ranked []domain.ScoredCandidate, topN int) []domain.ScoredCandidate {
	if topN > len(ranked) {
		topN = len(ranked)
	}
	return ranked[:topN]
}

func sortScored(ranked []domain.ScoredCandidate) {
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := ranked[i].RankScore(), ranked[j].RankScore()
		if si != sj {
			return si > sj
		}
		return ranked[i].DocID < ranked[j].DocID
	})
}
