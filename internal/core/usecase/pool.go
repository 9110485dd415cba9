package usecase

import (
	"strings"

	"github.com/kirillkom/evidence-engine/internal/core/domain"
)

// PoolConfig bounds the candidate pool handed to the reranker.
type PoolConfig struct {
	ShortlistCap     int
	CodeShortlistCap int
	PoolSize         int
	CodeExtensions   []string
}

// BuildPool assembles the rerank input pool: a unique-basename shortlist from
// the short-form channel, a code-file shortlist, then the fused order, all
// deduplicated by id in insertion order and capped. The shortlists protect
// exact-match and code hits from being crowded out by prose before the
// reranker sees them.
func BuildPool(shortList domain.RankList, fused []domain.FusedCandidate, cfg PoolConfig) []domain.FusedCandidate {
	pool := make([]domain.FusedCandidate, 0, cfg.PoolSize)
	seen := make(map[string]struct{}, cfg.PoolSize)
	fusedByID := make(map[string]domain.FusedCandidate, len(fused))
	for _, c := range fused {
		fusedByID[c.DocID] = c
	}

	add := func(c domain.FusedCandidate) bool {
		if c.DocID == "" {
			return false
		}
		if _, dup := seen[c.DocID]; dup {
			return false
		}
		// A shortlist entry that also fused keeps its fused score and
		// priors; the shortlist only pins its position in the pool.
		if f, ok := fusedByID[c.DocID]; ok {
			c = f
		}
		seen[c.DocID] = struct{}{}
		pool = append(pool, c)
		return true
	}

	for _, c := range basenameShortlist(shortList, cfg.ShortlistCap) {
		if len(pool) >= cfg.PoolSize {
			break
		}
		add(c)
	}
	for _, c := range codeShortlist(shortList, fused, cfg) {
		if len(pool) >= cfg.PoolSize {
			break
		}
		add(c)
	}
	for _, c := range fused {
		if len(pool) >= cfg.PoolSize {
			break
		}
		add(c)
	}
	return pool
}

// basenameShortlist keeps the best short-channel hit per basename, in channel
// rank order.
func basenameShortlist(shortList domain.RankList, limit int) []domain.FusedCandidate {
	var out []domain.FusedCandidate
	seen := make(map[string]struct{})
	for _, hit := range shortList {
		if len(out) >= limit {
			break
		}
		if hit.ID == "" {
			continue
		}
		name := strings.ToLower(hit.Filename())
		if name != "" {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
		}
		out = append(out, shortToFused(hit))
	}
	return out
}

// codeShortlist gathers code-file hits, short-channel hits first, then the
// fused order, one per basename.
func codeShortlist(shortList domain.RankList, fused []domain.FusedCandidate, cfg PoolConfig) []domain.FusedCandidate {
	var out []domain.FusedCandidate
	seen := make(map[string]struct{})

	keep := func(c domain.FusedCandidate) {
		if c.DocID == "" || len(out) >= cfg.CodeShortlistCap {
			return
		}
		name := strings.ToLower(c.Filename())
		if !hasCodeExtension(name, cfg.CodeExtensions) {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		out = append(out, c)
	}

	for _, hit := range shortList {
		keep(shortToFused(hit))
	}
	for _, c := range fused {
		keep(c)
	}
	return out
}

// shortToFused wraps a short-channel hit for pool entry. Raw channel scores
// are not on the reciprocal-rank scale, so the fused score stays zero; the
// raw score remains visible in ChannelScores.
func shortToFused(hit domain.Candidate) domain.FusedCandidate {
	return domain.FusedCandidate{
		DocID:         hit.ID,
		Text:          hit.Text,
		Source:        domain.ChannelShort,
		Meta:          cloneMeta(hit.Meta),
		ChannelScores: map[domain.Channel]float64{domain.ChannelShort: hit.Score},
	}
}

const snapshotPreviewRunes = 240

// BuildSnapshot records the pre-rerank pool for debugging. It reflects the
// pool, not the final list, so candidates the reranker discards stay
// inspectable.
func BuildSnapshot(pool []domain.FusedCandidate) []domain.SnapshotEntry {
	entries := make([]domain.SnapshotEntry, 0, len(pool))
	for _, c := range pool {
		entries = append(entries, domain.SnapshotEntry{
			ID:           c.DocID,
			Source:       c.Source,
			Filename:     c.Filename(),
			Score:        c.Score,
			TextPreview:  truncateRunes(c.Text, snapshotPreviewRunes),
			IngestRunID:  domain.MetaString(c.Meta, "ingest_run_id"),
			ChunkVariant: domain.MetaString(c.Meta, "chunk_variant"),
		})
	}
	return entries
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
