package usecase

import (
	"path"
	"strings"

	"github.com/kirillkom/evidence-engine/internal/core/domain"
)

// DiversityConfig bounds how much of the final list one file or directory
// may occupy.
type DiversityConfig struct {
	NoveltyPenalty float64
	BasenameCap    int
	DirectoryCap   int
	MaxDocs        int
}

// ApplyDiversity reshapes the ranked list so the context window is not
// swallowed by one file: repeat appearances of a basename decay the rank
// score before a re-sort, then hard caps drop overflow per basename and per
// directory, then the list truncates to MaxDocs.
func ApplyDiversity(ranked []domain.ScoredCandidate, cfg DiversityConfig) []domain.ScoredCandidate {
	if len(ranked) == 0 {
		return ranked
	}

	out := make([]domain.ScoredCandidate, len(ranked))
	copy(out, ranked)

	if cfg.NoveltyPenalty > 0 {
		seen := make(map[string]int)
		for i := range out {
			name := strings.ToLower(out[i].Filename())
			if name == "" {
				continue
			}
			repeats := seen[name]
			seen[name] = repeats + 1
			if repeats == 0 {
				continue
			}
			// Every repeat occurrence takes one novelty step, not a
			// compounding one.
			decay := 1.0 - cfg.NoveltyPenalty
			if out[i].RankedBy == domain.RankedByCrossEncoder {
				out[i].ScoreCE *= decay
			} else {
				out[i].Score *= decay
			}
		}
		sortScored(out)
	}

	if cfg.BasenameCap > 0 {
		out = capBy(out, cfg.BasenameCap, func(c *domain.ScoredCandidate) string {
			return strings.ToLower(c.Filename())
		})
	}
	if cfg.DirectoryCap > 0 {
		out = capBy(out, cfg.DirectoryCap, func(c *domain.ScoredCandidate) string {
			return candidateDirectory(c)
		})
	}

	if cfg.MaxDocs > 0 && len(out) > cfg.MaxDocs {
		out = out[:cfg.MaxDocs]
	}
	return out
}

// capBy keeps at most limit candidates per key, preserving order. Candidates
// with no key are never capped.
func capBy(ranked []domain.ScoredCandidate, limit int, key func(*domain.ScoredCandidate) string) []domain.ScoredCandidate {
	counts := make(map[string]int)
	out := ranked[:0:len(ranked)]
	for i := range ranked {
		k := key(&ranked[i])
		if k != "" {
			if counts[k] >= limit {
				continue
			}
			counts[k]++
		}
		out = append(out, ranked[i])
	}
	return out
}

func candidateDirectory(c *domain.ScoredCandidate) string {
	p := strings.ToLower(strings.ReplaceAll(c.FilePath(), "\\", "/"))
	if p == "" || !strings.Contains(p, "/") {
		return ""
	}
	return path.Dir(p)
}
