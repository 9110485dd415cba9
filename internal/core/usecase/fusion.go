package usecase

import (
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/kirillkom/evidence-engine/internal/config"
	"github.com/kirillkom/evidence-engine/internal/core/domain"
)

const (
	defaultRRFK         = 60
	shortQueryMaxLen    = 40
	demotedBasenameStep = -0.05
	codeExtensionStep   = 0.04
	codeContentStep     = 0.03
	journalStep         = -0.04
	filenameMatchStep   = 0.02
)

// FusionWeights maps channel to its RRF weight for one query.
type FusionWeights map[domain.Channel]float64

// ResolveWeights turns the profile's per-tag weight table into concrete
// weights for this query. Short or digit-bearing queries lean lexical;
// cold-start queries lean vector.
func ResolveWeights(profile *config.RankingProfile, tag, question string, coldStart bool, cfg config.Config) FusionWeights {
	base := profile.WeightsFor(tag)
	weights := FusionWeights{
		domain.ChannelBM25:    base.BM25,
		domain.ChannelVector:  base.Vector,
		domain.ChannelTitle:   base.Title,
		domain.ChannelSection: base.Section,
		domain.ChannelShort:   base.Short,
	}
	if len(question) < shortQueryMaxLen || containsDigit(question) {
		weights[domain.ChannelBM25] *= cfg.LexicalShortQueryBoost
	}
	if coldStart {
		weights[domain.ChannelVector] *= cfg.ColdStartVectorBoost
	}
	return weights
}

func (w FusionWeights) weightFor(channel domain.Channel) float64 {
	if weight, ok := w[channel]; ok {
		return weight
	}
	return 1.0
}

// FuseRRF merges the per-channel rank lists with weighted reciprocal rank
// fusion: each occurrence at 1-indexed rank r contributes weight/(K+r).
// Channels are walked in a fixed order so that provenance (the channel that
// first produced an id) and the output ordering are deterministic.
func FuseRRF(lists map[domain.Channel]domain.RankList, weights FusionWeights, rrfK int) []domain.FusedCandidate {
	if rrfK <= 0 {
		rrfK = defaultRRFK
	}

	channels := make([]string, 0, len(lists))
	for ch := range lists {
		channels = append(channels, string(ch))
	}
	sort.Strings(channels)

	acc := make(map[string]*domain.FusedCandidate)
	for _, name := range channels {
		channel := domain.Channel(name)
		weight := weights.weightFor(channel)
		for rank, candidate := range lists[channel] {
			if candidate.ID == "" {
				continue
			}
			fused, ok := acc[candidate.ID]
			if !ok {
				fused = &domain.FusedCandidate{
					DocID:         candidate.ID,
					Text:          candidate.Text,
					Source:        channel,
					Meta:          cloneMeta(candidate.Meta),
					ChannelScores: make(map[domain.Channel]float64, 2),
				}
				acc[candidate.ID] = fused
			} else {
				enrichFused(fused, candidate)
			}
			fused.Score += weight * (1.0 / float64(rrfK+rank+1))
			if raw, seen := fused.ChannelScores[channel]; !seen || candidate.Score > raw {
				fused.ChannelScores[channel] = candidate.Score
			}
		}
	}

	out := make([]domain.FusedCandidate, 0, len(acc))
	for _, fused := range acc {
		out = append(out, *fused)
	}
	sortFused(out)
	return out
}

func enrichFused(fused *domain.FusedCandidate, candidate domain.Candidate) {
	if fused.Text == "" && candidate.Text != "" {
		fused.Text = candidate.Text
	}
	for k, v := range candidate.Meta {
		if _, ok := fused.Meta[k]; !ok {
			fused.Meta[k] = v
		}
	}
}

func sortFused(list []domain.FusedCandidate) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Score != list[j].Score {
			return list[i].Score > list[j].Score
		}
		return list[i].DocID < list[j].DocID
	})
}

var ddlPattern = regexp.MustCompile(`(?i)\b(CREATE|ALTER)\s+(TABLE|INDEX|VIEW|MATERIALIZED)\b`)

// ApplyPriors multiplies each fused score by a small factor derived only
// from filename and text: directory priors, boilerplate demotion, a
// code/script/DDL content boost with a symmetric journal demotion, and the
// query filename pattern. The factor is clamped to 1±clamp before applying.
func ApplyPriors(fused []domain.FusedCandidate, profile *config.RankingProfile, clamp float64, pattern *regexp.Regexp) {
	if clamp <= 0 {
		return
	}
	for i := range fused {
		factor := priorFactor(&fused[i], profile, pattern)
		if factor > 1+clamp {
			factor = 1 + clamp
		}
		if factor < 1-clamp {
			factor = 1 - clamp
		}
		fused[i].Score *= factor
	}
	sortFused(fused)
}

func priorFactor(c *domain.FusedCandidate, profile *config.RankingProfile, pattern *regexp.Regexp) float64 {
	filePath := strings.ToLower(strings.ReplaceAll(c.FilePath(), "\\", "/"))
	basename := strings.ToLower(path.Base(filePath))

	factor := 1.0
	for _, dir := range sortedStringKeys(profile.DirectoryPriors) {
		if strings.Contains(filePath, dir) {
			factor *= profile.DirectoryPriors[dir]
		}
	}

	bonus := 0.0
	for _, demoted := range profile.DemotedBasenames {
		if basename == demoted {
			bonus += demotedBasenameStep
			break
		}
	}
	if hasCodeExtension(basename, profile.CodeExtensions) {
		bonus += codeExtensionStep
	}
	if looksLikeCode(c.Text) {
		bonus += codeContentStep
	}
	for _, journal := range profile.JournalBasenamePatterns {
		if strings.Contains(basename, journal) {
			bonus += journalStep
			break
		}
	}
	if pattern != nil && basename != "" && pattern.MatchString(basename) {
		bonus += filenameMatchStep
	}
	return factor * (1 + bonus)
}

func hasCodeExtension(basename string, extensions []string) bool {
	for _, ext := range extensions {
		if strings.HasSuffix(basename, ext) {
			return true
		}
	}
	return false
}

func looksLikeCode(text string) bool {
	return strings.Contains(text, "```") || ddlPattern.MatchString(text)
}
