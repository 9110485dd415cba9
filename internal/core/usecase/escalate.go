package usecase

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/kirillkom/evidence-engine/internal/core/domain"
	"github.com/kirillkom/evidence-engine/internal/core/ports"
)

const (
	feedbackDocLimit  = 5
	feedbackTermLimit = 8
)

// Escalator widens recall on sparse result sets before fusion. Two moves:
// re-query the vector channel with a synthesized hypothetical passage, and
// re-query the lexical channel with feedback terms mined from the current
// best lexical hits. Both are best effort; a failed widening leaves the
// original lists untouched.
type Escalator struct {
	passages ports.PassageWriter
	searcher *ChannelSearcher
	logger   *slog.Logger
}

func NewEscalator(passages ports.PassageWriter, searcher *ChannelSearcher, logger *slog.Logger) *Escalator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Escalator{passages: passages, searcher: searcher, logger: logger}
}

// Widen appends escalation hits to the bm25 and vec lists in place when the
// combined lexical+vector hit count is below floor, or unconditionally for a
// cold-start query.
func (e *Escalator) Widen(ctx context.Context, question, lexicalQuery string, lists map[domain.Channel]domain.RankList, coldStart bool, floor, limit int) {
	if e == nil || e.searcher == nil {
		return
	}
	hits := len(lists[domain.ChannelBM25]) + len(lists[domain.ChannelVector])
	if !coldStart && hits >= floor {
		return
	}
	e.logger.Info("escalating_sparse_query", "hits", hits, "floor", floor, "cold_start", coldStart)

	if e.passages != nil {
		passage, err := e.passages.WritePassage(ctx, question)
		if err != nil {
			e.logger.Warn("hyde_passage_failed", "error", err)
		} else if strings.TrimSpace(passage) != "" {
			extra := e.searcher.Search(ctx, domain.ChannelVector, passage, limit)
			lists[domain.ChannelVector] = append(lists[domain.ChannelVector], extra...)
		}
	}

	terms := feedbackTerms(lists[domain.ChannelBM25])
	if len(terms) > 0 {
		widened := lexicalQuery + " " + strings.Join(terms, " ")
		extra := e.searcher.Search(ctx, domain.ChannelBM25, widened, limit)
		lists[domain.ChannelBM25] = append(lists[domain.ChannelBM25], extra...)
	}
}

// feedbackTerms extracts the most frequent non-stopword tokens from the top
// lexical hits, frequency descending with alphabetical tie-break.
func feedbackTerms(hits domain.RankList) []string {
	if len(hits) > feedbackDocLimit {
		hits = hits[:feedbackDocLimit]
	}

	freq := make(map[string]int)
	for _, hit := range hits {
		for _, token := range splitAlphaNumLower(hit.Text) {
			if len(token) < 3 || allDigits(token) || isStopword(token) {
				continue
			}
			freq[token]++
		}
	}
	if len(freq) == 0 {
		return nil
	}

	terms := make([]string, 0, len(freq))
	for token := range freq {
		terms = append(terms, token)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > feedbackTermLimit {
		terms = terms[:feedbackTermLimit]
	}
	return terms
}
