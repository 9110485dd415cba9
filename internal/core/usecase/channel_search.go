package usecase

import (
	"context"
	"log/slog"
	"path"
	"strings"

	"github.com/kirillkom/evidence-engine/internal/core/domain"
	"github.com/kirillkom/evidence-engine/internal/core/ports"
)

// ChannelSearcher resolves one channel query against whichever search routes
// the storage backend actually exposes. Resolution order: channel-specific
// named route, generic route with a mode parameter, family alias route,
// last-resort generic route with no mode. The first strategy returning rows
// wins; errors and empty results advance to the next strategy; exhausting
// every strategy yields an empty rank list, never an error.
type ChannelSearcher struct {
	index    ports.ChannelIndex
	logger   *slog.Logger
	observer ports.PipelineObserver
}

func NewChannelSearcher(index ports.ChannelIndex, logger *slog.Logger) *ChannelSearcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelSearcher{index: index, logger: logger}
}

func (s *ChannelSearcher) SetObserver(observer ports.PipelineObserver) {
	s.observer = observer
}

type searchStrategy struct {
	name string
	run  func(ctx context.Context, query string, limit int) ([]domain.RawRow, error)
}

func (s *ChannelSearcher) Search(ctx context.Context, channel domain.Channel, query string, limit int) domain.RankList {
	if s == nil || s.index == nil || strings.TrimSpace(query) == "" || limit <= 0 {
		return nil
	}

	for _, strategy := range s.strategies(channel) {
		rows, err := strategy.run(ctx, query, limit)
		if err != nil {
			s.logger.Debug("channel_strategy_failed",
				"channel", string(channel),
				"strategy", strategy.name,
				"error", err,
			)
			continue
		}
		if len(rows) == 0 {
			continue
		}
		if list := normalizeRows(channel, rows, limit); len(list) > 0 {
			if s.observer != nil {
				s.observer.ChannelSearched(string(channel), strategy.name, len(list))
			}
			return list
		}
	}
	if s.observer != nil {
		s.observer.ChannelSearched(string(channel), "none", 0)
	}
	return nil
}

func (s *ChannelSearcher) strategies(channel domain.Channel) []searchStrategy {
	var out []searchStrategy

	if named, ok := s.namedRoute(channel); ok {
		out = append(out, named)
	}

	out = append(out, searchStrategy{
		name: "mode",
		run: func(ctx context.Context, query string, limit int) ([]domain.RawRow, error) {
			return s.index.Search(ctx, channel, query, limit)
		},
	})

	if alias, ok := s.aliasRoute(channel); ok {
		out = append(out, alias)
	}

	out = append(out, searchStrategy{
		name: "generic",
		run: func(ctx context.Context, query string, limit int) ([]domain.RawRow, error) {
			return s.index.Search(ctx, "", query, limit)
		},
	})
	return out
}

func (s *ChannelSearcher) namedRoute(channel domain.Channel) (searchStrategy, bool) {
	switch channel {
	case domain.ChannelBM25:
		if r, ok := s.index.(ports.LexicalRoute); ok {
			return searchStrategy{name: "named", run: r.SearchLexical}, true
		}
	case domain.ChannelVector:
		if r, ok := s.index.(ports.VectorRoute); ok {
			return searchStrategy{name: "named", run: r.SearchVector}, true
		}
	case domain.ChannelTitle:
		if r, ok := s.index.(ports.TitleRoute); ok {
			return searchStrategy{name: "named", run: r.SearchTitles}, true
		}
	case domain.ChannelSection:
		if r, ok := s.index.(ports.SectionRoute); ok {
			return searchStrategy{name: "named", run: r.SearchSections}, true
		}
	case domain.ChannelShort:
		if r, ok := s.index.(ports.ShortRoute); ok {
			return searchStrategy{name: "named", run: r.SearchShort}, true
		}
	case domain.ChannelHybrid:
		if r, ok := s.index.(ports.HybridRoute); ok {
			return searchStrategy{name: "named", run: r.SearchHybrid}, true
		}
	}
	return searchStrategy{}, false
}

func (s *ChannelSearcher) aliasRoute(channel domain.Channel) (searchStrategy, bool) {
	switch channel {
	case domain.ChannelBM25:
		if r, ok := s.index.(ports.KeywordRoute); ok {
			return searchStrategy{name: "alias", run: r.SearchKeyword}, true
		}
	case domain.ChannelVector, domain.ChannelHybrid:
		if r, ok := s.index.(ports.SemanticRoute); ok {
			return searchStrategy{name: "alias", run: r.SearchSemantic}, true
		}
	case domain.ChannelTitle, domain.ChannelSection, domain.ChannelShort:
		if r, ok := s.index.(ports.HeadingRoute); ok {
			return searchStrategy{name: "alias", run: r.SearchHeadings}, true
		}
	}
	return searchStrategy{}, false
}

func normalizeRows(channel domain.Channel, rows []domain.RawRow, limit int) domain.RankList {
	list := make(domain.RankList, 0, len(rows))
	for _, row := range rows {
		candidate, ok := normalizeRow(channel, row)
		if !ok {
			continue
		}
		list = append(list, candidate)
		if len(list) == limit {
			break
		}
	}
	return list
}

var (
	idFieldKeys    = []string{"id", "doc_id", "chunk_id", "document_id", "_id", "key"}
	textFieldKeys  = []string{"text", "content", "chunk", "body", "snippet", "passage"}
	scoreFieldKeys = []string{"score", "rank_score", "similarity", "relevance"}
)

// normalizeRow collapses the three supported row shapes into one Candidate.
// Rows with no derivable id and no text are dropped; missing ids fall back
// to a content hash so the id stays stable across runs.
func normalizeRow(channel domain.Channel, row domain.RawRow) (domain.Candidate, bool) {
	switch row.Kind {
	case domain.RowTuple:
		id := row.ID
		if id == "" {
			if strings.TrimSpace(row.Text) == "" {
				return domain.Candidate{}, false
			}
			id = domain.ContentHashID(row.Text)
		}
		meta := cloneMeta(row.Meta)
		propagateFilename(meta)
		return domain.Candidate{ID: id, Score: row.Score, Text: row.Text, Channel: channel, Meta: meta}, true

	case domain.RowText:
		if strings.TrimSpace(row.Raw) == "" {
			return domain.Candidate{}, false
		}
		return domain.Candidate{
			ID:      domain.ContentHashID(row.Raw),
			Text:    row.Raw,
			Channel: channel,
			Meta:    map[string]any{},
		}, true

	case domain.RowFields:
		if len(row.Fields) == 0 {
			return domain.Candidate{}, false
		}
		id := firstStringField(row.Fields, idFieldKeys)
		text := firstStringField(row.Fields, textFieldKeys)
		score := firstFloatField(row.Fields, scoreFieldKeys)
		if id == "" {
			if strings.TrimSpace(text) == "" {
				return domain.Candidate{}, false
			}
			id = domain.ContentHashID(text)
		}
		meta := metaFromFields(row.Fields)
		propagateFilename(meta)
		return domain.Candidate{ID: id, Score: score, Text: text, Channel: channel, Meta: meta}, true
	}
	return domain.Candidate{}, false
}

func firstStringField(fields map[string]any, keys []string) string {
	for _, key := range keys {
		if s, ok := fields[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func firstFloatField(fields map[string]any, keys []string) float64 {
	for _, key := range keys {
		if f, ok := toFloat(fields[key]); ok {
			return f
		}
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// metaFromFields keeps every field that is not the id/score/text the
// candidate was built from, so provenance keys like ingest_run_id and
// chunk_variant survive normalization.
func metaFromFields(fields map[string]any) map[string]any {
	consumed := make(map[string]struct{}, len(idFieldKeys)+len(textFieldKeys)+len(scoreFieldKeys))
	for _, keys := range [][]string{idFieldKeys, textFieldKeys, scoreFieldKeys} {
		for _, k := range keys {
			consumed[k] = struct{}{}
		}
	}

	meta := make(map[string]any, len(fields))
	for k, v := range fields {
		if _, ok := consumed[k]; ok {
			continue
		}
		meta[k] = v
	}
	return meta
}

// propagateFilename mirrors the filename into the flat key and into the
// nested meta/metadata sub-maps downstream consumers read.
func propagateFilename(meta map[string]any) {
	if meta == nil {
		return
	}
	name := domain.MetaString(meta, "filename")
	if name == "" {
		if p := domain.MetaString(meta, "file_path"); p != "" {
			name = path.Base(p)
		}
	}
	if name == "" {
		return
	}

	meta["filename"] = name
	for _, nested := range []string{"meta", "metadata"} {
		if m, ok := meta[nested].(map[string]any); ok {
			m["filename"] = name
		}
	}
}

func cloneMeta(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
