package bootstrap

import (
	"context"

	"github.com/kirillkom/evidence-engine/internal/core/domain"
	"github.com/kirillkom/evidence-engine/internal/core/ports"
)

// TextIndex is the full-text backend contract: the generic mode route plus
// the four named text channels.
type TextIndex interface {
	ports.ChannelIndex
	ports.LexicalRoute
	ports.TitleRoute
	ports.SectionRoute
	ports.ShortRoute
}

// VectorBackend is the dense/hybrid backend contract.
type VectorBackend interface {
	ports.VectorRoute
	ports.HybridRoute
}

// CompositeIndex joins the Postgres full-text routes and the qdrant vector
// routes into the single index the channel searcher probes.
type CompositeIndex struct {
	text   TextIndex
	vector VectorBackend
}

func NewCompositeIndex(text TextIndex, vector VectorBackend) *CompositeIndex {
	return &CompositeIndex{text: text, vector: vector}
}

// Search routes the vector family to the vector backend and everything else
// to the full-text backend.
func (c *CompositeIndex) Search(ctx context.Context, channel domain.Channel, query string, limit int) ([]domain.RawRow, error) {
	switch channel {
	case domain.ChannelVector:
		return c.vector.SearchVector(ctx, query, limit)
	case domain.ChannelHybrid:
		return c.vector.SearchHybrid(ctx, query, limit)
	default:
		return c.text.Search(ctx, channel, query, limit)
	}
}

func (c *CompositeIndex) SearchLexical(ctx context.Context, query string, limit int) ([]domain.RawRow, error) {
	return c.text.SearchLexical(ctx, query, limit)
}

func (c *CompositeIndex) SearchTitles(ctx context.Context, query string, limit int) ([]domain.RawRow, error) {
	return c.text.SearchTitles(ctx, query, limit)
}

func (c *CompositeIndex) SearchSections(ctx context.Context, query string, limit int) ([]domain.RawRow, error) {
	return c.text.SearchSections(ctx, query, limit)
}

func (c *CompositeIndex) SearchShort(ctx context.Context, query string, limit int) ([]domain.RawRow, error) {
	return c.text.SearchShort(ctx, query, limit)
}

func (c *CompositeIndex) SearchVector(ctx context.Context, query string, limit int) ([]domain.RawRow, error) {
	return c.vector.SearchVector(ctx, query, limit)
}

func (c *CompositeIndex) SearchHybrid(ctx context.Context, query string, limit int) ([]domain.RawRow, error) {
	return c.vector.SearchHybrid(ctx, query, limit)
}

var (
	_ ports.ChannelIndex = (*CompositeIndex)(nil)
	_ ports.LexicalRoute = (*CompositeIndex)(nil)
	_ ports.VectorRoute  = (*CompositeIndex)(nil)
	_ ports.HybridRoute  = (*CompositeIndex)(nil)
)
