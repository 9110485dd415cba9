package ports

import (
	"context"

	"github.com/kirillkom/evidence-engine/internal/core/domain"
)

// EvidenceRetriever is the inbound contract for evidence selection.
type EvidenceRetriever interface {
	Retrieve(ctx context.Context, question, tag string, limit int) (*domain.EvidenceResult, error)
}
