package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/evidence-engine/internal/config"
	"github.com/kirillkom/evidence-engine/internal/core/ports"
	"github.com/kirillkom/evidence-engine/internal/core/usecase"
	"github.com/kirillkom/evidence-engine/internal/infrastructure/fusionhead"
	indexpg "github.com/kirillkom/evidence-engine/internal/infrastructure/index/postgres"
	"github.com/kirillkom/evidence-engine/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/evidence-engine/internal/infrastructure/queue/nats"
	"github.com/kirillkom/evidence-engine/internal/infrastructure/rerankcache"
	"github.com/kirillkom/evidence-engine/internal/infrastructure/resilience"
	"github.com/kirillkom/evidence-engine/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/evidence-engine/internal/observability/metrics"
)

type App struct {
	Config    config.Config
	Retriever ports.EvidenceRetriever
	Metrics   *metrics.HTTPServerMetrics

	closeFn func()
}

// New wires the retrieval pipeline: the Postgres full-text channels and the
// qdrant vector channel behind one composite index, ollama for embedding,
// reranking, and passage synthesis, and NATS for snapshot publishing. NATS
// and the fusion head are optional; the pipeline runs degraded without them.
func New(ctx context.Context, cfg config.Config, service string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	serverMetrics := metrics.NewHTTPServerMetrics(service)

	profile, err := config.LoadRankingProfile(cfg.RankingProfilePath)
	if err != nil {
		return nil, fmt.Errorf("load ranking profile: %w", err)
	}

	db, err := indexpg.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	chunkIndex := indexpg.NewChunkIndex(db)
	if err := chunkIndex.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, cfg.OllamaRerankModel)
	embedder := ollama.NewEmbedder(ollamaClient)
	scorer := ollama.NewScorer(ollamaClient)
	passages := ollama.NewPassageWriter(ollamaClient)

	vectorIndex := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, embedder)
	index := NewCompositeIndex(chunkIndex, vectorIndex)

	var head ports.FusionHead
	if cfg.FusionHeadEnabled {
		loaded, err := fusionhead.Load(cfg.FusionHeadCheckpointPath, cfg.FusionHeadFeatureSpecPath)
		if err != nil {
			logger.Warn("fusion_head_unavailable", "error", err)
		} else {
			head = loaded
		}
	}

	var publisher ports.SnapshotPublisher
	var closeNATS func()
	if cfg.NATSURL != "" {
		natsPublisher, err := nats.NewWithOptions(cfg.NATSURL, cfg.SnapshotSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
		})
		if err != nil {
			logger.Warn("snapshot_publisher_unavailable", "error", err)
		} else {
			publisher = natsPublisher
			closeNATS = natsPublisher.Close
		}
	}

	pipeline := serverMetrics.Pipeline(service)
	searcher := usecase.NewChannelSearcher(index, logger)
	searcher.SetObserver(pipeline)
	reranker := usecase.NewReranker(scorer, head, rerankcache.New(), logger, usecase.RerankConfig{
		Enabled:        cfg.RerankerEnabled,
		UseFusionHead:  head != nil,
		CodeExtensions: profile.CodeExtensions,
	})
	reranker.SetObserver(pipeline)

	retriever := usecase.NewRetrieveUseCase(
		usecase.NewQueryBuilder(profile),
		searcher,
		usecase.NewEscalator(passages, searcher, logger),
		reranker,
		publisher,
		profile,
		cfg,
		logger,
	)

	return &App{
		Config:    cfg,
		Retriever: retriever,
		Metrics:   serverMetrics,
		closeFn: func() {
			if closeNATS != nil {
				closeNATS()
			}
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
