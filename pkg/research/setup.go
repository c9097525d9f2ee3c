package research

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mikeboe/research-canvas/pkg/checkpoint"
	"github.com/mikeboe/research-canvas/pkg/clients"
	"github.com/mikeboe/research-canvas/pkg/config"
	"github.com/mikeboe/research-canvas/pkg/database"
	"github.com/mikeboe/research-canvas/pkg/embeddings"
	"github.com/mikeboe/research-canvas/pkg/metrics"
	"github.com/mikeboe/research-canvas/pkg/research/tools"
	"github.com/mikeboe/research-canvas/pkg/sourceindex"
	"github.com/mikeboe/research-canvas/pkg/splitter"
	"github.com/mikeboe/research-canvas/pkg/vectorstore"
)

// Runtime is an engine together with the resources it was built on.
type Runtime struct {
	Engine *Engine
	// DB is nil unless DATABASE_URL is set.
	DB *database.PostgresDB
	// Index is nil unless source indexing is enabled.
	Index *sourceindex.Index

	closers []func()
}

// Close releases the database and checkpoint connections.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// NewRuntime builds the engine and its dependencies from configuration.
// Metrics are registered with reg when it is not nil.
func NewRuntime(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*Runtime, error) {
	rt := &Runtime{}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	decisionModel := cfg.FastModel
	if decisionModel == "" {
		decisionModel = cfg.ReasoningModel
	}
	model, err := clients.New(ctx, cfg, decisionModel)
	if err != nil {
		return nil, fmt.Errorf("failed to init LLM: %w", err)
	}
	writer, err := clients.New(ctx, cfg, cfg.ReasoningModel)
	if err != nil {
		return nil, fmt.Errorf("failed to init LLM: %w", err)
	}

	if cfg.DatabaseURL != "" {
		db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		rt.DB = db
		rt.closers = append(rt.closers, db.Close)
		if err := db.InitSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	store, err := rt.checkpointStore(cfg)
	if err != nil {
		return nil, err
	}

	deps := tools.Deps{
		Model:          writer,
		MaxResults:     cfg.SearchMaxResults,
		ScoreThreshold: cfg.SearchScoreThreshold,
	}
	switch cfg.SearchProvider {
	case "", "tavily":
		tavily := tools.NewTavilyClient(cfg.TavilyApiKey)
		deps.Searcher = tavily
		deps.Extractor = tavily
	case "arxiv":
		deps.Searcher = tools.NewArxivSearcher()
		deps.Extractor = tools.NewPageExtractor(tools.NewMistralOCR(cfg.MistralApiKey))
	default:
		return nil, fmt.Errorf("unknown search provider: %s", cfg.SearchProvider)
	}

	if cfg.IndexSources {
		if rt.DB == nil {
			return nil, fmt.Errorf("INDEX_SOURCES requires DATABASE_URL")
		}
		idx, err := newSourceIndex(ctx, cfg, rt.DB)
		if err != nil {
			return nil, err
		}
		rt.Index = idx
		deps.Index = idx
	}

	prompts, err := LoadPrompts(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}
	engine, err := NewEngine(model, tools.NewRegistry(deps), store, Config{
		MaxSteps: cfg.MaxSteps,
		Prompts:  prompts,
	})
	if err != nil {
		return nil, err
	}
	engine.Metrics = metrics.New(reg)
	rt.Engine = engine

	slog.Info("Research engine ready",
		"llm", cfg.LLMProvider,
		"search", cfg.SearchProvider,
		"checkpoints", cfg.CheckpointBackend,
		"index", rt.Index != nil)
	ok = true
	return rt, nil
}

func (rt *Runtime) checkpointStore(cfg *config.Config) (checkpoint.Store, error) {
	switch cfg.CheckpointBackend {
	case "", "memory":
		return checkpoint.NewMemoryStore(), nil
	case "redis":
		store, err := checkpoint.NewRedisStore(cfg.RedisURL,
			checkpoint.WithTTL(time.Duration(cfg.CheckpointTTLHours)*time.Hour))
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = store.Close() })
		return store, nil
	case "postgres":
		if rt.DB == nil {
			return nil, fmt.Errorf("postgres checkpoints require DATABASE_URL")
		}
		return checkpoint.NewPostgresStore(rt.DB), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend: %s", cfg.CheckpointBackend)
	}
}

func newSourceIndex(ctx context.Context, cfg *config.Config, db *database.PostgresDB) (*sourceindex.Index, error) {
	vs, err := vectorstore.NewPGVectorStore(db.Pool, cfg.CollectionName)
	if err != nil {
		return nil, err
	}
	if err := db.InitSourceIndex(ctx, cfg.CollectionName, embeddings.DefaultDimension); err != nil {
		return nil, err
	}
	embedder, err := embeddings.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to init embedder: %w", err)
	}
	return sourceindex.New(embedder, splitter.NewRecursiveCharacterTextSplitter(cfg.ChunkSize, cfg.ChunkOverlap), vs), nil
}
