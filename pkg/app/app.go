package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mikeboe/research-analyst/pkg/clients"
	"github.com/mikeboe/research-analyst/pkg/config"
	"github.com/mikeboe/research-analyst/pkg/database"
	"github.com/mikeboe/research-analyst/pkg/embeddings"
	"github.com/mikeboe/research-analyst/pkg/graphstore"
	"github.com/mikeboe/research-analyst/pkg/ingest"
	"github.com/mikeboe/research-analyst/pkg/research"
	"github.com/mikeboe/research-analyst/pkg/research/tools"
	"github.com/mikeboe/research-analyst/pkg/retrieval"
	"github.com/mikeboe/research-analyst/pkg/vectorstore"
	"github.com/tmc/langchaingo/llms"
)

// App holds the shared adapters used by the CLI and the HTTP server.
type App struct {
	Config   *config.Config
	DB       *database.PostgresDB
	Vectors  *vectorstore.PGVectorStore
	Graph    *graphstore.Store
	Searcher *retrieval.PGVectorSearcher
	Querier  *retrieval.PGGraphQuerier
	Indexer  *ingest.Indexer
	Acquirer *ingest.WebAcquirer
	LLM      llms.Model
}

// New connects to Postgres, prepares every table and builds the Gemini clients.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	a, err := build(ctx, cfg, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, cfg *config.Config, db *database.PostgresDB) (*App, error) {
	if err := db.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	vectors, err := vectorstore.NewPGVectorStore(db.Pool, cfg.CollectionName)
	if err != nil {
		return nil, err
	}
	if err := vectors.EnsureTable(ctx, cfg.EmbeddingDimensions); err != nil {
		return nil, err
	}

	graph := graphstore.New(db.Pool)
	if err := graph.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey, cfg.EmbeddingDimensions)
	if err != nil {
		return nil, err
	}

	llm, err := clients.GoogleAi(ctx, cfg.GoogleApiKey, clients.ModelType(cfg.ReasoningModel))
	if err != nil {
		return nil, err
	}

	fetcher, err := tools.NewFetchWebTool(cfg.RawDataDir, cfg.FetchRateLimit, cfg.FetchTimeout)
	if err != nil {
		return nil, err
	}

	indexer := ingest.NewIndexer(vectors, embedder, cfg.ChunkSize, cfg.ChunkOverlap)
	acquirer := ingest.NewWebAcquirer(fetcher, indexer, cfg.WebResults)
	acquirer.Indexed = vectors
	if cfg.ArxivEnabled {
		acquirer.Papers = tools.NewArxivClient()
	}

	slog.Info("Stores ready", "collection", vectors.TableName(), "dimensions", cfg.EmbeddingDimensions)

	return &App{
		Config:   cfg,
		DB:       db,
		Vectors:  vectors,
		Graph:    graph,
		Searcher: retrieval.NewPGVectorSearcher(vectors, embedder),
		Querier:  retrieval.NewPGGraphQuerier(graph),
		Indexer:  indexer,
		Acquirer: acquirer,
		LLM:      llm,
	}, nil
}

// NewAnalyst returns a fresh pipeline driver. The caller owns it for one run.
func (a *App) NewAnalyst() *research.Analyst {
	analyst := research.NewAnalyst(a.Searcher, a.Querier, research.NewLLMSummarizer(a.LLM), a.Config.Thresholds(), a.Config.Options())
	analyst.Acquirer = a.Acquirer
	return analyst
}

// Close releases the database pool.
func (a *App) Close() {
	a.DB.Close()
}
