package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/booktutor/internal/ai"
	"github.com/xxxsen/booktutor/internal/config"
	"github.com/xxxsen/booktutor/internal/db"
	"github.com/xxxsen/booktutor/internal/embedcache"
	"github.com/xxxsen/booktutor/internal/embedding"
	"github.com/xxxsen/booktutor/internal/filestore"
	"github.com/xxxsen/booktutor/internal/indexer"
	"github.com/xxxsen/booktutor/internal/repo"
	"github.com/xxxsen/booktutor/internal/retrieval"
	"github.com/xxxsen/booktutor/internal/service"
	"github.com/xxxsen/booktutor/internal/vectorstore"
)

type app struct {
	cfg       *config.Config
	db        *sql.DB
	cacheRepo *repo.EmbeddingCacheRepo
	vectors   vectorstore.Store
	indexer   *indexer.Indexer
	retriever *retrieval.Retriever
	rag       *service.RAGService
	feedback  *service.FeedbackService
	chapters  *service.ChapterService
	importer  *service.ImportService
}

func buildApp(cfg *config.Config) (*app, error) {
	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	a, err := wire(cfg, conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return a, nil
}

func wire(cfg *config.Config, conn *sql.DB) (*app, error) {
	generator, err := ai.BuildGenerator(cfg.AI.Generators)
	if err != nil {
		return nil, err
	}
	baseEmbedder, err := ai.BuildEmbedder(cfg.AI.Embedders)
	if err != nil {
		return nil, err
	}
	manager := ai.NewManager(generator, baseEmbedder, ai.ManagerConfig{Timeout: cfg.AI.Timeout})

	cacheRepo := repo.NewEmbeddingCacheRepo(conn)
	var embedder ai.IEmbedder = manager
	if cfg.Embedding.DBCache {
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, cacheRepo)
	}
	embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.Embedding.CacheSize, time.Duration(cfg.Embedding.CacheTTLMinutes)*time.Minute)

	tokenizer, err := embedding.NewTokenizer(cfg.Embedding.Tokenizer, cfg.Embedding.Encoding)
	if err != nil {
		return nil, fmt.Errorf("init tokenizer: %w", err)
	}
	gateway := embedding.NewGateway(embedder, tokenizer, cfg.Embedding.MaxInputTokens)

	vectors, err := buildVectorStore(cfg.VectorStore, conn)
	if err != nil {
		return nil, fmt.Errorf("init vector store: %w", err)
	}

	chapterRepo := repo.NewChapterRepo(conn)
	chunkRepo := repo.NewChunkRepo(conn)
	idx := indexer.New(chapterRepo, chunkRepo, chunkRepo, gateway, vectors, indexer.Options{
		ChunkSize:     cfg.Indexer.ChunkSize,
		ChunkOverlap:  cfg.Indexer.ChunkOverlap,
		StripMarkdown: *cfg.Indexer.StripMarkdown,
	})
	retriever := retrieval.New(gateway, vectors, retrieval.Options{
		TopK:                cfg.Retrieval.TopK,
		SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
		RecencyCeiling:      cfg.Retrieval.RecencyCeiling,
		RecencyScoreWeight:  cfg.Scoring.RecencyScoreWeight,
		RecencyBoostWeight:  cfg.Scoring.RecencyBoostWeight,
	})

	interactions := repo.NewInteractionRepo(conn)
	rag := service.NewRAGService(repo.NewSessionRepo(conn), interactions, retriever, manager, gateway, service.RAGConfig{
		TopK:                 cfg.Retrieval.TopK,
		Temperature:          *cfg.AI.Temperature,
		MaxTokens:            cfg.AI.MaxTokens,
		DefaultContextLength: cfg.Session.DefaultContextLength,
		HistoryTurns:         cfg.Session.HistoryTurns,
		SessionExpiryHours:   cfg.Session.ExpiryHours,
		ValidateResponses:    cfg.Scoring.ValidateResponses,
		Scoring: service.ScoringPolicy{
			Weights: service.ConfidenceWeights{
				Relevance: cfg.Scoring.RelevanceWeight,
				Semantic:  cfg.Scoring.SemanticWeight,
			},
			ValidationThreshold: cfg.Scoring.ValidationThreshold,
		},
	})
	chapters := service.NewChapterService(chapterRepo, repo.NewProgressRepo(conn), idx)

	a := &app{
		cfg:       cfg,
		db:        conn,
		cacheRepo: cacheRepo,
		vectors:   vectors,
		indexer:   idx,
		retriever: retriever,
		rag:       rag,
		feedback:  service.NewFeedbackService(interactions, repo.NewFeedbackRepo(conn)),
		chapters:  chapters,
	}
	source, err := filestore.New(cfg.Corpus)
	if err != nil {
		logutil.GetLogger(context.Background()).Warn("corpus source unavailable, import disabled", zap.Error(err))
	} else {
		a.importer = service.NewImportService(source, chapters)
	}
	return a, nil
}

// buildVectorStore shares conn with the pgvector backend; other backends come
// from the registry.
func buildVectorStore(cfg config.VectorStoreConfig, conn *sql.DB) (vectorstore.Store, error) {
	if cfg.Type == "pgvector" {
		collection := ""
		if m, ok := cfg.Data.(map[string]interface{}); ok {
			collection, _ = m["collection"].(string)
		}
		return vectorstore.NewPGVectorStore(conn, collection), nil
	}
	return vectorstore.New(cfg.Type, cfg.Data)
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}
