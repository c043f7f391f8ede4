package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port             int               `json:"port"`
	Database         DatabaseConfig    `json:"database"`
	LogConfig        logger.LogConfig  `json:"log_config"`
	AI               AIConfig          `json:"ai"`
	Embedding        EmbeddingConfig   `json:"embedding"`
	VectorStore      VectorStoreConfig `json:"vector_store"`
	Indexer          IndexerConfig     `json:"indexer"`
	Retrieval        RetrievalConfig   `json:"retrieval"`
	Scoring          ScoringConfig     `json:"scoring"`
	Session          SessionConfig     `json:"session"`
	Jobs             JobsConfig        `json:"jobs"`
	Corpus           CorpusConfig      `json:"corpus"`
	CORSAllowlist    []string          `json:"cors_allowlist"`
	RateLimitSeconds int               `json:"rate_limit_seconds"`
	MetricsPath      string            `json:"metrics_path"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type AIProviderConfig struct {
	Name     string      `json:"name"`
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type AIConfig struct {
	Generators  []AIProviderConfig `json:"generators"`
	Embedders   []AIProviderConfig `json:"embedders"`
	Timeout     int                `json:"timeout"`
	Temperature *float64           `json:"temperature"` // nil means 0.3, an explicit 0 is kept
	MaxTokens   int                `json:"max_tokens"`
}

type EmbeddingConfig struct {
	Tokenizer       string `json:"tokenizer"`
	Encoding        string `json:"encoding"`
	MaxInputTokens  int    `json:"max_input_tokens"`
	Dimension       int    `json:"dimension"`
	CacheSize       int    `json:"cache_size"`
	CacheTTLMinutes int    `json:"cache_ttl_minutes"`
	DBCache         bool   `json:"db_cache"`
}

type VectorStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type IndexerConfig struct {
	ChunkSize     int   `json:"chunk_size"`
	ChunkOverlap  int   `json:"chunk_overlap"`
	StripMarkdown *bool `json:"strip_markdown"`
}

type RetrievalConfig struct {
	TopK                int     `json:"top_k"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	RecencyCeiling      float64 `json:"recency_ceiling"`
}

type ScoringConfig struct {
	RelevanceWeight     float64 `json:"relevance_weight"`
	SemanticWeight      float64 `json:"semantic_weight"`
	ValidationThreshold float64 `json:"validation_threshold"`
	RecencyScoreWeight  float64 `json:"recency_score_weight"`
	RecencyBoostWeight  float64 `json:"recency_boost_weight"`
	ValidateResponses   bool    `json:"validate_responses"`
}

type SessionConfig struct {
	ExpiryHours          int `json:"expiry_hours"`
	DefaultContextLength int `json:"default_context_length"`
	HistoryTurns         int `json:"history_turns"`
}

type JobsConfig struct {
	SessionCleanup           string `json:"session_cleanup"`
	EmbeddingCacheCleanup    string `json:"embedding_cache_cleanup"`
	Reindex                  string `json:"reindex"`
	EmbeddingCacheMaxAgeDays int    `json:"embedding_cache_max_age_days"`
}

type CorpusConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if len(cfg.AI.Generators) == 0 {
		return fmt.Errorf("ai.generators is required")
	}
	if len(cfg.AI.Embedders) == 0 {
		return fmt.Errorf("ai.embedders is required")
	}
	for i, item := range append(append([]AIProviderConfig{}, cfg.AI.Generators...), cfg.AI.Embedders...) {
		if strings.TrimSpace(item.Provider) == "" || strings.TrimSpace(item.Model) == "" {
			return fmt.Errorf("ai provider #%d requires provider and model", i)
		}
	}
	if cfg.AI.Timeout == 0 {
		cfg.AI.Timeout = 60
	}
	if cfg.AI.Temperature == nil {
		temperature := 0.3
		cfg.AI.Temperature = &temperature
	}
	if *cfg.AI.Temperature < 0 || *cfg.AI.Temperature > 2 {
		return fmt.Errorf("ai.temperature must be in [0, 2]")
	}
	if cfg.AI.MaxTokens == 0 {
		cfg.AI.MaxTokens = 1000
	}

	if cfg.Embedding.Tokenizer == "" {
		cfg.Embedding.Tokenizer = "word"
	}
	if cfg.Embedding.Encoding == "" {
		cfg.Embedding.Encoding = "cl100k_base"
	}
	if cfg.Embedding.MaxInputTokens == 0 {
		cfg.Embedding.MaxInputTokens = 8191
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = 1536
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "pgvector"
	}

	if cfg.Indexer.ChunkSize == 0 {
		cfg.Indexer.ChunkSize = 512
	}
	if cfg.Indexer.ChunkOverlap == 0 {
		cfg.Indexer.ChunkOverlap = 50
	}
	if cfg.Indexer.ChunkOverlap < 0 || cfg.Indexer.ChunkOverlap >= cfg.Indexer.ChunkSize {
		return fmt.Errorf("indexer.chunk_overlap must be in [0, chunk_size)")
	}
	if cfg.Indexer.StripMarkdown == nil {
		strip := true
		cfg.Indexer.StripMarkdown = &strip
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.SimilarityThreshold == 0 {
		cfg.Retrieval.SimilarityThreshold = 0.3
	}
	if cfg.Retrieval.SimilarityThreshold < 0 || cfg.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("retrieval.similarity_threshold must be in [0, 1]")
	}
	if cfg.Retrieval.RecencyCeiling == 0 {
		cfg.Retrieval.RecencyCeiling = 20
	}

	if cfg.Scoring.RelevanceWeight == 0 && cfg.Scoring.SemanticWeight == 0 {
		cfg.Scoring.RelevanceWeight = 0.6
		cfg.Scoring.SemanticWeight = 0.4
	}
	if cfg.Scoring.ValidationThreshold == 0 {
		cfg.Scoring.ValidationThreshold = 0.70
	}
	if cfg.Scoring.RecencyScoreWeight == 0 && cfg.Scoring.RecencyBoostWeight == 0 {
		cfg.Scoring.RecencyScoreWeight = 0.7
		cfg.Scoring.RecencyBoostWeight = 0.3
	}

	if cfg.Session.ExpiryHours == 0 {
		cfg.Session.ExpiryHours = 24
	}
	if cfg.Session.DefaultContextLength == 0 {
		cfg.Session.DefaultContextLength = 5
	}
	if cfg.Session.HistoryTurns == 0 {
		cfg.Session.HistoryTurns = 3
	}

	if cfg.Jobs.SessionCleanup == "" {
		cfg.Jobs.SessionCleanup = "0 * * * *"
	}
	if cfg.Jobs.EmbeddingCacheCleanup == "" {
		cfg.Jobs.EmbeddingCacheCleanup = "30 3 * * *"
	}
	if cfg.Jobs.EmbeddingCacheMaxAgeDays == 0 {
		cfg.Jobs.EmbeddingCacheMaxAgeDays = 30
	}

	if cfg.Corpus.Type == "" {
		cfg.Corpus.Type = "local"
	}
	switch cfg.Corpus.Type {
	case "local", "s3":
	default:
		return fmt.Errorf("corpus.type must be local or s3")
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	return nil
}
