package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/booktutor/internal/ai"
	"github.com/xxxsen/booktutor/internal/model"
	"github.com/xxxsen/booktutor/internal/pkg/timeutil"
)

type ICacheRepo interface {
	GetMany(ctx context.Context, modelName string, contentHashes []string) (map[string][]float32, error)
	Save(ctx context.Context, item *model.EmbeddingCache) error
}

func WrapDBCacheToEmbedder(e ai.IEmbedder, cacheRepo ICacheRepo) ai.IEmbedder {
	if e == nil || cacheRepo == nil {
		return e
	}
	return &dbEmbedder{next: e, repo: cacheRepo}
}

type dbEmbedder struct {
	next ai.IEmbedder
	repo ICacheRepo
}

func (d *dbEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if d == nil || d.next == nil {
		return nil, nil
	}
	modelName := ""
	hashes := make([]string, len(texts))
	for i, text := range texts {
		_, hashes[i], modelName = buildCacheKey(d.next.ModelName(), text)
	}
	cached, err := d.repo.GetMany(ctx, modelName, hashes)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if values, ok := cached[hashes[i]]; ok {
			out[i] = values
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if hits := len(texts) - len(missIdx); hits > 0 {
		logutil.GetLogger(ctx).Debug("embedding cache hit (db)", zap.Int("hits", hits), zap.Int("total", len(texts)))
	}
	if len(missIdx) == 0 {
		return out, nil
	}
	res, err := d.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	now := timeutil.NowUnixMilli()
	for j, idx := range missIdx {
		out[idx] = res[j]
		if err := d.repo.Save(ctx, &model.EmbeddingCache{
			ModelName:   modelName,
			ContentHash: hashes[idx],
			Embedding:   res[j],
			Ctime:       now,
		}); err != nil {
			logutil.GetLogger(ctx).Warn("failed to cache embedding", zap.Error(err))
		}
	}
	return out, nil
}

func (d *dbEmbedder) ModelName() string {
	if d == nil || d.next == nil {
		return ""
	}
	return d.next.ModelName()
}

func buildCacheKey(modelName, text string) (string, string, string) {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		modelName = "unknown"
	}
	hash := sha256.Sum256([]byte(text))
	contentHash := hex.EncodeToString(hash[:])
	return "embed:" + modelName + ":" + contentHash, contentHash, modelName
}
