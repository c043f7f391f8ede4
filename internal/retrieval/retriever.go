package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/booktutor/internal/metrics"
	"github.com/xxxsen/booktutor/internal/model"
	appErr "github.com/xxxsen/booktutor/internal/pkg/errors"
	"github.com/xxxsen/booktutor/internal/vectorstore"
)

const (
	SourceUnknown      = "unknown"
	SourceSelectedText = "selected_text_context"
	SourceRelated      = "related_content"
)

type IEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Options struct {
	TopK                int
	SimilarityThreshold float64
	RecencyCeiling      float64
	RecencyScoreWeight  float64
	RecencyBoostWeight  float64
}

type Retriever struct {
	embedder IEmbedder
	store    vectorstore.Store
	opts     Options
}

func New(embedder IEmbedder, store vectorstore.Store, opts Options) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.RecencyCeiling <= 0 {
		opts.RecencyCeiling = 20
	}
	if opts.RecencyScoreWeight == 0 && opts.RecencyBoostWeight == 0 {
		opts.RecencyScoreWeight = 0.7
		opts.RecencyBoostWeight = 0.3
	}
	return &Retriever{embedder: embedder, store: store, opts: opts}
}

func (r *Retriever) Threshold() float64 {
	return r.opts.SimilarityThreshold
}

// RetrieveByQuery searches the whole corpus, or only chapterIDs when given.
func (r *Retriever) RetrieveByQuery(ctx context.Context, query string, chapterIDs []string, topK int) ([]model.RetrievedChunk, error) {
	var filter *vectorstore.Filter
	if len(chapterIDs) > 0 {
		filter = &vectorstore.Filter{Field: model.MetaChapterID, AnyOf: chapterIDs}
	}
	return r.searchText(ctx, query, r.limit(topK), filter, SourceUnknown)
}

func (r *Retriever) RetrieveBySelectedText(ctx context.Context, selectedText string, topK int) ([]model.RetrievedChunk, error) {
	return r.searchText(ctx, selectedText, r.limit(topK), nil, SourceSelectedText)
}

func (r *Retriever) RetrieveByChapter(ctx context.Context, chapterID, query string, topK int) ([]model.RetrievedChunk, error) {
	filter := &vectorstore.Filter{Field: model.MetaChapterID, AnyOf: []string{chapterID}}
	return r.searchText(ctx, query, r.limit(topK), filter, "chapter_"+chapterID)
}

// FindRelatedChunks returns neighbours of a stored chunk, excluding itself. An
// unknown chunk id yields no results.
func (r *Retriever) FindRelatedChunks(ctx context.Context, chunkID string, topK int) ([]model.RetrievedChunk, error) {
	topK = r.limit(topK)
	points, err := r.store.Retrieve(ctx, []string{chunkID})
	if err != nil {
		return nil, fmt.Errorf("retrieve chunk %s: %w: %w", chunkID, appErr.ErrUpstream, err)
	}
	if len(points) == 0 || len(points[0].Vector) == 0 {
		return []model.RetrievedChunk{}, nil
	}
	hits, err := r.search(ctx, points[0].Vector, topK+1, nil, SourceRelated)
	if err != nil {
		return nil, err
	}
	out := make([]model.RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		if h.ID == chunkID {
			continue
		}
		out = append(out, h)
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (r *Retriever) limit(topK int) int {
	if topK <= 0 {
		return r.opts.TopK
	}
	return topK
}

func (r *Retriever) searchText(ctx context.Context, text string, topK int, filter *vectorstore.Filter, fallbackSource string) ([]model.RetrievedChunk, error) {
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return r.search(ctx, vec, topK, filter, fallbackSource)
}

func (r *Retriever) search(ctx context.Context, vec []float32, topK int, filter *vectorstore.Filter, fallbackSource string) ([]model.RetrievedChunk, error) {
	hits, err := r.store.Search(ctx, vec, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w: %w", appErr.ErrUpstream, err)
	}
	out := make([]model.RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		score := clamp01(h.Score)
		if score < r.opts.SimilarityThreshold {
			continue
		}
		out = append(out, toChunk(h, score, fallbackSource))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	metrics.RetrievedChunks.Observe(float64(len(out)))
	logutil.GetLogger(ctx).Debug("retrieved chunks",
		zap.Int("hits", len(hits)),
		zap.Int("kept", len(out)),
		zap.Float64("threshold", r.opts.SimilarityThreshold))
	return out, nil
}

func toChunk(h vectorstore.ScoredPoint, score float64, fallbackSource string) model.RetrievedChunk {
	meta := make(map[string]interface{}, len(h.Payload))
	for k, v := range h.Payload {
		if k == model.MetaContent {
			continue
		}
		meta[k] = v
	}
	content, _ := model.MetaString(h.Payload, model.MetaContent)
	source, ok := model.MetaString(h.Payload, model.MetaSource)
	if !ok || source == "" {
		source = fallbackSource
	}
	index, _ := model.MetaInt(h.Payload, model.MetaChunkIndex)
	return model.RetrievedChunk{
		ID:         h.ID,
		Content:    content,
		Source:     source,
		Score:      score,
		Metadata:   meta,
		ChunkIndex: index,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
