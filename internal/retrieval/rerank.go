package retrieval

import (
	"math"
	"sort"
	"strings"

	"github.com/xxxsen/booktutor/internal/model"
)

type RerankPolicy int

const (
	RerankScoreOnly RerankPolicy = iota
	RerankRecencyAware
	RerankDiversityAware
)

// ParseRerankPolicy maps unknown names to RerankScoreOnly.
func ParseRerankPolicy(s string) RerankPolicy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "recency_aware":
		return RerankRecencyAware
	case "diversity_aware":
		return RerankDiversityAware
	}
	return RerankScoreOnly
}

func (p RerankPolicy) String() string {
	switch p {
	case RerankRecencyAware:
		return "recency_aware"
	case RerankDiversityAware:
		return "diversity_aware"
	}
	return "score_only"
}

// Rerank reorders results without changing their scores. The query is
// accepted for policies that may need it and is unused today.
func (r *Retriever) Rerank(query string, results []model.RetrievedChunk, policy RerankPolicy) []model.RetrievedChunk {
	switch policy {
	case RerankRecencyAware:
		return r.rerankRecency(results)
	case RerankDiversityAware:
		return rerankDiversity(results)
	case RerankScoreOnly:
		return results
	}
	return results
}

func (r *Retriever) recencyBoost(chunk model.RetrievedChunk) float64 {
	n, ok := model.MetaInt(chunk.Metadata, model.MetaChapterNumber)
	if !ok || n <= 0 {
		return 0
	}
	return math.Min(float64(n)/r.opts.RecencyCeiling, 1)
}

func (r *Retriever) rerankRecency(results []model.RetrievedChunk) []model.RetrievedChunk {
	type scored struct {
		adjusted float64
		chunk    model.RetrievedChunk
	}
	items := make([]scored, 0, len(results))
	for _, c := range results {
		items = append(items, scored{
			adjusted: r.opts.RecencyScoreWeight*c.Score + r.opts.RecencyBoostWeight*r.recencyBoost(c),
			chunk:    c,
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].adjusted > items[j].adjusted })
	out := make([]model.RetrievedChunk, 0, len(items))
	for _, it := range items {
		out = append(out, it.chunk)
	}
	return out
}

// rerankDiversity takes the first chunk of each distinct chapter until half
// the slots are filled, then backfills in original order.
func rerankDiversity(results []model.RetrievedChunk) []model.RetrievedChunk {
	half := len(results) / 2
	picked := make([]bool, len(results))
	seen := map[string]struct{}{}
	out := make([]model.RetrievedChunk, 0, len(results))
	for i, c := range results {
		chapter, _ := model.MetaString(c.Metadata, model.MetaChapterID)
		if _, ok := seen[chapter]; ok {
			continue
		}
		seen[chapter] = struct{}{}
		picked[i] = true
		out = append(out, c)
		if len(out) >= half {
			break
		}
	}
	for i, c := range results {
		if len(out) >= len(results) {
			break
		}
		if !picked[i] {
			out = append(out, c)
		}
	}
	return out
}
