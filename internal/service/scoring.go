package service

import (
	"math"

	"github.com/xxxsen/booktutor/internal/model"
)

// ConfidenceWeights blend average chunk relevance with query/response
// semantic similarity. They are expected to sum to 1.
type ConfidenceWeights struct {
	Relevance float64
	Semantic  float64
}

type ScoringPolicy struct {
	Weights             ConfidenceWeights
	ValidationThreshold float64
}

func DefaultScoringPolicy() ScoringPolicy {
	return ScoringPolicy{
		Weights:             ConfidenceWeights{Relevance: 0.6, Semantic: 0.4},
		ValidationThreshold: 0.70,
	}
}

// AverageRelevance is the mean chunk score, 0 for no chunks.
func AverageRelevance(chunks []model.RetrievedChunk) float64 {
	if len(chunks) == 0 {
		return 0
	}
	var sum float64
	for _, c := range chunks {
		sum += c.Score
	}
	return sum / float64(len(chunks))
}

func (p ScoringPolicy) SimpleConfidence(chunks []model.RetrievedChunk) float64 {
	return math.Min(AverageRelevance(chunks), 1)
}

func (p ScoringPolicy) BlendedConfidence(avgRelevance, semantic float64) float64 {
	v := p.Weights.Relevance*avgRelevance + p.Weights.Semantic*semantic
	return math.Max(0, math.Min(v, 1))
}

func (p ScoringPolicy) Accepts(confidence float64) bool {
	return confidence >= p.ValidationThreshold
}
