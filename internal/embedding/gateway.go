package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/booktutor/internal/ai"
	appErr "github.com/xxxsen/booktutor/internal/pkg/errors"
)

const DefaultMaxInputTokens = 8191

type Gateway struct {
	embedder  ai.IEmbedder
	tokenizer Tokenizer
	maxTokens int
}

func NewGateway(embedder ai.IEmbedder, tokenizer Tokenizer, maxInputTokens int) *Gateway {
	if tokenizer == nil {
		tokenizer = WordTokenizer{}
	}
	if maxInputTokens <= 0 {
		maxInputTokens = DefaultMaxInputTokens
	}
	return &Gateway{embedder: embedder, tokenizer: tokenizer, maxTokens: maxInputTokens}
}

func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

// EmbedBatch embeds all texts in one backend call. The whole batch fails
// together.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if g.embedder == nil {
		return nil, fmt.Errorf("embedder not configured: %w", appErr.ErrUpstream)
	}
	inputs := make([]string, 0, len(texts))
	for i, text := range texts {
		inputs = append(inputs, g.truncate(ctx, i, text))
	}
	res, err := g.embedder.Embed(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("embed %d texts: %w: %w", len(texts), appErr.ErrUpstream, err)
	}
	if len(res) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts: %w", len(res), len(texts), appErr.ErrUpstream)
	}
	return res, nil
}

func (g *Gateway) truncate(ctx context.Context, index int, text string) string {
	pieces := g.tokenizer.Split(text)
	if len(pieces) <= g.maxTokens {
		return text
	}
	logutil.GetLogger(ctx).Warn("embedding input truncated",
		zap.Int("index", index),
		zap.Int("tokens", len(pieces)),
		zap.Int("max_tokens", g.maxTokens),
		zap.String("tokenizer", g.tokenizer.Name()),
	)
	return strings.ToValidUTF8(strings.Join(pieces[:g.maxTokens], ""), "")
}

func (g *Gateway) CountTokens(text string) int {
	return len(g.tokenizer.Split(text))
}

func (g *Gateway) ModelName() string {
	if g.embedder == nil {
		return ""
	}
	return g.embedder.ModelName()
}

// ChunkByTokens cuts text into windows of maxTokens tokens, each starting
// maxTokens-overlapTokens tokens after the previous one. The last window may
// be shorter. Whitespace-only windows are dropped.
func (g *Gateway) ChunkByTokens(text string, maxTokens, overlapTokens int) ([]string, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("max_tokens must be positive: %w", appErr.ErrInvalid)
	}
	if overlapTokens < 0 || overlapTokens >= maxTokens {
		return nil, fmt.Errorf("overlap_tokens must be in [0, max_tokens): %w", appErr.ErrInvalid)
	}
	pieces := g.tokenizer.Split(text)
	step := maxTokens - overlapTokens
	var chunks []string
	for start := 0; start < len(pieces); start += step {
		end := start + maxTokens
		if end > len(pieces) {
			end = len(pieces)
		}
		chunk := strings.TrimSpace(strings.ToValidUTF8(strings.Join(pieces[start:end], ""), ""))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(pieces) {
			break
		}
	}
	return chunks, nil
}

// CosineSimilarity is clamped to [0, 1]. Mismatched, empty or zero vectors
// score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// Normalize returns a unit-length copy of v. A zero vector is copied as is.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		copy(out, v)
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
