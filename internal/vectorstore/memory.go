package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"
)

func init() {
	Register("memory", func(args interface{}) (Store, error) {
		return NewMemoryStore(), nil
	})
}

type MemoryStore struct {
	mu     sync.RWMutex
	points map[string]Point
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{points: map[string]Point{}}
}

func (m *MemoryStore) EnsureCollection(ctx context.Context, dim int) error {
	return nil
}

func (m *MemoryStore) Upsert(ctx context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		m.points[p.ID] = clonePoint(p)
	}
	return nil
}

func (m *MemoryStore) Search(ctx context.Context, vector []float32, limit int, filter *Filter) ([]ScoredPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]ScoredPoint, 0, len(m.points))
	for _, p := range m.points {
		if !filter.match(p.Payload) {
			continue
		}
		results = append(results, ScoredPoint{ID: p.ID, Score: cosine(vector, p.Vector), Payload: clonePayload(p.Payload)})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *MemoryStore) Retrieve(ctx context.Context, ids []string) ([]Point, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Point, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.points[id]; ok {
			out = append(out, clonePoint(p))
		}
	}
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.points, id)
	}
	return nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

func cosine(a, b []float32) float64 {
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
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func clonePoint(p Point) Point {
	vec := make([]float32, len(p.Vector))
	copy(vec, p.Vector)
	return Point{ID: p.ID, Vector: vec, Payload: clonePayload(p.Payload)}
}

func clonePayload(src map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
