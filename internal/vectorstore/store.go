package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

type ScoredPoint struct {
	ID      string
	Score   float64
	Payload map[string]interface{}
}

// Filter keeps points whose payload value at Field equals one of AnyOf.
type Filter struct {
	Field string
	AnyOf []string
}

// Store persists chunk vectors. Search returns points ordered by descending
// cosine similarity.
type Store interface {
	EnsureCollection(ctx context.Context, dim int) error
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, vector []float32, limit int, filter *Filter) ([]ScoredPoint, error)
	Retrieve(ctx context.Context, ids []string) ([]Point, error)
	Delete(ctx context.Context, ids []string) error
}

type Factory func(args interface{}) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = f
}

func New(name string, args interface{}) (Store, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("vector store %s not found", name)
	}
	return f(args)
}

func decodeConfig(src interface{}, dst interface{}) error {
	if src == nil {
		return nil
	}
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func (f *Filter) match(payload map[string]interface{}) bool {
	if f == nil || f.Field == "" {
		return true
	}
	v, ok := payload[f.Field]
	if !ok {
		return false
	}
	s := fmt.Sprint(v)
	for _, want := range f.AnyOf {
		if s == want {
			return true
		}
	}
	return false
}
