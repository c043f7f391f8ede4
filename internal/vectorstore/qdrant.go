package vectorstore

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

func init() {
	Register("qdrant", func(args interface{}) (Store, error) {
		cfg := &QdrantConfig{}
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
		return NewQdrantStore(cfg)
	})
}

type QdrantConfig struct {
	URL        string `json:"url"`
	APIKey     string `json:"api_key"`
	Collection string `json:"collection"`
	UseTLS     bool   `json:"use_tls"`
}

type QdrantStore struct {
	collection string
	client     *qdrant.Client
}

func NewQdrantStore(cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.URL == "" {
		cfg.URL = "localhost:6334"
	}
	if cfg.Collection == "" {
		cfg.Collection = "textbook_content"
	}
	host, portStr, err := net.SplitHostPort(cfg.URL)
	if err != nil {
		host = cfg.URL
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return &QdrantStore{collection: cfg.Collection, client: client}, nil
}

func (q *QdrantStore) EnsureCollection(ctx context.Context, dim int) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", q.collection, err)
	}
	if exists {
		return nil
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func (q *QdrantStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	batch := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		payload := make(map[string]*qdrant.Value, len(p.Payload))
		for k, v := range p.Payload {
			payload[k] = toQdrantValue(v)
		}
		batch = append(batch, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		})
	}
	wait := true
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         batch,
	})
	return err
}

func (q *QdrantStore) Search(ctx context.Context, vector []float32, limit int, filter *Filter) ([]ScoredPoint, error) {
	if limit <= 0 {
		limit = 5
	}
	lim := uint64(limit)
	req := &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &lim,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if filter != nil && filter.Field != "" {
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchKeywords(filter.Field, filter.AnyOf...)},
		}
	}
	res, err := q.client.Query(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make([]ScoredPoint, 0, len(res))
	for _, p := range res {
		out = append(out, ScoredPoint{
			ID:      p.GetId().GetUuid(),
			Score:   float64(p.GetScore()),
			Payload: fromQdrantPayload(p.GetPayload()),
		})
	}
	return out, nil
}

func (q *QdrantStore) Retrieve(ctx context.Context, ids []string) ([]Point, error) {
	pointIDs := toPointIDs(ids)
	if len(pointIDs) == 0 {
		return nil, nil
	}
	res, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]Point, 0, len(res))
	for _, p := range res {
		out = append(out, Point{
			ID:      p.GetId().GetUuid(),
			Vector:  p.GetVectors().GetVector().GetData(),
			Payload: fromQdrantPayload(p.GetPayload()),
		})
	}
	return out, nil
}

func (q *QdrantStore) Delete(ctx context.Context, ids []string) error {
	pointIDs := toPointIDs(ids)
	if len(pointIDs) == 0 {
		return nil
	}
	wait := true
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	return err
}

// toPointIDs drops ids that are not UUIDs. Qdrant rejects them, and no
// point can carry one.
func toPointIDs(ids []string) []*qdrant.PointId {
	out := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			continue
		}
		out = append(out, qdrant.NewID(id))
	}
	return out
}

func toQdrantValue(v interface{}) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return qdrant.NewValueString(val)
	case int:
		return qdrant.NewValueInt(int64(val))
	case int64:
		return qdrant.NewValueInt(val)
	case float64:
		return qdrant.NewValueDouble(val)
	case float32:
		return qdrant.NewValueDouble(float64(val))
	case bool:
		return qdrant.NewValueBool(val)
	default:
		return qdrant.NewValueString(fmt.Sprintf("%v", v))
	}
}

func fromQdrantPayload(payload map[string]*qdrant.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		switch kind := v.GetKind().(type) {
		case *qdrant.Value_StringValue:
			out[k] = kind.StringValue
		case *qdrant.Value_IntegerValue:
			out[k] = kind.IntegerValue
		case *qdrant.Value_DoubleValue:
			out[k] = kind.DoubleValue
		case *qdrant.Value_BoolValue:
			out[k] = kind.BoolValue
		}
	}
	return out
}
