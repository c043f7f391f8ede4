package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// PGVectorStore keeps points in the chunk_vectors table. It is built by the
// caller because it shares the application's *sql.DB.
type PGVectorStore struct {
	db         *sql.DB
	collection string
}

func NewPGVectorStore(db *sql.DB, collection string) *PGVectorStore {
	if collection == "" {
		collection = "textbook_content"
	}
	return &PGVectorStore{db: db, collection: collection}
}

// EnsureCollection is a no-op; the table is created by migrations.
func (s *PGVectorStore) EnsureCollection(ctx context.Context, dim int) error {
	return nil
}

func (s *PGVectorStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO chunk_vectors (collection, id, embedding, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (collection, id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			payload = EXCLUDED.payload
	`
	for _, p := range points {
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, query, s.collection, p.ID, pgvector.NewVector(p.Vector), string(payload)); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *PGVectorStore) Search(ctx context.Context, vector []float32, limit int, filter *Filter) ([]ScoredPoint, error) {
	if limit <= 0 {
		limit = 5
	}
	query := `SELECT id, 1 - (embedding <=> $1) AS score, payload FROM chunk_vectors WHERE collection = $2`
	args := []interface{}{pgvector.NewVector(vector), s.collection}
	if filter != nil && filter.Field != "" {
		query += fmt.Sprintf(" AND payload->>$%d = ANY($%d)", len(args)+1, len(args)+2)
		args = append(args, filter.Field, pq.Array(filter.AnyOf))
	}
	query += fmt.Sprintf(" ORDER BY embedding <=> $1, id LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ScoredPoint
	for rows.Next() {
		var sp ScoredPoint
		var payload []byte
		if err := rows.Scan(&sp.ID, &sp.Score, &payload); err != nil {
			return nil, err
		}
		if sp.Payload, err = decodePayload(payload); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (s *PGVectorStore) Retrieve(ctx context.Context, ids []string) ([]Point, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, embedding, payload FROM chunk_vectors WHERE collection = $1 AND id = ANY($2)`,
		s.collection, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Point
	for rows.Next() {
		var p Point
		var vec pgvector.Vector
		var payload []byte
		if err := rows.Scan(&p.ID, &vec, &payload); err != nil {
			return nil, err
		}
		p.Vector = vec.Slice()
		if p.Payload, err = decodePayload(payload); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PGVectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chunk_vectors WHERE collection = $1 AND id = ANY($2)`,
		s.collection, pq.Array(ids))
	return err
}

func decodePayload(raw []byte) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Join(errors.New("decode vector payload"), err)
	}
	return out, nil
}
