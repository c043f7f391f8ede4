package repo

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/booktutor/internal/model"
)

type EmbeddingCacheRepo struct {
	db *sql.DB
}

func NewEmbeddingCacheRepo(db *sql.DB) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db}
}

func (r *EmbeddingCacheRepo) GetMany(ctx context.Context, modelName string, contentHashes []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(contentHashes))
	if len(contentHashes) == 0 {
		return out, nil
	}
	const query = `
		SELECT content_hash, embedding
		FROM embedding_cache
		WHERE model_name = $1 AND content_hash = ANY($2)
	`
	rows, err := r.db.QueryContext(ctx, query, modelName, pq.Array(contentHashes))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var hash string
		var embedding pgvector.Vector
		if err := rows.Scan(&hash, &embedding); err != nil {
			return nil, err
		}
		out[hash] = embedding.Slice()
	}
	return out, rows.Err()
}

func (r *EmbeddingCacheRepo) Save(ctx context.Context, item *model.EmbeddingCache) error {
	const query = `
		INSERT INTO embedding_cache (model_name, content_hash, embedding, ctime)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (model_name, content_hash) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			ctime = EXCLUDED.ctime
	`
	_, err := r.db.ExecContext(ctx, query,
		item.ModelName,
		item.ContentHash,
		pgvector.NewVector(item.Embedding),
		item.Ctime,
	)
	return err
}

func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	const query = `DELETE FROM embedding_cache WHERE ctime < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
