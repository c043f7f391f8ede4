package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/booktutor/internal/model"
	"github.com/xxxsen/booktutor/internal/pkg/dbutil"
)

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// ReplaceForChapter swaps every chunk row of a chapter in one transaction.
func (r *ChunkRepo) ReplaceForChapter(ctx context.Context, chapterID string, chunks []model.ChunkRecord) error {
	rows := make([]map[string]interface{}, 0, len(chunks))
	for _, c := range chunks {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return err
		}
		rows = append(rows, map[string]interface{}{
			"id":           c.ID,
			"chapter_id":   chapterID,
			"content":      c.Content,
			"chunk_index":  c.ChunkIndex,
			"start_offset": c.StartOffset,
			"end_offset":   c.EndOffset,
			"metadata":     string(meta),
			"ctime":        c.Ctime,
		})
	}
	return dbutil.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		delStr, delArgs, err := builder.BuildDelete("document_chunks", map[string]interface{}{"chapter_id": chapterID})
		if err != nil {
			return err
		}
		delStr, delArgs = dbutil.Finalize(delStr, delArgs)
		if _, err := tx.ExecContext(ctx, delStr, delArgs...); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		insStr, insArgs, err := builder.BuildInsert("document_chunks", rows)
		if err != nil {
			return err
		}
		insStr, insArgs = dbutil.Finalize(insStr, insArgs)
		_, err = tx.ExecContext(ctx, insStr, insArgs...)
		return err
	})
}

func (r *ChunkRepo) ListIDsByChapter(ctx context.Context, chapterID string) ([]string, error) {
	where := map[string]interface{}{
		"chapter_id": chapterID,
		"_orderby":   "chunk_index asc",
	}
	sqlStr, args, err := builder.BuildSelect("document_chunks", where, []string{"id"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ChunkRepo) DeleteByChapter(ctx context.Context, chapterID string) (int64, error) {
	sqlStr, args, err := builder.BuildDelete("document_chunks", map[string]interface{}{"chapter_id": chapterID})
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LockChapter takes a session-level advisory lock keyed by chapter id. The
// returned func releases it and returns the connection to the pool.
func (r *ChunkRepo) LockChapter(ctx context.Context, chapterID string) (func(), error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock(hashtext($1))`, chapterID); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, chapterID)
		_ = conn.Close()
	}, nil
}
