package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/booktutor/internal/model"
	"github.com/xxxsen/booktutor/internal/pkg/dbutil"
	appErr "github.com/xxxsen/booktutor/internal/pkg/errors"
)

var chapterFields = []string{"id", "title", "slug", "chapter_number", "content", "summary", "learning_outcomes", "status", "ctime", "mtime"}

type ChapterRepo struct {
	db *sql.DB
}

func NewChapterRepo(db *sql.DB) *ChapterRepo {
	return &ChapterRepo{db: db}
}

func (r *ChapterRepo) Create(ctx context.Context, ch *model.Chapter) error {
	outcomes, err := marshalStrings(ch.LearningOutcomes)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":                ch.ID,
		"title":             ch.Title,
		"slug":              ch.Slug,
		"chapter_number":    ch.ChapterNumber,
		"content":           ch.Content,
		"summary":           ch.Summary,
		"learning_outcomes": outcomes,
		"status":            string(ch.Status),
		"ctime":             ch.Ctime,
		"mtime":             ch.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("chapters", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *ChapterRepo) Update(ctx context.Context, ch *model.Chapter) error {
	outcomes, err := marshalStrings(ch.LearningOutcomes)
	if err != nil {
		return err
	}
	where := map[string]interface{}{"id": ch.ID}
	update := map[string]interface{}{
		"title":             ch.Title,
		"slug":              ch.Slug,
		"chapter_number":    ch.ChapterNumber,
		"content":           ch.Content,
		"summary":           ch.Summary,
		"learning_outcomes": outcomes,
		"status":            string(ch.Status),
		"mtime":             ch.Mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("chapters", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *ChapterRepo) GetByID(ctx context.Context, id string) (*model.Chapter, error) {
	return r.getOne(ctx, map[string]interface{}{"id": id})
}

func (r *ChapterRepo) GetBySlug(ctx context.Context, slug string) (*model.Chapter, error) {
	return r.getOne(ctx, map[string]interface{}{"slug": slug})
}

func (r *ChapterRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.Chapter, error) {
	where["_limit"] = []uint{0, 1}
	sqlStr, args, err := builder.BuildSelect("chapters", where, chapterFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, appErr.ErrNotFound
	}
	return scanChapter(rows)
}

// List returns chapters ordered by chapter number. An empty status lists all.
func (r *ChapterRepo) List(ctx context.Context, status model.ChapterStatus, offset, limit uint) ([]model.Chapter, error) {
	where := map[string]interface{}{"_orderby": "chapter_number asc"}
	if status != "" {
		where["status"] = string(status)
	}
	if limit > 0 {
		where["_limit"] = []uint{offset, limit}
	}
	sqlStr, args, err := builder.BuildSelect("chapters", where, chapterFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.Chapter
	for rows.Next() {
		ch, err := scanChapter(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *ch)
	}
	return items, rows.Err()
}

func (r *ChapterRepo) ListByStatus(ctx context.Context, status model.ChapterStatus) ([]model.Chapter, error) {
	return r.List(ctx, status, 0, 0)
}

func (r *ChapterRepo) Delete(ctx context.Context, id string) error {
	sqlStr, args, err := builder.BuildDelete("chapters", map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func scanChapter(rows *sql.Rows) (*model.Chapter, error) {
	var ch model.Chapter
	var outcomes []byte
	var status string
	if err := rows.Scan(&ch.ID, &ch.Title, &ch.Slug, &ch.ChapterNumber, &ch.Content, &ch.Summary, &outcomes, &status, &ch.Ctime, &ch.Mtime); err != nil {
		return nil, err
	}
	ch.Status = model.ChapterStatus(status)
	if len(outcomes) > 0 {
		if err := json.Unmarshal(outcomes, &ch.LearningOutcomes); err != nil {
			return nil, err
		}
	}
	return &ch, nil
}

func marshalStrings(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
