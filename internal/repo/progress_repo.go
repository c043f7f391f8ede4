package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/booktutor/internal/model"
	"github.com/xxxsen/booktutor/internal/pkg/dbutil"
)

type ProgressRepo struct {
	db *sql.DB
}

func NewProgressRepo(db *sql.DB) *ProgressRepo {
	return &ProgressRepo{db: db}
}

func (r *ProgressRepo) Upsert(ctx context.Context, p *model.ChapterProgress) error {
	data := map[string]interface{}{
		"student_id":            p.StudentID,
		"chapter_id":            p.ChapterID,
		"completion_percentage": p.CompletionPercentage,
		"mtime":                 p.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("chapter_progress", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr += " ON CONFLICT (student_id, chapter_id) DO UPDATE SET completion_percentage = EXCLUDED.completion_percentage, mtime = EXCLUDED.mtime"
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ProgressRepo) ListByStudent(ctx context.Context, studentID string) ([]model.ChapterProgress, error) {
	where := map[string]interface{}{
		"student_id": studentID,
		"_orderby":   "mtime desc",
	}
	sqlStr, args, err := builder.BuildSelect("chapter_progress", where, []string{"student_id", "chapter_id", "completion_percentage", "mtime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.ChapterProgress
	for rows.Next() {
		var item model.ChapterProgress
		if err := rows.Scan(&item.StudentID, &item.ChapterID, &item.CompletionPercentage, &item.Mtime); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
