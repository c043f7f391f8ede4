package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/booktutor/internal/model"
	"github.com/xxxsen/booktutor/internal/pkg/dbutil"
)

type FeedbackRepo struct {
	db *sql.DB
}

func NewFeedbackRepo(db *sql.DB) *FeedbackRepo {
	return &FeedbackRepo{db: db}
}

func (r *FeedbackRepo) Create(ctx context.Context, fb *model.Feedback) error {
	data := map[string]interface{}{
		"id":              fb.ID,
		"interaction_id":  fb.InteractionID,
		"student_id":      fb.StudentID,
		"rating":          nullInt(fb.Rating),
		"helpful":         nullBool(fb.Helpful),
		"accuracy_rating": nullInt(fb.AccuracyRating),
		"feedback_text":   fb.FeedbackText,
		"ctime":           fb.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("chat_feedback", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *FeedbackRepo) ListByInteraction(ctx context.Context, interactionID string) ([]model.Feedback, error) {
	where := map[string]interface{}{
		"interaction_id": interactionID,
		"_orderby":       "ctime asc",
	}
	sqlStr, args, err := builder.BuildSelect("chat_feedback", where, []string{"id", "interaction_id", "student_id", "rating", "helpful", "accuracy_rating", "feedback_text", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.Feedback
	for rows.Next() {
		var fb model.Feedback
		var rating, accuracy sql.NullInt64
		var helpful sql.NullBool
		if err := rows.Scan(&fb.ID, &fb.InteractionID, &fb.StudentID, &rating, &helpful, &accuracy, &fb.FeedbackText, &fb.Ctime); err != nil {
			return nil, err
		}
		if rating.Valid {
			v := int(rating.Int64)
			fb.Rating = &v
		}
		if accuracy.Valid {
			v := int(accuracy.Int64)
			fb.AccuracyRating = &v
		}
		if helpful.Valid {
			v := helpful.Bool
			fb.Helpful = &v
		}
		items = append(items, fb)
	}
	return items, rows.Err()
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}
