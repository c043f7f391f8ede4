package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/booktutor/internal/model"
	"github.com/xxxsen/booktutor/internal/pkg/dbutil"
	appErr "github.com/xxxsen/booktutor/internal/pkg/errors"
)

type SessionRepo struct {
	db *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

func (r *SessionRepo) Create(ctx context.Context, s *model.Session) error {
	data := map[string]interface{}{
		"id":                  s.ID,
		"student_id":          s.StudentID,
		"started_at":          s.StartedAt,
		"last_interaction_at": s.LastInteractionAt,
		"context_mode":        s.ContextMode.String(),
		"context_length":      s.ContextLength,
	}
	sqlStr, args, err := builder.BuildInsert("chat_sessions", []map[string]interface{}{data})
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

func (r *SessionRepo) GetByID(ctx context.Context, id string) (*model.Session, error) {
	where := map[string]interface{}{"id": id}
	sqlStr, args, err := builder.BuildSelect("chat_sessions", where, []string{"id", "student_id", "started_at", "last_interaction_at", "context_mode", "context_length"})
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
	var s model.Session
	var mode string
	if err := rows.Scan(&s.ID, &s.StudentID, &s.StartedAt, &s.LastInteractionAt, &mode, &s.ContextLength); err != nil {
		return nil, err
	}
	if s.ContextMode, err = model.ParseContextMode(mode); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepo) Touch(ctx context.Context, id string, ts int64) error {
	return r.update(ctx, id, map[string]interface{}{"last_interaction_at": ts})
}

func (r *SessionRepo) UpdateContext(ctx context.Context, id string, mode model.ContextMode, contextLength int, ts int64) error {
	return r.update(ctx, id, map[string]interface{}{
		"context_mode":        mode.String(),
		"context_length":      contextLength,
		"last_interaction_at": ts,
	})
}

func (r *SessionRepo) update(ctx context.Context, id string, update map[string]interface{}) error {
	sqlStr, args, err := builder.BuildUpdate("chat_sessions", map[string]interface{}{"id": id}, update)
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

func (r *SessionRepo) ListExpired(ctx context.Context, cutoff int64) ([]string, error) {
	where := map[string]interface{}{
		"last_interaction_at <": cutoff,
		"_orderby":              "last_interaction_at asc",
	}
	sqlStr, args, err := builder.BuildSelect("chat_sessions", where, []string{"id"})
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

// DeleteExpired purges sessions idle since before cutoff together with their
// interactions and feedback.
func (r *SessionRepo) DeleteExpired(ctx context.Context, cutoff int64) (int64, error) {
	var removed int64
	err := dbutil.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM chat_feedback WHERE interaction_id IN (
				SELECT i.id FROM chatbot_interactions i
				JOIN chat_sessions s ON s.id = i.session_id
				WHERE s.last_interaction_at < $1
			)`, cutoff); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM chatbot_interactions WHERE session_id IN (
				SELECT id FROM chat_sessions WHERE last_interaction_at < $1
			)`, cutoff); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE last_interaction_at < $1`, cutoff)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
