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

var interactionFields = []string{"id", "session_id", "student_id", "query", "response", "context_mode", "selected_text", "timestamp", "response_time_ms", "accuracy_score", "sources"}

type InteractionRepo struct {
	db *sql.DB
}

func NewInteractionRepo(db *sql.DB) *InteractionRepo {
	return &InteractionRepo{db: db}
}

func (r *InteractionRepo) Create(ctx context.Context, it *model.Interaction) error {
	sources, err := marshalStrings(it.Sources)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":               it.ID,
		"session_id":       it.SessionID,
		"student_id":       it.StudentID,
		"query":            it.Query,
		"response":         it.Response,
		"context_mode":     it.ContextMode.String(),
		"selected_text":    it.SelectedText,
		"timestamp":        it.Timestamp,
		"response_time_ms": it.ResponseTimeMs,
		"accuracy_score":   it.AccuracyScore,
		"sources":          sources,
	}
	sqlStr, args, err := builder.BuildInsert("chatbot_interactions", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *InteractionRepo) GetByID(ctx context.Context, id string) (*model.Interaction, error) {
	items, err := r.list(ctx, map[string]interface{}{"id": id})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, appErr.ErrNotFound
	}
	return &items[0], nil
}

// ListRecentBySession returns at most limit interactions, newest first.
func (r *InteractionRepo) ListRecentBySession(ctx context.Context, sessionID string, limit uint) ([]model.Interaction, error) {
	return r.list(ctx, map[string]interface{}{
		"session_id": sessionID,
		"_orderby":   "timestamp desc",
		"_limit":     []uint{0, limit},
	})
}

// ListHistory returns at most limit interactions matching filter, newest first.
func (r *InteractionRepo) ListHistory(ctx context.Context, filter model.HistoryFilter, limit uint) ([]model.Interaction, error) {
	where := map[string]interface{}{
		"_orderby": "timestamp desc",
		"_limit":   []uint{0, limit},
	}
	if filter.StudentID != "" {
		where["student_id"] = filter.StudentID
	}
	if filter.SessionID != "" {
		where["session_id"] = filter.SessionID
	}
	return r.list(ctx, where)
}

func (r *InteractionRepo) list(ctx context.Context, where map[string]interface{}) ([]model.Interaction, error) {
	sqlStr, args, err := builder.BuildSelect("chatbot_interactions", where, interactionFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.Interaction
	for rows.Next() {
		var it model.Interaction
		var mode string
		var sources []byte
		if err := rows.Scan(&it.ID, &it.SessionID, &it.StudentID, &it.Query, &it.Response, &mode, &it.SelectedText, &it.Timestamp, &it.ResponseTimeMs, &it.AccuracyScore, &sources); err != nil {
			return nil, err
		}
		if it.ContextMode, err = model.ParseContextMode(mode); err != nil {
			return nil, err
		}
		if len(sources) > 0 {
			if err := json.Unmarshal(sources, &it.Sources); err != nil {
				return nil, err
			}
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *InteractionRepo) StatsBySession(ctx context.Context, sessionID string) (int64, float64, float64, error) {
	const query = `
		SELECT COUNT(*), COALESCE(AVG(response_time_ms), 0), COALESCE(AVG(accuracy_score), 0)
		FROM chatbot_interactions
		WHERE session_id = $1
	`
	var count int64
	var avgRT, avgAcc float64
	if err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&count, &avgRT, &avgAcc); err != nil {
		return 0, 0, 0, err
	}
	return count, avgRT, avgAcc, nil
}
