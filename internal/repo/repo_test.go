package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/booktutor/internal/model"
	appErr "github.com/xxxsen/booktutor/internal/pkg/errors"
)

func TestChapterRepo_GetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM chapters`).
		WillReturnRows(sqlmock.NewRows(chapterFields))

	_, err = NewChapterRepo(db).GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, appErr.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChapterRepo_GetByIDDecodesOutcomes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM chapters`).
		WillReturnRows(sqlmock.NewRows(chapterFields).
			AddRow("c1", "Kinematics", "kinematics", 2, "body", "sum", []byte(`["a","b"]`), "published", int64(1), int64(2)))

	ch, err := NewChapterRepo(db).GetByID(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, 2, ch.ChapterNumber)
	require.Equal(t, model.ChapterStatusPublished, ch.Status)
	require.Equal(t, []string{"a", "b"}, ch.LearningOutcomes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChapterRepo_CreateConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO chapters`).WillReturnError(&pq.Error{Code: "23505"})

	err = NewChapterRepo(db).Create(context.Background(), &model.Chapter{ID: "c1", Slug: "s", Status: model.ChapterStatusDraft})
	require.ErrorIs(t, err, appErr.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChunkRepo_ReplaceForChapterRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM document_chunks`).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`INSERT INTO document_chunks`).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err = NewChunkRepo(db).ReplaceForChapter(context.Background(), "c1", []model.ChunkRecord{{ID: "k1", Content: "x"}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChunkRepo_ReplaceForChapterEmptyOnlyDeletes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM document_chunks`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, NewChunkRepo(db).ReplaceForChapter(context.Background(), "c1", nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChunkRepo_LockChapter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`pg_advisory_lock`).WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`pg_advisory_unlock`).WithArgs("c1").WillReturnResult(sqlmock.NewResult(0, 1))

	unlock, err := NewChunkRepo(db).LockChapter(context.Background(), "c1")
	require.NoError(t, err)
	unlock()
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepo_DeleteExpiredCascades(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM chat_feedback`).WithArgs(int64(100)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM chatbot_interactions`).WithArgs(int64(100)).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(`DELETE FROM chat_sessions`).WithArgs(int64(100)).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := NewSessionRepo(db).DeleteExpired(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepo_TouchMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE chat_sessions`).WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewSessionRepo(db).Touch(context.Background(), "nope", 1)
	require.ErrorIs(t, err, appErr.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepo_GetByIDParsesMode(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM chat_sessions`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "started_at", "last_interaction_at", "context_mode", "context_length"}).
			AddRow("s1", "", int64(1), int64(2), "selected_text", 3))

	s, err := NewSessionRepo(db).GetByID(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, model.ContextModeSelectedText, s.ContextMode)
	require.Equal(t, 3, s.ContextLength)
}

func TestInteractionRepo_ListRecentDecodesSources(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM chatbot_interactions`).
		WillReturnRows(sqlmock.NewRows(interactionFields).
			AddRow("i2", "s1", "", "q2", "r2", "global", "", int64(20), int64(5), 0.8, []byte(`["chapter_1"]`)).
			AddRow("i1", "s1", "", "q1", "r1", "global", "", int64(10), int64(5), 0.6, []byte(`[]`)))

	items, err := NewInteractionRepo(db).ListRecentBySession(context.Background(), "s1", 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, []string{"chapter_1"}, items[0].Sources)
	require.Equal(t, model.ContextModeGlobal, items[1].ContextMode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInteractionRepo_StatsBySession(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT`).WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"count", "avg_rt", "avg_acc"}).AddRow(int64(3), 120.0, 0.75))

	count, rt, acc, err := NewInteractionRepo(db).StatsBySession(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
	require.InDelta(t, 120.0, rt, 1e-9)
	require.InDelta(t, 0.75, acc, 1e-9)
}

func TestEmbeddingCacheRepo_GetManyEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	out, err := NewEmbeddingCacheRepo(db).GetMany(context.Background(), "m", nil)
	require.NoError(t, err)
	require.Empty(t, out)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEmbeddingCacheRepo_DeleteBefore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM embedding_cache`).WithArgs(int64(42)).WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := NewEmbeddingCacheRepo(db).DeleteBefore(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, int64(7), n)
}
