package service

import (
	"context"

	"github.com/xxxsen/booktutor/internal/indexer"
	"github.com/xxxsen/booktutor/internal/model"
)

type ISessionRepo interface {
	Create(ctx context.Context, s *model.Session) error
	GetByID(ctx context.Context, id string) (*model.Session, error)
	Touch(ctx context.Context, id string, ts int64) error
	UpdateContext(ctx context.Context, id string, mode model.ContextMode, contextLength int, ts int64) error
	ListExpired(ctx context.Context, cutoff int64) ([]string, error)
	DeleteExpired(ctx context.Context, cutoff int64) (int64, error)
}

type IInteractionRepo interface {
	Create(ctx context.Context, it *model.Interaction) error
	GetByID(ctx context.Context, id string) (*model.Interaction, error)
	ListRecentBySession(ctx context.Context, sessionID string, limit uint) ([]model.Interaction, error)
	ListHistory(ctx context.Context, filter model.HistoryFilter, limit uint) ([]model.Interaction, error)
	StatsBySession(ctx context.Context, sessionID string) (int64, float64, float64, error)
}

type IFeedbackRepo interface {
	Create(ctx context.Context, fb *model.Feedback) error
}

type IChapterRepo interface {
	Create(ctx context.Context, ch *model.Chapter) error
	Update(ctx context.Context, ch *model.Chapter) error
	GetByID(ctx context.Context, id string) (*model.Chapter, error)
	GetBySlug(ctx context.Context, slug string) (*model.Chapter, error)
	List(ctx context.Context, status model.ChapterStatus, offset, limit uint) ([]model.Chapter, error)
}

type IProgressRepo interface {
	Upsert(ctx context.Context, p *model.ChapterProgress) error
	ListByStudent(ctx context.Context, studentID string) ([]model.ChapterProgress, error)
}

type IRetriever interface {
	RetrieveByQuery(ctx context.Context, query string, chapterIDs []string, topK int) ([]model.RetrievedChunk, error)
}

type IQueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type IChapterIndexer interface {
	IndexChapter(ctx context.Context, chapterID string) error
	DeleteChapterIndex(ctx context.Context, chapterID string) error
	UpdateChapterIndex(ctx context.Context, chapterID string) error
	IndexAllPublished(ctx context.Context) (*indexer.IndexReport, error)
}
