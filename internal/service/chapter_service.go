package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/booktutor/internal/model"
	appErr "github.com/xxxsen/booktutor/internal/pkg/errors"
	"github.com/xxxsen/booktutor/internal/pkg/timeutil"
)

type ChapterService struct {
	chapters  IChapterRepo
	progress  IProgressRepo
	indexer   IChapterIndexer
	validator *ContentValidator
}

func NewChapterService(chapters IChapterRepo, progress IProgressRepo, indexer IChapterIndexer) *ChapterService {
	return &ChapterService{chapters: chapters, progress: progress, indexer: indexer, validator: NewContentValidator()}
}

type ChapterInput struct {
	Title            string
	Slug             string
	ChapterNumber    int
	Content          string
	Summary          string
	LearningOutcomes []string
	Status           model.ChapterStatus
}

func (in *ChapterInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	if in.Title == "" || in.Slug == "" {
		return fmt.Errorf("title and slug are required: %w", appErr.ErrInvalid)
	}
	if in.ChapterNumber <= 0 {
		return fmt.Errorf("chapter_number must be positive: %w", appErr.ErrInvalid)
	}
	if in.Status == "" {
		in.Status = model.ChapterStatusDraft
	}
	if !in.Status.Valid() {
		return fmt.Errorf("unknown status %q: %w", in.Status, appErr.ErrInvalid)
	}
	return nil
}

func (s *ChapterService) Create(ctx context.Context, in ChapterInput) (*model.Chapter, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	now := timeutil.NowUnixMilli()
	ch := &model.Chapter{
		ID:               newID(),
		Title:            in.Title,
		Slug:             in.Slug,
		ChapterNumber:    in.ChapterNumber,
		Content:          in.Content,
		Summary:          in.Summary,
		LearningOutcomes: in.LearningOutcomes,
		Status:           in.Status,
		Ctime:            now,
		Mtime:            now,
	}
	if err := s.chapters.Create(ctx, ch); err != nil {
		return nil, err
	}
	s.attachValidation(ctx, ch)
	if ch.Status == model.ChapterStatusPublished && s.indexer != nil {
		s.reindex(ctx, ch.ID, s.indexer.IndexChapter)
	}
	return ch, nil
}

// Update replaces the chapter. Publishing or editing a published chapter
// refreshes its index; unpublishing drops it.
func (s *ChapterService) Update(ctx context.Context, id string, in ChapterInput) (*model.Chapter, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	prev, err := s.chapters.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ch := *prev
	ch.Title = in.Title
	ch.Slug = in.Slug
	ch.ChapterNumber = in.ChapterNumber
	ch.Content = in.Content
	ch.Summary = in.Summary
	ch.LearningOutcomes = in.LearningOutcomes
	ch.Status = in.Status
	ch.Mtime = timeutil.NowUnixMilli()
	if err := s.chapters.Update(ctx, &ch); err != nil {
		return nil, err
	}
	s.attachValidation(ctx, &ch)

	wasPublished := prev.Status == model.ChapterStatusPublished
	isPublished := ch.Status == model.ChapterStatusPublished
	changed := prev.Content != ch.Content || prev.Title != ch.Title || prev.Slug != ch.Slug || prev.ChapterNumber != ch.ChapterNumber
	if s.indexer == nil {
		return &ch, nil
	}
	switch {
	case isPublished && (!wasPublished || changed):
		s.reindex(ctx, ch.ID, s.indexer.UpdateChapterIndex)
	case wasPublished && !isPublished:
		s.reindex(ctx, ch.ID, s.indexer.DeleteChapterIndex)
	}
	return &ch, nil
}

func (s *ChapterService) reindex(ctx context.Context, id string, fn func(context.Context, string) error) {
	if err := fn(ctx, id); err != nil {
		logutil.GetLogger(ctx).Error("chapter index refresh failed", zap.String("chapter_id", id), zap.Error(err))
	}
}

func (s *ChapterService) attachValidation(ctx context.Context, ch *model.Chapter) {
	ch.Validation = s.validator.ValidateChapter(ch.Title, ch.Content, ch.LearningOutcomes)
	if !ch.Validation.Passed {
		logutil.GetLogger(ctx).Warn("chapter content has validation failures",
			zap.String("chapter_id", ch.ID),
			zap.Int("failures", ch.Validation.Failures),
			zap.Int("warnings", ch.Validation.Warnings))
	}
}

// Validate checks a stored chapter without changing it.
func (s *ChapterService) Validate(ctx context.Context, id string) (*model.ContentReport, error) {
	ch, err := s.chapters.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.validator.ValidateChapter(ch.Title, ch.Content, ch.LearningOutcomes), nil
}

// ValidateDraft checks content that has not been saved.
func (s *ChapterService) ValidateDraft(in ChapterInput) (*model.ContentReport, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("content is required: %w", appErr.ErrInvalid)
	}
	return s.validator.ValidateChapter(strings.TrimSpace(in.Title), in.Content, in.LearningOutcomes), nil
}

func (s *ChapterService) Get(ctx context.Context, id string) (*model.Chapter, error) {
	return s.chapters.GetByID(ctx, id)
}

func (s *ChapterService) GetBySlug(ctx context.Context, slug string) (*model.Chapter, error) {
	return s.chapters.GetBySlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
}

func (s *ChapterService) List(ctx context.Context, status model.ChapterStatus, offset, limit uint) ([]model.Chapter, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", status, appErr.ErrInvalid)
	}
	items, err := s.chapters.List(ctx, status, offset, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.Chapter{}
	}
	return items, nil
}

func (s *ChapterService) UpdateProgress(ctx context.Context, studentID, chapterID string, completion float64) (*model.ChapterProgress, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, fmt.Errorf("student_id is required: %w", appErr.ErrInvalid)
	}
	if completion < 0 || completion > 100 {
		return nil, fmt.Errorf("completion_percentage must be in [0, 100]: %w", appErr.ErrInvalid)
	}
	if _, err := s.chapters.GetByID(ctx, chapterID); err != nil {
		return nil, err
	}
	p := &model.ChapterProgress{
		StudentID:            studentID,
		ChapterID:            chapterID,
		CompletionPercentage: completion,
		Mtime:                timeutil.NowUnixMilli(),
	}
	if err := s.progress.Upsert(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *ChapterService) ListProgress(ctx context.Context, studentID string) ([]model.ChapterProgress, error) {
	items, err := s.progress.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.ChapterProgress{}
	}
	return items, nil
}
