package handler

import (
	"context"
	"sort"

	"github.com/xxxsen/booktutor/internal/model"
	appErr "github.com/xxxsen/booktutor/internal/pkg/errors"
)

type chapterStore struct {
	items map[string]*model.Chapter
}

func newChapterStore() *chapterStore {
	return &chapterStore{items: map[string]*model.Chapter{}}
}

func (s *chapterStore) Create(ctx context.Context, ch *model.Chapter) error {
	for _, it := range s.items {
		if it.Slug == ch.Slug || it.ChapterNumber == ch.ChapterNumber {
			return appErr.ErrConflict
		}
	}
	cp := *ch
	s.items[ch.ID] = &cp
	return nil
}

func (s *chapterStore) Update(ctx context.Context, ch *model.Chapter) error {
	if _, ok := s.items[ch.ID]; !ok {
		return appErr.ErrNotFound
	}
	cp := *ch
	s.items[ch.ID] = &cp
	return nil
}

func (s *chapterStore) GetByID(ctx context.Context, id string) (*model.Chapter, error) {
	ch, ok := s.items[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	cp := *ch
	return &cp, nil
}

func (s *chapterStore) GetBySlug(ctx context.Context, slug string) (*model.Chapter, error) {
	for _, ch := range s.items {
		if ch.Slug == slug {
			cp := *ch
			return &cp, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (s *chapterStore) List(ctx context.Context, status model.ChapterStatus, offset, limit uint) ([]model.Chapter, error) {
	var out []model.Chapter
	for _, ch := range s.items {
		if status == "" || ch.Status == status {
			out = append(out, *ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChapterNumber < out[j].ChapterNumber })
	return out, nil
}

type progressStore struct {
	items []model.ChapterProgress
}

func (s *progressStore) Upsert(ctx context.Context, p *model.ChapterProgress) error {
	for i := range s.items {
		if s.items[i].StudentID == p.StudentID && s.items[i].ChapterID == p.ChapterID {
			s.items[i] = *p
			return nil
		}
	}
	s.items = append(s.items, *p)
	return nil
}

func (s *progressStore) ListByStudent(ctx context.Context, studentID string) ([]model.ChapterProgress, error) {
	var out []model.ChapterProgress
	for _, p := range s.items {
		if p.StudentID == studentID {
			out = append(out, p)
		}
	}
	return out, nil
}
