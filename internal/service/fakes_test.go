package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/xxxsen/booktutor/internal/ai"
	"github.com/xxxsen/booktutor/internal/indexer"
	"github.com/xxxsen/booktutor/internal/model"
	appErr "github.com/xxxsen/booktutor/internal/pkg/errors"
)

// memStore backs sessions, interactions and feedback for service tests.
type memStore struct {
	mu           sync.Mutex
	sessions     map[string]*model.Session
	interactions []model.Interaction
	feedback     []model.Feedback
	createErr    error
}

func newMemStore() *memStore {
	return &memStore{sessions: map[string]*model.Session{}}
}

func (m *memStore) Create(ctx context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memStore) GetByID(ctx context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) Touch(ctx context.Context, id string, ts int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return appErr.ErrNotFound
	}
	s.LastInteractionAt = ts
	return nil
}

func (m *memStore) UpdateContext(ctx context.Context, id string, mode model.ContextMode, length int, ts int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return appErr.ErrNotFound
	}
	s.ContextMode, s.ContextLength, s.LastInteractionAt = mode, length, ts
	return nil
}

func (m *memStore) ListExpired(ctx context.Context, cutoff int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, s := range m.sessions {
		if s.LastInteractionAt < cutoff {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memStore) DeleteExpired(ctx context.Context, cutoff int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for id, s := range m.sessions {
		if s.LastInteractionAt >= cutoff {
			continue
		}
		kept := m.interactions[:0]
		for _, it := range m.interactions {
			if it.SessionID != id {
				kept = append(kept, it)
			}
		}
		m.interactions = kept
		delete(m.sessions, id)
		removed++
	}
	return removed, nil
}

type interactionView struct{ *memStore }

func (v interactionView) Create(ctx context.Context, it *model.Interaction) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.createErr != nil {
		return v.createErr
	}
	v.interactions = append(v.interactions, *it)
	return nil
}

func (v interactionView) GetByID(ctx context.Context, id string) (*model.Interaction, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, it := range v.interactions {
		if it.ID == id {
			cp := it
			return &cp, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (v interactionView) ListRecentBySession(ctx context.Context, sessionID string, limit uint) ([]model.Interaction, error) {
	return v.ListHistory(ctx, model.HistoryFilter{SessionID: sessionID}, limit)
}

func (v interactionView) ListHistory(ctx context.Context, filter model.HistoryFilter, limit uint) ([]model.Interaction, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []model.Interaction
	for i := len(v.interactions) - 1; i >= 0 && uint(len(out)) < limit; i-- {
		it := v.interactions[i]
		if filter.SessionID != "" && it.SessionID != filter.SessionID {
			continue
		}
		if filter.StudentID != "" && it.StudentID != filter.StudentID {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

func (v interactionView) StatsBySession(ctx context.Context, sessionID string) (int64, float64, float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var n int64
	var rt, acc float64
	for _, it := range v.interactions {
		if it.SessionID == sessionID {
			n++
			rt += float64(it.ResponseTimeMs)
			acc += it.AccuracyScore
		}
	}
	if n == 0 {
		return 0, 0, 0, nil
	}
	return n, rt / float64(n), acc / float64(n), nil
}

func (v interactionView) forSession(id string) []model.Interaction {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []model.Interaction
	for _, it := range v.interactions {
		if it.SessionID == id {
			out = append(out, it)
		}
	}
	return out
}

type feedbackView struct{ *memStore }

func (v feedbackView) Create(ctx context.Context, fb *model.Feedback) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.feedback = append(v.feedback, *fb)
	return nil
}

type stubRetriever struct {
	chunks []model.RetrievedChunk
	err    error
	calls  int
}

func (s *stubRetriever) RetrieveByQuery(ctx context.Context, query string, chapterIDs []string, topK int) ([]model.RetrievedChunk, error) {
	s.calls++
	return s.chunks, s.err
}

type stubGenerator struct {
	answer string
	err    error
	last   ai.CompletionRequest
}

func (s *stubGenerator) Complete(ctx context.Context, req ai.CompletionRequest) (string, error) {
	s.last = req
	return s.answer, s.err
}

// keywordEmbedder maps text containing "robot" to one axis and everything
// else to another.
type keywordEmbedder struct {
	err error
}

func (k *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if k.err != nil {
		return nil, k.err
	}
	if strings.Contains(strings.ToLower(text), "robot") {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

type memChapters struct {
	items map[string]*model.Chapter
}

func newMemChapters() *memChapters {
	return &memChapters{items: map[string]*model.Chapter{}}
}

func (m *memChapters) Create(ctx context.Context, ch *model.Chapter) error {
	for _, it := range m.items {
		if it.Slug == ch.Slug || it.ChapterNumber == ch.ChapterNumber {
			return appErr.ErrConflict
		}
	}
	cp := *ch
	m.items[ch.ID] = &cp
	return nil
}

func (m *memChapters) Update(ctx context.Context, ch *model.Chapter) error {
	if _, ok := m.items[ch.ID]; !ok {
		return appErr.ErrNotFound
	}
	cp := *ch
	m.items[ch.ID] = &cp
	return nil
}

func (m *memChapters) GetByID(ctx context.Context, id string) (*model.Chapter, error) {
	ch, ok := m.items[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	cp := *ch
	return &cp, nil
}

func (m *memChapters) GetBySlug(ctx context.Context, slug string) (*model.Chapter, error) {
	for _, ch := range m.items {
		if ch.Slug == slug {
			cp := *ch
			return &cp, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (m *memChapters) List(ctx context.Context, status model.ChapterStatus, offset, limit uint) ([]model.Chapter, error) {
	var out []model.Chapter
	for _, ch := range m.items {
		if status == "" || ch.Status == status {
			out = append(out, *ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChapterNumber < out[j].ChapterNumber })
	return out, nil
}

type memProgress struct {
	items []model.ChapterProgress
}

func (m *memProgress) Upsert(ctx context.Context, p *model.ChapterProgress) error {
	for i := range m.items {
		if m.items[i].StudentID == p.StudentID && m.items[i].ChapterID == p.ChapterID {
			m.items[i] = *p
			return nil
		}
	}
	m.items = append(m.items, *p)
	return nil
}

func (m *memProgress) ListByStudent(ctx context.Context, studentID string) ([]model.ChapterProgress, error) {
	var out []model.ChapterProgress
	for _, p := range m.items {
		if p.StudentID == studentID {
			out = append(out, p)
		}
	}
	return out, nil
}

type recordingIndexer struct {
	calls []string
}

func (r *recordingIndexer) IndexChapter(ctx context.Context, id string) error {
	r.calls = append(r.calls, "index:"+id)
	return nil
}

func (r *recordingIndexer) DeleteChapterIndex(ctx context.Context, id string) error {
	r.calls = append(r.calls, "delete:"+id)
	return nil
}

func (r *recordingIndexer) UpdateChapterIndex(ctx context.Context, id string) error {
	r.calls = append(r.calls, "update:"+id)
	return nil
}

func (r *recordingIndexer) IndexAllPublished(ctx context.Context) (*indexer.IndexReport, error) {
	r.calls = append(r.calls, "all")
	return &indexer.IndexReport{}, nil
}
