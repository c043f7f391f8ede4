package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/xxxsen/booktutor/internal/ai"
	"github.com/xxxsen/booktutor/internal/indexer"
	"github.com/xxxsen/booktutor/internal/middleware"
	"github.com/xxxsen/booktutor/internal/model"
	"github.com/xxxsen/booktutor/internal/pkg/errcode"
	appErr "github.com/xxxsen/booktutor/internal/pkg/errors"
	"github.com/xxxsen/booktutor/internal/retrieval"
	"github.com/xxxsen/booktutor/internal/service"
	"github.com/xxxsen/booktutor/internal/vectorstore"
)

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func (s *sessionStore) Create(ctx context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *sessionStore) GetByID(ctx context.Context, id string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *sessionStore) Touch(ctx context.Context, id string, ts int64) error {
	_, err := s.GetByID(ctx, id)
	return err
}

func (s *sessionStore) UpdateContext(ctx context.Context, id string, mode model.ContextMode, length int, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return appErr.ErrNotFound
	}
	sess.ContextMode, sess.ContextLength = mode, length
	return nil
}

func (s *sessionStore) ListExpired(ctx context.Context, cutoff int64) ([]string, error) {
	return nil, nil
}

func (s *sessionStore) DeleteExpired(ctx context.Context, cutoff int64) (int64, error) {
	return 0, nil
}

type interactionStore struct {
	mu    sync.Mutex
	items []model.Interaction
	fb    []model.Feedback
}

func (s *interactionStore) Create(ctx context.Context, it *model.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, *it)
	return nil
}

func (s *interactionStore) GetByID(ctx context.Context, id string) (*model.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.ID == id {
			cp := it
			return &cp, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (s *interactionStore) ListRecentBySession(ctx context.Context, sessionID string, limit uint) ([]model.Interaction, error) {
	return s.ListHistory(ctx, model.HistoryFilter{SessionID: sessionID}, limit)
}

func (s *interactionStore) ListHistory(ctx context.Context, filter model.HistoryFilter, limit uint) ([]model.Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Interaction
	for i := len(s.items) - 1; i >= 0 && uint(len(out)) < limit; i-- {
		it := s.items[i]
		if (filter.SessionID == "" || it.SessionID == filter.SessionID) && (filter.StudentID == "" || it.StudentID == filter.StudentID) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *interactionStore) StatsBySession(ctx context.Context, sessionID string) (int64, float64, float64, error) {
	items, _ := s.ListHistory(ctx, model.HistoryFilter{SessionID: sessionID}, 1000)
	return int64(len(items)), 0, 0, nil
}

type feedbackStore struct{ *interactionStore }

func (s feedbackStore) Create(ctx context.Context, fb *model.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fb = append(s.fb, *fb)
	return nil
}

type fixedGenerator struct{ err error }

func (g fixedGenerator) Complete(ctx context.Context, req ai.CompletionRequest) (string, error) {
	return "Sensors measure the world.", g.err
}

type axisEmbedder struct{}

func (axisEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type stubIndexer struct {
	err    error
	report *indexer.IndexReport
}

func (s *stubIndexer) IndexChapter(ctx context.Context, id string) error       { return s.err }
func (s *stubIndexer) DeleteChapterIndex(ctx context.Context, id string) error { return s.err }
func (s *stubIndexer) UpdateChapterIndex(ctx context.Context, id string) error { return s.err }
func (s *stubIndexer) IndexAllPublished(ctx context.Context) (*indexer.IndexReport, error) {
	return s.report, s.err
}

type errPinger struct{ err error }

func (p errPinger) PingContext(ctx context.Context) error { return p.err }

type testEnv struct {
	router       http.Handler
	interactions *interactionStore
	vectors      *vectorstore.MemoryStore
	indexer      *stubIndexer
}

func setupRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessions := &sessionStore{sessions: map[string]*model.Session{}}
	interactions := &interactionStore{}
	vectors := vectorstore.NewMemoryStore()
	require.NoError(t, vectors.Upsert(context.Background(), []vectorstore.Point{
		{ID: "p1", Vector: []float32{1, 0}, Payload: map[string]interface{}{
			model.MetaContent: "Robots perceive with sensors.", model.MetaChapterID: "ch1",
			model.MetaChapterTitle: "Sensors", model.MetaChapterNumber: 2, model.MetaSource: "chapter_sensors_chunk_0",
		}},
		{ID: "p2", Vector: []float32{0.9, 0.1}, Payload: map[string]interface{}{
			model.MetaContent: "Lidar measures distance.", model.MetaChapterID: "ch1", model.MetaSource: "chapter_sensors_chunk_1",
		}},
	}))
	retriever := retrieval.New(axisEmbedder{}, vectors, retrieval.Options{SimilarityThreshold: 0.3})
	rag := service.NewRAGService(sessions, interactions, retriever, fixedGenerator{}, axisEmbedder{}, service.RAGConfig{})
	feedback := service.NewFeedbackService(interactions, feedbackStore{interactions})
	idx := &stubIndexer{report: &indexer.IndexReport{Total: 1, Succeeded: 1, Failed: []string{}}}
	chapters := service.NewChapterService(newChapterStore(), &progressStore{}, idx)

	deps := RouterDeps{
		Chatbot:  NewChatbotHandler(rag, feedback, retriever, 5),
		Chapters: NewChapterHandler(chapters),
		Index:    NewIndexHandler(idx, retriever),
		Health:   NewHealthHandler(nil),
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(nil),
		),
	)
	require.NoError(t, err)
	return &testEnv{router: engine, interactions: interactions, vectors: vectors, indexer: idx}
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func call(t *testing.T, h http.Handler, method, path string, body interface{}) envelope {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestChatbotQuery(t *testing.T) {
	env := setupRouter(t)

	res := call(t, env.router, http.MethodPost, "/api/v1/chatbot/query", map[string]string{"query": "How do robots sense?", "student_id": "stu"})
	require.Zero(t, res.Code)
	var resp model.ChatResponse
	require.NoError(t, json.Unmarshal(res.Data, &resp))
	require.Equal(t, "Sensors measure the world.", resp.Response)
	require.NotEmpty(t, resp.SessionID)
	require.Len(t, resp.Sources, 2)
	require.Equal(t, "chapter_sensors_chunk_0", resp.Sources[0].Source)
	require.Len(t, env.interactions.items, 1)
}

func TestChatbotQuery_Errors(t *testing.T) {
	env := setupRouter(t)

	res := call(t, env.router, http.MethodPost, "/api/v1/chatbot/query", map[string]string{"query": "q", "context_mode": "chapter"})
	require.Equal(t, errcode.ErrInvalidMode, res.Code)

	res = call(t, env.router, http.MethodPost, "/api/v1/chatbot/query", map[string]string{"query": "q", "context_mode": "selected_text"})
	require.Equal(t, errcode.ErrMissingSelectedText, res.Code)

	res = call(t, env.router, http.MethodPost, "/api/v1/chatbot/query", map[string]string{"query": ""})
	require.Equal(t, errcode.ErrInvalid, res.Code)
	require.Empty(t, env.interactions.items)
}

func TestChatbotSessionRoutes(t *testing.T) {
	env := setupRouter(t)

	res := call(t, env.router, http.MethodPost, "/api/v1/chatbot/session", map[string]interface{}{"student_id": "stu", "context_mode": "selected_text", "context_length": 2})
	require.Zero(t, res.Code)
	var created struct {
		SessionID   string `json:"session_id"`
		CreatedAt   int64  `json:"created_at"`
		ContextMode string `json:"context_mode"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &created))
	require.Equal(t, "selected_text", created.ContextMode)
	require.NotZero(t, created.CreatedAt)

	res = call(t, env.router, http.MethodPut, "/api/v1/chatbot/session/"+created.SessionID, map[string]interface{}{"context_mode": "global"})
	require.Zero(t, res.Code)
	var session model.Session
	require.NoError(t, json.Unmarshal(res.Data, &session))
	require.Equal(t, model.ContextModeGlobal, session.ContextMode)
	require.Equal(t, 2, session.ContextLength)

	res = call(t, env.router, http.MethodGet, "/api/v1/chatbot/session/"+created.SessionID+"/stats", nil)
	require.Zero(t, res.Code)

	res = call(t, env.router, http.MethodGet, "/api/v1/chatbot/session/missing", nil)
	require.Equal(t, errcode.ErrNotFound, res.Code)
}

func TestChatbotHistoryAndFeedback(t *testing.T) {
	env := setupRouter(t)

	res := call(t, env.router, http.MethodGet, "/api/v1/chatbot/history", nil)
	require.Equal(t, errcode.ErrInvalid, res.Code)
	res = call(t, env.router, http.MethodGet, "/api/v1/chatbot/history?student_id=stu&limit=51", nil)
	require.Equal(t, errcode.ErrInvalid, res.Code)

	for _, q := range []string{"first", "second"} {
		res = call(t, env.router, http.MethodPost, "/api/v1/chatbot/query", map[string]string{"query": q, "student_id": "stu"})
		require.Zero(t, res.Code)
	}
	res = call(t, env.router, http.MethodGet, "/api/v1/chatbot/history?student_id=stu", nil)
	require.Zero(t, res.Code)
	var items []model.Interaction
	require.NoError(t, json.Unmarshal(res.Data, &items))
	require.Len(t, items, 2)
	require.Equal(t, "first", items[0].Query)

	res = call(t, env.router, http.MethodPost, "/api/v1/chatbot/feedback", map[string]interface{}{"interaction_id": items[0].ID, "rating": 9})
	require.Equal(t, errcode.ErrInvalid, res.Code)
	res = call(t, env.router, http.MethodPost, "/api/v1/chatbot/feedback", map[string]interface{}{"interaction_id": "nope", "rating": 4})
	require.Equal(t, errcode.ErrNotFound, res.Code)
	res = call(t, env.router, http.MethodPost, "/api/v1/chatbot/feedback", map[string]interface{}{"interaction_id": items[0].ID, "rating": 4, "helpful": true})
	require.Zero(t, res.Code)
	require.Len(t, env.interactions.fb, 1)
}

func TestChatbotSearch(t *testing.T) {
	env := setupRouter(t)

	res := call(t, env.router, http.MethodPost, "/api/v1/chatbot/search", map[string]interface{}{"query": "sensors", "policy": "diversity_aware"})
	require.Zero(t, res.Code)
	var out struct {
		Results   []model.Source   `json:"results"`
		Citations []model.Citation `json:"citations"`
		Policy    string           `json:"policy"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &out))
	require.Equal(t, "diversity_aware", out.Policy)
	require.Len(t, out.Results, 2)
	require.Equal(t, "Sensors", out.Citations[0].Title)
	require.Equal(t, "2", out.Citations[0].ChapterNumber)

	res = call(t, env.router, http.MethodPost, "/api/v1/chatbot/search", map[string]interface{}{"query": "sensors", "chapter_ids": []string{"other"}})
	require.Zero(t, res.Code)
	require.NoError(t, json.Unmarshal(res.Data, &out))
	require.Empty(t, out.Results)
}

func TestChapterRoutes(t *testing.T) {
	env := setupRouter(t)

	res := call(t, env.router, http.MethodPost, "/api/v1/chapters", map[string]interface{}{"title": "Sensors", "slug": "sensors", "chapter_number": 2})
	require.Zero(t, res.Code)
	var ch model.Chapter
	require.NoError(t, json.Unmarshal(res.Data, &ch))
	require.Equal(t, model.ChapterStatusDraft, ch.Status)

	res = call(t, env.router, http.MethodPost, "/api/v1/chapters", map[string]interface{}{"title": "Again", "slug": "sensors", "chapter_number": 3})
	require.Equal(t, errcode.ErrConflict, res.Code)

	res = call(t, env.router, http.MethodGet, "/api/v1/chapters/slug/sensors", nil)
	require.Zero(t, res.Code)
	res = call(t, env.router, http.MethodGet, "/api/v1/chapters/"+ch.ID, nil)
	require.Zero(t, res.Code)
	res = call(t, env.router, http.MethodGet, "/api/v1/chapters?limit=500", nil)
	require.Equal(t, errcode.ErrInvalid, res.Code)

	res = call(t, env.router, http.MethodPost, "/api/v1/chapters/"+ch.ID+"/progress", map[string]interface{}{"student_id": "stu", "completion_percentage": 120})
	require.Equal(t, errcode.ErrInvalid, res.Code)
	res = call(t, env.router, http.MethodPost, "/api/v1/chapters/"+ch.ID+"/progress", map[string]interface{}{"student_id": "stu", "completion_percentage": 50})
	require.Zero(t, res.Code)

	res = call(t, env.router, http.MethodGet, "/api/v1/chapters/progress/stu", nil)
	require.Zero(t, res.Code)
	var progress []model.ChapterProgress
	require.NoError(t, json.Unmarshal(res.Data, &progress))
	require.Len(t, progress, 1)
}

func TestChapterValidationRoutes(t *testing.T) {
	env := setupRouter(t)

	res := call(t, env.router, http.MethodPost, "/api/v1/chapters", map[string]interface{}{
		"title": "Sensors", "slug": "sensors", "chapter_number": 2, "content": "Obviously robots see.",
	})
	require.Zero(t, res.Code)
	var ch model.Chapter
	require.NoError(t, json.Unmarshal(res.Data, &ch))
	require.NotNil(t, ch.Validation)
	require.False(t, ch.Validation.Passed)

	res = call(t, env.router, http.MethodGet, "/api/v1/chapters/"+ch.ID+"/validation", nil)
	require.Zero(t, res.Code)
	var report model.ContentReport
	require.NoError(t, json.Unmarshal(res.Data, &report))
	require.Equal(t, ch.Validation.Failures, report.Failures)

	res = call(t, env.router, http.MethodGet, "/api/v1/chapters/missing/validation", nil)
	require.Equal(t, errcode.ErrNotFound, res.Code)

	res = call(t, env.router, http.MethodPost, "/api/v1/chapters/validate", map[string]interface{}{"title": "Draft"})
	require.Equal(t, errcode.ErrInvalid, res.Code)
	res = call(t, env.router, http.MethodPost, "/api/v1/chapters/validate", map[string]interface{}{"title": "Draft", "content": "A system model."})
	require.Zero(t, res.Code)
	require.NoError(t, json.Unmarshal(res.Data, &report))
	require.NotEmpty(t, report.Issues)
}

func TestIndexRoutes(t *testing.T) {
	env := setupRouter(t)

	res := call(t, env.router, http.MethodPost, "/api/v1/index/chapters/ch1", nil)
	require.Zero(t, res.Code)
	res = call(t, env.router, http.MethodPost, "/api/v1/index/published", nil)
	require.Zero(t, res.Code)

	res = call(t, env.router, http.MethodGet, "/api/v1/index/chunks/p1/related?top_k=3", nil)
	require.Zero(t, res.Code)
	var related []model.RetrievedChunk
	require.NoError(t, json.Unmarshal(res.Data, &related))
	require.Len(t, related, 1)
	require.Equal(t, "p2", related[0].ID)

	res = call(t, env.router, http.MethodGet, "/api/v1/index/chunks/p1/related?top_k=abc", nil)
	require.Equal(t, errcode.ErrInvalid, res.Code)

	env.indexer.err = appErr.ErrNotFound
	res = call(t, env.router, http.MethodDelete, "/api/v1/index/chapters/missing", nil)
	require.Equal(t, errcode.ErrNotFound, res.Code)

	env.indexer.err = errors.New("db down")
	res = call(t, env.router, http.MethodPost, "/api/v1/index/chapters/ch1", nil)
	require.Equal(t, errcode.ErrInternal, res.Code)
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	for _, tc := range []struct {
		pinger Pinger
		want   string
	}{
		{nil, "ok"},
		{errPinger{}, "ok"},
		{errPinger{err: errors.New("down")}, "degraded"},
	} {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		NewHealthHandler(tc.pinger).Check(c)
		var env envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		var body map[string]string
		require.NoError(t, json.Unmarshal(env.Data, &body))
		require.Equal(t, tc.want, body["status"])
	}
}
