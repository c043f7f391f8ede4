package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/booktutor/internal/ai"
	"github.com/xxxsen/booktutor/internal/embedding"
	"github.com/xxxsen/booktutor/internal/metrics"
	"github.com/xxxsen/booktutor/internal/model"
	appErr "github.com/xxxsen/booktutor/internal/pkg/errors"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 50
)

type RAGConfig struct {
	TopK                 int
	Temperature          float64
	MaxTokens            int
	DefaultContextLength int
	HistoryTurns         int
	SessionExpiryHours   int
	ValidateResponses    bool
	Scoring              ScoringPolicy
}

type RAGService struct {
	sessions     ISessionRepo
	interactions IInteractionRepo
	retriever    IRetriever
	generator    ai.IGenerator
	embedder     IQueryEmbedder
	cfg          RAGConfig
	now          func() time.Time
}

func NewRAGService(sessions ISessionRepo, interactions IInteractionRepo, retriever IRetriever, generator ai.IGenerator, embedder IQueryEmbedder, cfg RAGConfig) *RAGService {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.DefaultContextLength <= 0 {
		cfg.DefaultContextLength = 5
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 3
	}
	if cfg.SessionExpiryHours <= 0 {
		cfg.SessionExpiryHours = 24
	}
	if cfg.Scoring == (ScoringPolicy{}) {
		cfg.Scoring = DefaultScoringPolicy()
	}
	return &RAGService{
		sessions:     sessions,
		interactions: interactions,
		retriever:    retriever,
		generator:    generator,
		embedder:     embedder,
		cfg:          cfg,
		now:          time.Now,
	}
}

type CreateSessionRequest struct {
	StudentID     string
	ContextMode   model.ContextMode
	ContextLength *int
}

type QueryRequest struct {
	Query        string
	ContextMode  model.ContextMode
	SessionID    string
	SelectedText string
	StudentID    string
}

func (s *RAGService) CreateSession(ctx context.Context, req CreateSessionRequest) (*model.Session, error) {
	if !req.ContextMode.Valid() {
		return nil, appErr.ErrInvalidMode
	}
	length := s.cfg.DefaultContextLength
	if req.ContextLength != nil {
		length = *req.ContextLength
	}
	if length < 0 {
		return nil, fmt.Errorf("context_length must be >= 0: %w", appErr.ErrInvalid)
	}
	now := s.now().UnixMilli()
	session := &model.Session{
		ID:                newID(),
		StudentID:         req.StudentID,
		StartedAt:         now,
		LastInteractionAt: now,
		ContextMode:       req.ContextMode,
		ContextLength:     length,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("chat session created",
		zap.String("session_id", session.ID),
		zap.String("context_mode", session.ContextMode.String()))
	return session, nil
}

func (s *RAGService) expiryHorizon() time.Duration {
	return time.Duration(s.cfg.SessionExpiryHours) * time.Hour
}

// GetSession returns the session and advances its last interaction time.
// Expired reports whether it had been idle past the horizon before this call.
func (s *RAGService) GetSession(ctx context.Context, id string) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	session.Expired = session.IsExpired(now, s.expiryHorizon())
	if err := s.sessions.Touch(ctx, id, now.UnixMilli()); err != nil {
		return nil, err
	}
	session.LastInteractionAt = now.UnixMilli()
	return session, nil
}

func (s *RAGService) UpdateSessionContext(ctx context.Context, id string, mode *model.ContextMode, contextLength *int) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if mode != nil {
		if !mode.Valid() {
			return nil, appErr.ErrInvalidMode
		}
		session.ContextMode = *mode
	}
	if contextLength != nil {
		if *contextLength < 0 {
			return nil, fmt.Errorf("context_length must be >= 0: %w", appErr.ErrInvalid)
		}
		session.ContextLength = *contextLength
	}
	session.LastInteractionAt = s.now().UnixMilli()
	if err := s.sessions.UpdateContext(ctx, id, session.ContextMode, session.ContextLength, session.LastInteractionAt); err != nil {
		return nil, err
	}
	return session, nil
}

// GetConversationContext returns the last turns of a session, oldest first.
func (s *RAGService) GetConversationContext(ctx context.Context, sessionID string, turns int) ([]model.ConversationTurn, error) {
	if turns <= 0 {
		turns = s.cfg.HistoryTurns
	}
	items, err := s.interactions.ListRecentBySession(ctx, sessionID, uint(turns))
	if err != nil {
		return nil, err
	}
	out := make([]model.ConversationTurn, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		out = append(out, model.ConversationTurn{Query: items[i].Query, Response: items[i].Response})
	}
	return out, nil
}

func (s *RAGService) Query(ctx context.Context, req QueryRequest) (*model.ChatResponse, error) {
	start := s.now()
	logger := logutil.GetLogger(ctx)
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("query is required: %w", appErr.ErrInvalid)
	}
	switch req.ContextMode {
	case model.ContextModeSelectedText:
		if strings.TrimSpace(req.SelectedText) == "" {
			return nil, appErr.ErrMissingSelectedText
		}
	case model.ContextModeGlobal:
	default:
		return nil, appErr.ErrInvalidMode
	}

	session, err := s.resolveSession(ctx, req)
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("session_id", session.ID), zap.String("context_mode", req.ContextMode.String()))

	var history []model.ConversationTurn
	if session.ContextLength > 0 {
		history, err = s.GetConversationContext(ctx, session.ID, session.ContextLength)
		if err != nil {
			logger.Warn("load conversation context failed", zap.Error(err))
			history = nil
		}
	}

	var chunks []model.RetrievedChunk
	switch req.ContextMode {
	case model.ContextModeSelectedText:
		chunks = []model.RetrievedChunk{{
			Content:  req.SelectedText,
			Source:   selectedTextSource,
			Score:    1.0,
			Metadata: map[string]interface{}{},
		}}
	case model.ContextModeGlobal:
		chunks, err = s.retriever.RetrieveByQuery(ctx, req.Query, nil, s.cfg.TopK)
		if err != nil {
			logger.Error("retrieval failed, answering without context", zap.Error(err))
			chunks = nil
		}
	}

	answer, err := s.generator.Complete(ctx, ai.CompletionRequest{
		System:      systemPrompt,
		Prompt:      buildUserPrompt(req.Query, chunks, history),
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		logger.Error("completion failed, using fallback response", zap.Error(err))
		return s.fallback(ctx, session, req, start), nil
	}

	confidence := s.cfg.Scoring.SimpleConfidence(chunks)
	if s.cfg.ValidateResponses {
		result, err := s.ValidateResponse(ctx, req.Query, answer, chunks)
		if err != nil {
			logger.Error("response validation failed, using fallback response", zap.Error(err))
			return s.fallback(ctx, session, req, start), nil
		}
		confidence = result.ConfidenceScore
		if !result.IsValid {
			logger.Info("response below validation threshold", zap.Float64("confidence", confidence))
		}
	}

	sources := BuildSources(chunks)
	elapsed := s.now().Sub(start)
	tags := make([]string, 0, len(chunks))
	for _, c := range chunks {
		tags = append(tags, c.Source)
	}
	s.logInteraction(ctx, &model.Interaction{
		SessionID:      session.ID,
		StudentID:      req.StudentID,
		Query:          req.Query,
		Response:       answer,
		ContextMode:    req.ContextMode,
		SelectedText:   req.SelectedText,
		ResponseTimeMs: elapsed.Milliseconds(),
		AccuracyScore:  confidence,
		Sources:        tags,
	})
	observeQuery(req.ContextMode, metrics.OutcomeSuccess, elapsed)
	return &model.ChatResponse{
		Response:       answer,
		Sources:        sources,
		Confidence:     confidence,
		SessionID:      session.ID,
		ResponseTimeMs: elapsed.Milliseconds(),
	}, nil
}

func (s *RAGService) resolveSession(ctx context.Context, req QueryRequest) (*model.Session, error) {
	create := func() (*model.Session, error) {
		return s.CreateSession(ctx, CreateSessionRequest{StudentID: req.StudentID, ContextMode: req.ContextMode})
	}
	if req.SessionID == "" {
		return create()
	}
	session, err := s.GetSession(ctx, req.SessionID)
	if appErr.IsNotFound(err) {
		logutil.GetLogger(ctx).Info("session not found, starting a new one", zap.String("requested_session_id", req.SessionID))
		return create()
	}
	if err != nil {
		return nil, err
	}
	if session.Expired {
		logutil.GetLogger(ctx).Info("reusing expired session before purge", zap.String("session_id", session.ID))
	}
	return session, nil
}

func (s *RAGService) fallback(ctx context.Context, session *model.Session, req QueryRequest, start time.Time) *model.ChatResponse {
	text := fallbackText(req.Query)
	elapsed := s.now().Sub(start)
	s.logInteraction(ctx, &model.Interaction{
		SessionID:      session.ID,
		StudentID:      req.StudentID,
		Query:          req.Query,
		Response:       text,
		ContextMode:    req.ContextMode,
		SelectedText:   req.SelectedText,
		ResponseTimeMs: elapsed.Milliseconds(),
		AccuracyScore:  fallbackScore,
		Sources:        []string{fallbackSource},
	})
	observeQuery(req.ContextMode, metrics.OutcomeFallback, elapsed)
	return &model.ChatResponse{
		Response:       text,
		Sources:        []model.Source{{Source: fallbackSource, Content: fallbackContent}},
		Confidence:     fallbackScore,
		SessionID:      session.ID,
		ResponseTimeMs: elapsed.Milliseconds(),
	}
}

// logInteraction records the interaction; a failure is logged and does not
// affect the answer already produced.
func (s *RAGService) logInteraction(ctx context.Context, it *model.Interaction) {
	if err := s.LogInteraction(ctx, it); err != nil {
		logutil.GetLogger(ctx).Error("log interaction failed", zap.String("session_id", it.SessionID), zap.Error(err))
	}
}

func (s *RAGService) LogInteraction(ctx context.Context, it *model.Interaction) error {
	if it.ID == "" {
		it.ID = newID()
	}
	if it.Timestamp == 0 {
		it.Timestamp = s.now().UnixMilli()
	}
	if it.Sources == nil {
		it.Sources = []string{}
	}
	return s.interactions.Create(ctx, it)
}

// ValidateResponse scores how well the response is grounded in chunks.
func (s *RAGService) ValidateResponse(ctx context.Context, query, response string, chunks []model.RetrievedChunk) (*model.ValidationResult, error) {
	if len(chunks) == 0 {
		return &model.ValidationResult{
			IsValid:         false,
			ConfidenceScore: 0,
			Citations:       []model.Source{},
			Feedback:        "No sources used for response generation",
		}, nil
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	responseVec, err := s.embedder.Embed(ctx, response)
	if err != nil {
		return nil, fmt.Errorf("embed response: %w", err)
	}
	semantic := embedding.CosineSimilarity(queryVec, responseVec)
	confidence := s.cfg.Scoring.BlendedConfidence(AverageRelevance(chunks), semantic)
	valid := s.cfg.Scoring.Accepts(confidence)
	feedback := fmt.Sprintf("Response validated with confidence %.2f", confidence)
	if !valid {
		feedback = fmt.Sprintf("Response below threshold (%v), confidence %.2f", s.cfg.Scoring.ValidationThreshold, confidence)
	}
	return &model.ValidationResult{
		IsValid:         valid,
		ConfidenceScore: confidence,
		Citations:       BuildSources(chunks),
		Feedback:        feedback,
	}, nil
}

func BuildSources(chunks []model.RetrievedChunk) []model.Source {
	out := make([]model.Source, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, model.Source{
			ContentSnippet: truncateRunes(c.Content, snippetRunes),
			Source:         c.Source,
			RelevanceScore: c.Score,
			Metadata:       c.Metadata,
		})
	}
	return out
}

func GenerateCitations(chunks []model.RetrievedChunk) []model.Citation {
	out := make([]model.Citation, 0, len(chunks))
	for _, c := range chunks {
		title, ok := model.MetaString(c.Metadata, model.MetaChapterTitle)
		if !ok || title == "" {
			title = "Unknown Chapter"
		}
		number, ok := model.MetaString(c.Metadata, model.MetaChapterNumber)
		if !ok || number == "" {
			number = "N/A"
		}
		section, ok := model.MetaString(c.Metadata, model.MetaSection)
		if !ok || section == "" {
			section = "General"
		}
		out = append(out, model.Citation{
			Title:          title,
			ChapterNumber:  number,
			Section:        section,
			ContentSnippet: truncateRunes(c.Content, citationRunes),
			SourceDocument: c.Source,
			RelevanceScore: fmt.Sprintf("%.2f", c.Score),
		})
	}
	return out
}

func (s *RAGService) GetSessionStats(ctx context.Context, sessionID string) (*model.SessionStats, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	count, avgRT, avgAcc, err := s.interactions.StatsBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &model.SessionStats{
		SessionID:         session.ID,
		StartedAt:         session.StartedAt,
		LastInteractionAt: session.LastInteractionAt,
		ContextMode:       session.ContextMode.String(),
		InteractionCount:  count,
		AvgResponseTimeMs: avgRT,
		AvgAccuracy:       avgAcc,
		Expired:           session.IsExpired(s.now(), s.expiryHorizon()),
	}, nil
}

// ListHistory returns at most limit interactions, oldest first.
func (s *RAGService) ListHistory(ctx context.Context, filter model.HistoryFilter, limit int) ([]model.Interaction, error) {
	if limit == 0 {
		limit = defaultHistoryLimit
	}
	if limit < 0 || limit > maxHistoryLimit {
		return nil, fmt.Errorf("limit must be in [1, %d]: %w", maxHistoryLimit, appErr.ErrInvalid)
	}
	items, err := s.interactions.ListHistory(ctx, filter, uint(limit))
	if err != nil {
		return nil, err
	}
	out := make([]model.Interaction, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		out = append(out, items[i])
	}
	return out, nil
}

func (s *RAGService) expiryCutoff(hoursOld int) int64 {
	if hoursOld <= 0 {
		hoursOld = s.cfg.SessionExpiryHours
	}
	return s.now().Add(-time.Duration(hoursOld) * time.Hour).UnixMilli()
}

func (s *RAGService) ListExpiredSessions(ctx context.Context, hoursOld int) ([]string, error) {
	return s.sessions.ListExpired(ctx, s.expiryCutoff(hoursOld))
}

// CleanupExpiredSessions removes sessions idle for longer than hoursOld along
// with their interactions and feedback.
func (s *RAGService) CleanupExpiredSessions(ctx context.Context, hoursOld int) (int64, error) {
	removed, err := s.sessions.DeleteExpired(ctx, s.expiryCutoff(hoursOld))
	if err != nil {
		return 0, err
	}
	logutil.GetLogger(ctx).Info("expired sessions removed", zap.Int64("count", removed))
	return removed, nil
}

func observeQuery(mode model.ContextMode, outcome string, elapsed time.Duration) {
	metrics.QueryTotal.WithLabelValues(mode.String(), outcome).Inc()
	metrics.QueryDuration.WithLabelValues(mode.String()).Observe(elapsed.Seconds())
}
