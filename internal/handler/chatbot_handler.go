package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/booktutor/internal/model"
	"github.com/xxxsen/booktutor/internal/pkg/response"
	"github.com/xxxsen/booktutor/internal/retrieval"
	"github.com/xxxsen/booktutor/internal/service"
)

type ChatbotHandler struct {
	rag       *service.RAGService
	feedback  *service.FeedbackService
	retriever *retrieval.Retriever
	topK      int
}

func NewChatbotHandler(rag *service.RAGService, feedback *service.FeedbackService, retriever *retrieval.Retriever, topK int) *ChatbotHandler {
	return &ChatbotHandler{rag: rag, feedback: feedback, retriever: retriever, topK: topK}
}

// parseMode treats an empty mode as global.
func parseMode(s string) (model.ContextMode, error) {
	if strings.TrimSpace(s) == "" {
		return model.ContextModeGlobal, nil
	}
	return model.ParseContextMode(s)
}

type queryRequest struct {
	Query        string `json:"query"`
	ContextMode  string `json:"context_mode"`
	SessionID    string `json:"session_id"`
	SelectedText string `json:"selected_text"`
	StudentID    string `json:"student_id"`
}

func (h *ChatbotHandler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	mode, err := parseMode(req.ContextMode)
	if err != nil {
		handleError(c, err)
		return
	}
	resp, err := h.rag.Query(c.Request.Context(), service.QueryRequest{
		Query:        req.Query,
		ContextMode:  mode,
		SessionID:    req.SessionID,
		SelectedText: req.SelectedText,
		StudentID:    req.StudentID,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, resp)
}

type sessionRequest struct {
	StudentID     string `json:"student_id"`
	ContextMode   string `json:"context_mode"`
	ContextLength *int   `json:"context_length"`
}

func (h *ChatbotHandler) CreateSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	mode, err := parseMode(req.ContextMode)
	if err != nil {
		handleError(c, err)
		return
	}
	session, err := h.rag.CreateSession(c.Request.Context(), service.CreateSessionRequest{
		StudentID:     req.StudentID,
		ContextMode:   mode,
		ContextLength: req.ContextLength,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"session_id":   session.ID,
		"created_at":   session.StartedAt,
		"context_mode": session.ContextMode,
	})
}

func (h *ChatbotHandler) GetSession(c *gin.Context) {
	session, err := h.rag.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, session)
}

type updateSessionRequest struct {
	ContextMode   *string `json:"context_mode"`
	ContextLength *int    `json:"context_length"`
}

func (h *ChatbotHandler) UpdateSession(c *gin.Context) {
	var req updateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	var mode *model.ContextMode
	if req.ContextMode != nil {
		parsed, err := model.ParseContextMode(*req.ContextMode)
		if err != nil {
			handleError(c, err)
			return
		}
		mode = &parsed
	}
	session, err := h.rag.UpdateSessionContext(c.Request.Context(), c.Param("id"), mode, req.ContextLength)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, session)
}

func (h *ChatbotHandler) SessionStats(c *gin.Context) {
	stats, err := h.rag.GetSessionStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, stats)
}

func (h *ChatbotHandler) History(c *gin.Context) {
	filter := model.HistoryFilter{StudentID: c.Query("student_id"), SessionID: c.Query("session_id")}
	if filter.StudentID == "" && filter.SessionID == "" {
		badRequest(c, "student_id or session_id required")
		return
	}
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		badRequest(c, "invalid limit")
		return
	}
	items, err := h.rag.ListHistory(c.Request.Context(), filter, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, items)
}

type feedbackRequest struct {
	InteractionID  string `json:"interaction_id"`
	StudentID      string `json:"student_id"`
	Rating         *int   `json:"rating"`
	Helpful        *bool  `json:"helpful"`
	AccuracyRating *int   `json:"accuracy_rating"`
	FeedbackText   string `json:"feedback_text"`
}

func (h *ChatbotHandler) Feedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	fb, err := h.feedback.Submit(c.Request.Context(), service.FeedbackRequest{
		InteractionID:  req.InteractionID,
		StudentID:      req.StudentID,
		Rating:         req.Rating,
		Helpful:        req.Helpful,
		AccuracyRating: req.AccuracyRating,
		FeedbackText:   req.FeedbackText,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"success": true, "feedback_id": fb.ID})
}

type searchRequest struct {
	Query      string   `json:"query"`
	ChapterIDs []string `json:"chapter_ids"`
	TopK       int      `json:"top_k"`
	Policy     string   `json:"policy"`
}

// Search runs retrieval only, without generation.
func (h *ChatbotHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		badRequest(c, "query required")
		return
	}
	if req.TopK < 0 || req.TopK > 50 {
		badRequest(c, "top_k must be in [0, 50]")
		return
	}
	topK := req.TopK
	if topK == 0 {
		topK = h.topK
	}
	chunks, err := h.retriever.RetrieveByQuery(c.Request.Context(), req.Query, req.ChapterIDs, topK)
	if err != nil {
		handleError(c, err)
		return
	}
	policy := retrieval.ParseRerankPolicy(req.Policy)
	chunks = h.retriever.Rerank(req.Query, chunks, policy)
	response.Success(c, gin.H{
		"results":   service.BuildSources(chunks),
		"citations": service.GenerateCitations(chunks),
		"policy":    policy.String(),
	})
}
