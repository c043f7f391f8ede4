package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/booktutor/internal/model"
	"github.com/xxxsen/booktutor/internal/pkg/response"
	"github.com/xxxsen/booktutor/internal/service"
)

const maxChapterPage = 200

type ChapterHandler struct {
	chapters *service.ChapterService
}

func NewChapterHandler(chapters *service.ChapterService) *ChapterHandler {
	return &ChapterHandler{chapters: chapters}
}

type chapterRequest struct {
	Title            string   `json:"title"`
	Slug             string   `json:"slug"`
	ChapterNumber    int      `json:"chapter_number"`
	Content          string   `json:"content"`
	Summary          string   `json:"summary"`
	LearningOutcomes []string `json:"learning_outcomes"`
	Status           string   `json:"status"`
}

func (r chapterRequest) input() service.ChapterInput {
	return service.ChapterInput{
		Title:            r.Title,
		Slug:             r.Slug,
		ChapterNumber:    r.ChapterNumber,
		Content:          r.Content,
		Summary:          r.Summary,
		LearningOutcomes: r.LearningOutcomes,
		Status:           model.ChapterStatus(r.Status),
	}
}

func (h *ChapterHandler) Create(c *gin.Context) {
	var req chapterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	ch, err := h.chapters.Create(c.Request.Context(), req.input())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, ch)
}

func (h *ChapterHandler) Update(c *gin.Context) {
	var req chapterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	ch, err := h.chapters.Update(c.Request.Context(), c.Param("id"), req.input())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, ch)
}

// ValidateDraft checks posted content without saving it.
func (h *ChapterHandler) ValidateDraft(c *gin.Context) {
	var req chapterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	report, err := h.chapters.ValidateDraft(req.input())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, report)
}

func (h *ChapterHandler) Validate(c *gin.Context) {
	report, err := h.chapters.Validate(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, report)
}

func (h *ChapterHandler) Get(c *gin.Context) {
	ch, err := h.chapters.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, ch)
}

func (h *ChapterHandler) GetBySlug(c *gin.Context) {
	ch, err := h.chapters.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, ch)
}

func (h *ChapterHandler) List(c *gin.Context) {
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		badRequest(c, "invalid offset")
		return
	}
	limit, ok := queryInt(c, "limit", 50)
	if !ok || limit == 0 || limit > maxChapterPage {
		badRequest(c, "invalid limit")
		return
	}
	items, err := h.chapters.List(c.Request.Context(), model.ChapterStatus(c.Query("status")), uint(offset), uint(limit))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, items)
}

type progressRequest struct {
	StudentID            string  `json:"student_id"`
	CompletionPercentage float64 `json:"completion_percentage"`
}

func (h *ChapterHandler) UpdateProgress(c *gin.Context) {
	var req progressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	p, err := h.chapters.UpdateProgress(c.Request.Context(), req.StudentID, c.Param("id"), req.CompletionPercentage)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, p)
}

func (h *ChapterHandler) ListProgress(c *gin.Context) {
	items, err := h.chapters.ListProgress(c.Request.Context(), c.Param("student_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, items)
}
