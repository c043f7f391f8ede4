package handler

import (
	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Chatbot  *ChatbotHandler
	Chapters *ChapterHandler
	Index    *IndexHandler
	Health   *HealthHandler
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/health", deps.Health.Check)

	chat := api.Group("/chatbot")
	chat.POST("/query", deps.Chatbot.Query)
	chat.POST("/session", deps.Chatbot.CreateSession)
	chat.GET("/session/:id", deps.Chatbot.GetSession)
	chat.PUT("/session/:id", deps.Chatbot.UpdateSession)
	chat.GET("/session/:id/stats", deps.Chatbot.SessionStats)
	chat.GET("/history", deps.Chatbot.History)
	chat.POST("/feedback", deps.Chatbot.Feedback)
	chat.POST("/search", deps.Chatbot.Search)

	chapters := api.Group("/chapters")
	chapters.POST("", deps.Chapters.Create)
	chapters.GET("", deps.Chapters.List)
	chapters.POST("/validate", deps.Chapters.ValidateDraft)
	chapters.GET("/slug/:slug", deps.Chapters.GetBySlug)
	chapters.GET("/:id", deps.Chapters.Get)
	chapters.PUT("/:id", deps.Chapters.Update)
	chapters.GET("/:id/validation", deps.Chapters.Validate)
	chapters.POST("/:id/progress", deps.Chapters.UpdateProgress)
	chapters.GET("/progress/:student_id", deps.Chapters.ListProgress)

	index := api.Group("/index")
	index.POST("/chapters/:id", deps.Index.IndexChapter)
	index.DELETE("/chapters/:id", deps.Index.DeleteChapter)
	index.POST("/published", deps.Index.IndexPublished)
	index.GET("/chunks/:id/related", deps.Index.Related)
}
