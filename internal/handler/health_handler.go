package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/booktutor/internal/pkg/response"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db Pinger
}

func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Check(c *gin.Context) {
	status := "ok"
	dbStatus := "ok"
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			status, dbStatus = "degraded", "unreachable"
		}
	}
	response.Success(c, gin.H{"status": status, "database": dbStatus})
}
