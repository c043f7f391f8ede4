package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/booktutor/internal/middleware"
	"github.com/xxxsen/booktutor/internal/pkg/errcode"
	appErr "github.com/xxxsen/booktutor/internal/pkg/errors"
	"github.com/xxxsen/booktutor/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get(middleware.ContextRequestIDKey)
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, appErr.ErrInvalidMode):
		response.Error(c, errcode.ErrInvalidMode, err.Error())
	case errors.Is(err, appErr.ErrMissingSelectedText):
		response.Error(c, errcode.ErrMissingSelectedText, err.Error())
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, err.Error())
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	case errors.Is(err, appErr.ErrUpstream):
		response.Error(c, errcode.ErrAIUnavailable, "ai service unavailable")
	default:
		response.Error(c, errcode.ErrInternal, http.StatusText(http.StatusInternalServerError))
	}
}

func badRequest(c *gin.Context, msg string) {
	response.Error(c, errcode.ErrInvalid, msg)
}

// queryInt reads a non-negative integer query param, def when absent.
func queryInt(c *gin.Context, key string, def int) (int, bool) {
	value := c.Query(key)
	if value == "" {
		return def, true
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
