package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/comitanigiacomo/glow-sync-engine/internal/adapters/handler/http/middleware"
	"github.com/comitanigiacomo/glow-sync-engine/internal/core/domain"
)

func handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrAuthRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})

	case errors.Is(err, domain.ErrPermissionDenied) || errors.Is(err, domain.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})

	case errors.Is(err, domain.ErrInvalidDate),
		errors.Is(err, domain.ErrInvalidPeriod),
		errors.Is(err, domain.ErrInvalidStep),
		errors.Is(err, domain.ErrRoutineInvalidUserID),
		errors.Is(err, domain.ErrStepNameEmpty),
		errors.Is(err, domain.ErrStepNameTooLong),
		errors.Is(err, domain.ErrInvalidStepNumber),
		errors.Is(err, domain.ErrInvalidWeekdays):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	case errors.Is(err, domain.ErrProgressNotFound) || errors.Is(err, domain.ErrRoutineNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})

	case errors.Is(err, domain.ErrCacheUserMismatch):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "session conflict",
			"message": "another user is still signed in on this cache",
		})

	case errors.Is(err, domain.ErrCacheReset):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "session conflict",
			"message": "signed out while signing in",
		})

	default:
		middleware.Logger(c).Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func currentUser(c *gin.Context) (string, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok || userID == "" {
		handleError(c, domain.ErrAuthRequired)
		return "", false
	}
	return userID, true
}
