package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/comitanigiacomo/glow-sync-engine/internal/core/services"
)

// SessionHandler maps the client lifecycle onto the engine: sign-in and
// sign-out drive the routine cache, resume drives the date boundary.
type SessionHandler struct {
	sessions *services.SessionService
	calendar Calendar
}

func NewSessionHandler(sessions *services.SessionService, calendar Calendar) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		calendar: calendar,
	}
}

func (h *SessionHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/session", h.SignIn)
	router.DELETE("/session", h.SignOut)
	router.GET("/date", h.CurrentDate)
	router.POST("/lifecycle/resume", h.Resume)
}

func (h *SessionHandler) SignIn(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	_, snap, err := h.sessions.SignIn(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (h *SessionHandler) SignOut(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	h.sessions.SignOut(userID)
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) CurrentDate(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"date": h.calendar.CurrentDate()})
}

func (h *SessionHandler) Resume(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"date": h.calendar.Resume()})
}
